package cron

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/metrics"
)

type fakeCounter struct {
	count  int64
	err    error
	cutoff time.Time
}

func (f *fakeCounter) CountPendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.count, f.err
}

type fakeGauge struct {
	values map[string]int64
}

func (f *fakeGauge) SetStalePending(workflow string, count int64) {
	if f.values == nil {
		f.values = map[string]int64{}
	}
	f.values[workflow] = count
}

func TestStaleRequestReportJobExportsCounts(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	requests := &fakeCounter{count: 3}
	confirmations := &fakeCounter{}
	gauge := &fakeGauge{}
	var out bytes.Buffer

	jobIface, err := NewStaleRequestReportJob(StaleRequestReportJobParams{
		Logger:         logger.New(logger.Options{ServiceName: "test", Level: zerolog.DebugLevel, Output: &out}),
		ChangeRequests: requests,
		Confirmations:  confirmations,
		Metrics:        gauge,
		StaleAfter:     24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewStaleRequestReportJob: %v", err)
	}
	job := jobIface.(*staleRequestReportJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-24 * time.Hour); !requests.cutoff.Equal(want) || !confirmations.cutoff.Equal(want) {
		t.Fatalf("unexpected cutoffs %s %s", requests.cutoff, confirmations.cutoff)
	}
	if gauge.values[metrics.WorkflowChangeRequest] != 3 || gauge.values[metrics.WorkflowPaymentConfirmation] != 0 {
		t.Fatalf("unexpected gauge values %v", gauge.values)
	}
	if !strings.Contains(out.String(), "requests pending past threshold") {
		t.Fatalf("expected warn log, got %s", out.String())
	}
}

func TestStaleRequestReportJobContinuesAfterFailure(t *testing.T) {
	requests := &fakeCounter{err: errors.New("db down")}
	confirmations := &fakeCounter{count: 1}
	gauge := &fakeGauge{}

	job, err := NewStaleRequestReportJob(StaleRequestReportJobParams{
		Logger:         logger.New(logger.Options{ServiceName: "test"}),
		ChangeRequests: requests,
		Confirmations:  confirmations,
		Metrics:        gauge,
	})
	if err != nil {
		t.Fatalf("NewStaleRequestReportJob: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if gauge.values[metrics.WorkflowPaymentConfirmation] != 1 {
		t.Fatal("confirmation count should still be exported")
	}
	if _, ok := gauge.values[metrics.WorkflowChangeRequest]; ok {
		t.Fatal("failed count must not be exported")
	}
}

func TestStaleRequestReportJobRequiresCounters(t *testing.T) {
	if _, err := NewStaleRequestReportJob(StaleRequestReportJobParams{Logger: logger.New(logger.Options{ServiceName: "test"})}); err == nil {
		t.Fatal("expected error without counters")
	}
}
