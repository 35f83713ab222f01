package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/metrics"
)

const defaultStaleAfter = 72 * time.Hour

type pendingCounter interface {
	CountPendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type staleGauge interface {
	SetStalePending(workflow string, count int64)
}

type StaleRequestReportJobParams struct {
	Logger         *logger.Logger
	ChangeRequests pendingCounter
	Confirmations  pendingCounter
	Metrics        staleGauge
	StaleAfter     time.Duration
}

// NewStaleRequestReportJob reports requests left pending past StaleAfter.
// It only observes; nothing is resolved on a party's behalf.
func NewStaleRequestReportJob(params StaleRequestReportJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.ChangeRequests == nil {
		return nil, fmt.Errorf("change request counter required")
	}
	if params.Confirmations == nil {
		return nil, fmt.Errorf("payment confirmation counter required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &staleRequestReportJob{
		logg:       params.Logger,
		counters:   map[string]pendingCounter{metrics.WorkflowChangeRequest: params.ChangeRequests, metrics.WorkflowPaymentConfirmation: params.Confirmations},
		gauge:      params.Metrics,
		staleAfter: staleAfter,
		now:        time.Now,
	}, nil
}

type staleRequestReportJob struct {
	logg       *logger.Logger
	counters   map[string]pendingCounter
	gauge      staleGauge
	staleAfter time.Duration
	now        func() time.Time
}

func (j *staleRequestReportJob) Name() string { return "stale-request-report" }

func (j *staleRequestReportJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)

	var errs error
	for _, workflow := range []string{metrics.WorkflowChangeRequest, metrics.WorkflowPaymentConfirmation} {
		count, err := j.counters[workflow].CountPendingBefore(ctx, cutoff)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("count stale %s: %w", workflow, err))
			continue
		}
		if j.gauge != nil {
			j.gauge.SetStalePending(workflow, count)
		}

		logCtx := j.logg.WithFields(ctx, map[string]any{
			"workflow":    workflow,
			"cutoff":      cutoff,
			"stale_count": count,
		})
		if count > 0 {
			j.logg.Warn(logCtx, "requests pending past threshold")
			continue
		}
		j.logg.Debug(logCtx, "no stale requests")
	}
	return errs
}
