package changerequests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/entries"
	"github.com/angelmondragon/marketledger-backend/internal/paymentconfirmations"
	"github.com/angelmondragon/marketledger-backend/pkg/auth"
	"github.com/angelmondragon/marketledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
)

type engineHarness struct {
	conn          *gorm.DB
	svc           Service
	confirmations paymentconfirmations.Service
	entrySvc      entries.Service
	entries       *entries.Repository
	requests      *Repository
	seller        auth.Actor
	market        auth.Actor
}

func newEngineHarness(t *testing.T, cfg Config) *engineHarness {
	t.Helper()
	client, conn := dbtest.OpenClient(t)
	logg := logger.New(logger.Options{ServiceName: "test"})

	h := &engineHarness{
		conn:     conn,
		entries:  entries.NewRepository(conn),
		requests: NewRepository(conn),
	}
	marketID := uuid.New()
	h.seller = auth.Actor{ID: uuid.New(), Role: enums.ActorRoleSeller, Name: "Rosa"}
	h.market = auth.Actor{ID: uuid.New(), Role: enums.ActorRoleMarket, MarketID: &marketID}

	events := outbox.NewService(outbox.NewRepository(conn), logg)
	confirmationsRepo := paymentconfirmations.NewRepository(conn)
	svc, err := NewService(ServiceParams{
		Requests:      h.requests,
		Entries:       h.entries,
		Confirmations: confirmationsRepo,
		Tx:            client,
		Outbox:        events,
		Logger:        logg,
		Config:        cfg,
	})
	require.NoError(t, err)
	h.svc = svc

	h.confirmations, err = paymentconfirmations.NewService(paymentconfirmations.ServiceParams{
		Confirmations: confirmationsRepo,
		Entries:       h.entries,
		Tx:            client,
		Outbox:        events,
		Logger:        logg,
	})
	require.NoError(t, err)

	h.entrySvc, err = entries.NewService(h.entries, client, logg)
	require.NoError(t, err)
	return h
}

func (h *engineHarness) seedEntry(t *testing.T, status enums.PaymentStatus) models.Entry {
	t.Helper()
	now := time.Now().UTC()
	entry := models.Entry{
		ID:            uuid.New(),
		SellerID:      h.seller.ID,
		SellerName:    h.seller.Name,
		MarketID:      *h.market.MarketID,
		MarketName:    "Central",
		ProductType:   "rice",
		Quantity:      "10 kg",
		Price:         "120",
		Amount:        decimal.NewFromInt(120),
		PaymentStatus: status,
		RecordDate:    now.Truncate(24 * time.Hour),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, h.entries.Create(context.Background(), &entry))
	return entry
}

func (h *engineHarness) entryStatus(t *testing.T, id uuid.UUID) enums.PaymentStatus {
	t.Helper()
	entry, err := h.entries.FindByID(context.Background(), nil, id)
	require.NoError(t, err)
	return entry.PaymentStatus
}

func (h *engineHarness) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.Model(model).Where(where, args...).Count(&n).Error)
	return n
}

func paid() *enums.PaymentStatus {
	s := enums.PaymentStatusPaid
	return &s
}

func TestEngineStatusScenario(t *testing.T) {
	h := newEngineHarness(t, Config{ExclusivePending: true})
	ctx := context.Background()
	e1 := h.seedEntry(t, enums.PaymentStatusUnpaid)

	req, err := h.svc.CreateRequest(ctx, h.market, CreateInput{
		EntryID:        e1.ID,
		Kind:           enums.ChangeRequestKindUpdateStatus,
		ProposedStatus: paid(),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, h.entryStatus(t, e1.ID))

	approved, err := h.svc.Approve(ctx, req.ID, h.seller)
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusApproved, approved.Status)
	assert.Equal(t, enums.PaymentStatusPaid, h.entryStatus(t, e1.ID))

	_, err = h.svc.Approve(ctx, req.ID, h.seller)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, enums.PaymentStatusPaid, h.entryStatus(t, e1.ID))

	stored, err := h.requests.FindByID(ctx, nil, req.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RequestStatusApproved, stored.Status)
	require.NotNil(t, stored.ResolvedBy)
	assert.Equal(t, h.seller.ID, *stored.ResolvedBy)
	assert.NotNil(t, stored.ResolvedAt)

	assert.EqualValues(t, 2, h.count(t, &models.OutboxEvent{}, "aggregate_id = ?", req.ID))
}

func TestEngineRejectRestoresPriorStatus(t *testing.T) {
	h := newEngineHarness(t, Config{ExclusivePending: true})
	ctx := context.Background()
	entry := h.seedEntry(t, enums.PaymentStatusUnpaid)

	req, err := h.svc.CreateRequest(ctx, h.market, CreateInput{
		EntryID:        entry.ID,
		Kind:           enums.ChangeRequestKindUpdateStatus,
		ProposedStatus: paid(),
	})
	require.NoError(t, err)

	_, err = h.svc.Reject(ctx, req.ID, h.seller)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusUnpaid, h.entryStatus(t, entry.ID))

	_, err = h.svc.Reject(ctx, req.ID, h.seller)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestEngineDuplicateDeleteRequests(t *testing.T) {
	h := newEngineHarness(t, Config{ExclusivePending: true})
	ctx := context.Background()
	entry := h.seedEntry(t, enums.PaymentStatusPaid)
	input := CreateInput{EntryID: entry.ID, Kind: enums.ChangeRequestKindDelete}

	_, err := h.svc.CreateRequest(ctx, h.market, input)
	require.NoError(t, err)
	_, err = h.svc.CreateRequest(ctx, h.market, input)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateRequest))

	assert.EqualValues(t, 1, h.count(t, &models.ChangeRequest{}, "entry_id = ? AND status = ?", entry.ID, enums.RequestStatusPending))
	assert.Equal(t, enums.PaymentStatusPaid, h.entryStatus(t, entry.ID))
}

func TestEngineDuplicateLeavesStateUnchanged(t *testing.T) {
	h := newEngineHarness(t, Config{ExclusivePending: true})
	ctx := context.Background()
	entry := h.seedEntry(t, enums.PaymentStatusUnpaid)
	input := CreateInput{EntryID: entry.ID, Kind: enums.ChangeRequestKindUpdateStatus, ProposedStatus: paid()}

	_, err := h.svc.CreateRequest(ctx, h.market, input)
	require.NoError(t, err)
	before := h.count(t, &models.OutboxEvent{}, "1 = 1")

	_, err = h.svc.CreateRequest(ctx, h.market, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateRequest))
	assert.EqualValues(t, 1, h.count(t, &models.ChangeRequest{}, "entry_id = ?", entry.ID))
	assert.Equal(t, enums.PaymentStatusPending, h.entryStatus(t, entry.ID))
	assert.Equal(t, before, h.count(t, &models.OutboxEvent{}, "1 = 1"))
}

func TestEngineCrossKindPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("exclusive", func(t *testing.T) {
		h := newEngineHarness(t, Config{ExclusivePending: true})
		entry := h.seedEntry(t, enums.PaymentStatusUnpaid)
		_, err := h.svc.CreateRequest(ctx, h.market, CreateInput{EntryID: entry.ID, Kind: enums.ChangeRequestKindDelete})
		require.NoError(t, err)
		_, err = h.svc.CreateRequest(ctx, h.market, CreateInput{EntryID: entry.ID, Kind: enums.ChangeRequestKindUpdateStatus, ProposedStatus: paid()})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateRequest))
	})

	t.Run("per kind", func(t *testing.T) {
		h := newEngineHarness(t, Config{})
		entry := h.seedEntry(t, enums.PaymentStatusUnpaid)
		_, err := h.svc.CreateRequest(ctx, h.market, CreateInput{EntryID: entry.ID, Kind: enums.ChangeRequestKindDelete})
		require.NoError(t, err)
		_, err = h.svc.CreateRequest(ctx, h.market, CreateInput{EntryID: entry.ID, Kind: enums.ChangeRequestKindUpdateStatus, ProposedStatus: paid()})
		require.NoError(t, err)
		assert.EqualValues(t, 2, h.count(t, &models.ChangeRequest{}, "entry_id = ? AND status = ?", entry.ID, enums.RequestStatusPending))
	})
}

func TestStorageIndexRejectsSecondPendingRequest(t *testing.T) {
	h := newEngineHarness(t, Config{})
	ctx := context.Background()
	entry := h.seedEntry(t, enums.PaymentStatusUnpaid)

	newRow := func() *models.ChangeRequest {
		return &models.ChangeRequest{
			ID:          uuid.New(),
			EntryID:     entry.ID,
			SellerID:    entry.SellerID,
			MarketID:    entry.MarketID,
			RequestedBy: h.market.ID,
			Origin:      enums.ActorRoleMarket,
			Kind:        enums.ChangeRequestKindDelete,
			Status:      enums.RequestStatusPending,
			CreatedAt:   time.Now().UTC(),
		}
	}
	require.NoError(t, h.requests.Create(ctx, nil, newRow()))
	err := h.requests.Create(ctx, nil, newRow())
	require.Error(t, err)

	_, err = h.svc.CreateRequest(ctx, h.market, CreateInput{EntryID: entry.ID, Kind: enums.ChangeRequestKindDelete})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateRequest))
}

func TestEngineApproveDeleteRemovesEntry(t *testing.T) {
	h := newEngineHarness(t, Config{ExclusivePending: true})
	ctx := context.Background()
	entry := h.seedEntry(t, enums.PaymentStatusPaid)

	req, err := h.svc.CreateRequest(ctx, h.market, CreateInput{EntryID: entry.ID, Kind: enums.ChangeRequestKindDelete})
	require.NoError(t, err)
	_, err = h.svc.Approve(ctx, req.ID, h.seller)
	require.NoError(t, err)

	_, err = h.entries.FindByID(ctx, nil, entry.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.EqualValues(t, 1, h.count(t, &models.ChangeRequest{}, "id = ? AND status = ?", req.ID, enums.RequestStatusApproved))
}

func TestEngineVisibilityScoping(t *testing.T) {
	h := newEngineHarness(t, Config{ExclusivePending: true})
	ctx := context.Background()

	entry := h.seedEntry(t, enums.PaymentStatusUnpaid)
	_, err := h.svc.CreateRequest(ctx, h.market, CreateInput{EntryID: entry.ID, Kind: enums.ChangeRequestKindDelete})
	require.NoError(t, err)

	sellerOwned := h.seedEntry(t, enums.PaymentStatusUnpaid)
	_, err = h.svc.CreateRequest(ctx, h.seller, CreateInput{EntryID: sellerOwned.ID, Kind: enums.ChangeRequestKindDelete})
	require.NoError(t, err)

	sellerView, err := h.svc.ListPending(ctx, h.seller)
	require.NoError(t, err)
	require.Len(t, sellerView, 1)
	assert.Equal(t, enums.ActorRoleMarket, sellerView[0].Origin)

	marketView, err := h.svc.ListPending(ctx, h.market)
	require.NoError(t, err)
	require.Len(t, marketView, 1)
	assert.Equal(t, enums.ActorRoleSeller, marketView[0].Origin)

	otherMarketID := uuid.New()
	otherMarket := auth.Actor{ID: uuid.New(), Role: enums.ActorRoleMarket, MarketID: &otherMarketID}
	otherView, err := h.svc.ListPending(ctx, otherMarket)
	require.NoError(t, err)
	assert.Empty(t, otherView)

	_, err = h.svc.Approve(ctx, marketView[0].ID, otherMarket)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestRepositoryCountPendingBefore(t *testing.T) {
	h := newEngineHarness(t, Config{})
	ctx := context.Background()
	entry := h.seedEntry(t, enums.PaymentStatusUnpaid)

	old := &models.ChangeRequest{
		ID:          uuid.New(),
		EntryID:     entry.ID,
		SellerID:    entry.SellerID,
		MarketID:    entry.MarketID,
		RequestedBy: h.market.ID,
		Origin:      enums.ActorRoleMarket,
		Kind:        enums.ChangeRequestKindDelete,
		Status:      enums.RequestStatusPending,
		CreatedAt:   time.Now().UTC().Add(-96 * time.Hour),
	}
	require.NoError(t, h.requests.Create(ctx, nil, old))

	n, err := h.requests.CountPendingBefore(ctx, time.Now().UTC().Add(-72*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = h.requests.CountPendingBefore(ctx, time.Now().UTC().Add(-120*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestEngineConfirmationBlocksStatusRequest(t *testing.T) {
	h := newEngineHarness(t, Config{ExclusivePending: true})
	ctx := context.Background()
	entry := h.seedEntry(t, enums.PaymentStatusUnpaid)

	pc, err := h.confirmations.CreateConfirmation(ctx, h.market, paymentconfirmations.CreateInput{
		EntryID:        entry.ID,
		ProposedStatus: enums.PaymentStatusPaid,
	})
	require.NoError(t, err)

	_, err = h.svc.CreateRequest(ctx, h.market, CreateInput{
		EntryID:        entry.ID,
		Kind:           enums.ChangeRequestKindUpdateStatus,
		ProposedStatus: paid(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, enums.PaymentStatusUnpaid, h.entryStatus(t, entry.ID))
	assert.EqualValues(t, 0, h.count(t, &models.ChangeRequest{}, "entry_id = ?", entry.ID))

	_, err = h.confirmations.Reject(ctx, pc.ID, h.seller)
	require.NoError(t, err)

	req, err := h.svc.CreateRequest(ctx, h.market, CreateInput{
		EntryID:        entry.ID,
		Kind:           enums.ChangeRequestKindUpdateStatus,
		ProposedStatus: paid(),
	})
	require.NoError(t, err)
	_, err = h.svc.Approve(ctx, req.ID, h.seller)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, h.entryStatus(t, entry.ID))

	_, err = h.confirmations.Reject(ctx, pc.ID, h.seller)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, enums.PaymentStatusPaid, h.entryStatus(t, entry.ID))
}

func TestEngineConfirmationRejectKeepsOwnerEdit(t *testing.T) {
	h := newEngineHarness(t, Config{ExclusivePending: true})
	ctx := context.Background()
	entry := h.seedEntry(t, enums.PaymentStatusUnpaid)

	pc, err := h.confirmations.CreateConfirmation(ctx, h.market, paymentconfirmations.CreateInput{
		EntryID:        entry.ID,
		ProposedStatus: enums.PaymentStatusPaid,
	})
	require.NoError(t, err)

	owned := enums.PaymentStatusPaid
	_, err = h.entrySvc.Update(ctx, h.seller, entry.ID, entries.UpdateInput{Status: &owned})
	require.NoError(t, err)

	_, err = h.confirmations.Reject(ctx, pc.ID, h.seller)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, h.entryStatus(t, entry.ID))
}

func TestEngineConfirmationApproveRefusesStaleCapture(t *testing.T) {
	h := newEngineHarness(t, Config{ExclusivePending: true})
	ctx := context.Background()
	entry := h.seedEntry(t, enums.PaymentStatusPaid)

	pc, err := h.confirmations.CreateConfirmation(ctx, h.market, paymentconfirmations.CreateInput{
		EntryID:        entry.ID,
		ProposedStatus: enums.PaymentStatusPaid,
	})
	require.NoError(t, err)

	owned := enums.PaymentStatusUnpaid
	_, err = h.entrySvc.Update(ctx, h.seller, entry.ID, entries.UpdateInput{Status: &owned})
	require.NoError(t, err)

	_, err = h.confirmations.Approve(ctx, pc.ID, h.seller)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, enums.PaymentStatusUnpaid, h.entryStatus(t, entry.ID))
	assert.EqualValues(t, 1, h.count(t, &models.PaymentConfirmation{}, "id = ? AND status = ?", pc.ID, enums.RequestStatusPending))
}
