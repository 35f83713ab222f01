package paymentconfirmations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketledger-backend/internal/entries"
	"github.com/angelmondragon/marketledger-backend/pkg/auth"
	"github.com/angelmondragon/marketledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
)

func TestConfirmationRoundTripAgainstSQLite(t *testing.T) {
	client, conn := dbtest.OpenClient(t)
	logg := logger.New(logger.Options{ServiceName: "test"})
	entryRepo := entries.NewRepository(conn)
	repo := NewRepository(conn)

	svc, err := NewService(ServiceParams{
		Confirmations: repo,
		Entries:       entryRepo,
		Tx:            client,
		Outbox:        outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:        logg,
	})
	require.NoError(t, err)

	marketID := uuid.New()
	seller := auth.Actor{ID: uuid.New(), Role: enums.ActorRoleSeller}
	market := auth.Actor{ID: uuid.New(), Role: enums.ActorRoleMarket, MarketID: &marketID}
	now := time.Now().UTC()
	entry := models.Entry{
		ID:            uuid.New(),
		SellerID:      seller.ID,
		SellerName:    "Rosa",
		MarketID:      marketID,
		MarketName:    "Central",
		ProductType:   "beans",
		Quantity:      "2 sacks",
		Price:         "80",
		Amount:        decimal.NewFromInt(80),
		PaymentStatus: enums.PaymentStatusUnpaid,
		RecordDate:    now.Truncate(24 * time.Hour),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	ctx := context.Background()
	require.NoError(t, entryRepo.Create(ctx, &entry))

	pc, err := svc.CreateConfirmation(ctx, market, CreateInput{EntryID: entry.ID, ProposedStatus: enums.PaymentStatusPaid})
	require.NoError(t, err)
	assert.Equal(t, enums.ActorRoleSeller, pc.TargetRole)

	_, err = svc.CreateConfirmation(ctx, market, CreateInput{EntryID: entry.ID, ProposedStatus: enums.PaymentStatusPaid})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateRequest))

	marketView, err := svc.ListPending(ctx, market)
	require.NoError(t, err)
	assert.Empty(t, marketView, "requester never sees its own confirmation")

	sellerView, err := svc.ListPending(ctx, seller)
	require.NoError(t, err)
	require.Len(t, sellerView, 1)
	assert.Equal(t, "beans", sellerView[0].ProductType)

	_, err = svc.Approve(ctx, pc.ID, seller)
	require.NoError(t, err)

	stored, err := entryRepo.FindByID(ctx, nil, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, stored.PaymentStatus)

	_, err = svc.Reject(ctx, pc.ID, seller)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	n, err := repo.CountPendingBefore(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}
