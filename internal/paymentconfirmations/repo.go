package paymentconfirmations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/repo"
	dbpkg "github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/visibility"
)

// PendingIndex keeps one pending confirmation per entry.
const PendingIndex = "ux_payment_confirmations_entry_pending"

// Repository persists payment confirmations.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

type pendingQuery struct {
	filter     visibility.Filter
	targetRole enums.ActorRole
}

func (r *Repository) Create(ctx context.Context, tx *gorm.DB, pc *models.PaymentConfirmation) error {
	return r.Conn(ctx, tx).Create(pc).Error
}

func (r *Repository) HasPending(ctx context.Context, tx *gorm.DB, entryID uuid.UUID) (bool, error) {
	var count int64
	err := r.Conn(ctx, tx).Model(&models.PaymentConfirmation{}).
		Where("entry_id = ? AND status = ?", entryID, enums.RequestStatusPending).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.PaymentConfirmation, error) {
	var pc models.PaymentConfirmation
	if err := dbpkg.ForUpdate(r.Conn(ctx, tx)).Where("id = ?", id).Take(&pc).Error; err != nil {
		return nil, err
	}
	return &pc, nil
}

// Resolve stamps the reviewer on a pending confirmation. Zero rows means it was already resolved.
func (r *Repository) Resolve(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.RequestStatus, reviewedBy uuid.UUID, reviewedAt time.Time) (int64, error) {
	res := r.Conn(ctx, tx).Model(&models.PaymentConfirmation{}).
		Where("id = ? AND status = ?", id, enums.RequestStatusPending).
		Updates(map[string]any{
			"status":      status,
			"reviewed_by": reviewedBy,
			"reviewed_at": reviewedAt,
		})
	return res.RowsAffected, res.Error
}

// ListPending returns pending confirmations addressed to targetRole within the filter, newest first.
func (r *Repository) ListPending(ctx context.Context, opts pendingQuery) ([]models.PaymentConfirmation, error) {
	var rows []models.PaymentConfirmation
	err := r.DB(ctx).
		Scopes(opts.filter.Scope("")).
		Where("status = ? AND target_role = ?", enums.RequestStatusPending, opts.targetRole).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) CountPendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.PaymentConfirmation{}).
		Where("status = ? AND created_at < ?", enums.RequestStatusPending, cutoff).
		Count(&count).Error
	return count, err
}
