package changerequests

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

// PendingIndex is the partial unique index keeping one pending request per entry and kind.
const PendingIndex = "ux_change_requests_entry_kind_pending"

// Repository persists change requests.
type Repository struct {
	repo.Base
}

// NewRepository constructs a change request repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

type pendingQuery struct {
	filter visibility.Filter
	origin enums.ActorRole
}

// Create inserts the request row.
func (r *Repository) Create(ctx context.Context, tx *gorm.DB, req *models.ChangeRequest) error {
	return r.Conn(ctx, tx).Create(req).Error
}

// HasPending reports whether the entry has a pending request of any of kinds. No kinds means any kind.
func (r *Repository) HasPending(ctx context.Context, tx *gorm.DB, entryID uuid.UUID, kinds ...enums.ChangeRequestKind) (bool, error) {
	query := r.Conn(ctx, tx).Model(&models.ChangeRequest{}).
		Where("entry_id = ? AND status = ?", entryID, enums.RequestStatusPending)
	if len(kinds) > 0 {
		query = query.Where("kind IN ?", kinds)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindByID loads a request; a missing row returns gorm.ErrRecordNotFound.
func (r *Repository) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.ChangeRequest, error) {
	var req models.ChangeRequest
	if err := r.Conn(ctx, tx).Where("id = ?", id).Take(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// FindByIDForUpdate loads and row-locks a request inside tx.
func (r *Repository) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.ChangeRequest, error) {
	var req models.ChangeRequest
	if err := dbpkg.ForUpdate(r.Conn(ctx, tx)).Where("id = ?", id).Take(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// Resolve moves a pending request to status. Zero rows means it was no longer pending.
func (r *Repository) Resolve(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.RequestStatus, resolvedBy uuid.UUID, resolvedAt time.Time) (int64, error) {
	res := r.Conn(ctx, tx).Model(&models.ChangeRequest{}).
		Where("id = ? AND status = ?", id, enums.RequestStatusPending).
		Updates(map[string]any{
			"status":      status,
			"resolved_by": resolvedBy,
			"resolved_at": resolvedAt,
		})
	return res.RowsAffected, res.Error
}

// ListPending returns pending requests from origin within the filter, newest first.
func (r *Repository) ListPending(ctx context.Context, opts pendingQuery) ([]models.ChangeRequest, error) {
	var rows []models.ChangeRequest
	err := r.DB(ctx).
		Scopes(opts.filter.Scope("")).
		Where("status = ? AND origin = ?", enums.RequestStatusPending, opts.origin).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CountPendingBefore counts pending requests created before cutoff.
func (r *Repository) CountPendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.ChangeRequest{}).
		Where("status = ? AND created_at < ?", enums.RequestStatusPending, cutoff).
		Count(&count).Error
	return count, err
}
