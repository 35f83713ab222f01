package entries

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/repo"
	dbpkg "github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
	"github.com/angelmondragon/marketledger-backend/pkg/visibility"
)

// Repository exposes entry persistence operations. Methods taking a tx run inside the
// caller's transaction when one is supplied.
type Repository struct {
	repo.Base
}

// NewRepository constructs an entry repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

type listQuery struct {
	filter visibility.Filter
	cursor *pagination.Cursor
	limit  int
}

// Create inserts a new entry row.
func (r *Repository) Create(ctx context.Context, entry *models.Entry) error {
	return r.DB(ctx).Create(entry).Error
}

// List returns the visible entries newest first. A zero limit returns every row.
func (r *Repository) List(ctx context.Context, opts listQuery) ([]models.Entry, error) {
	query := r.DB(ctx).Model(&models.Entry{}).Scopes(opts.filter.Scope(""))

	if opts.cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.cursor.CreatedAt, opts.cursor.CreatedAt, opts.cursor.ID)
	}

	query = query.Order("created_at DESC").Order("id DESC")
	if opts.limit > 0 {
		query = query.Limit(opts.limit)
	}

	var rows []models.Entry
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindByID loads a single entry; a missing row returns gorm.ErrRecordNotFound.
func (r *Repository) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Entry, error) {
	var entry models.Entry
	if err := r.Conn(ctx, tx).Where("id = ?", id).Take(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindByIDForUpdate loads and row-locks an entry inside tx.
func (r *Repository) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Entry, error) {
	var entry models.Entry
	if err := dbpkg.ForUpdate(r.Conn(ctx, tx)).Where("id = ?", id).Take(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateColumns writes storage-named columns and reports how many rows matched.
func (r *Repository) UpdateColumns(ctx context.Context, tx *gorm.DB, id uuid.UUID, columns map[string]any) (int64, error) {
	if _, ok := columns["updated_at"]; !ok {
		columns["updated_at"] = time.Now().UTC()
	}
	res := r.Conn(ctx, tx).Model(&models.Entry{}).Where("id = ?", id).Updates(columns)
	return res.RowsAffected, res.Error
}

// SetStatus overwrites the payment status.
func (r *Repository) SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.PaymentStatus) (int64, error) {
	return r.UpdateColumns(ctx, tx, id, map[string]any{"payment_status": status})
}

// SetStatusIf writes status only while the entry still holds expected.
func (r *Repository) SetStatusIf(ctx context.Context, tx *gorm.DB, id uuid.UUID, expected, status enums.PaymentStatus) (int64, error) {
	res := r.Conn(ctx, tx).Model(&models.Entry{}).
		Where("id = ? AND payment_status = ?", id, expected).
		Updates(map[string]any{
			"payment_status": status,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// Delete removes the entry and reports whether a row existed.
func (r *Repository) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) (int64, error) {
	res := r.Conn(ctx, tx).Where("id = ?", id).Delete(&models.Entry{})
	return res.RowsAffected, res.Error
}
