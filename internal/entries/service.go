package entries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/auth"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	pkgpagination "github.com/angelmondragon/marketledger-backend/pkg/pagination"
	"github.com/angelmondragon/marketledger-backend/pkg/visibility"
)

type entriesRepository interface {
	Create(ctx context.Context, entry *models.Entry) error
	List(ctx context.Context, opts listQuery) ([]models.Entry, error)
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Entry, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Entry, error)
	UpdateColumns(ctx context.Context, tx *gorm.DB, id uuid.UUID, columns map[string]any) (int64, error)
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes entry listing and owner edits.
type Service interface {
	List(ctx context.Context, actor auth.Actor) ([]Item, error)
	ListPage(ctx context.Context, actor auth.Actor, params pkgpagination.Params) (*ListResult, error)
	Create(ctx context.Context, actor auth.Actor, input CreateInput) (*Item, error)
	Update(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateInput) (*Item, error)
	Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error
}

// CreateInput holds the fields a seller records for a new entry.
type CreateInput struct {
	MarketID          uuid.UUID
	MarketName        string
	CounterpartyPhone string
	ProductType       string
	Quantity          string
	Price             string
	PaymentStatus     *enums.PaymentStatus
	RecordDate        *time.Time
}

// UpdateInput holds a partial edit keyed by UI field name. Nil fields are left untouched.
type UpdateInput struct {
	Market   *string
	Phone    *string
	Product  *string
	Quantity *string
	Price    *string
	Status   *enums.PaymentStatus
	Date     *time.Time
}

type service struct {
	repo entriesRepository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

// NewService builds the entry service.
func NewService(repo entriesRepository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("entries repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo: repo,
		tx:   tx,
		logg: logg,
		now:  time.Now,
	}, nil
}

func (s *service) List(ctx context.Context, actor auth.Actor) ([]Item, error) {
	filter, ok := visibility.EntryFilter(actor)
	if !ok {
		return []Item{}, nil
	}
	rows, err := s.repo.List(ctx, listQuery{filter: filter})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list entries")
	}
	return toItems(rows), nil
}

func (s *service) ListPage(ctx context.Context, actor auth.Actor, params pkgpagination.Params) (*ListResult, error) {
	filter, ok := visibility.EntryFilter(actor)
	if !ok {
		return &ListResult{Items: []Item{}}, nil
	}

	limit := pkgpagination.NormalizeLimit(params.Limit)
	query := listQuery{
		filter: filter,
		limit:  pkgpagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pkgpagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list entries")
	}
	rows, cursor := nextCursor(rows, limit)
	return &ListResult{Items: toItems(rows), Cursor: cursor}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*Item, error) {
	if actor.Role != enums.ActorRoleSeller || actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only sellers record entries")
	}

	var missing []string
	if input.MarketID == uuid.Nil || strings.TrimSpace(input.MarketName) == "" {
		missing = append(missing, "market")
	}
	if strings.TrimSpace(input.ProductType) == "" {
		missing = append(missing, "product")
	}
	if strings.TrimSpace(input.Quantity) == "" {
		missing = append(missing, "quantity")
	}
	if strings.TrimSpace(input.Price) == "" {
		missing = append(missing, "price")
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "missing required fields").
			WithDetails(map[string]any{"fields": missing})
	}

	status := enums.PaymentStatusUnpaid
	if input.PaymentStatus != nil {
		if !input.PaymentStatus.IsSettable() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be paid or unpaid")
		}
		status = *input.PaymentStatus
	}

	now := s.now().UTC()
	recordDate := today(now)
	if input.RecordDate != nil {
		recordDate = today(*input.RecordDate)
	}

	entry := &models.Entry{
		ID:                uuid.New(),
		SellerID:          actor.ID,
		SellerName:        actor.Name,
		MarketID:          input.MarketID,
		MarketName:        strings.TrimSpace(input.MarketName),
		CounterpartyPhone: strings.TrimSpace(input.CounterpartyPhone),
		ProductType:       strings.TrimSpace(input.ProductType),
		Quantity:          strings.TrimSpace(input.Quantity),
		Price:             strings.TrimSpace(input.Price),
		Amount:            AmountFromPrice(input.Price),
		PaymentStatus:     status,
		RecordDate:        recordDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create entry")
	}

	item := ToItem(*entry)
	return &item, nil
}

func (s *service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateInput) (*Item, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entry id is required")
	}

	columns, err := input.columns()
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}

	var updated *models.Entry
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "entry not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load entry")
		}
		if !actor.Owns(entry.SellerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the owning seller may edit this entry")
		}
		if _, ok := columns["payment_status"]; ok && entry.PaymentStatus == enums.PaymentStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "entry has a pending status change request")
		}

		columns["updated_at"] = s.now().UTC()
		rows, err := s.repo.UpdateColumns(ctx, tx, id, columns)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update entry")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "entry not found")
		}

		updated, err = s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	item := ToItem(*updated)
	return &item, nil
}

func (s *service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "entry id is required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.logg.Warn(s.logg.WithField(ctx, "entry_id", id.String()), "delete skipped: entry not found")
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load entry")
		}
		if !actor.Owns(entry.SellerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the owning seller may delete this entry")
		}
		if _, err := s.repo.Delete(ctx, tx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete entry")
		}
		return nil
	})
}

// columns maps the populated UI fields onto entry columns.
func (in UpdateInput) columns() (map[string]any, error) {
	out := map[string]any{}
	set := func(field string, value any) {
		col, _ := ColumnFor(field)
		out[col] = value
	}

	if in.Market != nil {
		if strings.TrimSpace(*in.Market) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "market cannot be blank")
		}
		set("market", strings.TrimSpace(*in.Market))
	}
	if in.Phone != nil {
		set("phone", strings.TrimSpace(*in.Phone))
	}
	if in.Product != nil {
		if strings.TrimSpace(*in.Product) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product cannot be blank")
		}
		set("product", strings.TrimSpace(*in.Product))
	}
	if in.Quantity != nil {
		if strings.TrimSpace(*in.Quantity) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be blank")
		}
		set("quantity", strings.TrimSpace(*in.Quantity))
	}
	if in.Price != nil {
		if strings.TrimSpace(*in.Price) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price cannot be blank")
		}
		set("price", strings.TrimSpace(*in.Price))
		out["amount"] = AmountFromPrice(*in.Price)
	}
	if in.Status != nil {
		if !in.Status.IsSettable() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be paid or unpaid")
		}
		set("status", *in.Status)
	}
	if in.Date != nil {
		set("date", today(*in.Date))
	}
	return out, nil
}
