package paymentconfirmations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/auth"
	dbpkg "github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/metrics"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/visibility"
)

type confirmationsRepository interface {
	Create(ctx context.Context, tx *gorm.DB, pc *models.PaymentConfirmation) error
	HasPending(ctx context.Context, tx *gorm.DB, entryID uuid.UUID) (bool, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.PaymentConfirmation, error)
	Resolve(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.RequestStatus, reviewedBy uuid.UUID, reviewedAt time.Time) (int64, error)
	ListPending(ctx context.Context, opts pendingQuery) ([]models.PaymentConfirmation, error)
}

type entriesRepository interface {
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Entry, error)
	SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.PaymentStatus) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type workflowMetrics interface {
	IncCreated(workflow, kind string)
	IncDuplicate(workflow string)
	IncResolved(workflow, outcome string)
	IncPartialApproval(workflow string)
}

// Service runs payment confirmations: status changes addressed to an explicit target role.
type Service interface {
	CreateConfirmation(ctx context.Context, actor auth.Actor, input CreateInput) (*models.PaymentConfirmation, error)
	Approve(ctx context.Context, confirmationID uuid.UUID, actor auth.Actor) (*models.PaymentConfirmation, error)
	Reject(ctx context.Context, confirmationID uuid.UUID, actor auth.Actor) (*models.PaymentConfirmation, error)
	ListPending(ctx context.Context, actor auth.Actor) ([]models.PaymentConfirmation, error)
}

type CreateInput struct {
	EntryID        uuid.UUID
	ProposedStatus enums.PaymentStatus
}

type ServiceParams struct {
	Confirmations confirmationsRepository
	Entries       entriesRepository
	Tx            txRunner
	Outbox        outboxEmitter
	Logger        *logger.Logger
	Metrics       workflowMetrics
}

type service struct {
	confirmations confirmationsRepository
	entries       entriesRepository
	tx            txRunner
	outbox        outboxEmitter
	logg          *logger.Logger
	metrics       workflowMetrics
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Confirmations == nil {
		return nil, fmt.Errorf("payment confirmation repository required")
	}
	if params.Entries == nil {
		return nil, fmt.Errorf("entries repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	m := params.Metrics
	if m == nil {
		m = (*metrics.WorkflowMetrics)(nil)
	}
	return &service{
		confirmations: params.Confirmations,
		entries:       params.Entries,
		tx:            params.Tx,
		outbox:        params.Outbox,
		logg:          params.Logger,
		metrics:       m,
		now:           time.Now,
	}, nil
}

func (s *service) CreateConfirmation(ctx context.Context, actor auth.Actor, input CreateInput) (*models.PaymentConfirmation, error) {
	if !actor.Role.IsParty() || actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only sellers and market staff request payment confirmations")
	}
	if input.EntryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entry id is required")
	}
	if !input.ProposedStatus.IsSettable() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "proposed_status must be paid or unpaid")
	}
	ctx = s.logg.WithField(ctx, "entry_id", input.EntryID.String())

	var created *models.PaymentConfirmation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err := s.entries.FindByIDForUpdate(ctx, tx, input.EntryID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "entry not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load entry")
		}
		if err := visibility.EnsureParty(actor, entry.SellerID, entry.MarketID); err != nil {
			return err
		}
		if entry.PaymentStatus == enums.PaymentStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "entry has a pending status change request")
		}

		exists, err := s.confirmations.HasPending(ctx, tx, entry.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending confirmations")
		}
		if exists {
			return duplicateError(entry.ID)
		}

		pc := &models.PaymentConfirmation{
			ID:             uuid.New(),
			EntryID:        entry.ID,
			SellerID:       entry.SellerID,
			MarketID:       entry.MarketID,
			RequestedBy:    actor.ID,
			TargetRole:     actor.Role.Counterparty(),
			ProposedStatus: input.ProposedStatus,
			CurrentStatus:  entry.PaymentStatus,
			Status:         enums.RequestStatusPending,
			SellerName:     entry.SellerName,
			ProductType:    entry.ProductType,
			Quantity:       entry.Quantity,
			Price:          entry.Price,
			MarketName:     entry.MarketName,
			CreatedAt:      s.now().UTC(),
		}
		if err := s.confirmations.Create(ctx, tx, pc); err != nil {
			if dbpkg.IsUniqueViolation(err, PendingIndex) {
				return duplicateError(entry.ID)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payment confirmation")
		}
		if err := s.emit(ctx, tx, enums.EventPaymentConfirmationCreated, pc, actor); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment confirmation created")
		}
		created = pc
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeDuplicateRequest) {
			s.metrics.IncDuplicate(metrics.WorkflowPaymentConfirmation)
			s.logg.Warn(ctx, "payment confirmation refused: one is already pending")
		}
		return nil, err
	}

	s.metrics.IncCreated(metrics.WorkflowPaymentConfirmation, string(created.ProposedStatus))
	s.logg.Info(s.logg.WithField(ctx, "confirmation_id", created.ID.String()), "payment confirmation created")
	return created, nil
}

func (s *service) Approve(ctx context.Context, confirmationID uuid.UUID, actor auth.Actor) (*models.PaymentConfirmation, error) {
	return s.review(ctx, confirmationID, actor, enums.RequestStatusApproved)
}

func (s *service) Reject(ctx context.Context, confirmationID uuid.UUID, actor auth.Actor) (*models.PaymentConfirmation, error) {
	return s.review(ctx, confirmationID, actor, enums.RequestStatusRejected)
}

func (s *service) review(ctx context.Context, confirmationID uuid.UUID, actor auth.Actor, outcome enums.RequestStatus) (*models.PaymentConfirmation, error) {
	if confirmationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "confirmation id is required")
	}
	ctx = s.logg.WithField(ctx, "confirmation_id", confirmationID.String())

	var reviewed *models.PaymentConfirmation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		pc, err := s.confirmations.FindByIDForUpdate(ctx, tx, confirmationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment confirmation not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment confirmation")
		}
		if pc.Status != enums.RequestStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment confirmation already "+string(pc.Status)).
				WithDetails(map[string]any{"status": pc.Status})
		}
		if err := ensureTarget(actor, pc); err != nil {
			return err
		}

		if err := s.writeStatus(ctx, tx, pc, outcome); err != nil {
			return err
		}

		now := s.now().UTC()
		rows, err := s.confirmations.Resolve(ctx, tx, pc.ID, outcome, actor.ID, now)
		if err != nil {
			if outcome == enums.RequestStatusApproved {
				return pkgerrors.Wrap(pkgerrors.CodePartialApproval, err, "mark payment confirmation approved")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment confirmation rejected")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment confirmation was reviewed concurrently")
		}
		pc.Status = outcome
		pc.ReviewedBy = &actor.ID
		pc.ReviewedAt = &now

		eventType := enums.EventPaymentConfirmationRejected
		if outcome == enums.RequestStatusApproved {
			eventType = enums.EventPaymentConfirmationApproved
		}
		if err := s.emit(ctx, tx, eventType, pc, actor); err != nil {
			if outcome == enums.RequestStatusApproved {
				return pkgerrors.Wrap(pkgerrors.CodePartialApproval, err, "emit payment confirmation approved")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment confirmation rejected")
		}
		reviewed = pc
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodePartialApproval) {
			s.metrics.IncPartialApproval(metrics.WorkflowPaymentConfirmation)
			s.logg.Error(ctx, "payment confirmation approval rolled back", err)
		}
		return nil, err
	}

	s.metrics.IncResolved(metrics.WorkflowPaymentConfirmation, string(outcome))
	s.logg.Info(s.logg.WithField(ctx, "outcome", string(outcome)), "payment confirmation reviewed")
	return reviewed, nil
}

// writeStatus applies an approval to the entry. The write only lands while the
// entry still holds the status captured at creation. A rejection writes nothing:
// creation never touched the entry, so it already carries current_status unless
// a newer authorized write replaced it.
func (s *service) writeStatus(ctx context.Context, tx *gorm.DB, pc *models.PaymentConfirmation, outcome enums.RequestStatus) error {
	if outcome != enums.RequestStatusApproved {
		return nil
	}
	entry, err := s.entries.FindByIDForUpdate(ctx, tx, pc.EntryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "entry no longer exists")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load entry")
	}

	switch entry.PaymentStatus {
	case pc.ProposedStatus:
		return nil
	case enums.PaymentStatusPending:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "entry has a pending status change request")
	case pc.CurrentStatus:
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "entry status changed since the confirmation was requested").
			WithDetails(map[string]any{"entry_status": entry.PaymentStatus, "captured_status": pc.CurrentStatus})
	}

	if _, err := s.entries.SetStatus(ctx, tx, pc.EntryID, pc.ProposedStatus); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write entry status")
	}
	return nil
}

func (s *service) ListPending(ctx context.Context, actor auth.Actor) ([]models.PaymentConfirmation, error) {
	filter, ok := visibility.PendingFilter(actor)
	if !ok {
		return []models.PaymentConfirmation{}, nil
	}
	rows, err := s.confirmations.ListPending(ctx, pendingQuery{filter: filter, targetRole: actor.Role})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending payment confirmations")
	}
	if rows == nil {
		rows = []models.PaymentConfirmation{}
	}
	return rows, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, pc *models.PaymentConfirmation, actor auth.Actor) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePaymentConfirmation,
		AggregateID:   pc.ID,
		Actor: &outbox.ActorRef{
			UserID:   actor.ID,
			MarketID: actor.MarketID,
			Role:     string(actor.Role),
		},
		Data:       toEvent(pc),
		OccurredAt: s.now().UTC(),
	})
}

// ensureTarget requires the reviewer to hold the target role on this entry.
func ensureTarget(actor auth.Actor, pc *models.PaymentConfirmation) error {
	if actor.Role != pc.TargetRole {
		return pkgerrors.New(pkgerrors.CodeForbidden, "confirmation is addressed to the "+string(pc.TargetRole))
	}
	return visibility.EnsureResolver(actor, pc.TargetRole.Counterparty(), pc.SellerID, pc.MarketID)
}

func duplicateError(entryID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeDuplicateRequest, "a payment confirmation is already pending for this entry").
		WithDetails(map[string]any{"entry_id": entryID})
}
