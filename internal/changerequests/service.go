package changerequests

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

type requestsRepository interface {
	Create(ctx context.Context, tx *gorm.DB, req *models.ChangeRequest) error
	HasPending(ctx context.Context, tx *gorm.DB, entryID uuid.UUID, kinds ...enums.ChangeRequestKind) (bool, error)
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.ChangeRequest, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.ChangeRequest, error)
	Resolve(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.RequestStatus, resolvedBy uuid.UUID, resolvedAt time.Time) (int64, error)
	ListPending(ctx context.Context, opts pendingQuery) ([]models.ChangeRequest, error)
}

type entriesRepository interface {
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Entry, error)
	SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.PaymentStatus) (int64, error)
	SetStatusIf(ctx context.Context, tx *gorm.DB, id uuid.UUID, expected, status enums.PaymentStatus) (int64, error)
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) (int64, error)
}

// confirmationsGate reports a pending payment confirmation on an entry.
type confirmationsGate interface {
	HasPending(ctx context.Context, tx *gorm.DB, entryID uuid.UUID) (bool, error)
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

// Service runs the change request workflow.
type Service interface {
	CreateRequest(ctx context.Context, actor auth.Actor, input CreateInput) (*models.ChangeRequest, error)
	Approve(ctx context.Context, requestID uuid.UUID, actor auth.Actor) (*models.ChangeRequest, error)
	Reject(ctx context.Context, requestID uuid.UUID, actor auth.Actor) (*models.ChangeRequest, error)
	ListPending(ctx context.Context, actor auth.Actor) ([]models.ChangeRequest, error)
	Get(ctx context.Context, actor auth.Actor, requestID uuid.UUID) (*models.ChangeRequest, error)
}

// CreateInput describes a proposed mutation. ProposedStatus is required for UPDATE_STATUS only.
type CreateInput struct {
	EntryID        uuid.UUID
	Kind           enums.ChangeRequestKind
	ProposedStatus *enums.PaymentStatus
}

// Config tunes engine policy.
type Config struct {
	// ExclusivePending refuses a new request while one of any kind is pending on the entry.
	ExclusivePending bool
}

// ServiceParams bundles the engine dependencies.
type ServiceParams struct {
	Requests      requestsRepository
	Entries       entriesRepository
	Confirmations confirmationsGate
	Tx            txRunner
	Outbox        outboxEmitter
	Logger        *logger.Logger
	Metrics       workflowMetrics
	Config        Config
}

type service struct {
	requests      requestsRepository
	entries       entriesRepository
	confirmations confirmationsGate
	tx            txRunner
	outbox        outboxEmitter
	logg          *logger.Logger
	metrics       workflowMetrics
	cfg           Config
	now           func() time.Time
}

// NewService builds the change request engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Requests == nil {
		return nil, fmt.Errorf("change request repository required")
	}
	if params.Entries == nil {
		return nil, fmt.Errorf("entries repository required")
	}
	if params.Confirmations == nil {
		return nil, fmt.Errorf("payment confirmations repository required")
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
		requests:      params.Requests,
		entries:       params.Entries,
		confirmations: params.Confirmations,
		tx:            params.Tx,
		outbox:        params.Outbox,
		logg:          params.Logger,
		metrics:       m,
		cfg:           params.Config,
		now:           time.Now,
	}, nil
}

func (s *service) CreateRequest(ctx context.Context, actor auth.Actor, input CreateInput) (*models.ChangeRequest, error) {
	if !actor.Role.IsParty() || actor.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only sellers and market staff open change requests")
	}
	if input.EntryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entry id is required")
	}
	if err := validateProposal(input); err != nil {
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"entry_id": input.EntryID.String(),
		"kind":     string(input.Kind),
	})

	var created *models.ChangeRequest
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

		var kinds []enums.ChangeRequestKind
		if !s.cfg.ExclusivePending {
			kinds = []enums.ChangeRequestKind{input.Kind}
		}
		exists, err := s.requests.HasPending(ctx, tx, entry.ID, kinds...)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending requests")
		}
		if exists {
			return duplicateError(entry.ID, input.Kind)
		}

		// A pending confirmation owns the entry status until it is reviewed.
		if s.cfg.ExclusivePending || input.Kind == enums.ChangeRequestKindUpdateStatus {
			confirming, err := s.confirmations.HasPending(ctx, tx, entry.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending payment confirmations")
			}
			if confirming {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "entry has a pending payment confirmation").
					WithDetails(map[string]any{"entry_id": entry.ID})
			}
		}

		now := s.now().UTC()
		req := &models.ChangeRequest{
			ID:          uuid.New(),
			EntryID:     entry.ID,
			SellerID:    entry.SellerID,
			MarketID:    entry.MarketID,
			RequestedBy: actor.ID,
			Origin:      actor.Role,
			Kind:        input.Kind,
			Status:      enums.RequestStatusPending,
			CreatedAt:   now,
		}
		if input.Kind == enums.ChangeRequestKindUpdateStatus {
			proposed := *input.ProposedStatus
			current := entry.PaymentStatus
			req.ProposedStatus = &proposed
			req.CurrentStatus = &current
		}

		if err := s.requests.Create(ctx, tx, req); err != nil {
			if dbpkg.IsUniqueViolation(err, PendingIndex) {
				return duplicateError(entry.ID, input.Kind)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert change request")
		}

		if req.Kind == enums.ChangeRequestKindUpdateStatus {
			if _, err := s.entries.SetStatus(ctx, tx, entry.ID, enums.PaymentStatusPending); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark entry pending")
			}
		}

		if err := s.emit(ctx, tx, enums.EventChangeRequestCreated, req, actor); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit change request created")
		}
		created = req
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeDuplicateRequest) {
			s.metrics.IncDuplicate(metrics.WorkflowChangeRequest)
			s.logg.Warn(ctx, "change request refused: one is already pending")
		}
		return nil, err
	}

	s.metrics.IncCreated(metrics.WorkflowChangeRequest, string(created.Kind))
	s.logg.Info(s.logg.WithField(ctx, "request_id", created.ID.String()), "change request created")
	return created, nil
}

func (s *service) Approve(ctx context.Context, requestID uuid.UUID, actor auth.Actor) (*models.ChangeRequest, error) {
	return s.resolve(ctx, requestID, actor, enums.RequestStatusApproved)
}

func (s *service) Reject(ctx context.Context, requestID uuid.UUID, actor auth.Actor) (*models.ChangeRequest, error) {
	return s.resolve(ctx, requestID, actor, enums.RequestStatusRejected)
}

func (s *service) resolve(ctx context.Context, requestID uuid.UUID, actor auth.Actor, outcome enums.RequestStatus) (*models.ChangeRequest, error) {
	if requestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id is required")
	}
	ctx = s.logg.WithField(ctx, "request_id", requestID.String())

	var resolved *models.ChangeRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		req, err := s.requests.FindByIDForUpdate(ctx, tx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "change request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load change request")
		}
		if req.Status != enums.RequestStatusPending {
			return terminalError(req.Status)
		}
		if err := visibility.EnsureResolver(actor, req.Origin, req.SellerID, req.MarketID); err != nil {
			return err
		}

		if outcome == enums.RequestStatusApproved {
			err = s.applyMutation(ctx, tx, req)
		} else {
			err = s.revertSentinel(ctx, tx, req)
		}
		if err != nil {
			return err
		}

		now := s.now().UTC()
		rows, err := s.requests.Resolve(ctx, tx, req.ID, outcome, actor.ID, now)
		if err != nil {
			return s.afterMutationError(outcome, err, "mark change request "+string(outcome))
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "change request was resolved concurrently")
		}
		req.Status = outcome
		req.ResolvedBy = &actor.ID
		req.ResolvedAt = &now

		eventType := enums.EventChangeRequestRejected
		if outcome == enums.RequestStatusApproved {
			eventType = enums.EventChangeRequestApproved
		}
		if err := s.emit(ctx, tx, eventType, req, actor); err != nil {
			return s.afterMutationError(outcome, err, "emit change request "+string(outcome))
		}
		resolved = req
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodePartialApproval) {
			s.metrics.IncPartialApproval(metrics.WorkflowChangeRequest)
			s.logg.Error(ctx, "change request approval rolled back", err)
		}
		return nil, err
	}

	s.metrics.IncResolved(metrics.WorkflowChangeRequest, string(outcome))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"entry_id": resolved.EntryID.String(),
		"kind":     string(resolved.Kind),
		"outcome":  string(outcome),
	}), "change request resolved")
	return resolved, nil
}

// applyMutation performs the approved change on the entry.
func (s *service) applyMutation(ctx context.Context, tx *gorm.DB, req *models.ChangeRequest) error {
	switch req.Kind {
	case enums.ChangeRequestKindUpdateStatus:
		if req.ProposedStatus == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "status request without proposed status")
		}
		rows, err := s.entries.SetStatus(ctx, tx, req.EntryID, *req.ProposedStatus)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply proposed status")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "entry no longer exists")
		}
	case enums.ChangeRequestKindDelete:
		rows, err := s.entries.Delete(ctx, tx, req.EntryID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete entry")
		}
		if rows == 0 {
			s.logg.Warn(ctx, "entry already deleted")
		}
	default:
		return pkgerrors.New(pkgerrors.CodeInternal, "unknown change request kind")
	}
	return nil
}

// revertSentinel puts the captured status back while the entry still shows pending.
func (s *service) revertSentinel(ctx context.Context, tx *gorm.DB, req *models.ChangeRequest) error {
	if req.Kind != enums.ChangeRequestKindUpdateStatus {
		return nil
	}
	prior := enums.PaymentStatusUnpaid
	if req.CurrentStatus != nil && req.CurrentStatus.IsSettable() {
		prior = *req.CurrentStatus
	}
	if _, err := s.entries.SetStatusIf(ctx, tx, req.EntryID, enums.PaymentStatusPending, prior); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore entry status")
	}
	return nil
}

// afterMutationError classifies a failure that happened after an approved mutation ran.
func (s *service) afterMutationError(outcome enums.RequestStatus, err error, msg string) error {
	if outcome == enums.RequestStatusApproved {
		return pkgerrors.Wrap(pkgerrors.CodePartialApproval, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func (s *service) ListPending(ctx context.Context, actor auth.Actor) ([]models.ChangeRequest, error) {
	filter, ok := visibility.PendingFilter(actor)
	if !ok {
		return []models.ChangeRequest{}, nil
	}
	rows, err := s.requests.ListPending(ctx, pendingQuery{
		filter: filter,
		origin: actor.Role.Counterparty(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending change requests")
	}
	if rows == nil {
		rows = []models.ChangeRequest{}
	}
	return rows, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, requestID uuid.UUID) (*models.ChangeRequest, error) {
	req, err := s.requests.FindByID(ctx, nil, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "change request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load change request")
	}
	if actor.Role == enums.ActorRoleAdmin {
		return req, nil
	}
	if err := visibility.EnsureParty(actor, req.SellerID, req.MarketID); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, req *models.ChangeRequest, actor auth.Actor) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateChangeRequest,
		AggregateID:   req.ID,
		Actor: &outbox.ActorRef{
			UserID:   actor.ID,
			MarketID: actor.MarketID,
			Role:     string(actor.Role),
		},
		Data:       toEvent(req),
		OccurredAt: s.now().UTC(),
	})
}

func validateProposal(input CreateInput) error {
	switch input.Kind {
	case enums.ChangeRequestKindUpdateStatus:
		if input.ProposedStatus == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "proposed_status is required for UPDATE_STATUS")
		}
		if !input.ProposedStatus.IsSettable() {
			return pkgerrors.New(pkgerrors.CodeValidation, "proposed_status must be paid or unpaid")
		}
	case enums.ChangeRequestKindDelete:
		if input.ProposedStatus != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "proposed_status is only allowed for UPDATE_STATUS")
		}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "kind must be UPDATE_STATUS or DELETE")
	}
	return nil
}

func duplicateError(entryID uuid.UUID, kind enums.ChangeRequestKind) error {
	return pkgerrors.New(pkgerrors.CodeDuplicateRequest, "a change request is already pending for this entry").
		WithDetails(map[string]any{"entry_id": entryID, "kind": kind})
}

func terminalError(status enums.RequestStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "change request already "+string(status)).
		WithDetails(map[string]any{"status": status})
}
