package paymentconfirmations

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/marketledger-backend/api/responses"
	"github.com/angelmondragon/marketledger-backend/api/validators"
	internalconfirmations "github.com/angelmondragon/marketledger-backend/internal/paymentconfirmations"
	"github.com/angelmondragon/marketledger-backend/pkg/auth"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

type createConfirmationRequest struct {
	EntryID        uuid.UUID `json:"entry_id" validate:"required"`
	ProposedStatus string    `json:"proposed_status" validate:"required"`
}

type pendingResponse struct {
	Items []internalconfirmations.Item `json:"items"`
}

type reviewFunc func(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.PaymentConfirmation, error)

// Create asks the counterparty to confirm a payment status on an entry.
func Create(svc internalconfirmations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment confirmation service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createConfirmationRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParsePaymentStatus(strings.TrimSpace(body.ProposedStatus))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid proposed_status").WithDetails(map[string]any{"field": "proposed_status"}))
			return
		}

		confirmation, err := svc.CreateConfirmation(r.Context(), actor, internalconfirmations.CreateInput{
			EntryID:        body.EntryID,
			ProposedStatus: status,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalconfirmations.ToItem(*confirmation))
	}
}

// Pending lists confirmations addressed to the actor's role.
func Pending(svc internalconfirmations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment confirmation service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListPending(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pendingResponse{Items: internalconfirmations.ToItems(rows)})
	}
}

// Approve applies the proposed status.
func Approve(svc internalconfirmations.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return review(nil, logg)
	}
	return review(svc.Approve, logg)
}

// Reject restores the status captured when the confirmation was opened.
func Reject(svc internalconfirmations.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return review(nil, logg)
	}
	return review(svc.Reject, logg)
}

func review(fn reviewFunc, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fn == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment confirmation service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		confirmationID, err := actorcontext.PathUUID(r, "confirmationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		confirmation, err := fn(r.Context(), confirmationID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalconfirmations.ToItem(*confirmation))
	}
}
