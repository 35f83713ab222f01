package changerequests

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/marketledger-backend/api/responses"
	"github.com/angelmondragon/marketledger-backend/api/validators"
	internalchangerequests "github.com/angelmondragon/marketledger-backend/internal/changerequests"
	"github.com/angelmondragon/marketledger-backend/pkg/auth"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

type createChangeRequestRequest struct {
	EntryID        uuid.UUID `json:"entry_id" validate:"required"`
	Kind           string    `json:"kind" validate:"required"`
	ProposedStatus *string   `json:"proposed_status,omitempty"`
}

type pendingResponse struct {
	Items []internalchangerequests.Item `json:"items"`
}

// Create opens a change request against an entry for the counterparty to resolve.
func Create(svc internalchangerequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "change request service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createChangeRequestRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		kind, err := enums.ParseChangeRequestKind(strings.ToUpper(strings.TrimSpace(body.Kind)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind").WithDetails(map[string]any{"field": "kind"}))
			return
		}
		input := internalchangerequests.CreateInput{EntryID: body.EntryID, Kind: kind}
		if body.ProposedStatus != nil && strings.TrimSpace(*body.ProposedStatus) != "" {
			status, err := enums.ParsePaymentStatus(strings.TrimSpace(*body.ProposedStatus))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid proposed_status").WithDetails(map[string]any{"field": "proposed_status"}))
				return
			}
			input.ProposedStatus = &status
		}

		req, err := svc.CreateRequest(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalchangerequests.ToItem(*req))
	}
}

// Pending lists the requests waiting on the actor's side.
func Pending(svc internalchangerequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "change request service unavailable"))
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
		responses.WriteSuccess(w, pendingResponse{Items: internalchangerequests.ToItems(rows)})
	}
}

// Detail returns a single request visible to the actor.
func Detail(svc internalchangerequests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "change request service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := actorcontext.PathUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req, err := svc.Get(r.Context(), actor, requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalchangerequests.ToItem(*req))
	}
}

// Approve resolves a pending request in favor of the proposal.
func Approve(svc internalchangerequests.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return resolve(nil, logg)
	}
	return resolve(svc.Approve, logg)
}

// Reject resolves a pending request and restores the entry.
func Reject(svc internalchangerequests.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return resolve(nil, logg)
	}
	return resolve(svc.Reject, logg)
}

type resolveFunc func(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.ChangeRequest, error)

func resolve(fn resolveFunc, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fn == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "change request service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := actorcontext.PathUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req, err := fn(r.Context(), requestID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalchangerequests.ToItem(*req))
	}
}
