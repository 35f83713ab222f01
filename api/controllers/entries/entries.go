package entries

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/api/controllers/actorcontext"
	"github.com/angelmondragon/marketledger-backend/api/responses"
	"github.com/angelmondragon/marketledger-backend/api/validators"
	internalentries "github.com/angelmondragon/marketledger-backend/internal/entries"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

type createEntryRequest struct {
	MarketID uuid.UUID `json:"market_id" validate:"required"`
	Market   string    `json:"market" validate:"max=120"`
	Phone    string    `json:"phone" validate:"max=32"`
	Product  string    `json:"product" validate:"max=120"`
	Quantity string    `json:"quantity" validate:"max=32"`
	Price    string    `json:"price" validate:"max=32"`
	Status   *string   `json:"status,omitempty"`
	Date     *string   `json:"date,omitempty"`
}

type updateEntryRequest struct {
	Market   *string `json:"market,omitempty" validate:"omitempty,max=120"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Product  *string `json:"product,omitempty" validate:"omitempty,max=120"`
	Quantity *string `json:"quantity,omitempty" validate:"omitempty,max=32"`
	Price    *string `json:"price,omitempty" validate:"omitempty,max=32"`
	Status   *string `json:"status,omitempty"`
	Date     *string `json:"date,omitempty"`
}

// List returns a cursor page of the entries visible to the actor.
func List(svc internalentries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entries service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := validators.PageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListPage(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Create records a new entry for the authenticated seller.
func Create(svc internalentries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entries service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createEntryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalentries.CreateInput{
			MarketID:          body.MarketID,
			MarketName:        body.Market,
			CounterpartyPhone: body.Phone,
			ProductType:       body.Product,
			Quantity:          body.Quantity,
			Price:             body.Price,
		}
		if input.PaymentStatus, err = parseStatus(body.Status); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if input.RecordDate, err = parseDate(body.Date); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Create(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

// Update applies a partial edit to an entry owned by the seller.
func Update(svc internalentries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entries service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entryID, err := actorcontext.PathUUID(r, "entryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateEntryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalentries.UpdateInput{
			Market:   body.Market,
			Phone:    body.Phone,
			Product:  body.Product,
			Quantity: body.Quantity,
			Price:    body.Price,
		}
		if input.Status, err = parseStatus(body.Status); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if input.Date, err = parseDate(body.Date); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Update(r.Context(), actor, entryID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// Delete removes an entry owned by the seller.
func Delete(svc internalentries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entries service unavailable"))
			return
		}
		actor, err := actorcontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entryID, err := actorcontext.PathUUID(r, "entryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), actor, entryID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"id": entryID.String()})
	}
}

func parseStatus(raw *string) (*enums.PaymentStatus, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	status, err := enums.ParsePaymentStatus(strings.TrimSpace(*raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").WithDetails(map[string]any{"field": "status"})
	}
	return &status, nil
}

func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	date, err := internalentries.ParseDate(strings.TrimSpace(*raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date").WithDetails(map[string]any{"field": "date", "layout": internalentries.DateLayout})
	}
	return &date, nil
}
