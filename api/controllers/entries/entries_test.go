package entries

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/api/middleware"
	internalentries "github.com/angelmondragon/marketledger-backend/internal/entries"
	"github.com/angelmondragon/marketledger-backend/pkg/auth"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

type stubEntriesService struct {
	listPage func(ctx context.Context, actor auth.Actor, params pagination.Params) (*internalentries.ListResult, error)
	create   func(ctx context.Context, actor auth.Actor, input internalentries.CreateInput) (*internalentries.Item, error)
	update   func(ctx context.Context, actor auth.Actor, id uuid.UUID, input internalentries.UpdateInput) (*internalentries.Item, error)
	delete   func(ctx context.Context, actor auth.Actor, id uuid.UUID) error
}

func (s stubEntriesService) List(ctx context.Context, actor auth.Actor) ([]internalentries.Item, error) {
	panic("not implemented")
}

func (s stubEntriesService) ListPage(ctx context.Context, actor auth.Actor, params pagination.Params) (*internalentries.ListResult, error) {
	return s.listPage(ctx, actor, params)
}

func (s stubEntriesService) Create(ctx context.Context, actor auth.Actor, input internalentries.CreateInput) (*internalentries.Item, error) {
	return s.create(ctx, actor, input)
}

func (s stubEntriesService) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, input internalentries.UpdateInput) (*internalentries.Item, error) {
	return s.update(ctx, actor, id, input)
}

func (s stubEntriesService) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	return s.delete(ctx, actor, id)
}

func sellerRequest(method, target, body string, params map[string]string) (*http.Request, auth.Actor) {
	actor := auth.Actor{ID: uuid.New(), Role: enums.ActorRoleSeller, Name: "Ana"}
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	return req.WithContext(middleware.WithActor(ctx, actor)), actor
}

func TestListPassesPagination(t *testing.T) {
	var got pagination.Params
	svc := stubEntriesService{
		listPage: func(ctx context.Context, actor auth.Actor, params pagination.Params) (*internalentries.ListResult, error) {
			got = params
			return &internalentries.ListResult{Items: []internalentries.Item{}, Cursor: "next"}, nil
		},
	}

	req, _ := sellerRequest(http.MethodGet, "/api/v1/entries?limit=5&cursor=abc", "", nil)
	resp := httptest.NewRecorder()
	List(svc, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got.Limit != 5 || got.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", got)
	}
	var body struct {
		Data internalentries.ListResult `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Cursor != "next" {
		t.Fatalf("expected cursor passthrough, got %q", body.Data.Cursor)
	}
}

func TestListRejectsOutOfRangeLimit(t *testing.T) {
	req, _ := sellerRequest(http.MethodGet, "/api/v1/entries?limit=1000", "", nil)
	resp := httptest.NewRecorder()
	List(stubEntriesService{}, nil)(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCreateMapsBody(t *testing.T) {
	marketID := uuid.New()
	var got internalentries.CreateInput
	var gotActor auth.Actor
	svc := stubEntriesService{
		create: func(ctx context.Context, actor auth.Actor, input internalentries.CreateInput) (*internalentries.Item, error) {
			got = input
			gotActor = actor
			return &internalentries.Item{ID: uuid.New()}, nil
		},
	}

	body := `{"market_id":"` + marketID.String() + `","market":"Central","product":"Maize","quantity":"3","price":"1.500","status":"paid","date":"2026-10-01"}`
	req, actor := sellerRequest(http.MethodPost, "/api/v1/entries", body, nil)
	resp := httptest.NewRecorder()
	Create(svc, nil)(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if gotActor.ID != actor.ID {
		t.Fatal("actor not forwarded")
	}
	if got.MarketID != marketID || got.MarketName != "Central" || got.ProductType != "Maize" || got.Price != "1.500" {
		t.Fatalf("unexpected input %+v", got)
	}
	if got.PaymentStatus == nil || *got.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("expected paid status, got %v", got.PaymentStatus)
	}
	if got.RecordDate == nil || got.RecordDate.Format(internalentries.DateLayout) != "2026-10-01" {
		t.Fatalf("unexpected date %v", got.RecordDate)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	marketID := uuid.New().String()
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", `{"market_id":"` + marketID + `","color":"red"}`},
		{"missing market id", `{"market":"Central"}`},
		{"bad status", `{"market_id":"` + marketID + `","status":"maybe"}`},
		{"bad date", `{"market_id":"` + marketID + `","date":"01/10/2026"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := stubEntriesService{
				create: func(ctx context.Context, actor auth.Actor, input internalentries.CreateInput) (*internalentries.Item, error) {
					called = true
					return &internalentries.Item{}, nil
				},
			}
			req, _ := sellerRequest(http.MethodPost, "/api/v1/entries", tt.body, nil)
			resp := httptest.NewRecorder()
			Create(svc, nil)(resp, req)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", resp.Code)
			}
			if called {
				t.Fatal("service should not be called")
			}
		})
	}
}

func TestUpdateForwardsPatch(t *testing.T) {
	entryID := uuid.New()
	var gotID uuid.UUID
	var got internalentries.UpdateInput
	svc := stubEntriesService{
		update: func(ctx context.Context, actor auth.Actor, id uuid.UUID, input internalentries.UpdateInput) (*internalentries.Item, error) {
			gotID = id
			got = input
			return &internalentries.Item{ID: id}, nil
		},
	}

	req, _ := sellerRequest(http.MethodPatch, "/api/v1/entries/"+entryID.String(), `{"price":"2.000","status":"unpaid"}`, map[string]string{"entryId": entryID.String()})
	resp := httptest.NewRecorder()
	Update(svc, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if gotID != entryID {
		t.Fatalf("expected id %s got %s", entryID, gotID)
	}
	if got.Price == nil || *got.Price != "2.000" || got.Market != nil {
		t.Fatalf("unexpected patch %+v", got)
	}
	if got.Status == nil || *got.Status != enums.PaymentStatusUnpaid {
		t.Fatalf("unexpected status %v", got.Status)
	}
}

func TestDeleteMapsServiceErrors(t *testing.T) {
	entryID := uuid.New()
	svc := stubEntriesService{
		delete: func(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the owner may delete an entry")
		},
	}

	req, _ := sellerRequest(http.MethodDelete, "/api/v1/entries/"+entryID.String(), "", map[string]string{"entryId": entryID.String()})
	resp := httptest.NewRecorder()
	Delete(svc, nil)(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}

	req, _ = sellerRequest(http.MethodDelete, "/api/v1/entries/nope", "", map[string]string{"entryId": "nope"})
	resp = httptest.NewRecorder()
	Delete(svc, nil)(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id got %d", resp.Code)
	}
}
