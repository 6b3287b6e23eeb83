package offers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tradepost-backend/api/middleware"
	internaloffers "github.com/angelmondragon/tradepost-backend/internal/offers"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

type stubOffersService struct {
	createFn  func(ctx context.Context, input internaloffers.CreateInput) (*internaloffers.OfferDTO, error)
	listFn    func(ctx context.Context, params internaloffers.ListParams) (*internaloffers.ListResult, error)
	acceptFn  func(ctx context.Context, offerID, sellerID uuid.UUID) (*internaloffers.OfferDTO, error)
	counterFn func(ctx context.Context, input internaloffers.CounterInput) (*internaloffers.OfferDTO, error)
	extendFn  func(ctx context.Context, input internaloffers.ExtendInput) (*internaloffers.OfferDTO, error)
	sweepFn   func(ctx context.Context) (internaloffers.SweepResult, error)
}

func (s *stubOffersService) Create(ctx context.Context, input internaloffers.CreateInput) (*internaloffers.OfferDTO, error) {
	return s.createFn(ctx, input)
}

func (s *stubOffersService) Get(ctx context.Context, offerID, actorID uuid.UUID) (*internaloffers.OfferDTO, error) {
	return &internaloffers.OfferDTO{ID: offerID}, nil
}

func (s *stubOffersService) List(ctx context.Context, params internaloffers.ListParams) (*internaloffers.ListResult, error) {
	return s.listFn(ctx, params)
}

func (s *stubOffersService) Events(ctx context.Context, offerID, actorID uuid.UUID) ([]internaloffers.EventDTO, error) {
	return nil, nil
}

func (s *stubOffersService) Accept(ctx context.Context, offerID, sellerID uuid.UUID) (*internaloffers.OfferDTO, error) {
	return s.acceptFn(ctx, offerID, sellerID)
}

func (s *stubOffersService) Reject(ctx context.Context, offerID, sellerID uuid.UUID) (*internaloffers.OfferDTO, error) {
	return nil, nil
}

func (s *stubOffersService) Counter(ctx context.Context, input internaloffers.CounterInput) (*internaloffers.OfferDTO, error) {
	return s.counterFn(ctx, input)
}

func (s *stubOffersService) Cancel(ctx context.Context, offerID, buyerID uuid.UUID) (*internaloffers.OfferDTO, error) {
	return nil, nil
}

func (s *stubOffersService) Extend(ctx context.Context, input internaloffers.ExtendInput) (*internaloffers.OfferDTO, error) {
	return s.extendFn(ctx, input)
}

func (s *stubOffersService) ExpireOverdue(ctx context.Context) (internaloffers.SweepResult, error) {
	return s.sweepFn(ctx)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func asUser(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func withOfferParam(req *http.Request, offerID string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("offerId", offerID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestCreateOffer(t *testing.T) {
	buyerID := uuid.New()
	listingID := uuid.New()
	var got internaloffers.CreateInput
	svc := &stubOffersService{
		createFn: func(ctx context.Context, input internaloffers.CreateInput) (*internaloffers.OfferDTO, error) {
			got = input
			return &internaloffers.OfferDTO{ID: uuid.New(), Status: enums.OfferStatusPending}, nil
		},
	}

	body := `{"listing_id":"` + listingID.String() + `","amount_cents":4500,"message":"  cash today  ","transport_included":true,"expires_in_hours":24}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/offers", strings.NewReader(body)), buyerID)
	rec := httptest.NewRecorder()
	Create(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, buyerID, got.BuyerID)
	require.Equal(t, listingID, got.ListingID)
	require.EqualValues(t, 4500, got.Amount)
	require.NotNil(t, got.Terms.Message)
	require.Equal(t, "cash today", *got.Terms.Message)
	require.True(t, got.Terms.TransportIncluded)
	require.NotNil(t, got.ExpiresInHours)
	require.Equal(t, 24, *got.ExpiresInHours)
}

func TestCreateOfferValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing listing", `{"amount_cents":100}`},
		{"bad listing id", `{"listing_id":"nope","amount_cents":100}`},
		{"zero amount", `{"listing_id":"` + uuid.NewString() + `","amount_cents":0}`},
		{"unknown field", `{"listing_id":"` + uuid.NewString() + `","amount_cents":100,"price":5}`},
		{"both amounts", `{"listing_id":"` + uuid.NewString() + `","amount_cents":100,"amount":"1.00"}`},
		{"sub-cent amount", `{"listing_id":"` + uuid.NewString() + `","amount":"1.005"}`},
		{"zero decimal amount", `{"listing_id":"` + uuid.NewString() + `","amount":"0.00"}`},
		{"amount beyond int64", `{"listing_id":"` + uuid.NewString() + `","amount":"92233720368547758.08"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubOffersService{
				createFn: func(ctx context.Context, input internaloffers.CreateInput) (*internaloffers.OfferDTO, error) {
					t.Fatal("service should not be called")
					return nil, nil
				},
			}
			req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/offers", strings.NewReader(tt.body)), uuid.New())
			rec := httptest.NewRecorder()
			Create(svc, testLogger())(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateOfferRequiresUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/offers", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	Create(&stubOffersService{}, testLogger())(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListOffersParsesFilters(t *testing.T) {
	userID := uuid.New()
	listingID := uuid.New()
	var got internaloffers.ListParams
	svc := &stubOffersService{
		listFn: func(ctx context.Context, params internaloffers.ListParams) (*internaloffers.ListResult, error) {
			got = params
			return &internaloffers.ListResult{}, nil
		},
	}

	url := "/api/v1/offers?role=seller&status=pending&limit=5&cursor=c1&listing_id=" + listingID.String()
	rec := httptest.NewRecorder()
	List(svc, testLogger())(rec, asUser(httptest.NewRequest(http.MethodGet, url, nil), userID))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, internaloffers.RoleSeller, got.Role)
	require.NotNil(t, got.Status)
	require.Equal(t, enums.OfferStatusPending, *got.Status)
	require.Equal(t, 5, got.Limit)
	require.Equal(t, "c1", got.Cursor)
	require.NotNil(t, got.ListingID)
	require.Equal(t, listingID, *got.ListingID)
}

func TestListOffersRejectsUnknownRole(t *testing.T) {
	rec := httptest.NewRecorder()
	List(&stubOffersService{}, testLogger())(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/v1/offers?role=admin", nil), uuid.New()))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcceptMapsInvalidTransition(t *testing.T) {
	sellerID := uuid.New()
	offerID := uuid.New()
	svc := &stubOffersService{
		acceptFn: func(ctx context.Context, oid, sid uuid.UUID) (*internaloffers.OfferDTO, error) {
			require.Equal(t, offerID, oid)
			require.Equal(t, sellerID, sid)
			return nil, pkgerrors.New(pkgerrors.CodeInvalidStateTransition, "offer is not pending")
		},
	}

	req := withOfferParam(asUser(httptest.NewRequest(http.MethodPost, "/api/v1/offers/x/accept", nil), sellerID), offerID.String())
	rec := httptest.NewRecorder()
	Accept(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, string(pkgerrors.CodeInvalidStateTransition), errorCode(t, rec))
}

func TestAcceptRejectsBadOfferID(t *testing.T) {
	req := withOfferParam(asUser(httptest.NewRequest(http.MethodPost, "/api/v1/offers/x/accept", nil), uuid.New()), "not-a-uuid")
	rec := httptest.NewRecorder()
	Accept(&stubOffersService{}, testLogger())(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCounterOffer(t *testing.T) {
	sellerID := uuid.New()
	offerID := uuid.New()
	var got internaloffers.CounterInput
	svc := &stubOffersService{
		counterFn: func(ctx context.Context, input internaloffers.CounterInput) (*internaloffers.OfferDTO, error) {
			got = input
			return &internaloffers.OfferDTO{ID: offerID, Status: enums.OfferStatusCountered}, nil
		},
	}

	body := `{"amount_cents":5200,"contingency":"after inspection","inspection_included":true}`
	req := withOfferParam(asUser(httptest.NewRequest(http.MethodPost, "/api/v1/offers/x/counter", strings.NewReader(body)), sellerID), offerID.String())
	rec := httptest.NewRecorder()
	Counter(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, offerID, got.OfferID)
	require.Equal(t, sellerID, got.SellerID)
	require.EqualValues(t, 5200, got.Amount)
	require.True(t, got.Terms.InspectionIncluded)
	require.Nil(t, got.ExpiresInHours)
}

func TestCreateOfferAcceptsDecimalAmount(t *testing.T) {
	var got internaloffers.CreateInput
	svc := &stubOffersService{
		createFn: func(ctx context.Context, input internaloffers.CreateInput) (*internaloffers.OfferDTO, error) {
			got = input
			return &internaloffers.OfferDTO{ID: uuid.New(), Status: enums.OfferStatusPending}, nil
		},
	}

	body := `{"listing_id":"` + uuid.NewString() + `","amount":"45.10"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/offers", strings.NewReader(body)), uuid.New())
	rec := httptest.NewRecorder()
	Create(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.EqualValues(t, 4510, got.Amount)
}

func TestCounterRejectsOversizedDecimal(t *testing.T) {
	svc := &stubOffersService{
		counterFn: func(ctx context.Context, input internaloffers.CounterInput) (*internaloffers.OfferDTO, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	body := `{"amount":"100000000000000000000"}`
	req := withOfferParam(asUser(httptest.NewRequest(http.MethodPost, "/api/v1/offers/x/counter", strings.NewReader(body)), uuid.New()), uuid.NewString())
	rec := httptest.NewRecorder()
	Counter(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

func TestExtendAcceptsEmptyBody(t *testing.T) {
	buyerID := uuid.New()
	offerID := uuid.New()
	var got internaloffers.ExtendInput
	svc := &stubOffersService{
		extendFn: func(ctx context.Context, input internaloffers.ExtendInput) (*internaloffers.OfferDTO, error) {
			got = input
			return &internaloffers.OfferDTO{ID: offerID, Status: enums.OfferStatusPending}, nil
		},
	}

	req := withOfferParam(asUser(httptest.NewRequest(http.MethodPost, "/api/v1/offers/x/extend", nil), buyerID), offerID.String())
	rec := httptest.NewRecorder()
	Extend(svc, testLogger())(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, buyerID, got.BuyerID)
	require.Nil(t, got.ExpiresInHours)
}

func TestAdminSweep(t *testing.T) {
	svc := &stubOffersService{
		sweepFn: func(ctx context.Context) (internaloffers.SweepResult, error) {
			return internaloffers.SweepResult{Expired: 3, NotifiedBuyers: 2}, nil
		},
	}
	rec := httptest.NewRecorder()
	AdminSweep(svc, testLogger())(rec, httptest.NewRequest(http.MethodPost, "/api/admin/v1/offers/sweep", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data internaloffers.SweepResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, 3, envelope.Data.Expired)
	require.Equal(t, 2, envelope.Data.NotifiedBuyers)
}
