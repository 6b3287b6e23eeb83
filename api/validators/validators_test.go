package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

type counterBody struct {
	AmountCents int64   `json:"amount_cents" validate:"required,min=1"`
	Message     *string `json:"message" validate:"omitempty,max=5"`
}

type connectBody struct {
	StripeAccountID string `json:"stripe_account_id" validate:"required,stripe_account"`
}

func post(body string) (*httptest.ResponseRecorder, *http.Request) {
	return httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSONBody(t *testing.T) {
	w, r := post(`{"amount_cents": 12500}`)
	var dest counterBody
	require.NoError(t, DecodeJSONBody(w, r, &dest))
	assert.Equal(t, int64(12500), dest.AmountCents)
}

func TestDecodeJSONBodyRejections(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"unknown field":  `{"amount_cents": 1, "currency": "usd"}`,
		"trailing data":  `{"amount_cents": 1}{"amount_cents": 2}`,
		"failed min":     `{"amount_cents": 0}`,
		"message max":    `{"amount_cents": 1, "message": "too long"}`,
		"malformed json": `{"amount_cents":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w, r := post(body)
			var dest counterBody
			err := DecodeJSONBody(w, r, &dest)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestDecodeJSONBodyFieldDetails(t *testing.T) {
	w, r := post(`{"stripe_account_id": "cus_123"}`)
	var dest connectBody
	err := DecodeJSONBody(w, r, &dest)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details["stripe_account_id"], "acct_")
}

func TestDecodeJSONBodyTooLarge(t *testing.T) {
	w, r := post(`{"amount_cents": 1, "message": "` + strings.Repeat("x", maxBodyBytes) + `"}`)
	var dest counterBody
	err := DecodeJSONBody(w, r, &dest)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, "request body too large", typed.Message())
}

func TestDecodeOptionalJSONBody(t *testing.T) {
	type extendBody struct {
		ExpiresInHours *int `json:"expires_in_hours" validate:"omitempty,min=1"`
	}
	w, r := post(``)
	var dest extendBody
	require.NoError(t, DecodeOptionalJSONBody(w, r, &dest))
	assert.Nil(t, dest.ExpiresInHours)

	w, r = post(`{"expires_in_hours": 0}`)
	assert.Error(t, DecodeOptionalJSONBody(w, r, &dest))
}

func TestParseListQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?cursor=%20abc%20", nil)
	q, err := ParseListQuery(r)
	require.NoError(t, err)
	assert.Equal(t, ListQuery{Limit: pagination.DefaultLimit, Cursor: "abc"}, q)

	for _, raw := range []string{"limit=0", "limit=101", "limit=ten", "cursor=" + strings.Repeat("c", maxCursorLen+1)} {
		_, err := ParseListQuery(httptest.NewRequest(http.MethodGet, "/?"+raw, nil))
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), raw)
	}
}

func TestParseQueryEnumAndBool(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?role=SELLER&unreadOnly=true", nil)
	role, err := ParseQueryEnum(r, "role", "buyer", "seller")
	require.NoError(t, err)
	assert.Equal(t, "seller", role)
	unread, err := ParseQueryBool(r, "unreadOnly")
	require.NoError(t, err)
	assert.True(t, unread)

	r = httptest.NewRequest(http.MethodGet, "/?role=admin&unreadOnly=maybe", nil)
	_, err = ParseQueryEnum(r, "role", "buyer", "seller")
	assert.Error(t, err)
	_, err = ParseQueryBool(r, "unreadOnly")
	assert.Error(t, err)

	role, err = ParseQueryEnum(httptest.NewRequest(http.MethodGet, "/", nil), "role", "buyer")
	require.NoError(t, err)
	assert.Empty(t, role)
}

func TestParsePathUUID(t *testing.T) {
	withParam := func(value string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("offerId", value)
		return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	}
	id := "8a1f3c2e-3c4b-4a55-9f7e-0b7f1a2c3d4e"
	got, err := ParsePathUUID(withParam(id), "offerId", "offer id")
	require.NoError(t, err)
	assert.Equal(t, id, got.String())

	_, err = ParsePathUUID(withParam("nope"), "offerId", "offer id")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParsePathUUID(withParam(""), "offerId", "offer id")
	assert.Error(t, err)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello \x00 ", 0))
	assert.Equal(t, "line one\nline two", SanitizeString("line one\nline two\x07", 0))
	assert.Equal(t, "café", SanitizeString("cafés", 4))
}
