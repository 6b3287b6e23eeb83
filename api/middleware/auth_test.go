package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tradepost-backend/pkg/auth"
	"github.com/angelmondragon/tradepost-backend/pkg/config"
	"github.com/angelmondragon/tradepost-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "tradepost", ExpirationMinutes: 60}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serveWithAuthHeader(h http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestAuthRejections(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())
	foreign := mintTestToken(t, config.JWTConfig{Secret: "secret", Issuer: "elsewhere", ExpirationMinutes: 10}, uuid.New(), enums.UserRoleMember)

	cases := map[string]struct {
		header  string
		message string
	}{
		"missing":      {"", "missing bearer token"},
		"scheme only":  {"Bearer ", "missing bearer token"},
		"garbage":      {"Bearer invalid", "invalid token"},
		"other issuer": {"Bearer " + foreign, "invalid token"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp := serveWithAuthHeader(handler, tc.header)
			assert.Equal(t, http.StatusUnauthorized, resp.Code)
			assert.Contains(t, resp.Body.String(), tc.message)
		})
	}
}

func TestAuthReportsExpiredToken(t *testing.T) {
	token, err := auth.MintAccessToken(testJWT, time.Now().Add(-3*time.Hour), auth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.UserRoleMember,
	})
	require.NoError(t, err)

	resp := serveWithAuthHeader(Auth(testJWT, nil)(okHandler()), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Contains(t, resp.Body.String(), "token expired")
}

func TestAuthAllowsValidToken(t *testing.T) {
	userID := uuid.New()
	token := mintTestToken(t, testJWT, userID, enums.UserRoleMember)

	var gotUser string
	var gotRole enums.UserRole
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	for _, header := range []string{"Bearer " + token, "bearer " + token, token} {
		resp := serveWithAuthHeader(handler, header)
		require.Equal(t, http.StatusOK, resp.Code, header)
		assert.Equal(t, userID.String(), gotUser)
		assert.Equal(t, enums.UserRoleMember, gotRole)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.UserRoleAdmin)(okHandler())
	serve := func(ctx context.Context) int {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/offers/sweep", nil).WithContext(ctx)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(context.Background()))
	assert.Equal(t, http.StatusForbidden, serve(WithRole(context.Background(), enums.UserRoleMember)))
	assert.Equal(t, http.StatusOK, serve(WithRole(context.Background(), enums.UserRoleAdmin)))
}

func TestPrincipalContext(t *testing.T) {
	id := uuid.New()
	ctx := WithRole(WithUserID(context.Background(), id.String()), enums.UserRoleAdmin)
	assert.Equal(t, enums.UserRoleAdmin, RoleFromContext(ctx))

	actor, err := ActorIDFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, actor)

	_, err = ActorIDFromContext(context.Background())
	assert.Error(t, err)
	_, err = ActorIDFromContext(WithUserID(context.Background(), "not-a-uuid"))
	assert.Error(t, err)
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
	})
	require.NoError(t, err)
	return token
}
