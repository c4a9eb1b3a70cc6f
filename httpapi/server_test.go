package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traderwatch/store"
)

func newTestServer(t *testing.T, jwtSecret string) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, jwtSecret), st
}

func signedToken(t *testing.T, secret string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops", "iat": time.Now().Unix(), "exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestHandleHealthz_ReturnsOK(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleDebugSignals_NoAuthRequiredWhenSecretEmpty(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/signals", nil)
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}

func TestDebugRoutes_MissingBearerTokenIsRejected(t *testing.T) {
	s, _ := newTestServer(t, "supersecret")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/signals", nil)
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDebugRoutes_InvalidTokenIsRejected(t *testing.T) {
	s, _ := newTestServer(t, "supersecret")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/signals", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDebugRoutes_ValidTokenIsAccepted(t *testing.T) {
	s, _ := newTestServer(t, "supersecret")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/signals", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "supersecret"))
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDebugRoutes_TokenSignedWithWrongSecretIsRejected(t *testing.T) {
	s, _ := newTestServer(t, "supersecret")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/signals", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "wrong-secret"))
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleDebugPositions_MissingAddressIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/positions", nil)
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDebugPositions_ReturnsWalletPositions(t *testing.T) {
	s, st := newTestServer(t, "")
	addr := "0x0000000000000000000000000000000000000a"
	require.NoError(t, st.UpsertWallet(addr))
	require.NoError(t, st.ReplacePositionsForAddress(addr, []store.Position{
		{Address: addr, Coin: "BTC", Direction: store.Long, Size: 1, EntryPrice: 50000, ValueUSD: 50000, OpenedAt: time.Now()},
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/positions?address="+addr, nil)
	s.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}
