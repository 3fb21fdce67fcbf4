package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/dropshop/internal/apperr"
	"github.com/safar/dropshop/internal/auth"
	"github.com/safar/dropshop/internal/config"
	"github.com/safar/dropshop/internal/models"
	"github.com/safar/dropshop/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testAuthConfig = config.AuthConfig{
	AccessSecret:  "api-access",
	RefreshSecret: "api-refresh",
	AccessTTL:     15 * time.Minute,
	RefreshTTL:    time.Hour,
	BcryptCost:    4,
}

// newOfflineRouter wires only what token checks and binding need, so the
// requests exercised here never reach the database.
func newOfflineRouter(t *testing.T) (*gin.Engine, *auth.TokenIssuer) {
	t.Helper()

	issuer := auth.NewTokenIssuer(testAuthConfig)
	authz, err := auth.NewAuthorizer()
	require.NoError(t, err)

	authSvc := service.NewAuthService(nil, auth.NewPasswordHasher(testAuthConfig.BcryptCost), issuer, nil, nil, testAuthConfig)
	h := NewHandler(nil, nil, Services{Auth: authSvc}, authz)
	return NewRouter(h, ""), issuer
}

func do(r http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func tokenFor(t *testing.T, issuer *auth.TokenIssuer, id int64, role models.Role) string {
	t.Helper()
	pair, err := issuer.Issue(&models.User{ID: id, Email: "u@example.com", Role: role})
	require.NoError(t, err)
	return pair.AccessToken
}

func TestRequireAuth(t *testing.T) {
	r, _ := newOfflineRouter(t)

	w := do(r, http.MethodGet, "/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "authorization header required", errorBody(t, w))

	w = do(r, http.MethodGet, "/orders", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/loyalty", nil)
	req.Header.Set("Authorization", "Token abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid authorization header format", errorBody(t, w))
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	r, issuer := newOfflineRouter(t)

	pair, err := issuer.Issue(&models.User{ID: 1, Role: models.RoleCustomer})
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/auth/me", pair.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirePermission(t *testing.T) {
	r, issuer := newOfflineRouter(t)
	customer := tokenFor(t, issuer, 1, models.RoleCustomer)

	w := do(r, http.MethodPost, "/raffles/1/draw", customer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodGet, "/admin/orders", customer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodPost, "/loyalty/earn", customer, gin.H{"source": "bonus", "userId": 9, "points": 100})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBindingErrors(t *testing.T) {
	r, issuer := newOfflineRouter(t)
	customer := tokenFor(t, issuer, 1, models.RoleCustomer)

	w := do(r, http.MethodPost, "/cart/items", "", gin.H{"variantId": 3, "quantity": 100, "sessionId": "s1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "quantity must be at most 99", errorBody(t, w))

	w = do(r, http.MethodPost, "/raffles/1/enter", customer, gin.H{"sizePreference": "huge"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "sizePreference is not a recognised size", errorBody(t, w))

	w = do(r, http.MethodPost, "/auth/register", "", gin.H{"email": "nope", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorBody(t, w), "email must be a valid email")
	assert.Contains(t, errorBody(t, w), "password must be at least 8")

	w = do(r, http.MethodPost, "/loyalty/earn", customer, gin.H{"amount": "10.00"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "orderId is required", errorBody(t, w))
}

func TestGuestCartNeedsSession(t *testing.T) {
	r, _ := newOfflineRouter(t)

	w := do(r, http.MethodPost, "/cart/items", "", gin.H{"variantId": 3, "quantity": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "session required for guest checkout", errorBody(t, w))
}

func TestRequestIDAndNoRoute(t *testing.T) {
	r, _ := newOfflineRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.Header.Set(headerRequestID, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get(headerRequestID))

	w = do(r, http.MethodGet, "/nope", "", nil)
	assert.NotEmpty(t, w.Header().Get(headerRequestID))
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		message string
	}{
		{apperr.Validation("bad %s", "input"), http.StatusBadRequest, "bad input"},
		{apperr.Conflict("raffle is full"), http.StatusConflict, "raffle is full"},
		{apperr.Unauthorized("invalid email or password"), http.StatusUnauthorized, "invalid email or password"},
		{apperr.Forbidden("account disabled"), http.StatusForbidden, "account disabled"},
		{apperr.NotFound("order not found"), http.StatusNotFound, "order not found"},
		{apperr.External("payment processor unavailable", errors.New("dial tcp")), http.StatusBadGateway, "payment processor unavailable"},
		{errors.New("pq: relation does not exist"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)

		respondError(c, tt.err)

		assert.Equal(t, tt.status, w.Code, tt.message)
		assert.Equal(t, tt.message, errorBody(t, w))
	}
}

func TestSessionIDPrecedence(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/cart?sessionId=query", nil)
	c.Request.Header.Set(headerSessionID, "header")

	assert.Equal(t, "body", sessionID(c, "body"))
	assert.Equal(t, "header", sessionID(c, ""))

	c.Request.Header.Del(headerSessionID)
	assert.Equal(t, "query", sessionID(c, " "))
}
