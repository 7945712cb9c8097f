package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrade/internal/auth"
	"papertrade/internal/config"
	"papertrade/internal/market"
	"papertrade/internal/monitoring"
	"papertrade/internal/notify"
	"papertrade/internal/paper"
)

type apiHarness struct {
	router *gin.Engine
	jwt    *auth.JWTManager
	oracle *market.StaticOracle
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{
		App: config.AppConfig{Name: "papertrade", Env: "test"},
		JWT: config.JWTConfig{SecretKey: "test-secret", Duration: time.Hour, RefreshDuration: 24 * time.Hour},
		Paper: config.PaperConfig{
			DefaultInitialCash:    100000,
			DefaultCommissionRate: 0,
			DefaultSlippageRate:   0,
		},
	}

	oracle := market.NewStaticOracle(map[string]float64{"BTCUSDT": 100}, 0)
	hub := notify.NewHub()
	metrics := monitoring.NewMetrics()
	processor := paper.NewProcessor(paper.NewMemoryLedger(), oracle, hub, metrics, logger)
	t.Cleanup(processor.Close)

	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Duration)
	server := NewServer(cfg, logger, nil, jwtManager, processor, hub, metrics)

	return &apiHarness{router: server.Router(), jwt: jwtManager, oracle: oracle}
}

func (h *apiHarness) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, _, err := h.jwt.GenerateToken(userID, "trader", "user")
	require.NoError(t, err)
	return token
}

func (h *apiHarness) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var resp Response
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func (h *apiHarness) createAccount(t *testing.T, token string) string {
	t.Helper()
	w, resp := h.do(t, http.MethodPost, "/api/v1/accounts", token, CreateAccountRequest{Name: "main"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	data := resp.Data.(map[string]interface{})
	return data["id"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	h := newAPIHarness(t)
	w, _ := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestStandaloneTokenIssuance(t *testing.T) {
	h := newAPIHarness(t)

	w, resp := h.do(t, http.MethodPost, "/api/v1/auth/token", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := resp.Data.(map[string]interface{})
	token := data["access_token"].(string)
	require.NotEmpty(t, token)

	// The issued token carries a full identity usable against the
	// protected API.
	accountID := h.createAccount(t, token)
	w, _ = h.do(t, http.MethodGet, "/api/v1/accounts/"+accountID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Two issued identities are distinct owners.
	_, resp = h.do(t, http.MethodPost, "/api/v1/auth/token", "", nil)
	other := resp.Data.(map[string]interface{})["access_token"].(string)
	w, _ = h.do(t, http.MethodGet, "/api/v1/accounts/"+accountID, other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAccountEndpointsRequireAuth(t *testing.T) {
	h := newAPIHarness(t)
	w, _ := h.do(t, http.MethodGet, "/api/v1/accounts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAccountLifecycle(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, uuid.New())

	accountID := h.createAccount(t, token)

	w, resp := h.do(t, http.MethodGet, "/api/v1/accounts/"+accountID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, 100000.0, data["initial_cash"])
	assert.Equal(t, true, data["is_active"])

	w, resp = h.do(t, http.MethodGet, "/api/v1/accounts", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)

	w, _ = h.do(t, http.MethodDelete, "/api/v1/accounts/"+accountID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = h.do(t, http.MethodGet, "/api/v1/accounts/"+accountID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = resp.Data.(map[string]interface{})
	assert.Equal(t, false, data["is_active"])
}

func TestAccountOwnershipEnforced(t *testing.T) {
	h := newAPIHarness(t)
	owner := h.token(t, uuid.New())
	intruder := h.token(t, uuid.New())

	accountID := h.createAccount(t, owner)

	w, _ := h.do(t, http.MethodGet, "/api/v1/accounts/"+accountID, intruder, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = h.do(t, http.MethodDelete, "/api/v1/accounts/"+accountID, intruder, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The intruder's listing shows no foreign accounts.
	w, resp := h.do(t, http.MethodGet, "/api/v1/accounts", intruder, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resp.Data)
}

func TestOrderFlowOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, uuid.New())
	accountID := h.createAccount(t, token)

	w, resp := h.do(t, http.MethodPost, "/api/v1/orders", token, SubmitOrderRequest{
		AccountID: accountID,
		Symbol:    "BTCUSDT",
		Type:      "market",
		Side:      "buy",
		Size:      10,
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	order := resp.Data.(map[string]interface{})
	orderID := order["id"].(string)
	assert.Equal(t, "pending", order["status"])

	// Fills run asynchronously; poll until terminal.
	require.Eventually(t, func() bool {
		_, resp := h.do(t, http.MethodGet, "/api/v1/orders/"+orderID, token, nil)
		data, ok := resp.Data.(map[string]interface{})
		return ok && data["status"] == "filled"
	}, 2*time.Second, 5*time.Millisecond)

	w, resp = h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%s/positions", accountID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	positions := resp.Data.([]interface{})
	require.Len(t, positions, 1)
	pos := positions[0].(map[string]interface{})
	assert.Equal(t, "BTCUSDT", pos["symbol"])
	assert.Equal(t, 10.0, pos["size"])

	w, resp = h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%s/trades", accountID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)

	w, resp = h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%s/orders?status=filled", accountID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)
}

func TestSubmitOrderValidation(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, uuid.New())
	accountID := h.createAccount(t, token)

	w, _ := h.do(t, http.MethodPost, "/api/v1/orders", token, SubmitOrderRequest{
		AccountID: accountID,
		Symbol:    "BTCUSDT",
		Type:      "iceberg",
		Side:      "buy",
		Size:      1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = h.do(t, http.MethodPost, "/api/v1/orders", token, map[string]interface{}{
		"account_id": accountID,
		"symbol":     "BTCUSDT",
		"type":       "market",
		"side":       "buy",
		"size":       -5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitOrderForeignAccount(t *testing.T) {
	h := newAPIHarness(t)
	owner := h.token(t, uuid.New())
	intruder := h.token(t, uuid.New())
	accountID := h.createAccount(t, owner)

	w, _ := h.do(t, http.MethodPost, "/api/v1/orders", intruder, SubmitOrderRequest{
		AccountID: accountID,
		Symbol:    "BTCUSDT",
		Type:      "market",
		Side:      "buy",
		Size:      1,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCancelOrderOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, uuid.New())
	accountID := h.createAccount(t, token)

	w, resp := h.do(t, http.MethodPost, "/api/v1/orders", token, SubmitOrderRequest{
		AccountID: accountID,
		Symbol:    "BTCUSDT",
		Type:      "market",
		Side:      "buy",
		Size:      1,
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	orderID := resp.Data.(map[string]interface{})["id"].(string)

	require.Eventually(t, func() bool {
		_, resp := h.do(t, http.MethodGet, "/api/v1/orders/"+orderID, token, nil)
		data, ok := resp.Data.(map[string]interface{})
		return ok && data["status"] != "pending"
	}, 2*time.Second, 5*time.Millisecond)

	// The order already filled, so the cancel reports false.
	w, resp = h.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, false, data["cancelled"])
}

func TestGetUnknownOrder(t *testing.T) {
	h := newAPIHarness(t)
	token := h.token(t, uuid.New())

	w, _ := h.do(t, http.MethodGet, "/api/v1/orders/"+uuid.NewString(), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = h.do(t, http.MethodGet, "/api/v1/orders/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
