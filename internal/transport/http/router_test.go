package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/vending_machine/internal/handlers"
	"github.com/Skotchmaster/vending_machine/internal/ledger"
	"github.com/Skotchmaster/vending_machine/internal/metrics"
	"github.com/Skotchmaster/vending_machine/internal/mykafka"
	"github.com/Skotchmaster/vending_machine/internal/purchase"
	"github.com/Skotchmaster/vending_machine/internal/repo"
	"github.com/Skotchmaster/vending_machine/internal/service"
	"github.com/Skotchmaster/vending_machine/internal/session"
	"github.com/Skotchmaster/vending_machine/pkg/db"
	jwthelp "github.com/Skotchmaster/vending_machine/pkg/jwt"
	authmw "github.com/Skotchmaster/vending_machine/pkg/middleware/auth"
)

var (
	accessSecret  = []byte("access-secret")
	refreshSecret = []byte("refresh-secret")
)

func newServer(t *testing.T) *echo.Echo {
	t.Helper()

	ctx := context.Background()
	gdb, err := db.Open(ctx, "sqlite://file:"+uuid.NewString()+"?mode=memory&cache=shared", "")
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(ctx, gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	store := &repo.GormRepo{DB: gdb}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	registry := &session.Registry{Store: store, MaxSessions: 1}

	e := echo.New()
	Register(e, &Deps{
		Ping:     store.Ping,
		Gatherer: reg,
		Auth:     authmw.NewSessionAuth(accessSecret, registry, false),
		AuthHandler: &handlers.AuthHandler{Auth: &service.AuthService{
			Users:         store,
			Sessions:      registry,
			Events:        mykafka.Nop{},
			Metrics:       m,
			JWTSecret:     accessSecret,
			RefreshSecret: refreshSecret,
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    time.Hour,
		}},
		ProductHandler: &handlers.ProductHandler{Catalog: &service.CatalogService{Store: store, Events: mykafka.Nop{}}},
		VendingHandler: &handlers.VendingHandler{Vending: &service.VendingService{
			Ledger:      &ledger.Ledger{Store: store},
			Coordinator: &purchase.Coordinator{Store: store},
			Events:      mykafka.Nop{},
			Metrics:     m,
		}},
	})
	return e
}

func call(t *testing.T, e *echo.Echo, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func signup(t *testing.T, e *echo.Echo, username, role string) string {
	t.Helper()

	rec := call(t, e, http.MethodPost, "/api/users", "", map[string]string{
		"username": username, "password": "s3cret-pass", "password_confirm": "s3cret-pass", "role": role,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = call(t, e, http.MethodPost, "/api/users/login", "", map[string]string{
		"username": username, "password": "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode(t, rec)["access"].(string)
}

func TestHealth(t *testing.T) {
	e := newServer(t)

	assert.Equal(t, http.StatusOK, call(t, e, http.MethodGet, "/health/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, call(t, e, http.MethodGet, "/health/ready", "", nil).Code)
}

func TestVendingFlow(t *testing.T) {
	e := newServer(t)
	sellerToken := signup(t, e, "seller", "seller")
	buyerToken := signup(t, e, "buyer", "buyer")

	rec := call(t, e, http.MethodPost, "/api/products", sellerToken, map[string]any{
		"name": "cola", "cost": 50, "amount_available": 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	productID := decode(t, rec)["id"].(float64)

	rec = call(t, e, http.MethodPost, "/api/products", buyerToken, map[string]any{
		"name": "x", "cost": 5, "amount_available": 1,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	for _, coin := range []int{100, 50, 10, 5} {
		rec = call(t, e, http.MethodPost, "/api/users/deposit", buyerToken, map[string]int{"amount": coin})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	assert.Equal(t, 165.0, decode(t, rec)["deposit"])

	rec = call(t, e, http.MethodPost, "/api/users/deposit", buyerToken, map[string]int{"amount": 25})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, e, http.MethodPost, "/api/users/deposit", sellerToken, map[string]int{"amount": 5})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, e, http.MethodPost, "/api/products/buy", buyerToken, map[string]any{"product": productID, "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	receipt := decode(t, rec)
	assert.Equal(t, 100.0, receipt["total_spent"])
	assert.Equal(t, "cola", receipt["product_name"])
	assert.Equal(t, []any{50.0, 10.0, 5.0}, receipt["change"])

	rec = call(t, e, http.MethodPost, "/api/products/buy", buyerToken, map[string]any{"product": productID, "quantity": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Insufficient funds.", body["detail"])
	assert.Equal(t, 50.0, body["required"])

	rec = call(t, e, http.MethodPost, "/api/products/buy", buyerToken, map[string]any{"product": 9999, "quantity": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, e, http.MethodGet, "/api/products/9999", buyerToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, e, http.MethodGet, "/api/products", buyerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)
	items := list["data"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, 3.0, items[0].(map[string]any)["amount_available"])

	rec = call(t, e, http.MethodGet, "/api/products?page=9223372036854775807", buyerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decode(t, rec)["data"])

	rec = call(t, e, http.MethodGet, "/api/users/me", buyerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, decode(t, rec)["deposit"])

	rec = call(t, e, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `vending_purchases_total{result="ok"} 1`)
}

func TestProductOwnership(t *testing.T) {
	e := newServer(t)
	owner := signup(t, e, "owner", "seller")
	other := signup(t, e, "other", "seller")

	rec := call(t, e, http.MethodPost, "/api/products", owner, map[string]any{
		"name": "chips", "cost": 20, "amount_available": 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	path := "/api/products/" + jsonNumber(decode(t, rec)["id"])

	assert.Equal(t, http.StatusForbidden, call(t, e, http.MethodPatch, path, other, map[string]any{"cost": 30}).Code)

	rec = call(t, e, http.MethodPatch, path, owner, map[string]any{"cost": 30})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 30.0, decode(t, rec)["cost"])

	assert.Equal(t, http.StatusBadRequest, call(t, e, http.MethodPut, path, owner, map[string]any{"cost": 30}).Code)
	assert.Equal(t, http.StatusBadRequest, call(t, e, http.MethodPatch, path, owner, map[string]any{"cost": 33}).Code)

	assert.Equal(t, http.StatusForbidden, call(t, e, http.MethodDelete, path, other, nil).Code)
	assert.Equal(t, http.StatusNoContent, call(t, e, http.MethodDelete, path, owner, nil).Code)
	assert.Equal(t, http.StatusNotFound, call(t, e, http.MethodGet, path, owner, nil).Code)
}

func jsonNumber(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestSessionLifecycle(t *testing.T) {
	e := newServer(t)
	token := signup(t, e, "ann", "buyer")

	rec := call(t, e, http.MethodPost, "/api/users/login", "", map[string]string{
		"username": "ann", "password": "s3cret-pass",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "There is already an active session using your account.", body["detail"])
	assert.Equal(t, true, body["active_sessions"])

	rec = call(t, e, http.MethodGet, "/api/users/sessions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, true, sessions[0]["current"])

	require.Equal(t, http.StatusOK, call(t, e, http.MethodPost, "/api/users/logout", token, nil).Code)

	rec = call(t, e, http.MethodGet, "/api/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, authmw.SessionTerminated, decode(t, rec)["detail"])

	rec = call(t, e, http.MethodPost, "/api/users/login", "", map[string]string{
		"username": "ann", "password": "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	tokens := decode(t, rec)

	rec = call(t, e, http.MethodPost, "/api/users/login/refresh", "", map[string]string{"refresh": tokens["refresh"].(string)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fresh := decode(t, rec)["access"].(string)
	assert.Equal(t, http.StatusOK, call(t, e, http.MethodGet, "/api/users/me", fresh, nil).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/users/login/refresh", bytes.NewBufferString(`{"refresh":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	bad := httptest.NewRecorder()
	e.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	require.Equal(t, http.StatusOK, call(t, e, http.MethodPost, "/api/users/logout/all", fresh, nil).Code)
	rec = call(t, e, http.MethodPost, "/api/users/login/refresh", "", map[string]string{"refresh": tokens["refresh"].(string)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCookieAuthNeedsCSRF(t *testing.T) {
	e := newServer(t)
	token := signup(t, e, "bob", "buyer")

	req := httptest.NewRequest(http.MethodPost, "/api/users/deposit", bytes.NewBufferString(`{"amount":5}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.AddCookie(&http.Cookie{Name: jwthelp.AccessCookie, Value: token})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/users/deposit", bytes.NewBufferString(`{"amount":5}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-CSRFToken", "tok")
	req.AddCookie(&http.Cookie{Name: jwthelp.AccessCookie, Value: token})
	req.AddCookie(&http.Cookie{Name: "csrftoken", Value: "tok"})
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
