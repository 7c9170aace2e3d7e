package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamqueue/internal/config"
	"streamqueue/internal/database"
	"streamqueue/internal/events"
	"streamqueue/internal/models"
	"streamqueue/internal/queue"
	"streamqueue/internal/repository"
)

const (
	testAdminKey   = "test-admin-key"
	testShopSecret = "test-webhook-secret"
)

type testServer struct {
	srv      *HTTPServer
	engine   *queue.Engine
	registry *queue.Registry
	shop     *models.Shop
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api_test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{}
	cfg.Server.Port = 0
	cfg.Auth.AdminKey = testAdminKey
	cfg.Auth.HeaderKey = "x-admin-key"
	cfg.Webhook.Secrets = map[string]string{"janssportshop": testShopSecret}
	cfg.Webhook.IncludeKeywords = []string{"tiktok live unboxing"}
	cfg.Webhook.ExcludeKeywords = []string{"ongeopende mysterybox"}

	bus := events.NewEventBus()
	engine := queue.NewEngine(db, bus, nil, &logger)
	registry := queue.NewRegistry(db, bus, &logger)
	cache := repository.NewMemoryStateCache(time.Minute)

	shop, err := registry.Create(context.Background(), "Jans Sport Shop", "Jans Sport Shop")
	require.NoError(t, err)

	srv := NewHTTPServer(cfg, db, engine, registry, cache, &logger)
	return &testServer{srv: srv, engine: engine, registry: registry, shop: shop}
}

func (ts *testServer) do(t *testing.T, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(v)
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) admin(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	return ts.do(t, method, target, body, map[string]string{"x-admin-key": testAdminKey})
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func orderBody(orderID int64, firstName, shipping string) []byte {
	return []byte(fmt.Sprintf(
		`{"id": %d, "order_number": 1001, "customer": {"first_name": %q}, "shipping_lines": [{"title": %q}]}`,
		orderID, firstName, shipping,
	))
}

func TestAdminAuthRequired(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/queue/advance", shopRequest{ShopID: ts.shop.ID}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/queue/advance", shopRequest{ShopID: ts.shop.ID},
		map[string]string{"x-admin-key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminKeyViaQueryParam(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/queue/state?shop_id="+ts.shop.ID+"&key="+testAdminKey, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueueCommandFlow(t *testing.T) {
	ts := setupServer(t)

	// Manual add.
	rec := ts.admin(t, http.MethodPost, "/api/v1/queue/add", map[string]string{
		"shop_id": ts.shop.ID, "first_name": "Piet",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.admin(t, http.MethodPost, "/api/v1/queue/add", map[string]string{
		"shop_id": ts.shop.ID, "first_name": "Anna",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Advance promotes Piet.
	rec = ts.admin(t, http.MethodPost, "/api/v1/queue/advance", shopRequest{ShopID: ts.shop.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.admin(t, http.MethodGet, "/api/v1/queue/state?shop_id="+ts.shop.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var state models.QueueState
	decodeJSON(t, rec, &state)
	require.NotNil(t, state.Active)
	assert.Equal(t, "Piet", state.Active.FirstName)
	assert.Equal(t, 1, state.TotalWaiting)

	// Undo reverts the advance.
	rec = ts.admin(t, http.MethodPost, "/api/v1/queue/undo", shopRequest{ShopID: ts.shop.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.admin(t, http.MethodGet, "/api/v1/queue/state?shop_id="+ts.shop.ID, nil)
	decodeJSON(t, rec, &state)
	assert.Nil(t, state.Active)
	assert.Equal(t, 2, state.TotalWaiting)
}

func TestQueueAddValidation(t *testing.T) {
	ts := setupServer(t)

	rec := ts.admin(t, http.MethodPost, "/api/v1/queue/add", map[string]string{"shop_id": ts.shop.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.admin(t, http.MethodPost, "/api/v1/queue/add", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStateUnknownShop(t *testing.T) {
	ts := setupServer(t)

	rec := ts.admin(t, http.MethodGet, "/api/v1/queue/state?shop_id=missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublicStateNoAuthAndReducedFields(t *testing.T) {
	ts := setupServer(t)
	ctx := context.Background()

	orderID := "order-1001"
	orderNumber := "1001"
	_, err := ts.engine.Enqueue(ctx, ts.shop.ID, "Piet", &orderID, &orderNumber)
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/v1/queue/public-state?shop=janssportshop", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp publicState
	decodeJSON(t, rec, &resp)
	assert.Nil(t, resp.Active)
	require.Len(t, resp.Waiting, 1)
	assert.Equal(t, "Piet", resp.Waiting[0].FirstName)
	assert.Equal(t, 1, resp.TotalWaiting)
	assert.Equal(t, "#ff0055", resp.Branding.PrimaryColor)

	// Internal identifiers never reach the overlay.
	assert.NotContains(t, rec.Body.String(), orderID)
	assert.NotContains(t, rec.Body.String(), "source_order_id")
}

func TestPublicStateUnknownShop(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/queue/public-state?shop=unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	ts := setupServer(t)
	body := orderBody(1001, "Piet", "TikTok Live Unboxing")

	rec := ts.do(t, http.MethodPost, "/api/v1/webhook/order-paid", body, map[string]string{
		"X-Shopify-Hmac-Sha256": signBody(body, "wrong-secret"),
		"X-Shopify-Shop-Domain": "janssportshop.example.com",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code, "no configured secret matches")

	rec = ts.do(t, http.MethodPost, "/api/v1/webhook/order-paid", body, map[string]string{
		"X-Shopify-Shop-Domain": "janssportshop.example.com",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookEnqueuesEligibleOrder(t *testing.T) {
	ts := setupServer(t)
	body := orderBody(1001, "Piet", "TikTok Live Unboxing - avond")
	headers := map[string]string{
		"X-Shopify-Hmac-Sha256": signBody(body, testShopSecret),
		"X-Shopify-Shop-Domain": "janssportshop.example.com",
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/webhook/order-paid", body, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp webhookResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "queued", resp.Status)
	assert.NotZero(t, resp.EntryID)

	// Redelivery answers with the same entry.
	rec = ts.do(t, http.MethodPost, "/api/v1/webhook/order-paid", body, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	var dup webhookResponse
	decodeJSON(t, rec, &dup)
	assert.Equal(t, "duplicate", dup.Status)
	assert.Equal(t, resp.EntryID, dup.EntryID)

	// First delivery adopted the domain.
	shop, err := ts.registry.ResolveByDomain(context.Background(), "janssportshop.example.com")
	require.NoError(t, err)
	assert.Equal(t, ts.shop.ID, shop.ID)
}

func TestWebhookIgnoresIneligibleOrder(t *testing.T) {
	ts := setupServer(t)
	body := orderBody(1001, "Piet", "Standard shipping")

	rec := ts.do(t, http.MethodPost, "/api/v1/webhook/order-paid", body, map[string]string{
		"X-Shopify-Hmac-Sha256": signBody(body, testShopSecret),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp webhookResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "ignored", resp.Status)
	assert.Equal(t, "not_eligible", resp.Reason)
}

func TestWebhookIgnoresWhenQueueClosed(t *testing.T) {
	ts := setupServer(t)
	require.NoError(t, ts.registry.SetQueueClosed(context.Background(), ts.shop.ID, true))

	body := orderBody(1001, "Piet", "TikTok Live Unboxing")
	rec := ts.do(t, http.MethodPost, "/api/v1/webhook/order-paid", body, map[string]string{
		"X-Shopify-Hmac-Sha256": signBody(body, testShopSecret),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp webhookResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "ignored", resp.Status)
	assert.Equal(t, "queue_closed", resp.Reason)
}

func TestShopsCreateAndConflict(t *testing.T) {
	ts := setupServer(t)

	rec := ts.admin(t, http.MethodPost, "/api/v1/shops", map[string]string{
		"name": "Other Store", "display_name": "Other Store",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var shop models.Shop
	decodeJSON(t, rec, &shop)
	assert.Equal(t, "otherstore", shop.Name)

	rec = ts.admin(t, http.MethodPost, "/api/v1/shops", map[string]string{"name": "OTHER STORE"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestShopsList(t *testing.T) {
	ts := setupServer(t)

	rec := ts.admin(t, http.MethodGet, "/api/v1/shops", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Shops []models.Shop `json:"shops"`
	}
	decodeJSON(t, rec, &resp)
	require.Len(t, resp.Shops, 1)
	assert.Equal(t, "janssportshop", resp.Shops[0].Name)
}

func TestShopDelete(t *testing.T) {
	ts := setupServer(t)

	rec := ts.admin(t, http.MethodPost, "/api/v1/shops/delete", shopRequest{ShopID: ts.shop.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.admin(t, http.MethodGet, "/api/v1/queue/state?shop_id="+ts.shop.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToggleQueue(t *testing.T) {
	ts := setupServer(t)

	rec := ts.admin(t, http.MethodPost, "/api/v1/shops/toggle-queue", map[string]any{
		"shop_id": ts.shop.ID, "closed": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	shop, err := ts.registry.Get(context.Background(), ts.shop.ID)
	require.NoError(t, err)
	assert.True(t, shop.QueueClosed)
}

func TestBrandingUpdate(t *testing.T) {
	ts := setupServer(t)

	rec := ts.admin(t, http.MethodPost, "/api/v1/shops/branding", map[string]any{
		"shop_id": ts.shop.ID, "primary_color": "#112233",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var shop models.Shop
	decodeJSON(t, rec, &shop)
	assert.Equal(t, "#112233", shop.Branding.PrimaryColor)

	rec = ts.admin(t, http.MethodPost, "/api/v1/shops/branding", map[string]any{"shop_id": ts.shop.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportReturnsWorkbook(t *testing.T) {
	ts := setupServer(t)

	_, err := ts.engine.Enqueue(context.Background(), ts.shop.ID, "Piet", nil, nil)
	require.NoError(t, err)

	rec := ts.admin(t, http.MethodGet, "/api/v1/queue/export?shop_id="+ts.shop.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "queue_janssportshop_")
	assert.NotZero(t, rec.Body.Len())
}

func TestHealthz(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := setupServer(t)

	rec := ts.admin(t, http.MethodGet, "/api/v1/queue/advance", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
