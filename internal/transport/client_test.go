package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brewline/cartsync/internal/domain"
)

const testItemID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

func newTestClient(t *testing.T, handler http.Handler, opts ...ClientOption) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(server.URL, NewStaticTokenSource("test-token"), opts...)
	if err != nil {
		t.Fatalf("unexpected client error: %v", err)
	}
	return client, server
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeErrorEnvelope(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": code, "message": message, "status": status})
}

func emptyCartPayload() map[string]any {
	return map[string]any{"id": "cart-1", "items": []any{}}
}

func TestValidationRejectsBeforeAnyNetworkCall(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, http.StatusOK, emptyCartPayload())
	}))
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
	}{
		{"quantity above maximum", func() error {
			_, err := client.AddItem(ctx, domain.AddItemRequest{ProductID: "p1", Quantity: 150})
			return err
		}},
		{"quantity below minimum", func() error {
			_, err := client.AddItem(ctx, domain.AddItemRequest{ProductID: "p1", Quantity: 0})
			return err
		}},
		{"missing product id", func() error {
			_, err := client.AddItem(ctx, domain.AddItemRequest{ProductID: "  ", Quantity: 1})
			return err
		}},
		{"notes too long", func() error {
			_, err := client.AddItem(ctx, domain.AddItemRequest{
				ProductID: "p1", Quantity: 1, Notes: strings.Repeat("x", domain.MaxNotesLength+1),
			})
			return err
		}},
		{"item id not a uuid", func() error {
			_, err := client.UpdateItem(ctx, "not-a-uuid", domain.UpdateItemRequest{Quantity: 1})
			return err
		}},
		{"remove with blank item id", func() error {
			_, err := client.RemoveItem(ctx, " ")
			return err
		}},
	}
	for _, tc := range cases {
		err := tc.call()
		te, ok := AsError(err)
		if !ok || te.Code != CodeValidation {
			t.Fatalf("%s: expected VALIDATION_ERROR, got %v", tc.name, err)
		}
		if IsRetryable(err) {
			t.Fatalf("%s: validation failures must not be retryable", tc.name)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("validation failures must never reach the server, got %d calls", calls.Load())
	}
}

func TestValidationRejectsOversizedCustomizations(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}))

	many := make(map[string]domain.CustomizationValue)
	for i := 0; i < domain.MaxCustomizations+1; i++ {
		many[strings.Repeat("k", i+1)] = domain.BoolValue(true)
	}
	_, err := client.AddItem(context.Background(), domain.AddItemRequest{ProductID: "p1", Quantity: 1, Customizations: many})
	if te, ok := AsError(err); !ok || te.Code != CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR for too many customizations, got %v", err)
	}

	long := map[string]domain.CustomizationValue{
		"note": domain.StringValue(strings.Repeat("x", domain.MaxCustomizationValueLength+1)),
	}
	_, err = client.AddItem(context.Background(), domain.AddItemRequest{ProductID: "p1", Quantity: 1, Customizations: long})
	if te, ok := AsError(err); !ok || te.Code != CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR for oversized value, got %v", err)
	}
}

func TestFetchCartDecodesEnvelope(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/cart" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("expected bearer token, got %q", got)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Errorf("expected a request id header")
		}
		writeEnvelope(w, http.StatusOK, map[string]any{
			"id": "cart-1",
			"items": []map[string]any{{
				"id": testItemID, "product_id": "p-latte", "quantity": 2,
				"unit_price": 520, "total_price": 580,
				"customizations": map[string]any{
					"oat_milk": true,
					"syrup":    "vanilla",
					"bogus":    42,
				},
			}},
			"partner": map[string]any{"id": "partner-1", "name": "Brew Lab", "is_open": true},
		})
	}))

	cart, err := client.FetchCart(context.Background())
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if cart.ID != "cart-1" || len(cart.Items) != 1 {
		t.Fatalf("unexpected cart: %+v", cart)
	}
	item := cart.Items[0]
	if item.UnitPrice != 520 || item.TotalPrice != 580 || item.Quantity != 2 {
		t.Fatalf("unexpected item: %+v", item)
	}
	if !item.Customizations["oat_milk"].Bool || item.Customizations["syrup"].Str != "vanilla" {
		t.Fatalf("unexpected customizations: %+v", item.Customizations)
	}
	if _, ok := item.Customizations["bogus"]; ok {
		t.Fatalf("non string/bool customization values must be dropped")
	}
	if cart.Partner == nil || !cart.Partner.IsOpen {
		t.Fatalf("unexpected partner: %+v", cart.Partner)
	}
}

func TestAddItemPostsWirePayload(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/cart/items" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			ProductID      string         `json:"product_id"`
			Quantity       int            `json:"quantity"`
			Notes          string         `json:"notes"`
			Customizations map[string]any `json:"customizations"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.ProductID != "p-latte" || body.Quantity != 2 || body.Notes != "extra hot" {
			t.Errorf("unexpected body: %+v", body)
		}
		if body.Customizations["oat_milk"] != true {
			t.Errorf("expected bool customization on the wire, got %+v", body.Customizations)
		}
		writeEnvelope(w, http.StatusCreated, emptyCartPayload())
	}))

	_, err := client.AddItem(context.Background(), domain.AddItemRequest{
		ProductID: "p-latte",
		Quantity:  2,
		Notes:     "extra hot",
		Customizations: map[string]domain.CustomizationValue{
			"oat_milk": domain.BoolValue(true),
		},
	})
	if err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
}

func TestUpdateAndRemoveTargetTheItemPath(t *testing.T) {
	var paths []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		writeEnvelope(w, http.StatusOK, emptyCartPayload())
	}))
	ctx := context.Background()

	if _, err := client.UpdateItem(ctx, testItemID, domain.UpdateItemRequest{Quantity: 3}); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if _, err := client.RemoveItem(ctx, testItemID); err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}
	if _, err := client.ClearCart(ctx); err != nil {
		t.Fatalf("unexpected clear error: %v", err)
	}

	want := []string{
		"PUT /cart/items/" + testItemID,
		"DELETE /cart/items/" + testItemID,
		"DELETE /cart",
	}
	if len(paths) != len(want) {
		t.Fatalf("expected %v, got %v", want, paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, paths)
		}
	}
}

func TestErrorMappingByStatus(t *testing.T) {
	cases := []struct {
		status    int
		wantCode  Code
		retryable bool
	}{
		{http.StatusRequestTimeout, CodeTimeout, true},
		{http.StatusTooManyRequests, CodeServiceUnavailable, true},
		{http.StatusInternalServerError, CodeServer, true},
		{http.StatusBadGateway, CodeServer, true},
		{http.StatusServiceUnavailable, CodeServiceUnavailable, true},
		{http.StatusGatewayTimeout, CodeServer, true},
		{http.StatusNotFound, CodeNotFound, false},
		{http.StatusConflict, CodeClient, false},
		{http.StatusBadRequest, CodeClient, false},
	}
	for _, tc := range cases {
		status := tc.status
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeErrorEnvelope(w, status, "some_code", "server says no")
		}))
		_, err := client.FetchCart(context.Background())
		te, ok := AsError(err)
		if !ok {
			t.Fatalf("status %d: expected typed error, got %v", status, err)
		}
		if te.Code != tc.wantCode || te.StatusCode != status {
			t.Fatalf("status %d: expected %s, got %s (%d)", status, tc.wantCode, te.Code, te.StatusCode)
		}
		if te.Message != "server says no" {
			t.Fatalf("status %d: expected the server's own message, got %q", status, te.Message)
		}
		if got := IsRetryable(err); got != tc.retryable {
			t.Fatalf("status %d: expected retryable=%v", status, tc.retryable)
		}
	}
}

func TestUnparseableErrorBodyFallsBackToStatusText(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html>boom</html>"))
	}))
	_, err := client.FetchCart(context.Background())
	te, ok := AsError(err)
	if !ok || te.Code != CodeServer {
		t.Fatalf("expected SERVER_ERROR, got %v", err)
	}
	if te.Message != http.StatusText(http.StatusInternalServerError) {
		t.Fatalf("expected status text fallback, got %q", te.Message)
	}
}

func TestAuthFailuresInvokeRedirect(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		var redirected atomic.Int32
		var seenStatus atomic.Int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeErrorEnvelope(w, status, "unauthenticated", "session expired")
		}), WithAuthRedirect(func(ctx context.Context, s int) {
			redirected.Add(1)
			seenStatus.Store(int32(s))
		}))

		_, err := client.FetchCart(context.Background())
		te, ok := AsError(err)
		if !ok {
			t.Fatalf("status %d: expected typed error, got %v", status, err)
		}
		want := CodeUnauthorized
		if status == http.StatusForbidden {
			want = CodeForbidden
		}
		if te.Code != want {
			t.Fatalf("status %d: expected %s, got %s", status, want, te.Code)
		}
		if redirected.Load() != 1 || int(seenStatus.Load()) != status {
			t.Fatalf("status %d: expected one redirect callback with the status", status)
		}
		if IsRetryable(err) {
			t.Fatalf("status %d: auth failures must not be retryable", status)
		}
	}
}

func TestSlowServerMapsToTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), WithRequestTimeout(50*time.Millisecond))

	_, err := client.FetchCart(context.Background())
	te, ok := AsError(err)
	if !ok || te.Code != CodeTimeout {
		t.Fatalf("expected TIMEOUT_ERROR, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("timeouts must be retryable")
	}
}

func TestConnectionFailureMapsToNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := NewClient(url, NewStaticTokenSource("test-token"))
	if err != nil {
		t.Fatalf("unexpected client error: %v", err)
	}
	_, err = client.FetchCart(context.Background())
	te, ok := AsError(err)
	if !ok || te.Code != CodeNetwork {
		t.Fatalf("expected NETWORK_ERROR, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("connection failures must be retryable")
	}
}

func TestFetchTotal(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cart/total" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeEnvelope(w, http.StatusOK, map[string]any{"subtotal": 4950, "total": 4950, "item_count": 5})
	}))

	total, err := client.FetchTotal(context.Background())
	if err != nil {
		t.Fatalf("unexpected total error: %v", err)
	}
	if total.Subtotal != 4950 || total.Total != 4950 || total.ItemCount != 5 {
		t.Fatalf("unexpected total: %+v", total)
	}
}

func TestNewClientValidatesDeps(t *testing.T) {
	if _, err := NewClient("", NewStaticTokenSource("t")); err == nil {
		t.Fatalf("expected error for empty base URL")
	}
	if _, err := NewClient("http://localhost", nil); err == nil {
		t.Fatalf("expected error for missing token source")
	}
}
