package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/brewline/cartsync/internal/domain"
)

// Client translates cart operations into calls against the storefront API.
// It owns request validation, the fixed request timeout, and the mapping of
// every failure into a typed *Error.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	onAuthRedirect AuthRedirectFunc
	logger         *zap.Logger
	tracer         trace.Tracer
	requests       metric.Int64Counter
	newRequestID   func() string
}

const (
	defaultRequestTimeout = 10 * time.Second
	maxResponseBody       = 1 << 20

	headerRequestID = "X-Request-Id"
)

var (
	errBaseURLRequired = errors.New("transport: base URL is required")
	errTokensRequired  = errors.New("transport: token source is required")
)

// ClientOption customises client behaviour.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client (useful for tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAuthRedirect registers the 401/403 side channel.
func WithAuthRedirect(fn AuthRedirectFunc) ClientOption {
	return func(c *Client) {
		c.onAuthRedirect = fn
	}
}

// WithRequestIDGenerator overrides request ID generation (useful for tests).
func WithRequestIDGenerator(fn func() string) ClientOption {
	return func(c *Client) {
		if fn != nil {
			c.newRequestID = fn
		}
	}
}

// WithRequestTimeout overrides the fixed request timeout.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient constructs a transport adapter for the given storefront base URL.
func NewClient(baseURL string, tokens TokenSource, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	if tokens == nil {
		return nil, errTokensRequired
	}

	client := &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: defaultRequestTimeout},
		tokens:       tokens,
		logger:       zap.NewNop(),
		tracer:       otel.Tracer("cartsync/transport"),
		newRequestID: func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	meter := otel.Meter("cartsync/transport")
	requests, err := meter.Int64Counter("cart.requests",
		metric.WithDescription("Cart API requests issued, by operation and outcome"))
	if err != nil {
		return nil, fmt.Errorf("transport: init request counter: %w", err)
	}
	client.requests = requests

	return client, nil
}

// FetchCart loads (or lazily creates) the active cart.
func (c *Client) FetchCart(ctx context.Context) (domain.Cart, error) {
	var payload cartPayload
	if err := c.do(ctx, "fetch_cart", http.MethodGet, "/cart", nil, &payload); err != nil {
		return domain.Cart{}, err
	}
	return payload.toDomain(), nil
}

// AddItem appends a product to the cart and returns the refreshed cart.
func (c *Client) AddItem(ctx context.Context, req domain.AddItemRequest) (domain.Cart, error) {
	if err := validateAddItem(req); err != nil {
		return domain.Cart{}, err
	}
	body := addItemBody{
		ProductID:      strings.TrimSpace(req.ProductID),
		Quantity:       req.Quantity,
		Notes:          req.Notes,
		Customizations: encodeCustomizations(req.Customizations),
	}
	var payload cartPayload
	if err := c.do(ctx, "add_item", http.MethodPost, "/cart/items", body, &payload); err != nil {
		return domain.Cart{}, err
	}
	return payload.toDomain(), nil
}

// UpdateItem edits an existing cart line and returns the refreshed cart.
func (c *Client) UpdateItem(ctx context.Context, itemID string, req domain.UpdateItemRequest) (domain.Cart, error) {
	if err := validateUpdateItem(itemID, req); err != nil {
		return domain.Cart{}, err
	}
	body := updateItemBody{
		Quantity:       req.Quantity,
		Notes:          req.Notes,
		Customizations: encodeCustomizations(req.Customizations),
	}
	var payload cartPayload
	path := "/cart/items/" + url.PathEscape(strings.TrimSpace(itemID))
	if err := c.do(ctx, "update_item", http.MethodPut, path, body, &payload); err != nil {
		return domain.Cart{}, err
	}
	return payload.toDomain(), nil
}

// RemoveItem deletes a cart line and returns the refreshed cart.
func (c *Client) RemoveItem(ctx context.Context, itemID string) (domain.Cart, error) {
	if err := validateItemID(itemID); err != nil {
		return domain.Cart{}, err
	}
	var payload cartPayload
	path := "/cart/items/" + url.PathEscape(strings.TrimSpace(itemID))
	if err := c.do(ctx, "remove_item", http.MethodDelete, path, nil, &payload); err != nil {
		return domain.Cart{}, err
	}
	return payload.toDomain(), nil
}

// ClearCart empties the cart server-side and returns the emptied cart.
func (c *Client) ClearCart(ctx context.Context) (domain.Cart, error) {
	var payload cartPayload
	if err := c.do(ctx, "clear_cart", http.MethodDelete, "/cart", nil, &payload); err != nil {
		return domain.Cart{}, err
	}
	return payload.toDomain(), nil
}

// FetchTotal loads the server-computed cart aggregate.
func (c *Client) FetchTotal(ctx context.Context) (domain.CartTotal, error) {
	var payload totalPayload
	if err := c.do(ctx, "fetch_total", http.MethodGet, "/cart/total", nil, &payload); err != nil {
		return domain.CartTotal{}, err
	}
	return domain.CartTotal{
		Subtotal:  payload.Subtotal,
		Total:     payload.Total,
		ItemCount: payload.ItemCount,
	}, nil
}

// envelope is the storefront response wrapper: {success, data} on 2xx,
// {error, message, status} otherwise.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"error"`
	Message string          `json:"message"`
	Status  int             `json:"status"`
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, "cart."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	))
	defer span.End()

	err := c.roundTrip(ctx, method, path, body, out)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if te, ok := AsError(err); ok {
			outcome = string(te.Code)
		}
		span.SetStatus(codes.Error, outcome)
	}
	c.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return NewError(CodeUnknown, fmt.Sprintf("encode request: %v", err), 0)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return NewError(CodeUnknown, fmt.Sprintf("build request: %v", err), 0)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return NewError(CodeUnauthorized, fmt.Sprintf("resolve token: %v", err), 0)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := c.newRequestID()
	req.Header.Set(headerRequestID, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		mapped := mapTransportFailure(err)
		c.logger.Warn("cart request failed before response",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.String("code", string(mapped.Code)),
			zap.Error(err))
		return mapped
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return NewError(CodeNetwork, fmt.Sprintf("read response: %v", err), resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		mapped := c.mapErrorResponse(resp.StatusCode, raw)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			if c.onAuthRedirect != nil {
				c.onAuthRedirect(ctx, resp.StatusCode)
			}
		}
		c.logger.Warn("cart request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Int("status", resp.StatusCode),
			zap.String("code", string(mapped.Code)))
		return mapped
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return NewError(CodeUnknown, "response is not a valid envelope", resp.StatusCode)
	}
	if !env.Success {
		return NewError(CodeUnknown, "response envelope reported failure", resp.StatusCode)
	}
	if out != nil {
		if len(env.Data) == 0 {
			return NewError(CodeUnknown, "response envelope is missing data", resp.StatusCode)
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return NewError(CodeUnknown, fmt.Sprintf("decode response data: %v", err), resp.StatusCode)
		}
	}
	return nil
}

// mapTransportFailure types a failure that produced no HTTP response.
func mapTransportFailure(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CodeTimeout, "request deadline exceeded", 0)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return NewError(CodeTimeout, "request timed out", 0)
	}
	return NewError(CodeNetwork, err.Error(), 0)
}

// mapErrorResponse types a non-2xx response, preferring the server's own
// message when the error envelope parses.
func (c *Client) mapErrorResponse(status int, raw []byte) *Error {
	code := codeForStatus(status)
	message := http.StatusText(status)

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && strings.TrimSpace(env.Message) != "" {
		message = env.Message
	} else if err != nil && code == CodeUnknown {
		message = "unrecognised error response"
	}
	return NewError(code, message, status)
}

type addItemBody struct {
	ProductID      string         `json:"product_id"`
	Quantity       int            `json:"quantity"`
	Notes          string         `json:"notes,omitempty"`
	Customizations map[string]any `json:"customizations,omitempty"`
}

type updateItemBody struct {
	Quantity       int            `json:"quantity"`
	Notes          string         `json:"notes,omitempty"`
	Customizations map[string]any `json:"customizations,omitempty"`
}

type partnerPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	LogoURL string `json:"logo_url"`
	IsOpen  bool   `json:"is_open"`
}

type itemPayload struct {
	ID             string         `json:"id"`
	ProductID      string         `json:"product_id"`
	Quantity       int            `json:"quantity"`
	UnitPrice      int64          `json:"unit_price"`
	TotalPrice     int64          `json:"total_price"`
	Notes          string         `json:"notes"`
	Customizations map[string]any `json:"customizations"`
}

type cartPayload struct {
	ID        string          `json:"id"`
	Items     []itemPayload   `json:"items"`
	Partner   *partnerPayload `json:"partner"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type totalPayload struct {
	Subtotal  int64 `json:"subtotal"`
	Total     int64 `json:"total"`
	ItemCount int   `json:"item_count"`
}

func (p cartPayload) toDomain() domain.Cart {
	cart := domain.Cart{
		ID:        p.ID,
		Items:     make([]domain.CartItem, 0, len(p.Items)),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	for _, item := range p.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			TotalPrice:     item.TotalPrice,
			Notes:          item.Notes,
			Customizations: decodeCustomizations(item.Customizations),
		})
	}
	if p.Partner != nil {
		cart.Partner = &domain.Partner{
			ID:      p.Partner.ID,
			Name:    p.Partner.Name,
			Address: p.Partner.Address,
			LogoURL: p.Partner.LogoURL,
			IsOpen:  p.Partner.IsOpen,
		}
	}
	return cart
}

func encodeCustomizations(values map[string]domain.CustomizationValue) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for key, value := range values {
		if value.IsBool {
			out[key] = value.Bool
		} else {
			out[key] = value.Str
		}
	}
	return out
}

// decodeCustomizations keeps string and bool values and drops anything else;
// the wire contract only permits those two shapes.
func decodeCustomizations(values map[string]any) map[string]domain.CustomizationValue {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]domain.CustomizationValue, len(values))
	for key, raw := range values {
		switch v := raw.(type) {
		case string:
			out[key] = domain.StringValue(v)
		case bool:
			out[key] = domain.BoolValue(v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
