// Package storefronttest provides an in-memory storefront API implementing
// the cart endpoints the engine consumes. It exists for tests and offline
// demos: one cart per bearer token, a small product catalog, and fault
// injection for exercising failure paths.
package storefronttest

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brewline/cartsync/internal/platform/httpx"
	"github.com/brewline/cartsync/internal/platform/requestctx"
)

// Product describes a catalog entry served by the fake storefront.
type Product struct {
	ID         string
	PartnerID  string
	UnitPrice  int64
	Surcharges map[string]int64
}

// Partner describes a vendor served by the fake storefront.
type Partner struct {
	ID      string
	Name    string
	Address string
	LogoURL string
	IsOpen  bool
}

type cartItem struct {
	ID             string         `json:"id"`
	ProductID      string         `json:"product_id"`
	Quantity       int            `json:"quantity"`
	UnitPrice      int64          `json:"unit_price"`
	TotalPrice     int64          `json:"total_price"`
	Notes          string         `json:"notes"`
	Customizations map[string]any `json:"customizations,omitempty"`
}

type cart struct {
	ID        string     `json:"id"`
	Items     []cartItem `json:"items"`
	Partner   *partner   `json:"partner"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type partner struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	LogoURL string `json:"logo_url"`
	IsOpen  bool   `json:"is_open"`
}

// Server is the in-memory storefront. All methods are safe for concurrent
// use.
type Server struct {
	mu       sync.Mutex
	carts    map[string]*cart
	products map[string]Product
	partners map[string]Partner
	failNext []int
	now      func() time.Time
	logger   *zap.Logger
}

// New constructs a Server preloaded with a small espresso-bar catalog.
func New() *Server {
	s := &Server{
		carts:    make(map[string]*cart),
		products: make(map[string]Product),
		partners: make(map[string]Partner),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   zap.NewNop(),
	}
	s.SetPartner(Partner{
		ID:      "partner-brew-lab",
		Name:    "Brew Lab",
		Address: "12 Roastery Lane",
		LogoURL: "https://cdn.example.com/brew-lab.png",
		IsOpen:  true,
	})
	s.SetProduct(Product{ID: "p-espresso", PartnerID: "partner-brew-lab", UnitPrice: 350})
	s.SetProduct(Product{ID: "p-latte", PartnerID: "partner-brew-lab", UnitPrice: 520,
		Surcharges: map[string]int64{"oat_milk": 60, "extra_shot": 80}})
	s.SetProduct(Product{ID: "p-cold-brew", PartnerID: "partner-brew-lab", UnitPrice: 480})
	return s
}

// SetProduct registers or replaces a catalog entry.
func (s *Server) SetProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// SetPartner registers or replaces a vendor.
func (s *Server) SetPartner(p Partner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partners[p.ID] = p
}

// WithClock overrides the server clock (useful for deterministic timestamps).
func (s *Server) WithClock(clock func() time.Time) *Server {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithLogger attaches a logger for request-scoped logging.
func (s *Server) WithLogger(logger *zap.Logger) *Server {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// FailNext queues a failure: the next request is rejected with the given
// status before touching any cart state. Multiple calls queue in order.
func (s *Server) FailNext(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = append(s.failNext, status)
}

// Handler returns the chi router serving the storefront endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestScope)
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", s.getCart)
		r.Delete("/", s.clearCart)
		r.Get("/total", s.getTotal)
		r.Post("/items", s.addItem)
		r.Put("/items/{itemID}", s.updateItem)
		r.Delete("/items/{itemID}", s.removeItem)
	})
	return r
}

// requestScope stamps the caller's X-Request-Id into the context so handler
// logs correlate with the client's transport logs.
func (s *Server) requestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := s.logger
		if id := r.Header.Get("X-Request-Id"); id != "" {
			ctx = requestctx.WithRequestID(ctx, id)
			logger = logger.With(zap.String("request_id", id))
		}
		ctx = requestctx.WithLogger(ctx, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if header == "" || token == "" || !strings.HasPrefix(header, "Bearer ") {
		httpx.WriteError(w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return token, true
}

// popFailure consumes a queued fault, writing its envelope when present.
func (s *Server) popFailure(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	if len(s.failNext) == 0 {
		s.mu.Unlock()
		return false
	}
	status := s.failNext[0]
	s.failNext = s.failNext[1:]
	s.mu.Unlock()
	requestctx.Logger(r.Context()).Info("serving injected fault", zap.Int("status", status))
	httpx.WriteError(w, httpx.NewError("injected_failure", "injected failure", status))
	return true
}

func (s *Server) cartFor(token string) *cart {
	c, ok := s.carts[token]
	if !ok {
		now := s.now()
		c = &cart{
			ID:        uuid.NewString(),
			Items:     []cartItem{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.carts[token] = c
	}
	return c
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	token, ok := s.authorize(w, r)
	if !ok {
		return
	}
	if s.popFailure(w, r) {
		return
	}
	s.mu.Lock()
	c := s.cartFor(token)
	payload := *c
	s.mu.Unlock()
	httpx.WriteData(w, http.StatusOK, payload)
}

type addItemRequest struct {
	ProductID      string         `json:"product_id"`
	Quantity       int            `json:"quantity"`
	Notes          string         `json:"notes"`
	Customizations map[string]any `json:"customizations"`
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	token, ok := s.authorize(w, r)
	if !ok {
		return
	}
	if s.popFailure(w, r) {
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}
	if req.Quantity <= 0 {
		httpx.WriteError(w, httpx.NewError("invalid_request", "quantity must be positive", http.StatusBadRequest))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[req.ProductID]
	if !ok {
		httpx.WriteError(w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
		return
	}

	c := s.cartFor(token)
	if c.Partner != nil && c.Partner.ID != product.PartnerID {
		httpx.WriteError(w, httpx.NewError("vendor_mismatch", "cart already holds items from another cafe", http.StatusConflict))
		return
	}
	if c.Partner == nil {
		vendor := s.partners[product.PartnerID]
		c.Partner = &partner{
			ID:      vendor.ID,
			Name:    vendor.Name,
			Address: vendor.Address,
			LogoURL: vendor.LogoURL,
			IsOpen:  vendor.IsOpen,
		}
	}

	item := cartItem{
		ID:             uuid.NewString(),
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		UnitPrice:      product.UnitPrice,
		TotalPrice:     perUnitPrice(product, req.Customizations),
		Notes:          req.Notes,
		Customizations: req.Customizations,
	}
	c.Items = append(c.Items, item)
	c.UpdatedAt = s.now()
	httpx.WriteData(w, http.StatusCreated, *c)
}

type updateItemRequest struct {
	Quantity       int            `json:"quantity"`
	Notes          string         `json:"notes"`
	Customizations map[string]any `json:"customizations"`
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	token, ok := s.authorize(w, r)
	if !ok {
		return
	}
	if s.popFailure(w, r) {
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return
	}

	itemID := chi.URLParam(r, "itemID")

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartFor(token)
	for i := range c.Items {
		if c.Items[i].ID != itemID {
			continue
		}
		if req.Quantity > 0 {
			c.Items[i].Quantity = req.Quantity
		}
		c.Items[i].Notes = req.Notes
		c.Items[i].Customizations = req.Customizations
		if product, ok := s.products[c.Items[i].ProductID]; ok {
			c.Items[i].TotalPrice = perUnitPrice(product, req.Customizations)
		}
		c.UpdatedAt = s.now()
		httpx.WriteData(w, http.StatusOK, *c)
		return
	}
	httpx.WriteError(w, httpx.NewError("item_not_found", "cart item not found", http.StatusNotFound))
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	token, ok := s.authorize(w, r)
	if !ok {
		return
	}
	if s.popFailure(w, r) {
		return
	}

	itemID := chi.URLParam(r, "itemID")

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartFor(token)
	for i := range c.Items {
		if c.Items[i].ID != itemID {
			continue
		}
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		if len(c.Items) == 0 {
			c.Partner = nil
		}
		c.UpdatedAt = s.now()
		httpx.WriteData(w, http.StatusOK, *c)
		return
	}
	httpx.WriteError(w, httpx.NewError("item_not_found", "cart item not found", http.StatusNotFound))
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	token, ok := s.authorize(w, r)
	if !ok {
		return
	}
	if s.popFailure(w, r) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartFor(token)
	c.Items = []cartItem{}
	c.Partner = nil
	c.UpdatedAt = s.now()
	httpx.WriteData(w, http.StatusOK, *c)
}

type totalPayload struct {
	Subtotal  int64 `json:"subtotal"`
	Total     int64 `json:"total"`
	ItemCount int   `json:"item_count"`
}

func (s *Server) getTotal(w http.ResponseWriter, r *http.Request) {
	token, ok := s.authorize(w, r)
	if !ok {
		return
	}
	if s.popFailure(w, r) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartFor(token)
	total := totalPayload{}
	for _, item := range c.Items {
		total.Subtotal += item.TotalPrice * int64(item.Quantity)
		total.ItemCount += item.Quantity
	}
	total.Total = total.Subtotal
	httpx.WriteData(w, http.StatusOK, total)
}

// perUnitPrice applies the product's surcharge table to the selected
// options. Prices stay per unit; quantity multiplication is the client's
// aggregation concern.
func perUnitPrice(product Product, customizations map[string]any) int64 {
	price := product.UnitPrice
	for key, value := range customizations {
		surcharge, ok := product.Surcharges[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case bool:
			if v {
				price += surcharge
			}
		case string:
			if strings.TrimSpace(v) != "" {
				price += surcharge
			}
		}
	}
	return price
}
