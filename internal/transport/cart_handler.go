package transport

import (
	"net/http"

	"shopsync/internal/cart"
	"shopsync/internal/domain"
	"shopsync/internal/middleware"
	"shopsync/internal/store"
	"shopsync/internal/syncer"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddToCartRequest represents an add-to-cart payload
type AddToCartRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
}

// ChangeQuantityRequest adjusts a cart line by a signed delta
type ChangeQuantityRequest struct {
	Delta int `json:"delta" validate:"required"`
}

// ConfirmOrderRequest represents the simulated checkout payload. The
// payment method is an open set of tags; the address only needs to be
// non-empty.
type ConfirmOrderRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required"`
	Address       string `json:"address" validate:"required"`
}

// CartResponse is the cart view returned to the client
type CartResponse struct {
	Lines []domain.CartLine `json:"lines"`
	Total float64           `json:"total"`
}

// CartHandler handles the session-scoped cart. Carts live in memory only;
// persisted stock is touched exclusively at order confirmation, through
// the sync engine.
type CartHandler struct {
	carts  *cart.Manager
	engine *syncer.Engine
	logger *zap.Logger
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(carts *cart.Manager, engine *syncer.Engine, logger *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, engine: engine, logger: logger}
}

// RegisterRoutes registers cart routes, all requiring a session
func (h *CartHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/", h.Get)
		r.Post("/items", h.Add)
		r.Patch("/items/{id}", h.ChangeQuantity)
		r.Delete("/items/{id}", h.Remove)
		r.Post("/confirm", h.Confirm)
	})
}

func (h *CartHandler) userCart(r *http.Request) (*cart.Cart, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		return nil, false
	}
	return h.carts.Get(userID), true
}

// Get returns the current cart lines and total
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.userCart(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "no active session")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, CartResponse{Lines: c.Lines(), Total: c.Total()})
}

// Add puts one unit of the product into the cart, snapshotting its current
// name and price
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	c, ok := h.userCart(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "no active session")
		return
	}

	var req AddToCartRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	product, err := h.engine.GetByID(r.Context(), productID)
	if err != nil {
		if err == store.ErrProductNotFound {
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("Failed to load product for cart", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to add to cart")
		return
	}

	c.Add(product)
	middleware.RespondWithJSON(w, http.StatusOK, CartResponse{Lines: c.Lines(), Total: c.Total()})
}

// ChangeQuantity adjusts a line by a signed delta; a result at or below
// zero removes the line
func (h *CartHandler) ChangeQuantity(w http.ResponseWriter, r *http.Request) {
	c, ok := h.userCart(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "no active session")
		return
	}

	productID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	var req ChangeQuantityRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c.ChangeQuantity(productID, req.Delta)
	middleware.RespondWithJSON(w, http.StatusOK, CartResponse{Lines: c.Lines(), Total: c.Total()})
}

// Remove drops a line entirely
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	c, ok := h.userCart(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "no active session")
		return
	}

	productID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	c.Remove(productID)
	middleware.RespondWithJSON(w, http.StatusOK, CartResponse{Lines: c.Lines(), Total: c.Total()})
}

// Confirm decrements persisted stock per line (clamped at zero), clears
// the cart and returns the receipt. Checkout is simulated: nothing is
// charged.
func (h *CartHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	c, ok := h.userCart(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "no active session")
		return
	}

	var req ConfirmOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	receipt := c.ConfirmOrder(r.Context(), req.PaymentMethod, req.Address)
	middleware.RespondWithJSON(w, http.StatusOK, receipt)
}
