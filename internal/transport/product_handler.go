package transport

import (
	"net/http"
	"time"

	"shopsync/internal/domain"
	"shopsync/internal/middleware"
	"shopsync/internal/store"
	"shopsync/internal/syncer"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateProductRequest represents the admin product creation payload.
// Rating is optional and defaults to the neutral value.
type CreateProductRequest struct {
	Name       string   `json:"name" validate:"required"`
	Quantity   int      `json:"quantity" validate:"gte=0"`
	Price      float64  `json:"price" validate:"gte=0"`
	ImageURL   string   `json:"image_url"`
	Rating     *float64 `json:"rating" validate:"omitempty,gte=0,lte=5"`
	IsFeatured bool     `json:"is_featured"`
}

// UpdateProductRequest represents the admin product edit payload
type UpdateProductRequest struct {
	Name       string   `json:"name" validate:"required"`
	Quantity   int      `json:"quantity" validate:"gte=0"`
	Price      float64  `json:"price" validate:"gte=0"`
	ImageURL   string   `json:"image_url"`
	Rating     *float64 `json:"rating" validate:"omitempty,gte=0,lte=5"`
	IsFeatured bool     `json:"is_featured"`
}

// ProductHandler handles catalog HTTP requests. All writes flow through the
// sync engine so the local store stays authoritative and the remote mirror
// catches up in the background.
type ProductHandler struct {
	engine *syncer.Engine
	logger *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(engine *syncer.Engine, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers catalog routes. Reads need a session; mutations
// additionally need the admin role.
func (h *ProductHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/", h.List)
		r.Get("/{id}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(adminMiddleware)
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}

// List returns the full local product set
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.engine.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list products", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, products)
}

// Get returns one product by ID
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	product, err := h.engine.GetByID(r.Context(), id)
	if err != nil {
		if err == store.ErrProductNotFound {
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("Failed to get product", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// Create inserts a new product locally and mirrors it remotely
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rating := domain.DefaultRating
	if req.Rating != nil {
		rating = *req.Rating
	}

	product := &domain.Product{
		ID:           uuid.New(),
		Name:         req.Name,
		Quantity:     req.Quantity,
		Price:        req.Price,
		ImageURL:     req.ImageURL,
		Rating:       rating,
		IsFeatured:   req.IsFeatured,
		LastModified: time.Now().UTC(),
	}

	if err := h.engine.Insert(r.Context(), product); err != nil {
		h.logger.Error("Failed to create product", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

// Update replaces a product's attributes
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	var req UpdateProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	existing, err := h.engine.GetByID(r.Context(), id)
	if err != nil {
		if err == store.ErrProductNotFound {
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("Failed to load product for update", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update product")
		return
	}

	existing.Name = req.Name
	existing.Quantity = req.Quantity
	existing.Price = req.Price
	existing.ImageURL = req.ImageURL
	if req.Rating != nil {
		existing.Rating = *req.Rating
	}
	existing.IsFeatured = req.IsFeatured

	if err := h.engine.Update(r.Context(), existing); err != nil {
		h.logger.Error("Failed to update product", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, existing)
}

// Delete removes a product locally and, best-effort, remotely
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	if err := h.engine.Delete(r.Context(), id); err != nil {
		h.logger.Error("Failed to delete product", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to delete product")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
