package transport

import (
	"context"
	"net/http"
	"time"

	"shopsync/internal/cart"
	"shopsync/internal/middleware"
	"shopsync/internal/repository"
	"shopsync/internal/service"
	"shopsync/internal/session"
	"shopsync/internal/syncer"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RegisterRequest represents the registration request payload
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserProfile represents user profile data
type UserProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	User        UserProfile `json:"user"`
}

// UserHandler handles account and session lifecycle. Login is where a
// session comes alive: the remote set is pulled into the local store and
// the realtime listener starts; logout cancels the listener and discards
// the cart, so no remote events leak into the next session.
type UserHandler struct {
	userService  service.UserService
	engine       *syncer.Engine
	sessions     *session.Registry
	carts        *cart.Manager
	syncRealtime bool
	logger       *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(
	userService service.UserService,
	engine *syncer.Engine,
	sessions *session.Registry,
	carts *cart.Manager,
	syncRealtime bool,
	logger *zap.Logger,
) *UserHandler {
	return &UserHandler{
		userService:  userService,
		engine:       engine,
		sessions:     sessions,
		carts:        carts,
		syncRealtime: syncRealtime,
		logger:       logger,
	}
}

// RegisterRoutes registers all user routes
func (h *UserHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/users", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/logout", h.Logout)
			r.Get("/profile", h.GetProfile)
		})
	})
}

// Register handles account creation
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Registration validation failed", zap.Error(err))
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.userService.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if err == repository.ErrUserAlreadyExists {
			middleware.RespondWithError(w, http.StatusConflict, "user with this email already exists")
			return
		}
		h.logger.Error("Registration failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to register user")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, UserProfile{
		ID:    user.ID.String(),
		Email: user.Email,
		Role:  user.Role,
	})
}

// Login authenticates the user and begins their session: pull the remote
// mirror into the local store, start realtime sync, create the cart.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, user, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if err == service.ErrInvalidCredentials {
			middleware.RespondWithError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		h.logger.Error("Login failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	sess := session.Session{UserID: user.ID, Role: user.Role, StartedAt: time.Now()}

	// The session outlives this request, so its sync work runs on a
	// background context carrying the session identity.
	sessCtx := session.NewContext(context.Background(), sess)

	if err := h.engine.PullFromRemote(sessCtx); err != nil {
		h.logger.Error("Startup pull failed", zap.Error(err))
	}

	teardown := []func(){func() { h.carts.Drop(user.ID) }}
	if h.syncRealtime {
		handle, err := h.engine.StartRealtimeSync(sessCtx)
		if err == nil && handle != nil {
			teardown = append(teardown, handle.Stop)
		}
	}

	h.sessions.Begin(sess, teardown...)

	middleware.RespondWithJSON(w, http.StatusOK, LoginResponse{
		AccessToken: token,
		User: UserProfile{
			ID:    user.ID.String(),
			Email: user.Email,
			Role:  user.Role,
		},
	})
}

// Logout ends the session, cancelling its realtime subscription and
// discarding its cart
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "no active session")
		return
	}

	h.sessions.End(userID)
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// GetProfile returns the authenticated user's profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "no active session")
		return
	}

	user, err := h.userService.GetUserByID(r.Context(), userID)
	if err != nil {
		if err == repository.ErrUserNotFound {
			middleware.RespondWithError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("Failed to load profile", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, UserProfile{
		ID:    user.ID.String(),
		Email: user.Email,
		Role:  user.Role,
	})
}
