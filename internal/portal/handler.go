package portal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-portal/meridian-portal/internal/guard"
	"github.com/meridian-portal/meridian-portal/internal/identity"
	"github.com/meridian-portal/meridian-portal/internal/session"
	"github.com/meridian-portal/meridian-portal/internal/shared"
)

// Handler exposes the core over JSON endpoints for the portal views.
type Handler struct {
	logger    *slog.Logger
	core      *Core
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, core *Core) *Handler {
	return &Handler{
		logger:    logger,
		core:      core,
		validator: validator.New(),
	}
}

// MountRoutes registers the auth endpoints on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Post("/refresh", h.handleRefresh)
	r.Get("/session", h.handleSession)
}

type sessionResponse struct {
	Authenticated bool           `json:"authenticated"`
	State         string         `json:"state"`
	User          *identity.User `json:"user,omitempty"`
	ExpiresInMS   int64          `json:"expires_in_ms"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds identity.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(creds); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				fields[fieldErr.Field()] = fieldErr.Tag()
			}
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": fields})
		return
	}

	result, err := h.core.Login(r.Context(), creds)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid email or password")
		case errors.Is(err, shared.ErrNetwork):
			writeError(w, http.StatusBadGateway, "identity service unavailable")
		default:
			if h.logger != nil {
				h.logger.Error("login", slog.Any("error", err))
			}
			writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		State:         string(h.core.SessionState()),
		User:          &result.User,
		ExpiresInMS:   time.Until(result.ExpiresAt).Milliseconds(),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.core.Logout(r.Context(), session.ReasonUserLogout)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.core.Refresh(r.Context()); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotAuthenticated):
			writeError(w, http.StatusUnauthorized, "no active session")
		default:
			writeError(w, http.StatusUnauthorized, "session could not be renewed")
		}
		return
	}
	h.writeSession(w)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	h.writeSession(w)
}

func (h *Handler) writeSession(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: h.core.IsAuthenticated(),
		State:         string(h.core.SessionState()),
		User:          h.core.CurrentUser(),
		ExpiresInMS:   h.core.SessionTimeRemaining().Milliseconds(),
	})
}

// Activity publishes an activity event for every request passing through,
// so any authenticated interaction resets the idle clock.
func (h *Handler) Activity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.core.IsAuthenticated() {
			h.core.Touch()
		}
		next.ServeHTTP(w, r)
	})
}

// Guard enforces a route requirement. Denials answer with the decision's
// redirect target so the view router can act on it.
func (h *Handler) Guard(req guard.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			check := req
			if check.Path == "" {
				check.Path = r.URL.Path
			}
			decision := h.core.HasAccess(check)
			if !decision.Allowed {
				status := http.StatusForbidden
				if decision.Reason == guard.ReasonNotAuthenticated {
					status = http.StatusUnauthorized
				}
				writeJSON(w, status, map[string]string{
					"reason":   string(decision.Reason),
					"redirect": decision.Redirect,
				})
				return
			}
			ctx := r.Context()
			if user := h.core.CurrentUser(); user != nil {
				ctx = shared.ContextWithPrincipal(ctx, shared.Principal{UserID: user.ID, RoleID: user.RoleID})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ModuleInfo returns a handler describing a guarded module to its views.
func (h *Handler) ModuleInfo(moduleID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"module": moduleID,
			"user":   h.core.CurrentUser(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
