package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"permitflow/internal/identity"
	"permitflow/internal/notify"
	"permitflow/internal/session"
)

// ViewState tracks the path the shell frontend should currently display.
// It satisfies session.Navigator so stream-driven transitions (sign-out to
// login, sign-up to verification pending) reach the UI.
type ViewState struct {
	mu   sync.Mutex
	path string
}

// NewViewState starts at the landing page.
func NewViewState() *ViewState {
	return &ViewState{path: "/"}
}

func (v *ViewState) Navigate(path string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.path = path
}

// Current returns the active view path.
func (v *ViewState) Current() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.path
}

// AuthHandler exposes the session lifecycle over JSON endpoints.
type AuthHandler struct {
	manager             *session.Manager
	feed                *notify.Feed
	views               *ViewState
	logger              *slog.Logger
	requireVerification bool
}

// NewAuthHandler creates a handler.
func NewAuthHandler(manager *session.Manager, feed *notify.Feed, views *ViewState, requireVerification bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		manager:             manager,
		feed:                feed,
		views:               views,
		logger:              logger,
		requireVerification: requireVerification,
	}
}

type userPayload struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type statePayload struct {
	Loading bool         `json:"loading"`
	User    *userPayload `json:"user"`
}

func stateJSON(st session.State) statePayload {
	payload := statePayload{Loading: st.Loading}
	if st.User != nil {
		payload.User = &userPayload{
			ID:        st.User.ID.String(),
			Email:     st.User.Email,
			FirstName: st.User.Metadata.FirstName,
			LastName:  st.User.Metadata.LastName,
		}
	}
	return payload
}

// identityErrorStatus maps an identity service failure onto the response
// status, keeping 4xx causes visible and hiding transport details as 502.
func identityErrorStatus(err error) int {
	var apiErr *identity.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		return apiErr.Status
	}
	return http.StatusBadGateway
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	email := strings.TrimSpace(payload.Email)
	if email == "" || payload.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	if err := h.manager.SignIn(r.Context(), email, payload.Password); err != nil {
		writeError(w, identityErrorStatus(err), "sign in failed")
		return
	}

	writeJSON(w, http.StatusOK, stateJSON(h.manager.State()))
}

// Signup handles POST /api/auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	email := strings.TrimSpace(payload.Email)
	if email == "" || payload.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	metadata := identity.UserMetadata{
		FirstName: strings.TrimSpace(payload.FirstName),
		LastName:  strings.TrimSpace(payload.LastName),
	}
	if err := h.manager.SignUp(r.Context(), email, payload.Password, metadata); err != nil {
		writeError(w, identityErrorStatus(err), "sign up failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"verificationRequired": h.requireVerification,
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.SignOut(r.Context()); err != nil {
		writeError(w, identityErrorStatus(err), "sign out failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /api/session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateJSON(h.manager.State()))
}

// Notifications handles GET /api/notifications: the frontend drains queued
// toasts for display.
func (h *AuthHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	drained := h.feed.Drain()
	payload := make([]map[string]any, 0, len(drained))
	for _, n := range drained {
		payload = append(payload, map[string]any{
			"title":       n.Title,
			"description": n.Description,
			"destructive": n.Destructive,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": payload})
}

// View handles GET /api/view: the path the frontend should display after
// stream-driven navigation.
func (h *AuthHandler) View(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"path": h.views.Current()})
}
