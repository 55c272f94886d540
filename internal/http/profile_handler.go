package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"permitflow/internal/profile"
)

// ProfileHandler exposes the profile, creator and marketplace endpoints.
type ProfileHandler struct {
	profiles *profile.Service
	logger   *slog.Logger
}

// NewProfileHandler creates a handler.
func NewProfileHandler(profiles *profile.Service, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

type profilePayload struct {
	ID        string    `json:"id"`
	FirstName *string   `json:"firstName"`
	LastName  *string   `json:"lastName"`
	AvatarURL *string   `json:"avatarUrl"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func profileJSONPayload(p *profile.Profile) *profilePayload {
	if p == nil {
		return nil
	}
	return &profilePayload{
		ID:        p.ID.String(),
		FirstName: p.FirstName,
		LastName:  p.LastName,
		AvatarURL: p.AvatarURL,
		Role:      p.Role,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type creatorPayload struct {
	ID          string  `json:"id"`
	CompanyName *string `json:"companyName"`
	Description *string `json:"description"`
	Website     *string `json:"website"`
	Verified    bool    `json:"verified"`
}

func creatorJSONPayload(c *profile.Creator) *creatorPayload {
	if c == nil {
		return nil
	}
	return &creatorPayload{
		ID:          c.ID.String(),
		CompanyName: c.CompanyName,
		Description: c.Description,
		Website:     c.Website,
		Verified:    c.Verified,
	}
}

type workflowPayload struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	PermitType  *string `json:"permitType"`
	Agency      *string `json:"agency"`
	Price       float64 `json:"price"`
	Verified    bool    `json:"verified"`
}

func workflowJSONPayload(w *profile.Workflow) *workflowPayload {
	if w == nil {
		return nil
	}
	return &workflowPayload{
		ID:          w.ID.String(),
		Title:       w.Title,
		Description: w.Description,
		PermitType:  w.PermitType,
		Agency:      w.Agency,
		Price:       w.Price,
		Verified:    w.Verified,
	}
}

func (h *ProfileHandler) handleAuthError(w http.ResponseWriter, err error) bool {
	if errors.Is(err, profile.ErrNotAuthenticated) {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return true
	}
	return false
}

// Get handles GET /api/profile.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.FetchProfile(r.Context())
	if err != nil {
		if h.handleAuthError(w, err) {
			return
		}
		h.logger.Error("fetch profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": profileJSONPayload(p)})
}

// Ensure handles POST /api/profile/ensure: fetch the profile and provision
// a row if none exists yet.
func (h *ProfileHandler) Ensure(w http.ResponseWriter, r *http.Request) {
	p := h.profiles.EnsureProfile(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"profile": profileJSONPayload(p)})
}

// Update handles PUT /api/profile.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FirstName *string `json:"firstName"`
		LastName  *string `json:"lastName"`
		AvatarURL *string `json:"avatarUrl"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	p, err := h.profiles.UpdateProfile(r.Context(), payload.FirstName, payload.LastName, payload.AvatarURL)
	if err != nil {
		if h.handleAuthError(w, err) {
			return
		}
		h.logger.Error("update profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": profileJSONPayload(p)})
}

// GetCreator handles GET /api/creators/me.
func (h *ProfileHandler) GetCreator(w http.ResponseWriter, r *http.Request) {
	c, err := h.profiles.FetchCreatorProfile(r.Context())
	if err != nil {
		if h.handleAuthError(w, err) {
			return
		}
		h.logger.Error("fetch creator", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch creator profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"creator": creatorJSONPayload(c)})
}

// RegisterCreator handles POST /api/creators.
func (h *ProfileHandler) RegisterCreator(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CompanyName string  `json:"companyName"`
		Description string  `json:"description"`
		Website     *string `json:"website"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	if strings.TrimSpace(payload.CompanyName) == "" {
		writeError(w, http.StatusBadRequest, "company name is required")
		return
	}

	c, err := h.profiles.RegisterAsCreator(r.Context(), payload.CompanyName, payload.Description, payload.Website)
	if err != nil {
		if h.handleAuthError(w, err) {
			return
		}
		if errors.Is(err, profile.ErrDuplicate) {
			writeError(w, http.StatusConflict, "already registered as a creator")
			return
		}
		h.logger.Error("register creator", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register as creator")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"creator": creatorJSONPayload(c)})
}

// Purchases handles GET /api/purchases.
func (h *ProfileHandler) Purchases(w http.ResponseWriter, r *http.Request) {
	purchases := h.profiles.FetchPurchasedWorkflows(r.Context())

	payload := make([]map[string]any, 0, len(purchases))
	for _, p := range purchases {
		payload = append(payload, map[string]any{
			"id":          p.ID.String(),
			"workflowId":  p.WorkflowID.String(),
			"amount":      p.Amount,
			"status":      p.Status,
			"purchasedAt": p.PurchasedAt,
			"workflow":    workflowJSONPayload(p.Workflow),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": payload})
}

// Projects handles GET /api/projects.
func (h *ProfileHandler) Projects(w http.ResponseWriter, r *http.Request) {
	chats := h.profiles.FetchUserProjects(r.Context())

	payload := make([]map[string]any, 0, len(chats))
	for _, c := range chats {
		payload = append(payload, map[string]any{
			"id":          c.ID.String(),
			"workflowId":  c.WorkflowID.String(),
			"projectName": c.ProjectName,
			"createdAt":   c.CreatedAt,
			"updatedAt":   c.UpdatedAt,
			"workflow":    workflowJSONPayload(c.Workflow),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": payload})
}

// CreateProject handles POST /api/projects.
func (h *ProfileHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		WorkflowID  string `json:"workflowId"`
		ProjectName string `json:"projectName"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}

	workflowID, err := uuid.Parse(payload.WorkflowID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid workflow id")
		return
	}
	name := strings.TrimSpace(payload.ProjectName)
	if name == "" {
		writeError(w, http.StatusBadRequest, "project name is required")
		return
	}

	c, err := h.profiles.CreateProject(r.Context(), workflowID, name)
	if err != nil {
		if h.handleAuthError(w, err) {
			return
		}
		h.logger.Error("create project", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create project")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          c.ID.String(),
		"workflowId":  c.WorkflowID.String(),
		"projectName": c.ProjectName,
	})
}

// Workflows handles GET /api/workflows: the public marketplace catalog.
func (h *ProfileHandler) Workflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.profiles.ListWorkflows(r.Context())
	if err != nil {
		h.logger.Error("list workflows", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list workflows")
		return
	}

	payload := make([]*workflowPayload, 0, len(workflows))
	for i := range workflows {
		payload = append(payload, workflowJSONPayload(&workflows[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": payload})
}
