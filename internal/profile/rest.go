package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenSource supplies the bearer token for data requests. Row-level
// security on the hosted store keys off this token, so it must be the
// signed-in user's access token, not the service key.
type TokenSource func() string

// RESTStore talks to the hosted PostgREST-style data API. Every request
// carries the project api key plus the current user's bearer token.
type RESTStore struct {
	baseURL string
	apiKey  string
	tokens  TokenSource
	client  *http.Client
}

// NewRESTStore constructs a store against the hosted data API.
func NewRESTStore(baseURL, apiKey string, tokens TokenSource, client *http.Client) *RESTStore {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RESTStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		tokens:  tokens,
		client:  client,
	}
}

type profileJSON struct {
	ID        uuid.UUID `json:"id"`
	FirstName *string   `json:"first_name"`
	LastName  *string   `json:"last_name"`
	AvatarURL *string   `json:"avatar_url"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type creatorJSON struct {
	ID          uuid.UUID `json:"id"`
	CompanyName *string   `json:"company_name"`
	Description *string   `json:"description"`
	Website     *string   `json:"website"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type workflowJSON struct {
	ID          uuid.UUID `json:"id"`
	CreatorID   uuid.UUID `json:"creator_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	PermitType  *string   `json:"permit_type"`
	Agency      *string   `json:"agency"`
	Price       float64   `json:"price"`
	Status      *string   `json:"status"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type purchaseJSON struct {
	ID          uuid.UUID     `json:"id"`
	UserID      uuid.UUID     `json:"user_id"`
	WorkflowID  uuid.UUID     `json:"workflow_id"`
	Amount      float64       `json:"amount"`
	PaymentID   *string       `json:"payment_id"`
	Status      *string       `json:"status"`
	PurchasedAt time.Time     `json:"purchased_at"`
	Workflow    *workflowJSON `json:"workflows"`
}

type chatJSON struct {
	ID          uuid.UUID     `json:"id"`
	UserID      uuid.UUID     `json:"user_id"`
	WorkflowID  uuid.UUID     `json:"workflow_id"`
	ProjectName string        `json:"project_name"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Workflow    *workflowJSON `json:"workflows"`
}

func (j profileJSON) toProfile() Profile   { return Profile(j) }
func (j creatorJSON) toCreator() Creator   { return Creator(j) }
func (j workflowJSON) toWorkflow() Workflow { return Workflow(j) }

func (j purchaseJSON) toPurchase() Purchase {
	p := Purchase{
		ID:          j.ID,
		UserID:      j.UserID,
		WorkflowID:  j.WorkflowID,
		Amount:      j.Amount,
		PaymentID:   j.PaymentID,
		Status:      j.Status,
		PurchasedAt: j.PurchasedAt,
	}
	if j.Workflow != nil {
		w := j.Workflow.toWorkflow()
		p.Workflow = &w
	}
	return p
}

func (j chatJSON) toChat() Chat {
	c := Chat{
		ID:          j.ID,
		UserID:      j.UserID,
		WorkflowID:  j.WorkflowID,
		ProjectName: j.ProjectName,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
	if j.Workflow != nil {
		w := j.Workflow.toWorkflow()
		c.Workflow = &w
	}
	return c
}

// do issues a request against a table endpoint and decodes the JSON array
// response into out. A 409 maps to ErrDuplicate; other non-2xx statuses
// surface as errors with the response body attached.
func (s *RESTStore) do(ctx context.Context, method, table string, query url.Values, body, out any) error {
	endpoint := s.baseURL + "/" + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", table, err)
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return fmt.Errorf("build %s request: %w", table, err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Accept", "application/json")
	if token := s.tokens(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return ErrDuplicate
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", method, table, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", table, err)
	}
	return nil
}

func eq(id uuid.UUID) string {
	return "eq." + id.String()
}

// GetProfile fetches the profile row, returning (nil, nil) when the result
// set is empty.
func (s *RESTStore) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	query := url.Values{"select": {"*"}, "id": {eq(id)}}

	var rows []profileJSON
	if err := s.do(ctx, http.MethodGet, "profiles", query, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	p := rows[0].toProfile()
	return &p, nil
}

// InsertProfile creates the profile row and returns the stored
// representation.
func (s *RESTStore) InsertProfile(ctx context.Context, p Profile) (Profile, error) {
	var rows []profileJSON
	if err := s.do(ctx, http.MethodPost, "profiles", nil, profileJSON(p), &rows); err != nil {
		return Profile{}, err
	}
	if len(rows) == 0 {
		return p, nil
	}
	return rows[0].toProfile(), nil
}

// UpdateProfile patches the profile row.
func (s *RESTStore) UpdateProfile(ctx context.Context, p Profile) (Profile, error) {
	query := url.Values{"id": {eq(p.ID)}}

	patch := map[string]any{
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"avatar_url": p.AvatarURL,
		"updated_at": p.UpdatedAt,
	}

	var rows []profileJSON
	if err := s.do(ctx, http.MethodPatch, "profiles", query, patch, &rows); err != nil {
		return Profile{}, err
	}
	if len(rows) == 0 {
		return p, nil
	}
	return rows[0].toProfile(), nil
}

// GetCreator fetches the creator row, returning (nil, nil) when the user
// has not registered.
func (s *RESTStore) GetCreator(ctx context.Context, id uuid.UUID) (*Creator, error) {
	query := url.Values{"select": {"*"}, "id": {eq(id)}}

	var rows []creatorJSON
	if err := s.do(ctx, http.MethodGet, "creators", query, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	c := rows[0].toCreator()
	return &c, nil
}

// InsertCreator creates the creator row.
func (s *RESTStore) InsertCreator(ctx context.Context, c Creator) (Creator, error) {
	var rows []creatorJSON
	if err := s.do(ctx, http.MethodPost, "creators", nil, creatorJSON(c), &rows); err != nil {
		return Creator{}, err
	}
	if len(rows) == 0 {
		return c, nil
	}
	return rows[0].toCreator(), nil
}

// GetWorkflow fetches a workflow by id, returning (nil, nil) when absent.
func (s *RESTStore) GetWorkflow(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	query := url.Values{"select": {"*"}, "id": {eq(id)}}

	var rows []workflowJSON
	if err := s.do(ctx, http.MethodGet, "workflows", query, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	w := rows[0].toWorkflow()
	return &w, nil
}

// ListWorkflows returns the catalog ordered by title.
func (s *RESTStore) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	query := url.Values{"select": {"*"}, "order": {"title.asc"}}

	var rows []workflowJSON
	if err := s.do(ctx, http.MethodGet, "workflows", query, nil, &rows); err != nil {
		return nil, err
	}

	workflows := make([]Workflow, 0, len(rows))
	for _, row := range rows {
		workflows = append(workflows, row.toWorkflow())
	}
	return workflows, nil
}

// ListPurchases returns the user's purchases with the workflow embedded,
// most recent first.
func (s *RESTStore) ListPurchases(ctx context.Context, userID uuid.UUID) ([]Purchase, error) {
	query := url.Values{
		"select":  {"*,workflows(*)"},
		"user_id": {eq(userID)},
		"order":   {"purchased_at.desc"},
	}

	var rows []purchaseJSON
	if err := s.do(ctx, http.MethodGet, "user_purchases", query, nil, &rows); err != nil {
		return nil, err
	}

	purchases := make([]Purchase, 0, len(rows))
	for _, row := range rows {
		purchases = append(purchases, row.toPurchase())
	}
	return purchases, nil
}

// ListChats returns the user's projects with the workflow embedded, most
// recently updated first.
func (s *RESTStore) ListChats(ctx context.Context, userID uuid.UUID) ([]Chat, error) {
	query := url.Values{
		"select":  {"*,workflows(*)"},
		"user_id": {eq(userID)},
		"order":   {"updated_at.desc"},
	}

	var rows []chatJSON
	if err := s.do(ctx, http.MethodGet, "chats", query, nil, &rows); err != nil {
		return nil, err
	}

	chats := make([]Chat, 0, len(rows))
	for _, row := range rows {
		chats = append(chats, row.toChat())
	}
	return chats, nil
}

// InsertChat creates a project chat row.
func (s *RESTStore) InsertChat(ctx context.Context, c Chat) (Chat, error) {
	body := map[string]any{
		"id":           c.ID,
		"user_id":      c.UserID,
		"workflow_id":  c.WorkflowID,
		"project_name": c.ProjectName,
		"created_at":   c.CreatedAt,
		"updated_at":   c.UpdatedAt,
	}

	var rows []chatJSON
	if err := s.do(ctx, http.MethodPost, "chats", nil, body, &rows); err != nil {
		return Chat{}, err
	}
	if len(rows) == 0 {
		return c, nil
	}
	return rows[0].toChat(), nil
}
