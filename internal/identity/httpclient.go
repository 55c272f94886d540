package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// refreshSkew is how long before token expiry the client refreshes.
const refreshSkew = time.Minute

// HTTPClient talks to a GoTrue-style identity API. It keeps the active
// session in memory, persists it to a local state file so it survives
// restarts, and schedules token refreshes ahead of expiry.
type HTTPClient struct {
	baseURL         string
	apiKey          string
	client          *http.Client
	sessionFile     string
	emailRedirectTo string
	autoConfirm     bool

	mu           sync.Mutex
	session      *Session
	restored     bool
	refreshTimer *time.Timer
	listeners    map[int]Listener
	nextListener int
}

// HTTPOption configures the HTTPClient during construction.
type HTTPOption func(*HTTPClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithSessionFile enables session persistence at the given path.
func WithSessionFile(path string) HTTPOption {
	return func(c *HTTPClient) {
		c.sessionFile = path
	}
}

// WithEmailRedirectTo sets where verification emails link back to.
func WithEmailRedirectTo(redirect string) HTTPOption {
	return func(c *HTTPClient) {
		c.emailRedirectTo = redirect
	}
}

// WithAutoConfirm marks new accounts confirmed at sign-up, bypassing email
// verification. Mirrors the RequireEmailVerification configuration flag.
func WithAutoConfirm(enabled bool) HTTPOption {
	return func(c *HTTPClient) {
		c.autoConfirm = enabled
	}
}

// NewHTTPClient constructs a client for the identity service at baseURL.
func NewHTTPClient(baseURL, apiKey string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:   trimBase(baseURL),
		apiKey:    apiKey,
		client:    &http.Client{Timeout: 15 * time.Second},
		listeners: make(map[int]Listener),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func trimBase(baseURL string) string {
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return baseURL
}

// SignInWithPassword exchanges credentials for a session. On success the
// new session is stored and SIGNED_IN is emitted.
func (c *HTTPClient) SignInWithPassword(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	sess, err := c.tokenRequest(ctx, "password", body)
	if err != nil {
		return err
	}

	c.setSession(sess)
	c.emit(EventSignedIn, sess)
	return nil
}

// SignInWithIDToken trades a verified OIDC ID token for a session.
func (c *HTTPClient) SignInWithIDToken(ctx context.Context, provider, idToken string) error {
	body := map[string]string{"provider": provider, "id_token": idToken}
	sess, err := c.tokenRequest(ctx, "id_token", body)
	if err != nil {
		return err
	}

	c.setSession(sess)
	c.emit(EventSignedIn, sess)
	return nil
}

// SignUp registers a new account with the supplied profile metadata. When
// the service confirms the account immediately it also returns a session,
// which is stored and announced like a sign-in.
func (c *HTTPClient) SignUp(ctx context.Context, email, password string, metadata UserMetadata) error {
	payload := map[string]any{
		"email":    email,
		"password": password,
		"data":     metadata,
	}
	if c.autoConfirm {
		payload["email_confirm"] = true
	}

	endpoint := c.baseURL + "/signup"
	if c.emailRedirectTo != "" {
		endpoint += "?redirect_to=" + url.QueryEscape(c.emailRedirectTo)
	}

	var resp tokenResponse
	if err := c.post(ctx, endpoint, payload, "", &resp); err != nil {
		return err
	}

	if resp.AccessToken == "" {
		// Verification pending; the session arrives after the user
		// confirms their email.
		return nil
	}

	sess, err := resp.toSession()
	if err != nil {
		return err
	}

	c.setSession(sess)
	c.emit(EventSignedIn, sess)
	return nil
}

// SignOut revokes the current session. The local state is cleared only
// after the service accepts the revocation, so a failed sign-out leaves
// the auth state untouched.
func (c *HTTPClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess == nil {
		return nil
	}

	if err := c.post(ctx, c.baseURL+"/logout", nil, sess.AccessToken, nil); err != nil {
		return err
	}

	c.clearSession()
	c.emit(EventSignedOut, nil)
	return nil
}

// GetSession returns the active session, restoring a persisted one on first
// use. Expired restored sessions are refreshed before being returned; if
// the refresh fails the stale state is discarded and (nil, nil) is returned.
func (c *HTTPClient) GetSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if c.session != nil {
		sess := *c.session
		c.mu.Unlock()
		return &sess, nil
	}
	if c.restored || c.sessionFile == "" {
		c.mu.Unlock()
		return nil, nil
	}
	c.restored = true
	c.mu.Unlock()

	stored, err := c.loadSessionFile()
	if err != nil || stored == nil {
		return nil, err
	}

	if time.Now().Before(stored.ExpiresAt.Add(-refreshSkew)) {
		c.setSession(stored)
		sess := *stored
		return &sess, nil
	}

	refreshed, err := c.refresh(ctx, stored.RefreshToken)
	if err != nil {
		c.removeSessionFile()
		return nil, nil
	}

	c.setSession(refreshed)
	sess := *refreshed
	return &sess, nil
}

// OnAuthStateChange registers fn and returns its disposer.
func (c *HTTPClient) OnAuthStateChange(fn Listener) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Close stops the background refresh timer.
func (c *HTTPClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
}

func (c *HTTPClient) tokenRequest(ctx context.Context, grantType string, body any) (*Session, error) {
	endpoint := c.baseURL + "/token?grant_type=" + url.QueryEscape(grantType)

	var resp tokenResponse
	if err := c.post(ctx, endpoint, body, "", &resp); err != nil {
		return nil, err
	}

	return resp.toSession()
}

func (c *HTTPClient) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	return c.tokenRequest(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, payload any, bearer string, out any) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return fmt.Errorf("identity: encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("identity: request failed: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &APIError{Status: res.StatusCode, Message: decodeAPIError(res)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("identity: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(res *http.Response) string {
	var payload struct {
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err == nil {
		switch {
		case payload.ErrorDescription != "":
			return payload.ErrorDescription
		case payload.Msg != "":
			return payload.Msg
		case payload.Message != "":
			return payload.Message
		}
	}
	return http.StatusText(res.StatusCode)
}

// setSession stores sess, persists it and schedules the next refresh.
func (c *HTTPClient) setSession(sess *Session) {
	c.mu.Lock()
	c.session = sess
	c.restored = true
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	if wait := time.Until(sess.ExpiresAt.Add(-refreshSkew)); wait > 0 {
		c.refreshTimer = time.AfterFunc(wait, c.backgroundRefresh)
	}
	c.mu.Unlock()

	c.writeSessionFile(sess)
}

func (c *HTTPClient) clearSession() {
	c.mu.Lock()
	c.session = nil
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	c.mu.Unlock()

	c.removeSessionFile()
}

// backgroundRefresh renews the session shortly before expiry. A failed
// renewal invalidates the session and is announced as a sign-out, since
// the credential is about to become unusable anyway.
func (c *HTTPClient) backgroundRefresh() {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	refreshed, err := c.refresh(ctx, sess.RefreshToken)
	if err != nil {
		c.clearSession()
		c.emit(EventSignedOut, nil)
		return
	}

	c.setSession(refreshed)
	c.emit(EventTokenRefreshed, refreshed)
}

// emit delivers the event to every listener. Listeners are invoked outside
// the client lock so they may call back into the client.
func (c *HTTPClient) emit(event Event, sess *Session) {
	c.mu.Lock()
	fns := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		var copied *Session
		if sess != nil {
			s := *sess
			copied = &s
		}
		fn(event, copied)
	}
}

type wireUser struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	UserMetadata UserMetadata `json:"user_metadata"`
}

type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	RefreshToken string   `json:"refresh_token"`
	User         wireUser `json:"user"`
}

func (r tokenResponse) toSession() (*Session, error) {
	id, err := uuid.Parse(r.User.ID)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid user id %q: %w", r.User.ID, err)
	}

	expiresAt := time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
	if fromToken, ok := tokenExpiry(r.AccessToken); ok {
		expiresAt = fromToken
	}

	return &Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		ExpiresAt:    expiresAt,
		User: User{
			ID:       id,
			Email:    r.User.Email,
			Metadata: r.User.UserMetadata,
		},
	}, nil
}

// tokenExpiry reads the exp claim from the access token. The token is not
// signature-checked; the client holds no signing secret and the service
// remains authoritative.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

type storedSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         wireUser  `json:"user"`
}

func (c *HTTPClient) writeSessionFile(sess *Session) {
	if c.sessionFile == "" {
		return
	}

	stored := storedSession{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		TokenType:    sess.TokenType,
		ExpiresAt:    sess.ExpiresAt,
		User: wireUser{
			ID:           sess.User.ID.String(),
			Email:        sess.User.Email,
			UserMetadata: sess.User.Metadata,
		},
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return
	}

	_ = os.MkdirAll(filepath.Dir(c.sessionFile), 0o700)
	_ = os.WriteFile(c.sessionFile, data, 0o600)
}

func (c *HTTPClient) loadSessionFile() (*Session, error) {
	data, err := os.ReadFile(c.sessionFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("identity: read session file: %w", err)
	}

	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		c.removeSessionFile()
		return nil, nil
	}

	id, err := uuid.Parse(stored.User.ID)
	if err != nil {
		c.removeSessionFile()
		return nil, nil
	}

	return &Session{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		TokenType:    stored.TokenType,
		ExpiresAt:    stored.ExpiresAt,
		User: User{
			ID:       id,
			Email:    stored.User.Email,
			Metadata: stored.User.UserMetadata,
		},
	}, nil
}

func (c *HTTPClient) removeSessionFile() {
	if c.sessionFile == "" {
		return
	}
	_ = os.Remove(c.sessionFile)
}
