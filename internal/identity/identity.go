// Package identity wraps the hosted identity service. The service is the
// single authority for credentials and sessions; this package only consumes
// it and republishes auth changes to in-process listeners.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserMetadata carries the optional profile details captured at sign-up.
type UserMetadata struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// User is the authenticated principal associated with a Session. It is
// read-only from the application's perspective.
type User struct {
	ID       uuid.UUID
	Email    string
	Metadata UserMetadata
}

// Session is the credential issued by the identity service.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	User         User
}

// Event identifies an auth state change emitted by the client.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// Listener receives auth change notifications. session is nil for
// EventSignedOut.
type Listener func(event Event, session *Session)

// Client is the surface consumed by the session manager.
type Client interface {
	SignInWithPassword(ctx context.Context, email, password string) error
	SignInWithIDToken(ctx context.Context, provider, idToken string) error
	SignUp(ctx context.Context, email, password string, metadata UserMetadata) error
	SignOut(ctx context.Context) error

	// GetSession returns the current session, restoring a persisted one if
	// necessary. (nil, nil) means no session exists.
	GetSession(ctx context.Context) (*Session, error)

	// OnAuthStateChange registers a listener and returns its disposer. The
	// disposer must be invoked exactly once at teardown.
	OnAuthStateChange(fn Listener) (unsubscribe func())
}

// APIError is a non-2xx response from the identity service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity: %s (status %d)", e.Message, e.Status)
}
