package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"permitflow/internal/identity"
	"permitflow/internal/notify"
)

// ErrNotAuthenticated is returned when an operation requires a user and
// none is signed in.
var ErrNotAuthenticated = errors.New("not authenticated")

// fetchTimeout bounds how long a profile fetch may keep a caller waiting.
const fetchTimeout = 10 * time.Second

// UserSource supplies the current authenticated user. The session manager
// satisfies this; the service never derives identity on its own.
type UserSource interface {
	CurrentUser() *identity.User
}

// Service produces best-effort profiles for the current user. Read paths
// degrade to synthesized defaults and never keep the caller waiting past
// the fetch timeout; write paths notify and propagate their errors.
type Service struct {
	store    Store
	users    UserSource
	notifier notify.Notifier
	logger   *slog.Logger
	timeout  time.Duration
}

// Option configures the Service during construction.
type Option func(*Service)

// WithFetchTimeout overrides the profile fetch budget.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// NewService constructs a Service.
func NewService(store Store, users UserSource, notifier notify.Notifier, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		users:    users,
		notifier: notifier,
		logger:   logger,
		timeout:  fetchTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// FetchProfile returns the current user's profile. The row query is raced
// against the fetch timeout; a timeout or store error is reported to the
// user once and answered with a synthesized default, and a missing row is
// answered with a default silently. The profile is nil only when no user
// is authenticated (signalled by ErrNotAuthenticated).
func (s *Service) FetchProfile(ctx context.Context) (*Profile, error) {
	user := s.users.CurrentUser()
	if user == nil {
		return nil, ErrNotAuthenticated
	}

	p, _ := s.fetchWithFallback(ctx, user)
	return p, nil
}

// EnsureProfile fetches the current user's profile and, when no durable
// row exists, attempts to create one from the sign-up metadata. Creation is
// attempted only on the missing-row branch; a timeout or store failure
// already produced a fallback and inserting on top of it could shadow an
// existing row. This is a best-effort path: any error has been notified and
// nil is returned instead of the error.
func (s *Service) EnsureProfile(ctx context.Context) *Profile {
	user := s.users.CurrentUser()
	if user == nil {
		return nil
	}

	p, missing := s.fetchWithFallback(ctx, user)
	if !missing {
		return p
	}

	created, err := s.CreateProfile(ctx, nil, nil)
	if err != nil {
		// Already notified by CreateProfile. A duplicate insert means a
		// concurrent provisioner won the race, which is acceptable.
		return nil
	}
	return created
}

// CreateProfile inserts the current user's profile row, preferring the
// explicit arguments over sign-up metadata over null.
func (s *Service) CreateProfile(ctx context.Context, firstName, lastName *string) (*Profile, error) {
	user := s.users.CurrentUser()
	if user == nil {
		return nil, ErrNotAuthenticated
	}

	now := time.Now()
	row := Profile{
		ID:        user.ID,
		FirstName: fallbackName(firstName, user.Metadata.FirstName),
		LastName:  fallbackName(lastName, user.Metadata.LastName),
		Role:      RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.store.InsertProfile(ctx, row)
	if err != nil {
		s.logger.Error("profile insert failed", "user_id", user.ID, "error", err)
		s.notifier.Error("Error creating profile", err.Error())
		return nil, fmt.Errorf("create profile: %w", err)
	}

	s.notifier.Success("Profile created", "Your profile has been set up")
	return &created, nil
}

// UpdateProfile persists changed profile fields for the current user.
// Nil arguments leave the stored value untouched.
func (s *Service) UpdateProfile(ctx context.Context, firstName, lastName, avatarURL *string) (*Profile, error) {
	user := s.users.CurrentUser()
	if user == nil {
		return nil, ErrNotAuthenticated
	}

	current, err := s.store.GetProfile(ctx, user.ID)
	if err != nil {
		s.notifier.Error("Error updating profile", err.Error())
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if current == nil {
		if current, err = s.CreateProfile(ctx, firstName, lastName); err != nil {
			return nil, err
		}
	}

	if firstName != nil {
		current.FirstName = firstName
	}
	if lastName != nil {
		current.LastName = lastName
	}
	if avatarURL != nil {
		current.AvatarURL = avatarURL
	}
	current.UpdatedAt = time.Now()

	updated, err := s.store.UpdateProfile(ctx, *current)
	if err != nil {
		s.notifier.Error("Error updating profile", err.Error())
		return nil, fmt.Errorf("update profile: %w", err)
	}

	s.notifier.Success("Profile updated", "Your changes have been saved")
	return &updated, nil
}

// FetchCreatorProfile returns the current user's creator record, or nil if
// they have not registered as a creator. Store failures degrade to nil.
func (s *Service) FetchCreatorProfile(ctx context.Context) (*Creator, error) {
	user := s.users.CurrentUser()
	if user == nil {
		return nil, ErrNotAuthenticated
	}

	creator, err := s.store.GetCreator(ctx, user.ID)
	if err != nil {
		s.logger.Error("creator fetch failed", "user_id", user.ID, "error", err)
		return nil, nil
	}
	return creator, nil
}

// RegisterAsCreator inserts a creator record for the current user.
func (s *Service) RegisterAsCreator(ctx context.Context, companyName, description string, website *string) (*Creator, error) {
	user := s.users.CurrentUser()
	if user == nil {
		return nil, ErrNotAuthenticated
	}

	now := time.Now()
	row := Creator{
		ID:          user.ID,
		CompanyName: &companyName,
		Description: &description,
		Website:     website,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := s.store.InsertCreator(ctx, row)
	if err != nil {
		s.logger.Error("creator insert failed", "user_id", user.ID, "error", err)
		s.notifier.Error("Error registering as creator", err.Error())
		return nil, fmt.Errorf("register creator: %w", err)
	}

	s.notifier.Success("Registration complete", "Your creator account has been created")
	return &created, nil
}

// FetchPurchasedWorkflows lists the current user's purchases with their
// workflows joined in. Degrades to an empty slice on any failure.
func (s *Service) FetchPurchasedWorkflows(ctx context.Context) []Purchase {
	user := s.users.CurrentUser()
	if user == nil {
		return nil
	}

	purchases, err := s.store.ListPurchases(ctx, user.ID)
	if err != nil {
		s.logger.Error("purchase list failed", "user_id", user.ID, "error", err)
		return nil
	}
	return purchases
}

// FetchUserProjects lists the current user's projects, most recently
// updated first. Degrades to an empty slice on any failure.
func (s *Service) FetchUserProjects(ctx context.Context) []Chat {
	user := s.users.CurrentUser()
	if user == nil {
		return nil
	}

	chats, err := s.store.ListChats(ctx, user.ID)
	if err != nil {
		s.logger.Error("project list failed", "user_id", user.ID, "error", err)
		return nil
	}
	return chats
}

// CreateProject starts a new project chat against a workflow.
func (s *Service) CreateProject(ctx context.Context, workflowID uuid.UUID, projectName string) (*Chat, error) {
	user := s.users.CurrentUser()
	if user == nil {
		return nil, ErrNotAuthenticated
	}

	now := time.Now()
	row := Chat{
		ID:          uuid.New(),
		UserID:      user.ID,
		WorkflowID:  workflowID,
		ProjectName: projectName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := s.store.InsertChat(ctx, row)
	if err != nil {
		s.logger.Error("project insert failed", "user_id", user.ID, "error", err)
		s.notifier.Error("Error creating project", err.Error())
		return nil, fmt.Errorf("create project: %w", err)
	}

	return &created, nil
}

// ListWorkflows returns the marketplace catalog.
func (s *Service) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	return s.store.ListWorkflows(ctx)
}

// fetchWithFallback races the row query against the fetch timeout. The
// returned flag is true only when the store answered with zero rows; the
// timeout and error branches return a fallback with the flag false, since
// a row may well exist behind the failure. The losing query is not
// cancelled, it completes in the background and its result is dropped.
func (s *Service) fetchWithFallback(ctx context.Context, user *identity.User) (*Profile, bool) {
	type result struct {
		profile *Profile
		err     error
	}

	ch := make(chan result, 1)
	queryCtx := context.WithoutCancel(ctx)
	go func() {
		p, err := s.store.GetProfile(queryCtx, user.ID)
		ch <- result{profile: p, err: err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			s.logger.Error("profile fetch failed", "user_id", user.ID, "error", res.err)
			s.notifier.Error("Error fetching profile", res.err.Error())
			return s.defaultProfile(user), false
		}
		if res.profile == nil {
			return s.defaultProfile(user), true
		}
		return res.profile, false
	case <-timer.C:
		s.logger.Warn("profile fetch timed out", "user_id", user.ID, "timeout", s.timeout)
		s.notifier.Error("Error fetching profile", "The request timed out. Showing your basic details instead.")
		return s.defaultProfile(user), false
	}
}

// defaultProfile synthesizes an in-memory profile from sign-up metadata.
func (s *Service) defaultProfile(user *identity.User) *Profile {
	now := time.Now()
	return &Profile{
		ID:        user.ID,
		FirstName: fallbackName(nil, user.Metadata.FirstName),
		LastName:  fallbackName(nil, user.Metadata.LastName),
		Role:      RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// fallbackName prefers the explicit value, then the metadata value, then nil.
func fallbackName(explicit *string, fromMetadata string) *string {
	if explicit != nil && *explicit != "" {
		return explicit
	}
	if fromMetadata != "" {
		return &fromMetadata
	}
	return nil
}
