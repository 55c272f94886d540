package profile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"permitflow/internal/identity"
	"permitflow/internal/notify"
)

type storeStub struct {
	getProfileFn    func(ctx context.Context, id uuid.UUID) (*Profile, error)
	insertProfileFn func(ctx context.Context, p Profile) (Profile, error)
	updateProfileFn func(ctx context.Context, p Profile) (Profile, error)
	getCreatorFn    func(ctx context.Context, id uuid.UUID) (*Creator, error)
	insertCreatorFn func(ctx context.Context, c Creator) (Creator, error)
	getWorkflowFn   func(ctx context.Context, id uuid.UUID) (*Workflow, error)
	listWorkflowsFn func(ctx context.Context) ([]Workflow, error)
	listPurchasesFn func(ctx context.Context, userID uuid.UUID) ([]Purchase, error)
	listChatsFn     func(ctx context.Context, userID uuid.UUID) ([]Chat, error)
	insertChatFn    func(ctx context.Context, c Chat) (Chat, error)
}

func (s *storeStub) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	if s.getProfileFn == nil {
		return nil, nil
	}
	return s.getProfileFn(ctx, id)
}

func (s *storeStub) InsertProfile(ctx context.Context, p Profile) (Profile, error) {
	if s.insertProfileFn == nil {
		return p, nil
	}
	return s.insertProfileFn(ctx, p)
}

func (s *storeStub) UpdateProfile(ctx context.Context, p Profile) (Profile, error) {
	if s.updateProfileFn == nil {
		return p, nil
	}
	return s.updateProfileFn(ctx, p)
}

func (s *storeStub) GetCreator(ctx context.Context, id uuid.UUID) (*Creator, error) {
	if s.getCreatorFn == nil {
		return nil, nil
	}
	return s.getCreatorFn(ctx, id)
}

func (s *storeStub) InsertCreator(ctx context.Context, c Creator) (Creator, error) {
	if s.insertCreatorFn == nil {
		return c, nil
	}
	return s.insertCreatorFn(ctx, c)
}

func (s *storeStub) GetWorkflow(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	if s.getWorkflowFn == nil {
		return nil, nil
	}
	return s.getWorkflowFn(ctx, id)
}

func (s *storeStub) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	if s.listWorkflowsFn == nil {
		return nil, nil
	}
	return s.listWorkflowsFn(ctx)
}

func (s *storeStub) ListPurchases(ctx context.Context, userID uuid.UUID) ([]Purchase, error) {
	if s.listPurchasesFn == nil {
		return nil, nil
	}
	return s.listPurchasesFn(ctx, userID)
}

func (s *storeStub) ListChats(ctx context.Context, userID uuid.UUID) ([]Chat, error) {
	if s.listChatsFn == nil {
		return nil, nil
	}
	return s.listChatsFn(ctx, userID)
}

func (s *storeStub) InsertChat(ctx context.Context, c Chat) (Chat, error) {
	if s.insertChatFn == nil {
		return c, nil
	}
	return s.insertChatFn(ctx, c)
}

type userSourceStub struct {
	user *identity.User
}

func (u *userSourceStub) CurrentUser() *identity.User {
	return u.user
}

func testUser() *identity.User {
	return &identity.User{
		ID:    uuid.MustParse("6f1e63c2-97a4-4a5e-bb73-0e6dbcbb4646"),
		Email: "pat@example.com",
		Metadata: identity.UserMetadata{
			FirstName: "Pat",
			LastName:  "Builder",
		},
	}
}

func newTestService(store Store, user *identity.User, opts ...Option) (*Service, *notify.Feed) {
	feed := notify.NewFeed(nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(store, &userSourceStub{user: user}, feed, logger, opts...)
	return svc, feed
}

func strPtr(s string) *string {
	return &s
}

func TestFetchProfileRequiresUser(t *testing.T) {
	called := false
	store := &storeStub{
		getProfileFn: func(ctx context.Context, id uuid.UUID) (*Profile, error) {
			called = true
			return nil, nil
		},
	}
	svc, feed := newTestService(store, nil)

	p, err := svc.FetchProfile(context.Background())
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil profile, got %+v", p)
	}
	if called {
		t.Fatal("store should not be queried without a user")
	}
	if n := feed.Pending(); len(n) != 0 {
		t.Fatalf("expected no notifications, got %v", n)
	}
}

func TestFetchProfileReturnsStoredRow(t *testing.T) {
	user := testUser()
	stored := &Profile{ID: user.ID, FirstName: strPtr("Stored"), Role: RoleUser}
	store := &storeStub{
		getProfileFn: func(ctx context.Context, id uuid.UUID) (*Profile, error) {
			if id != user.ID {
				t.Errorf("queried wrong id %s", id)
			}
			return stored, nil
		},
	}
	svc, feed := newTestService(store, user)

	p, err := svc.FetchProfile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.FirstName == nil || *p.FirstName != "Stored" {
		t.Fatalf("expected stored profile, got %+v", p)
	}
	if n := feed.Pending(); len(n) != 0 {
		t.Fatalf("expected no notifications, got %v", n)
	}
}

func TestFetchProfileMissingRowSynthesizesDefault(t *testing.T) {
	user := testUser()
	svc, feed := newTestService(&storeStub{}, user)

	p, err := svc.FetchProfile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected a synthesized profile")
	}
	if p.ID != user.ID {
		t.Errorf("expected id %s, got %s", user.ID, p.ID)
	}
	if p.Role != RoleUser {
		t.Errorf("expected role %q, got %q", RoleUser, p.Role)
	}
	if p.FirstName == nil || *p.FirstName != "Pat" {
		t.Errorf("expected first name from metadata, got %v", p.FirstName)
	}
	if p.LastName == nil || *p.LastName != "Builder" {
		t.Errorf("expected last name from metadata, got %v", p.LastName)
	}
	// A missing row is normal during provisioning, not an error.
	if n := feed.Pending(); len(n) != 0 {
		t.Fatalf("expected no notifications, got %v", n)
	}
}

func TestFetchProfileStoreErrorFallsBack(t *testing.T) {
	user := testUser()
	store := &storeStub{
		getProfileFn: func(ctx context.Context, id uuid.UUID) (*Profile, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc, feed := newTestService(store, user)

	p, err := svc.FetchProfile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.ID != user.ID {
		t.Fatalf("expected fallback profile for %s, got %+v", user.ID, p)
	}

	notes := feed.Pending()
	if len(notes) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(notes))
	}
	if !notes[0].Destructive || notes[0].Title != "Error fetching profile" {
		t.Fatalf("unexpected notification %+v", notes[0])
	}
}

func TestFetchProfileTimeoutFallsBack(t *testing.T) {
	user := testUser()
	release := make(chan struct{})
	store := &storeStub{
		getProfileFn: func(ctx context.Context, id uuid.UUID) (*Profile, error) {
			<-release
			return &Profile{ID: id}, nil
		},
	}
	svc, feed := newTestService(store, user, WithFetchTimeout(20*time.Millisecond))
	defer close(release)

	start := time.Now()
	p, err := svc.FetchProfile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("fetch blocked for %s", elapsed)
	}
	if p == nil || p.ID != user.ID {
		t.Fatalf("expected fallback profile, got %+v", p)
	}

	notes := feed.Pending()
	if len(notes) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(notes))
	}
	if !notes[0].Destructive {
		t.Fatalf("expected destructive notification, got %+v", notes[0])
	}
}

func TestEnsureProfileCreatesOnMissingRow(t *testing.T) {
	user := testUser()
	var inserted *Profile
	store := &storeStub{
		insertProfileFn: func(ctx context.Context, p Profile) (Profile, error) {
			inserted = &p
			return p, nil
		},
	}
	svc, feed := newTestService(store, user)

	p := svc.EnsureProfile(context.Background())
	if p == nil {
		t.Fatal("expected a created profile")
	}
	if inserted == nil {
		t.Fatal("expected an insert")
	}
	if inserted.ID != user.ID {
		t.Errorf("expected insert for %s, got %s", user.ID, inserted.ID)
	}
	if inserted.FirstName == nil || *inserted.FirstName != "Pat" {
		t.Errorf("expected metadata first name, got %v", inserted.FirstName)
	}
	if inserted.Role != RoleUser {
		t.Errorf("expected role %q, got %q", RoleUser, inserted.Role)
	}

	notes := feed.Pending()
	if len(notes) != 1 || notes[0].Title != "Profile created" {
		t.Fatalf("expected profile created notification, got %v", notes)
	}
}

func TestEnsureProfileSkipsInsertWhenRowExists(t *testing.T) {
	user := testUser()
	store := &storeStub{
		getProfileFn: func(ctx context.Context, id uuid.UUID) (*Profile, error) {
			return &Profile{ID: id, Role: RoleUser}, nil
		},
		insertProfileFn: func(ctx context.Context, p Profile) (Profile, error) {
			t.Error("insert should not run when a row exists")
			return p, nil
		},
	}
	svc, _ := newTestService(store, user)

	if p := svc.EnsureProfile(context.Background()); p == nil {
		t.Fatal("expected the stored profile")
	}
}

func TestEnsureProfileSkipsInsertOnFetchError(t *testing.T) {
	user := testUser()
	store := &storeStub{
		getProfileFn: func(ctx context.Context, id uuid.UUID) (*Profile, error) {
			return nil, errors.New("connection refused")
		},
		insertProfileFn: func(ctx context.Context, p Profile) (Profile, error) {
			t.Error("insert should not run when the fetch failed; a row may exist")
			return p, nil
		},
	}
	svc, _ := newTestService(store, user)

	if p := svc.EnsureProfile(context.Background()); p == nil {
		t.Fatal("expected the fallback profile")
	}
}

func TestEnsureProfileToleratesLostProvisioningRace(t *testing.T) {
	user := testUser()
	store := &storeStub{
		insertProfileFn: func(ctx context.Context, p Profile) (Profile, error) {
			return Profile{}, ErrDuplicate
		},
	}
	svc, feed := newTestService(store, user)

	p := svc.EnsureProfile(context.Background())
	if p != nil {
		t.Fatalf("expected nil after lost race, got %+v", p)
	}

	notes := feed.Pending()
	if len(notes) != 1 || !notes[0].Destructive {
		t.Fatalf("expected one destructive notification, got %v", notes)
	}
}

func TestCreateProfilePrefersExplicitNames(t *testing.T) {
	user := testUser()
	var inserted Profile
	store := &storeStub{
		insertProfileFn: func(ctx context.Context, p Profile) (Profile, error) {
			inserted = p
			return p, nil
		},
	}
	svc, _ := newTestService(store, user)

	_, err := svc.CreateProfile(context.Background(), strPtr("Alex"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted.FirstName == nil || *inserted.FirstName != "Alex" {
		t.Errorf("expected explicit first name, got %v", inserted.FirstName)
	}
	if inserted.LastName == nil || *inserted.LastName != "Builder" {
		t.Errorf("expected metadata last name, got %v", inserted.LastName)
	}
}

func TestUpdateProfilePatchesExistingRow(t *testing.T) {
	user := testUser()
	existing := Profile{
		ID:        user.ID,
		FirstName: strPtr("Pat"),
		LastName:  strPtr("Builder"),
		Role:      RoleUser,
	}
	var updated Profile
	store := &storeStub{
		getProfileFn: func(ctx context.Context, id uuid.UUID) (*Profile, error) {
			row := existing
			return &row, nil
		},
		updateProfileFn: func(ctx context.Context, p Profile) (Profile, error) {
			updated = p
			return p, nil
		},
	}
	svc, feed := newTestService(store, user)

	p, err := svc.UpdateProfile(context.Background(), nil, strPtr("Mason"), strPtr("https://example.com/a.png"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.FirstName == nil || *p.FirstName != "Pat" {
		t.Errorf("nil argument should leave first name untouched, got %v", p.FirstName)
	}
	if updated.LastName == nil || *updated.LastName != "Mason" {
		t.Errorf("expected updated last name, got %v", updated.LastName)
	}
	if updated.AvatarURL == nil || *updated.AvatarURL != "https://example.com/a.png" {
		t.Errorf("expected updated avatar, got %v", updated.AvatarURL)
	}

	notes := feed.Pending()
	if len(notes) != 1 || notes[0].Title != "Profile updated" {
		t.Fatalf("expected profile updated notification, got %v", notes)
	}
}

func TestFetchCreatorProfileDegradesOnError(t *testing.T) {
	user := testUser()
	store := &storeStub{
		getCreatorFn: func(ctx context.Context, id uuid.UUID) (*Creator, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc, feed := newTestService(store, user)

	c, err := svc.FetchCreatorProfile(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil creator, got %+v", c)
	}
	if n := feed.Pending(); len(n) != 0 {
		t.Fatalf("expected no notifications, got %v", n)
	}
}

func TestRegisterAsCreator(t *testing.T) {
	user := testUser()
	var inserted Creator
	store := &storeStub{
		insertCreatorFn: func(ctx context.Context, c Creator) (Creator, error) {
			inserted = c
			return c, nil
		},
	}
	svc, feed := newTestService(store, user)

	c, err := svc.RegisterAsCreator(context.Background(), "Acme Permits", "Permit packages", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID != user.ID {
		t.Errorf("expected creator id %s, got %s", user.ID, c.ID)
	}
	if inserted.CompanyName == nil || *inserted.CompanyName != "Acme Permits" {
		t.Errorf("unexpected company name %v", inserted.CompanyName)
	}

	notes := feed.Pending()
	if len(notes) != 1 || notes[0].Title != "Registration complete" {
		t.Fatalf("expected registration notification, got %v", notes)
	}
}

func TestFetchPurchasedWorkflowsDegradesOnError(t *testing.T) {
	user := testUser()
	store := &storeStub{
		listPurchasesFn: func(ctx context.Context, userID uuid.UUID) ([]Purchase, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc, _ := newTestService(store, user)

	if got := svc.FetchPurchasedWorkflows(context.Background()); got != nil {
		t.Fatalf("expected nil on failure, got %v", got)
	}
}

func TestCreateProject(t *testing.T) {
	user := testUser()
	workflowID := uuid.MustParse("0b9bb06d-47cd-4a86-ae39-4a1af2b0a4ec")
	var inserted Chat
	store := &storeStub{
		insertChatFn: func(ctx context.Context, c Chat) (Chat, error) {
			inserted = c
			return c, nil
		},
	}
	svc, _ := newTestService(store, user)

	c, err := svc.CreateProject(context.Background(), workflowID, "Kitchen remodel")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ProjectName != "Kitchen remodel" {
		t.Errorf("unexpected project name %q", c.ProjectName)
	}
	if inserted.UserID != user.ID || inserted.WorkflowID != workflowID {
		t.Errorf("unexpected insert %+v", inserted)
	}
	if inserted.ID == uuid.Nil {
		t.Error("expected a generated project id")
	}
}
