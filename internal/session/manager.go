// Package session owns the process-wide authentication state. The Manager
// is constructed once at startup and shared by every consumer; it is the
// only writer of that state.
package session

import (
	"context"
	"log/slog"
	"sync"

	"permitflow/internal/identity"
	"permitflow/internal/notify"
)

// State is a consistent snapshot of the auth state. User is non-nil
// exactly when Session is non-nil, so consumers never observe a torn read.
type State struct {
	Session *identity.Session
	User    *identity.User
	Loading bool
}

// Navigator receives view transitions driven by the auth change stream.
type Navigator interface {
	Navigate(path string)
}

// Manager wraps the identity client and exposes sign-in/up/out operations.
// State mutations flow through exactly two paths: the auth change
// subscription and the one-time initial restore. The operations themselves
// never touch the state, which keeps call sites and stream updates from
// diverging.
type Manager struct {
	client              identity.Client
	notifier            notify.Notifier
	navigator           Navigator
	logger              *slog.Logger
	requireVerification bool

	mu          sync.RWMutex
	session     *identity.Session
	loading     bool
	streamWrote bool
	unsubscribe func()
	closeOnce   sync.Once
	restoreOnce sync.Once

	subMu       sync.Mutex
	subscribers map[int]func(State)
	nextSub     int
}

// New creates the Manager and registers its auth change listener. The
// listener is registered before any session lookup so a change fired during
// the initial restore cannot be lost. Call Restore afterwards to resolve
// the initial session; until then Loading is true.
func New(client identity.Client, notifier notify.Notifier, navigator Navigator, logger *slog.Logger, requireVerification bool) *Manager {
	m := &Manager{
		client:              client,
		notifier:            notifier,
		navigator:           navigator,
		logger:              logger,
		requireVerification: requireVerification,
		loading:             true,
		subscribers:         make(map[int]func(State)),
	}

	m.unsubscribe = client.OnAuthStateChange(m.handleChange)
	return m
}

// Restore resolves the initial session snapshot. Loading is cleared whether
// or not the lookup succeeds; a failed restore simply means no session.
// Only the first call has any effect.
func (m *Manager) Restore(ctx context.Context) {
	m.restoreOnce.Do(func() {
		sess, err := m.client.GetSession(ctx)
		if err != nil {
			m.logger.Warn("initial session check failed", "error", err)
			sess = nil
		}

		m.mu.Lock()
		if m.loading {
			// A change event that raced the restore already wrote fresher
			// state; keep it and only clear the loading flag.
			if !m.streamWrote {
				m.session = sess
			}
			m.loading = false
		}
		st := m.snapshotLocked()
		m.mu.Unlock()

		m.logger.Info("initial session check", "found", st.User != nil)
		m.publish(st)
	})
}

// Close tears down the auth change subscription. Invoked once at shutdown.
func (m *Manager) Close() {
	m.closeOnce.Do(m.unsubscribe)
}

// State returns a consistent snapshot of the auth state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// CurrentUser returns the authenticated user, or nil.
func (m *Manager) CurrentUser() *identity.User {
	return m.State().User
}

// AccessToken returns the current session's bearer token, or "".
func (m *Manager) AccessToken() string {
	st := m.State()
	if st.Session == nil {
		return ""
	}
	return st.Session.AccessToken
}

// Subscribe registers fn for future state snapshots and returns a disposer.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subscribers, id)
			m.subMu.Unlock()
		})
	}
}

// SignIn authenticates with email and password. On failure the user is
// notified and the error returned so the calling form can stay open. On
// success the state update and welcome notification arrive through the
// change stream, never from here.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	if err := m.client.SignInWithPassword(ctx, email, password); err != nil {
		m.notifier.Error("Sign in failed", err.Error())
		return err
	}
	return nil
}

// SignInWithGoogle exchanges a verified Google ID token for a session.
// Failure handling mirrors SignIn.
func (m *Manager) SignInWithGoogle(ctx context.Context, idToken string) error {
	if err := m.client.SignInWithIDToken(ctx, "google", idToken); err != nil {
		m.notifier.Error("Sign in failed", err.Error())
		return err
	}
	return nil
}

// SignUp registers a new account with optional profile metadata. Whether
// the user is routed to the verification-pending view is controlled by the
// single RequireEmailVerification flag.
func (m *Manager) SignUp(ctx context.Context, email, password string, metadata identity.UserMetadata) error {
	if err := m.client.SignUp(ctx, email, password, metadata); err != nil {
		m.notifier.Error("Sign up failed", err.Error())
		return err
	}

	if m.requireVerification {
		m.notifier.Success("Account created", "Please check your email to verify your account")
		if m.navigator != nil {
			m.navigator.Navigate("/verify")
		}
	} else {
		m.notifier.Success("Account created", "Your account has been created successfully")
	}
	return nil
}

// SignOut revokes the current session. On failure the user is notified and
// the error re-raised; the auth state is left untouched. On success the
// change stream drives the state transition and navigation to login.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.client.SignOut(ctx); err != nil {
		m.logger.Error("sign out failed", "error", err)
		m.notifier.Error("Error signing out", err.Error())
		return err
	}
	return nil
}

// handleChange is the single stream-driven writer of the auth state.
func (m *Manager) handleChange(event identity.Event, sess *identity.Session) {
	m.mu.Lock()
	m.session = sess
	m.streamWrote = true
	st := m.snapshotLocked()
	m.mu.Unlock()

	switch event {
	case identity.EventSignedIn:
		m.notifier.Success("Welcome back!", "You've successfully signed in")
	case identity.EventSignedOut:
		m.notifier.Success("Signed out", "You've been signed out successfully")
		if m.navigator != nil {
			m.navigator.Navigate("/login")
		}
	case identity.EventTokenRefreshed:
		m.logger.Debug("auth token refreshed")
	}

	m.publish(st)
}

func (m *Manager) snapshotLocked() State {
	st := State{Loading: m.loading}
	if m.session != nil {
		sess := *m.session
		user := sess.User
		st.Session = &sess
		st.User = &user
	}
	return st
}

func (m *Manager) publish(st State) {
	m.subMu.Lock()
	fns := make([]func(State), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}
