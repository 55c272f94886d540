// Package guard decides whether the current auth state may see a protected
// view. It is transport-agnostic; the HTTP layer translates its outcomes
// into responses.
package guard

import (
	"sync"

	"permitflow/internal/notify"
	"permitflow/internal/session"
)

// Decision is what a protected view should do with the current request.
type Decision int

const (
	// Wait means session restoration has not finished; show a pending
	// indicator and re-evaluate when the state settles.
	Wait Decision = iota
	// Render means the user is authenticated and the view may proceed.
	Render
	// Redirect means the user must be sent to To, remembering From so a
	// later sign-in can return them.
	Redirect
)

// Outcome is the result of evaluating a protected view against the
// current auth state.
type Outcome struct {
	Decision Decision
	To       string
	From     string
}

// LoginPath is where unauthenticated users are sent.
const LoginPath = "/login"

// DashboardPath is where signed-in users land from the public home page.
const DashboardPath = "/dashboard"

// Guard gates protected views on the session state. The access-denied
// notification fires once per transition into the unauthenticated state,
// not once per blocked view.
type Guard struct {
	notifier notify.Notifier

	mu       sync.Mutex
	notified bool
}

// New constructs a Guard.
func New(notifier notify.Notifier) *Guard {
	return &Guard{notifier: notifier}
}

// Protect evaluates a protected view at path against the auth state.
func (g *Guard) Protect(st session.State, path string) Outcome {
	if st.Loading {
		return Outcome{Decision: Wait}
	}

	if st.User == nil {
		g.notifyOnce()
		return Outcome{Decision: Redirect, To: LoginPath, From: path}
	}

	g.reset()
	return Outcome{Decision: Render}
}

// Home evaluates the public landing page: signed-in users are forwarded
// to the dashboard, everyone else sees the page.
func (g *Guard) Home(st session.State) Outcome {
	if st.Loading {
		return Outcome{Decision: Wait}
	}

	if st.User != nil {
		g.reset()
		return Outcome{Decision: Redirect, To: DashboardPath}
	}
	return Outcome{Decision: Render}
}

func (g *Guard) notifyOnce() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.notified {
		return
	}
	g.notified = true
	g.notifier.Error("Authentication required", "Please sign in to access this page")
}

func (g *Guard) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notified = false
}
