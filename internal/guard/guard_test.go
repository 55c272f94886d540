package guard

import (
	"testing"

	"github.com/google/uuid"

	"permitflow/internal/identity"
	"permitflow/internal/notify"
	"permitflow/internal/session"
)

func loadingState() session.State {
	return session.State{Loading: true}
}

func anonymousState() session.State {
	return session.State{}
}

func signedInState() session.State {
	user := &identity.User{ID: uuid.New(), Email: "pat@example.com"}
	return session.State{
		Session: &identity.Session{AccessToken: "token", User: *user},
		User:    user,
	}
}

func TestProtectWaitsWhileRestoring(t *testing.T) {
	feed := notify.NewFeed(nil)
	g := New(feed)

	out := g.Protect(loadingState(), "/dashboard")
	if out.Decision != Wait {
		t.Fatalf("expected Wait, got %v", out.Decision)
	}
	if n := feed.Pending(); len(n) != 0 {
		t.Fatalf("expected no notifications while restoring, got %v", n)
	}
}

func TestProtectRedirectsAnonymousUser(t *testing.T) {
	feed := notify.NewFeed(nil)
	g := New(feed)

	// Typical mount: waiting first, then the state resolves with no user.
	g.Protect(loadingState(), "/dashboard")
	out := g.Protect(anonymousState(), "/dashboard")

	if out.Decision != Redirect {
		t.Fatalf("expected Redirect, got %v", out.Decision)
	}
	if out.To != LoginPath {
		t.Errorf("expected redirect to %q, got %q", LoginPath, out.To)
	}
	if out.From != "/dashboard" {
		t.Errorf("expected origin path to be remembered, got %q", out.From)
	}

	notes := feed.Pending()
	if len(notes) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(notes))
	}
	if notes[0].Title != "Authentication required" || !notes[0].Destructive {
		t.Fatalf("unexpected notification %+v", notes[0])
	}
}

func TestProtectNotifiesOncePerDeniedStretch(t *testing.T) {
	feed := notify.NewFeed(nil)
	g := New(feed)

	g.Protect(anonymousState(), "/dashboard")
	g.Protect(anonymousState(), "/projects")
	g.Protect(anonymousState(), "/profile")

	if notes := feed.Pending(); len(notes) != 1 {
		t.Fatalf("expected one notification for repeated denials, got %d", len(notes))
	}
}

func TestProtectNotifiesAgainAfterSignOut(t *testing.T) {
	feed := notify.NewFeed(nil)
	g := New(feed)

	g.Protect(anonymousState(), "/dashboard")
	if out := g.Protect(signedInState(), "/dashboard"); out.Decision != Render {
		t.Fatalf("expected Render for signed-in user, got %v", out.Decision)
	}
	g.Protect(anonymousState(), "/dashboard")

	if notes := feed.Pending(); len(notes) != 2 {
		t.Fatalf("expected a notification per denied stretch, got %d", len(notes))
	}
}

func TestProtectRendersSignedInUserSilently(t *testing.T) {
	feed := notify.NewFeed(nil)
	g := New(feed)

	out := g.Protect(signedInState(), "/dashboard")
	if out.Decision != Render {
		t.Fatalf("expected Render, got %v", out.Decision)
	}
	if n := feed.Pending(); len(n) != 0 {
		t.Fatalf("expected no notifications, got %v", n)
	}
}

func TestHomeForwardsSignedInUser(t *testing.T) {
	g := New(notify.NewFeed(nil))

	if out := g.Home(loadingState()); out.Decision != Wait {
		t.Fatalf("expected Wait while restoring, got %v", out.Decision)
	}

	out := g.Home(signedInState())
	if out.Decision != Redirect || out.To != DashboardPath {
		t.Fatalf("expected redirect to dashboard, got %+v", out)
	}

	if out := g.Home(anonymousState()); out.Decision != Render {
		t.Fatalf("expected landing page for anonymous user, got %v", out.Decision)
	}
}
