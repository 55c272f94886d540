package notify

import "testing"

func TestFeedRecordsAndDrains(t *testing.T) {
	feed := NewFeed(nil)
	feed.Success("Welcome back!", "You've successfully signed in")
	feed.Error("Sign in failed", "invalid credentials")

	pending := feed.Pending()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending notifications, got %d", len(pending))
	}
	if pending[0].Destructive {
		t.Fatal("success notification marked destructive")
	}
	if !pending[1].Destructive {
		t.Fatal("error notification not marked destructive")
	}

	drained := feed.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained notifications, got %d", len(drained))
	}
	if got := feed.Drain(); len(got) != 0 {
		t.Fatalf("expected empty feed after drain, got %d", len(got))
	}
}

func TestFeedForwardsToNext(t *testing.T) {
	inner := NewFeed(nil)
	outer := NewFeed(inner)

	outer.Error("Error signing out", "network unreachable")

	if len(inner.Pending()) != 1 {
		t.Fatal("expected notification to be forwarded to next notifier")
	}
}
