package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryStoreProfileLifecycle(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	id := uuid.New()

	p, err := store.GetProfile(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected no row, got %+v", p)
	}

	row := Profile{ID: id, FirstName: strPtr("Pat"), Role: RoleUser}
	if _, err := store.InsertProfile(ctx, row); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := store.InsertProfile(ctx, row); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	p, err = store.GetProfile(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || *p.FirstName != "Pat" {
		t.Fatalf("unexpected row %+v", p)
	}

	// The returned row is a copy; mutating it must not affect the store.
	p.FirstName = strPtr("Mutated")
	again, _ := store.GetProfile(ctx, id)
	if *again.FirstName != "Pat" {
		t.Fatalf("stored row was mutated through a returned copy")
	}
}

func TestMemoryStoreJoinsWorkflows(t *testing.T) {
	workflowID := uuid.New()
	store := NewMemoryStore([]Workflow{{ID: workflowID, Title: "Deck permit"}})
	ctx := context.Background()
	userID := uuid.New()

	chat := Chat{
		ID:         uuid.New(),
		UserID:     userID,
		WorkflowID: workflowID,
		UpdatedAt:  time.Now(),
	}
	if _, err := store.InsertChat(ctx, chat); err != nil {
		t.Fatalf("insert chat failed: %v", err)
	}

	store.AddPurchase(Purchase{
		ID:          uuid.New(),
		UserID:      userID,
		WorkflowID:  workflowID,
		PurchasedAt: time.Now(),
	})

	chats, err := store.ListChats(ctx, userID)
	if err != nil {
		t.Fatalf("list chats failed: %v", err)
	}
	if len(chats) != 1 || chats[0].Workflow == nil || chats[0].Workflow.Title != "Deck permit" {
		t.Fatalf("expected joined workflow, got %+v", chats)
	}

	purchases, err := store.ListPurchases(ctx, userID)
	if err != nil {
		t.Fatalf("list purchases failed: %v", err)
	}
	if len(purchases) != 1 || purchases[0].Workflow == nil {
		t.Fatalf("expected joined workflow, got %+v", purchases)
	}

	if other, _ := store.ListChats(ctx, uuid.New()); len(other) != 0 {
		t.Fatalf("expected no chats for other user, got %v", other)
	}
}
