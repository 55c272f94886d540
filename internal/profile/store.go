package profile

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrDuplicate is returned by inserts that violate a uniqueness constraint.
// The store's id constraint, not client-side locking, is what enforces the
// one-profile-per-user invariant under concurrent provisioning.
var ErrDuplicate = errors.New("row already exists")

// Store is the row-level interface over the remote relational store.
// Lookups return (nil, nil) when no row exists.
type Store interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error)
	InsertProfile(ctx context.Context, p Profile) (Profile, error)
	UpdateProfile(ctx context.Context, p Profile) (Profile, error)

	GetCreator(ctx context.Context, id uuid.UUID) (*Creator, error)
	InsertCreator(ctx context.Context, c Creator) (Creator, error)

	GetWorkflow(ctx context.Context, id uuid.UUID) (*Workflow, error)
	ListWorkflows(ctx context.Context) ([]Workflow, error)

	ListPurchases(ctx context.Context, userID uuid.UUID) ([]Purchase, error)

	ListChats(ctx context.Context, userID uuid.UUID) ([]Chat, error)
	InsertChat(ctx context.Context, c Chat) (Chat, error)
}
