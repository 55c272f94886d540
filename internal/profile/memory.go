package profile

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps rows in in-process maps, ideal for local development
// or tests. It enforces the same id uniqueness the hosted store does.
type MemoryStore struct {
	mu        sync.RWMutex
	profiles  map[uuid.UUID]Profile
	creators  map[uuid.UUID]Creator
	workflows map[uuid.UUID]Workflow
	purchases map[uuid.UUID]Purchase
	chats     map[uuid.UUID]Chat
}

// NewMemoryStore constructs a store seeded with optional workflows.
func NewMemoryStore(workflows []Workflow) *MemoryStore {
	wf := make(map[uuid.UUID]Workflow, len(workflows))
	for _, w := range workflows {
		wf[w.ID] = w
	}
	return &MemoryStore{
		profiles:  make(map[uuid.UUID]Profile),
		creators:  make(map[uuid.UUID]Creator),
		workflows: wf,
		purchases: make(map[uuid.UUID]Purchase),
		chats:     make(map[uuid.UUID]Chat),
	}
}

// GetProfile returns the profile row, or (nil, nil) when none exists.
func (s *MemoryStore) GetProfile(_ context.Context, id uuid.UUID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// InsertProfile stores a new profile row.
func (s *MemoryStore) InsertProfile(_ context.Context, p Profile) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[p.ID]; exists {
		return Profile{}, ErrDuplicate
	}
	s.profiles[p.ID] = p
	return p, nil
}

// UpdateProfile replaces an existing profile row.
func (s *MemoryStore) UpdateProfile(_ context.Context, p Profile) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[p.ID] = p
	return p, nil
}

// GetCreator returns the creator row, or (nil, nil) when none exists.
func (s *MemoryStore) GetCreator(_ context.Context, id uuid.UUID) (*Creator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.creators[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// InsertCreator stores a new creator row.
func (s *MemoryStore) InsertCreator(_ context.Context, c Creator) (Creator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.creators[c.ID]; exists {
		return Creator{}, ErrDuplicate
	}
	s.creators[c.ID] = c
	return c, nil
}

// GetWorkflow returns a workflow by id, or (nil, nil) when none exists.
func (s *MemoryStore) GetWorkflow(_ context.Context, id uuid.UUID) (*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workflows[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

// ListWorkflows returns the catalog ordered by title.
func (s *MemoryStore) ListWorkflows(_ context.Context) ([]Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// AddPurchase seeds a purchase row (dev/demo helper).
func (s *MemoryStore) AddPurchase(p Purchase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases[p.ID] = p
}

// ListPurchases returns the user's purchases with workflows joined in.
func (s *MemoryStore) ListPurchases(_ context.Context, userID uuid.UUID) ([]Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Purchase, 0)
	for _, p := range s.purchases {
		if p.UserID != userID {
			continue
		}
		if w, ok := s.workflows[p.WorkflowID]; ok {
			wf := w
			p.Workflow = &wf
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchasedAt.After(out[j].PurchasedAt) })
	return out, nil
}

// ListChats returns the user's projects, most recently updated first.
func (s *MemoryStore) ListChats(_ context.Context, userID uuid.UUID) ([]Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Chat, 0)
	for _, c := range s.chats {
		if c.UserID != userID {
			continue
		}
		if w, ok := s.workflows[c.WorkflowID]; ok {
			wf := w
			c.Workflow = &wf
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// InsertChat stores a new project chat.
func (s *MemoryStore) InsertChat(_ context.Context, c Chat) (Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.chats[c.ID]; exists {
		return Chat{}, ErrDuplicate
	}
	s.chats[c.ID] = c
	return c, nil
}
