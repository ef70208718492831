package pages

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type childKey struct {
	parent uuid.UUID
	name   string
}

// MemoryStore keeps pages in process memory. It backs tests and dry runs.
type MemoryStore struct {
	mu     sync.RWMutex
	pages  map[uuid.UUID]*Page
	byName map[childKey]uuid.UUID
	order  []uuid.UUID
	now    func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pages:  make(map[uuid.UUID]*Page),
		byName: make(map[childKey]uuid.UUID),
		now:    time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pages[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %s", ErrNotFound, id)
	}
	return p.clone(), nil
}

func (s *MemoryStore) FindByName(_ context.Context, parentID uuid.UUID, name string) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[childKey{parentID, name}]
	if !ok {
		return nil, fmt.Errorf("%w: name %q", ErrNotFound, name)
	}
	return s.pages[id].clone(), nil
}

func (s *MemoryStore) FindByTitle(_ context.Context, parentID uuid.UUID, title string) (*Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		p := s.pages[id]
		if p.ParentID == parentID && !p.Hidden && strings.EqualFold(p.Title(), title) {
			return p.clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: title %q", ErrNotFound, title)
}

func (s *MemoryStore) NameExists(_ context.Context, parentID uuid.UUID, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byName[childKey{parentID, name}]
	return ok, nil
}

func (s *MemoryStore) Save(_ context.Context, p *Page) (SaveResult, error) {
	if err := prepareSave(p); err != nil {
		return SaveResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if p.IsNew() {
		key := childKey{p.ParentID, p.Name}
		if _, taken := s.byName[key]; taken {
			return SaveResult{}, fmt.Errorf("%w: %q", ErrNameTaken, p.Name)
		}
		p.ID = uuid.New()
		p.Created, p.Modified = now, now
		changes := p.Changes()
		p.resetChanges()
		s.pages[p.ID] = p.clone()
		s.byName[key] = p.ID
		s.order = append(s.order, p.ID)
		return SaveResult{Created: true, Written: true, Changes: changes}, nil
	}

	stored, ok := s.pages[p.ID]
	if !ok {
		return SaveResult{}, fmt.Errorf("%w: id %s", ErrNotFound, p.ID)
	}
	if stored.Name != p.Name || stored.ParentID != p.ParentID {
		key := childKey{p.ParentID, p.Name}
		if _, taken := s.byName[key]; taken {
			return SaveResult{}, fmt.Errorf("%w: %q", ErrNameTaken, p.Name)
		}
		delete(s.byName, childKey{stored.ParentID, stored.Name})
		s.byName[key] = p.ID
	} else if len(p.changed) == 0 && stored.Hidden == p.Hidden {
		return SaveResult{}, nil
	}

	changes := p.Changes()
	p.Modified = now
	p.resetChanges()
	s.pages[p.ID] = p.clone()
	return SaveResult{Written: true, Changes: changes}, nil
}

// Len returns the number of stored pages.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// Children returns the pages directly under parentID in creation order.
func (s *MemoryStore) Children(parentID uuid.UUID) []*Page {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Page
	for _, id := range s.order {
		if p := s.pages[id]; p.ParentID == parentID {
			out = append(out, p.clone())
		}
	}
	return out
}
