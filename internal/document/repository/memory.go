package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/collabdocs/collabdocs/internal/document"
	"github.com/google/uuid"
)

// MemoryRepo keeps documents in process memory. It is the default store when
// no MongoDB URI is configured and the store used by unit tests. Documents are
// copied on the way in and out so callers never share state with the map.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*document.Document
	now   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*document.Document), now: time.Now}
}

func (m *MemoryRepo) Create(ctx context.Context, doc *document.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.CreatedAt = m.now()
	doc.UpdatedAt = doc.CreatedAt
	if doc.Collaborators == nil {
		doc.Collaborators = []document.Collaborator{}
	}
	m.store[doc.ID] = doc.Clone()
	return doc.ID, nil
}

func (m *MemoryRepo) FindByID(ctx context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return d.Clone(), nil
	}
	return nil, ErrNotFound
}

// mutate applies fn to the stored document under the write lock.
func (m *MemoryRepo) mutate(id string, fn func(d *document.Document)) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	fn(d)
	d.UpdatedAt = m.now()
	return d.Clone(), nil
}

func (m *MemoryRepo) UpdateContent(ctx context.Context, id, content string) (*document.Document, error) {
	return m.mutate(id, func(d *document.Document) { d.Content = content })
}

func (m *MemoryRepo) UpdateTitle(ctx context.Context, id, title string) (*document.Document, error) {
	return m.mutate(id, func(d *document.Document) { d.Title = title })
}

func (m *MemoryRepo) SetCollaborators(ctx context.Context, id string, collaborators []document.Collaborator) (*document.Document, error) {
	cp := append([]document.Collaborator{}, collaborators...)
	return m.mutate(id, func(d *document.Document) { d.Collaborators = cp })
}

func (m *MemoryRepo) ListOwnedBy(ctx context.Context, userID string) ([]*document.Document, error) {
	return m.list(func(d *document.Document) bool { return d.Owner == userID }), nil
}

func (m *MemoryRepo) ListSharedWith(ctx context.Context, email string) ([]*document.Document, error) {
	return m.list(func(d *document.Document) bool {
		_, ok := d.CollaboratorPermission(email)
		return ok
	}), nil
}

func (m *MemoryRepo) list(match func(*document.Document) bool) []*document.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0)
	for _, d := range m.store {
		if match(d) {
			out = append(out, d.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (m *MemoryRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}
