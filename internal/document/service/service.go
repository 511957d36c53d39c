package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/collabdocs/collabdocs/internal/access"
	"github.com/collabdocs/collabdocs/internal/apperr"
	"github.com/collabdocs/collabdocs/internal/document"
	"github.com/collabdocs/collabdocs/internal/document/repository"
	"github.com/collabdocs/collabdocs/pkg/logger"
	"github.com/collabdocs/collabdocs/pkg/metrics"
)

// RoomEvictor is told when a document disappears or loses a collaborator so
// live editing rooms can drop the affected connections.
type RoomEvictor interface {
	EvictDocument(ctx context.Context, docID string)
	RevokeAccess(ctx context.Context, docID string)
}

// Listed is a document together with the caller's effective permission.
type Listed struct {
	*document.Document
	Permission access.Permission `json:"permission"`
}

// Service implements document CRUD and sharing on top of a Store, checking
// every operation with the access evaluator.
type Service struct {
	store   repository.Store
	evictor RoomEvictor
	now     func() time.Time
}

// New returns a Service. evictor may be nil.
func New(store repository.Store, evictor RoomEvictor) *Service {
	return &Service{store: store, evictor: evictor, now: func() time.Time { return time.Now().UTC() }}
}

func storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("Document not found")
	}
	metrics.DocumentStoreErrors.WithLabelValues(op).Inc()
	return apperr.TransientStore(op, err)
}

// authorize loads id and checks who against required.
func (s *Service) authorize(ctx context.Context, who access.Identity, id string, required access.Permission) (*document.Document, access.Permission, error) {
	doc, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, "", storeErr("find", err)
	}
	d := access.Evaluate(doc, who, required)
	if err := d.Err(); err != nil {
		return nil, d.Effective, err
	}
	return doc, d.Effective, nil
}

// Create stores a new empty document owned by who.
func (s *Service) Create(ctx context.Context, who access.Identity, title string) (*document.Document, error) {
	doc := &document.Document{
		Title:         document.NormalizeTitle(title),
		Owner:         who.UserID,
		Collaborators: []document.Collaborator{},
	}
	if _, err := s.store.Create(ctx, doc); err != nil {
		return nil, storeErr("create", err)
	}
	logger.Infow("document created", "doc", doc.ID, "owner", who.UserID)
	return doc, nil
}

// List returns the documents owned by who followed by those shared with who.
func (s *Service) List(ctx context.Context, who access.Identity) ([]Listed, error) {
	owned, err := s.store.ListOwnedBy(ctx, who.UserID)
	if err != nil {
		return nil, storeErr("list", err)
	}
	out := make([]Listed, 0, len(owned))
	for _, d := range owned {
		out = append(out, Listed{Document: d, Permission: access.PermissionOwner})
	}
	if who.Email == "" {
		return out, nil
	}
	shared, err := s.store.ListSharedWith(ctx, who.Email)
	if err != nil {
		return nil, storeErr("list", err)
	}
	for _, d := range shared {
		perm, _ := d.CollaboratorPermission(who.Email)
		out = append(out, Listed{Document: d, Permission: perm})
	}
	return out, nil
}

// Get returns the document when who may view it.
func (s *Service) Get(ctx context.Context, who access.Identity, id string) (Listed, error) {
	doc, perm, err := s.authorize(ctx, who, id, access.PermissionViewer)
	if err != nil {
		return Listed{}, err
	}
	return Listed{Document: doc, Permission: perm}, nil
}

// UpdateContent overwrites the content; last write wins.
func (s *Service) UpdateContent(ctx context.Context, who access.Identity, id, content string) (*document.Document, error) {
	if _, _, err := s.authorize(ctx, who, id, access.PermissionEditor); err != nil {
		return nil, err
	}
	doc, err := s.store.UpdateContent(ctx, id, content)
	if err != nil {
		return nil, storeErr("update_content", err)
	}
	return doc, nil
}

// UpdateTitle renames the document. Owner only.
func (s *Service) UpdateTitle(ctx context.Context, who access.Identity, id, title string) (*document.Document, error) {
	doc, _, err := s.authorize(ctx, who, id, access.PermissionOwner)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(title) == "" {
		return nil, apperr.Validation("Title cannot be empty")
	}
	updated, err := s.store.UpdateTitle(ctx, doc.ID, title)
	if err != nil {
		return nil, storeErr("update_title", err)
	}
	return updated, nil
}

// Share grants perm to email, replacing any earlier grant for that email.
// Owner only.
func (s *Service) Share(ctx context.Context, who access.Identity, id, email, perm string) (*document.Document, error) {
	doc, _, err := s.authorize(ctx, who, id, access.PermissionOwner)
	if err != nil {
		return nil, err
	}
	if email == "" || perm == "" {
		return nil, apperr.Validation("Email and permission are required")
	}
	p := access.Permission(perm)
	if !p.Shareable() {
		return nil, apperr.Validation("Invalid permission type")
	}
	if email == who.Email {
		return nil, apperr.Validation("Cannot share with yourself")
	}
	doc.SetCollaborator(email, p, s.now())
	updated, err := s.store.SetCollaborators(ctx, id, doc.Collaborators)
	if err != nil {
		return nil, storeErr("set_collaborators", err)
	}
	logger.Infow("document shared", "doc", id, "with", email, "permission", p)
	return updated, nil
}

// Unshare removes email from the collaborators. Owner only.
func (s *Service) Unshare(ctx context.Context, who access.Identity, id, email string) (*document.Document, error) {
	doc, _, err := s.authorize(ctx, who, id, access.PermissionOwner)
	if err != nil {
		return nil, err
	}
	if _, ok := doc.CollaboratorPermission(email); !ok {
		return doc, nil
	}
	doc.RemoveCollaborator(email)
	updated, err := s.store.SetCollaborators(ctx, id, doc.Collaborators)
	if err != nil {
		return nil, storeErr("set_collaborators", err)
	}
	if s.evictor != nil {
		s.evictor.RevokeAccess(ctx, id)
	}
	logger.Infow("document unshared", "doc", id, "with", email)
	return updated, nil
}

// Delete removes the document and closes its live room. Owner only.
func (s *Service) Delete(ctx context.Context, who access.Identity, id string) error {
	if _, _, err := s.authorize(ctx, who, id, access.PermissionOwner); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return storeErr("delete", err)
	}
	if s.evictor != nil {
		s.evictor.EvictDocument(ctx, id)
	}
	logger.Infow("document deleted", "doc", id, "by", who.UserID)
	return nil
}
