package repository

import (
	"context"
	"errors"

	"github.com/collabdocs/collabdocs/internal/document"
)

var (
	ErrNotFound = errors.New("document not found")
)

// Store is the persistence boundary for documents. Implementations must give
// read-your-writes consistency within one process. Updates touch only their
// own field, so a rename never overwrites content written in between, and
// none of them recreate a document that does not exist.
type Store interface {
	Create(ctx context.Context, doc *document.Document) (string, error)
	FindByID(ctx context.Context, id string) (*document.Document, error)
	UpdateContent(ctx context.Context, id, content string) (*document.Document, error)
	UpdateTitle(ctx context.Context, id, title string) (*document.Document, error)
	SetCollaborators(ctx context.Context, id string, collaborators []document.Collaborator) (*document.Document, error)
	ListOwnedBy(ctx context.Context, userID string) ([]*document.Document, error)
	ListSharedWith(ctx context.Context, email string) ([]*document.Document, error)
	Delete(ctx context.Context, id string) error
}
