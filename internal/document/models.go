package document

import (
	"strings"
	"time"

	"github.com/collabdocs/collabdocs/internal/access"
)

// DefaultTitle is used when a document is created without a title.
const DefaultTitle = "Untitled Document"

// Collaborator grants a non-owner access to a document. User holds the
// collaborator's email address.
type Collaborator struct {
	User       string            `json:"user" bson:"user"`
	Permission access.Permission `json:"permission" bson:"permission"`
	AddedAt    time.Time         `json:"addedAt" bson:"addedAt"`
}

// Document is a shared plain-text document. Owner is the creating user's id
// and never changes; the owner never appears in Collaborators.
type Document struct {
	ID            string         `json:"id" bson:"_id"`
	Title         string         `json:"title" bson:"title"`
	Content       string         `json:"content" bson:"content"`
	Owner         string         `json:"owner" bson:"owner"`
	Collaborators []Collaborator `json:"collaborators" bson:"collaborators"`
	CreatedAt     time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt" bson:"updatedAt"`
}

func (d *Document) OwnerID() string { return d.Owner }

func (d *Document) CollaboratorPermission(email string) (access.Permission, bool) {
	for _, c := range d.Collaborators {
		if c.User == email {
			return c.Permission, true
		}
	}
	return "", false
}

// SetCollaborator grants perm to email, updating an existing entry in place
// so each email appears at most once.
func (d *Document) SetCollaborator(email string, perm access.Permission, now time.Time) {
	for i := range d.Collaborators {
		if d.Collaborators[i].User == email {
			d.Collaborators[i].Permission = perm
			return
		}
	}
	d.Collaborators = append(d.Collaborators, Collaborator{User: email, Permission: perm, AddedAt: now})
}

// RemoveCollaborator drops email from the collaborator list.
func (d *Document) RemoveCollaborator(email string) {
	out := d.Collaborators[:0]
	for _, c := range d.Collaborators {
		if c.User != email {
			out = append(out, c)
		}
	}
	d.Collaborators = out
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	cp := *d
	cp.Collaborators = append([]Collaborator(nil), d.Collaborators...)
	return &cp
}

// NormalizeTitle falls back to DefaultTitle when title is blank.
func NormalizeTitle(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return title
	}
	return DefaultTitle
}
