// Package access decides what an identity may do with a shared document.
package access

import "github.com/collabdocs/collabdocs/internal/apperr"

// Permission is a capability level. Levels are totally ordered:
// viewer < editor < owner.
type Permission string

const (
	PermissionViewer Permission = "viewer"
	PermissionEditor Permission = "editor"
	PermissionOwner  Permission = "owner"
)

func (p Permission) rank() int {
	switch p {
	case PermissionViewer:
		return 1
	case PermissionEditor:
		return 2
	case PermissionOwner:
		return 3
	}
	return 0
}

// Valid reports whether p is one of the known levels.
func (p Permission) Valid() bool { return p.rank() > 0 }

// Shareable reports whether p may be granted to a collaborator.
func (p Permission) Shareable() bool {
	return p == PermissionViewer || p == PermissionEditor
}

// AtLeast reports whether p satisfies the required level.
func (p Permission) AtLeast(required Permission) bool {
	return p.Valid() && p.rank() >= required.rank()
}

// Identity is the authenticated caller. Owners are matched by UserID,
// collaborators by Email.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

// Resource is the view of a document the evaluator needs.
type Resource interface {
	OwnerID() string
	CollaboratorPermission(email string) (Permission, bool)
}

// Decision is the outcome of Evaluate. Effective is set whenever the caller
// has any access at all, even if the required level was not met.
type Decision struct {
	Allowed   bool
	Effective Permission
	Reason    string
}

// Err converts a denial into a Forbidden error; nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperr.Forbidden(d.Reason)
}

const (
	ReasonAccessDenied   = "Access denied"
	ReasonOwnerRequired  = "Only owner can perform this action"
	ReasonEditorRequired = "Editor permission required"
)

// Evaluate resolves the effective permission of who on res and checks it against
// required. It has no side effects.
func Evaluate(res Resource, who Identity, required Permission) Decision {
	if who.UserID != "" && who.UserID == res.OwnerID() {
		return Decision{Allowed: true, Effective: PermissionOwner}
	}
	perm, ok := res.CollaboratorPermission(who.Email)
	if !ok || who.Email == "" {
		return Decision{Reason: ReasonAccessDenied}
	}
	d := Decision{Allowed: true, Effective: perm}
	switch {
	case required == PermissionOwner:
		d.Allowed, d.Reason = false, ReasonOwnerRequired
	case !perm.AtLeast(required):
		d.Allowed, d.Reason = false, ReasonEditorRequired
	}
	return d
}
