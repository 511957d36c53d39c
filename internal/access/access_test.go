package access

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDoc struct {
	owner  string
	grants map[string]Permission
}

func (f fakeDoc) OwnerID() string { return f.owner }

func (f fakeDoc) CollaboratorPermission(email string) (Permission, bool) {
	p, ok := f.grants[email]
	return p, ok
}

var levels = []Permission{PermissionViewer, PermissionEditor, PermissionOwner}

func TestEvaluate_OwnerAlwaysAllowed(t *testing.T) {
	doc := fakeDoc{owner: "u-owner", grants: map[string]Permission{"o@example.com": PermissionViewer}}
	who := Identity{UserID: "u-owner", Email: "o@example.com"}
	for _, lvl := range levels {
		d := Evaluate(doc, who, lvl)
		require.True(t, d.Allowed, "level %s", lvl)
		require.Equal(t, PermissionOwner, d.Effective)
		require.NoError(t, d.Err())
	}
}

func TestEvaluate_StrangerDeniedEverywhere(t *testing.T) {
	doc := fakeDoc{owner: "u-owner", grants: map[string]Permission{"y@example.com": PermissionEditor}}
	who := Identity{UserID: "u-x", Email: "x@example.com"}
	for _, lvl := range levels {
		d := Evaluate(doc, who, lvl)
		require.False(t, d.Allowed, "level %s", lvl)
		require.Equal(t, ReasonAccessDenied, d.Reason)
		require.Error(t, d.Err())
	}
}

func TestEvaluate_Collaborators(t *testing.T) {
	doc := fakeDoc{owner: "u-owner", grants: map[string]Permission{
		"v@example.com": PermissionViewer,
		"e@example.com": PermissionEditor,
	}}
	cases := []struct {
		name     string
		email    string
		required Permission
		allow    bool
		reason   string
	}{
		{name: "viewer reads", email: "v@example.com", required: PermissionViewer, allow: true},
		{name: "viewer writes", email: "v@example.com", required: PermissionEditor, reason: ReasonEditorRequired},
		{name: "viewer administers", email: "v@example.com", required: PermissionOwner, reason: ReasonOwnerRequired},
		{name: "editor reads", email: "e@example.com", required: PermissionViewer, allow: true},
		{name: "editor writes", email: "e@example.com", required: PermissionEditor, allow: true},
		{name: "editor administers", email: "e@example.com", required: PermissionOwner, reason: ReasonOwnerRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Evaluate(doc, Identity{UserID: "someone", Email: tc.email}, tc.required)
			require.Equal(t, tc.allow, d.Allowed)
			require.Equal(t, tc.reason, d.Reason)
			require.Equal(t, doc.grants[tc.email], d.Effective)
		})
	}
}

func TestEvaluate_EmptyIdentityNeverMatches(t *testing.T) {
	doc := fakeDoc{owner: "", grants: map[string]Permission{"": PermissionEditor}}
	d := Evaluate(doc, Identity{}, PermissionViewer)
	require.False(t, d.Allowed)
}

func TestPermissionOrdering(t *testing.T) {
	require.True(t, PermissionOwner.AtLeast(PermissionEditor))
	require.True(t, PermissionEditor.AtLeast(PermissionViewer))
	require.False(t, PermissionViewer.AtLeast(PermissionEditor))
	require.False(t, Permission("admin").AtLeast(PermissionViewer))
	require.True(t, PermissionEditor.Shareable())
	require.False(t, PermissionOwner.Shareable())
	require.False(t, Permission("").Valid())
}
