package service

import (
	"context"
	"errors"
	"testing"

	"github.com/collabdocs/collabdocs/internal/access"
	"github.com/collabdocs/collabdocs/internal/apperr"
	"github.com/collabdocs/collabdocs/internal/document"
	"github.com/collabdocs/collabdocs/internal/document/repository"
	"github.com/stretchr/testify/require"
)

var (
	owner = access.Identity{UserID: "u-x", Email: "x@example.com", Name: "X"}
	guest = access.Identity{UserID: "u-y", Email: "y@example.com", Name: "Y"}
	other = access.Identity{UserID: "u-z", Email: "z@example.com", Name: "Z"}
)

type recordingEvictor struct{ evicted, revoked []string }

func (r *recordingEvictor) EvictDocument(ctx context.Context, docID string) {
	r.evicted = append(r.evicted, docID)
}

func (r *recordingEvictor) RevokeAccess(ctx context.Context, docID string) {
	r.revoked = append(r.revoked, docID)
}

// failingStore wraps a MemoryRepo and fails selected operations.
type failingStore struct {
	*repository.MemoryRepo
	failWrites bool
}

func (f *failingStore) UpdateTitle(ctx context.Context, id, title string) (*document.Document, error) {
	if f.failWrites {
		return nil, errors.New("write timeout")
	}
	return f.MemoryRepo.UpdateTitle(ctx, id, title)
}

// racingStore lands a live content write right after every load, the way a
// socket edit can arrive while an HTTP request is in flight.
type racingStore struct {
	*repository.MemoryRepo
	edit string
}

func (r *racingStore) FindByID(ctx context.Context, id string) (*document.Document, error) {
	d, err := r.MemoryRepo.FindByID(ctx, id)
	if err == nil {
		_, err = r.MemoryRepo.UpdateContent(ctx, id, r.edit)
	}
	return d, err
}

func TestCreateDefaultsAndRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := New(repository.NewMemoryRepo(), nil)

	untitled, err := svc.Create(ctx, owner, "")
	require.NoError(t, err)
	require.Equal(t, document.DefaultTitle, untitled.Title)
	require.Equal(t, owner.UserID, untitled.Owner)

	d, err := svc.Create(ctx, owner, "T")
	require.NoError(t, err)
	_, err = svc.UpdateContent(ctx, owner, d.ID, "C")
	require.NoError(t, err)

	got, err := svc.Get(ctx, owner, d.ID)
	require.NoError(t, err)
	require.Equal(t, "T", got.Title)
	require.Equal(t, "C", got.Content)
	require.Equal(t, access.PermissionOwner, got.Permission)
}

func TestShareUpgradeScenario(t *testing.T) {
	ctx := context.Background()
	svc := New(repository.NewMemoryRepo(), nil)
	d, err := svc.Create(ctx, owner, "")
	require.NoError(t, err)

	_, err = svc.Share(ctx, owner, d.ID, guest.Email, "viewer")
	require.NoError(t, err)

	got, err := svc.Get(ctx, guest, d.ID)
	require.NoError(t, err)
	require.Equal(t, access.PermissionViewer, got.Permission)

	_, err = svc.UpdateContent(ctx, guest, d.ID, "nope")
	require.True(t, apperr.Is(err, apperr.KindForbidden))

	shared, err := svc.Share(ctx, owner, d.ID, guest.Email, "editor")
	require.NoError(t, err)
	require.Len(t, shared.Collaborators, 1, "re-sharing must not duplicate the collaborator")

	_, err = svc.UpdateContent(ctx, guest, d.ID, "edited by y")
	require.NoError(t, err)
	got, err = svc.Get(ctx, owner, d.ID)
	require.NoError(t, err)
	require.Equal(t, "edited by y", got.Content)
}

func TestShareValidation(t *testing.T) {
	ctx := context.Background()
	svc := New(repository.NewMemoryRepo(), nil)
	d, err := svc.Create(ctx, owner, "doc")
	require.NoError(t, err)

	cases := []struct {
		name, email, perm, msg string
	}{
		{name: "missing email", perm: "viewer", msg: "Email and permission are required"},
		{name: "missing permission", email: "a@example.com", msg: "Email and permission are required"},
		{name: "owner enum", email: "a@example.com", perm: "owner", msg: "Invalid permission type"},
		{name: "unknown enum", email: "a@example.com", perm: "admin", msg: "Invalid permission type"},
		{name: "self", email: owner.Email, perm: "editor", msg: "Cannot share with yourself"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Share(ctx, owner, d.ID, tc.email, tc.perm)
			require.True(t, apperr.Is(err, apperr.KindValidation))
			require.Equal(t, tc.msg, apperr.Message(err))
		})
	}
}

func TestOwnerOnlyOperations(t *testing.T) {
	ctx := context.Background()
	svc := New(repository.NewMemoryRepo(), nil)
	d, err := svc.Create(ctx, owner, "doc")
	require.NoError(t, err)
	_, err = svc.Share(ctx, owner, d.ID, guest.Email, "editor")
	require.NoError(t, err)

	_, err = svc.UpdateTitle(ctx, guest, d.ID, "hijack")
	require.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = svc.Share(ctx, guest, d.ID, other.Email, "editor")
	require.True(t, apperr.Is(err, apperr.KindForbidden))
	require.True(t, apperr.Is(svc.Delete(ctx, guest, d.ID), apperr.KindForbidden))

	_, err = svc.Get(ctx, other, d.ID)
	require.True(t, apperr.Is(err, apperr.KindForbidden))
	require.Equal(t, access.ReasonAccessDenied, apperr.Message(err))

	_, err = svc.UpdateTitle(ctx, owner, d.ID, "  ")
	require.True(t, apperr.Is(err, apperr.KindValidation))

	renamed, err := svc.UpdateTitle(ctx, owner, d.ID, "Renamed")
	require.NoError(t, err)
	require.Equal(t, "Renamed", renamed.Title)

	unshared, err := svc.Unshare(ctx, owner, d.ID, guest.Email)
	require.NoError(t, err)
	require.Empty(t, unshared.Collaborators)
	_, err = svc.Get(ctx, guest, d.ID)
	require.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestListOwnedThenShared(t *testing.T) {
	ctx := context.Background()
	svc := New(repository.NewMemoryRepo(), nil)
	mine, err := svc.Create(ctx, guest, "mine")
	require.NoError(t, err)
	theirs, err := svc.Create(ctx, owner, "theirs")
	require.NoError(t, err)
	_, err = svc.Share(ctx, owner, theirs.ID, guest.Email, "viewer")
	require.NoError(t, err)

	list, err := svc.List(ctx, guest)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, mine.ID, list[0].ID)
	require.Equal(t, access.PermissionOwner, list[0].Permission)
	require.Equal(t, theirs.ID, list[1].ID)
	require.Equal(t, access.PermissionViewer, list[1].Permission)
}

func TestDeleteEvictsRoom(t *testing.T) {
	ctx := context.Background()
	ev := &recordingEvictor{}
	svc := New(repository.NewMemoryRepo(), ev)
	d, err := svc.Create(ctx, owner, "doc")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, owner, d.ID))
	require.Equal(t, []string{d.ID}, ev.evicted)

	_, err = svc.Get(ctx, owner, d.ID)
	require.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestStoreFailureIsTransient(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryRepo: repository.NewMemoryRepo()}
	svc := New(store, nil)
	d, err := svc.Create(ctx, owner, "doc")
	require.NoError(t, err)

	store.failWrites = true
	_, err = svc.UpdateTitle(ctx, owner, d.ID, "new")
	require.True(t, apperr.Is(err, apperr.KindTransientStore))
	require.Equal(t, "Server error", apperr.Message(err))
}

func TestMetadataWritesKeepConcurrentContent(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{MemoryRepo: repository.NewMemoryRepo(), edit: "edit from socket"}
	svc := New(store, nil)
	d, err := svc.Create(ctx, owner, "T")
	require.NoError(t, err)

	renamed, err := svc.UpdateTitle(ctx, owner, d.ID, "T2")
	require.NoError(t, err)
	require.Equal(t, "edit from socket", renamed.Content)

	store.edit = "second edit"
	_, err = svc.Share(ctx, owner, d.ID, guest.Email, "editor")
	require.NoError(t, err)

	store.edit = "third edit"
	_, err = svc.Unshare(ctx, owner, d.ID, guest.Email)
	require.NoError(t, err)

	got, err := store.MemoryRepo.FindByID(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, "T2", got.Title)
	require.Equal(t, "third edit", got.Content)
	require.Empty(t, got.Collaborators)
}

func TestUnshareRevokesLiveAccess(t *testing.T) {
	ctx := context.Background()
	ev := &recordingEvictor{}
	svc := New(repository.NewMemoryRepo(), ev)
	d, err := svc.Create(ctx, owner, "doc")
	require.NoError(t, err)
	_, err = svc.Share(ctx, owner, d.ID, guest.Email, "editor")
	require.NoError(t, err)
	require.Empty(t, ev.revoked, "sharing never drops anyone")

	_, err = svc.Unshare(ctx, owner, d.ID, other.Email)
	require.NoError(t, err)
	require.Empty(t, ev.revoked, "unknown email changes nothing")

	_, err = svc.Unshare(ctx, owner, d.ID, guest.Email)
	require.NoError(t, err)
	require.Equal(t, []string{d.ID}, ev.revoked)
	require.Empty(t, ev.evicted)
}
