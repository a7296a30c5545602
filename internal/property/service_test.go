package property

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomkartz/roomkartz-api/internal/apperr"
	"github.com/roomkartz/roomkartz-api/internal/logging"
	"github.com/roomkartz/roomkartz-api/internal/user"
)

type fakeImages struct {
	mu       sync.Mutex
	uploaded []string
	err      error
}

func (f *fakeImages) StoreImage(_ context.Context, dataURI string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.uploaded = append(f.uploaded, dataURI)
	return "https://cdn.example.com/img.png", nil
}

func newTestService(t *testing.T, images ImageStore) (*Service, *user.MemoryRepository) {
	t.Helper()
	repo := user.NewMemoryRepository()
	logger := logging.NewLoggerWithWriter(&bytes.Buffer{}, true)
	return NewService(repo, images, logger), repo
}

func createOwner(t *testing.T, repo user.Repository, uid string) Caller {
	t.Helper()
	_, err := repo.Create(context.Background(), &user.User{ExternalSubjectID: uid, Mobile: "+91" + uid, Role: user.RoleOwner})
	require.NoError(t, err)
	return Caller{Subject: user.Subject{Kind: user.ByExternal, Value: uid}}
}

func createTenant(t *testing.T, repo user.Repository, uid string) Caller {
	t.Helper()
	_, err := repo.Create(context.Background(), &user.User{ExternalSubjectID: uid, Mobile: "+91" + uid, Role: user.RoleUser})
	require.NoError(t, err)
	return Caller{Subject: user.Subject{Kind: user.ByExternal, Value: uid}}
}

func TestService_OwnerLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, nil)
	owner := createOwner(t, repo, "o1")

	created, err := svc.Add(ctx, owner, user.Property{Address: "X", Rent: 5000})
	require.NoError(t, err)
	assert.Equal(t, user.StatusOpen, created.Status)
	assert.NotEmpty(t, created.ID)

	closed := user.StatusClosed
	updated, err := svc.Update(ctx, owner, created.ID, user.PropertyPatch{Status: &closed})
	require.NoError(t, err)
	assert.Equal(t, user.StatusClosed, updated.Status)
	assert.Equal(t, 5000.0, updated.Rent)
	assert.Equal(t, "X", updated.Address)

	require.NoError(t, svc.Delete(ctx, owner, created.ID))

	own, err := svc.ListOwn(ctx, owner.Subject)
	require.NoError(t, err)
	assert.Empty(t, own)
	assert.NotNil(t, own)
}

func TestService_UpdateRentOnly(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, nil)
	owner := createOwner(t, repo, "o1")

	created, err := svc.Add(ctx, owner, user.Property{Address: "X", Rent: 5000, Status: user.StatusClosed, WiFi: true})
	require.NoError(t, err)

	rent := 7500.0
	updated, err := svc.Update(ctx, owner, created.ID, user.PropertyPatch{Rent: &rent})
	require.NoError(t, err)
	assert.Equal(t, 7500.0, updated.Rent)
	assert.Equal(t, user.StatusClosed, updated.Status)
	assert.True(t, updated.WiFi)
}

func TestService_NonOwnerForbidden(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, nil)
	owner := createOwner(t, repo, "o1")
	tenant := createTenant(t, repo, "u1")

	created, err := svc.Add(ctx, owner, user.Property{Address: "X", Rent: 5000})
	require.NoError(t, err)

	_, err = svc.Add(ctx, tenant, user.Property{Address: "Y", Rent: 100})
	assert.ErrorIs(t, err, ErrNotOwner)

	// existing and missing property ids both give Forbidden
	for _, id := range []string{created.ID, "missing"} {
		_, err = svc.Update(ctx, tenant, id, user.PropertyPatch{})
		assert.ErrorIs(t, err, apperr.ErrForbidden)

		err = svc.Delete(ctx, tenant, id)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	}

	// a role carried by the token is trusted without a lookup
	_, err = svc.Update(ctx, Caller{Subject: owner.Subject, Role: user.RoleUser}, created.ID, user.PropertyPatch{})
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestService_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, nil)
	owner := createOwner(t, repo, "o1")

	ghost := Caller{Subject: user.Subject{Kind: user.ByExternal, Value: "ghost"}}
	_, err := svc.Add(ctx, ghost, user.Property{Address: "X", Rent: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	ghostOwner := Caller{Subject: ghost.Subject, Role: user.RoleOwner}
	_, err = svc.Add(ctx, ghostOwner, user.Property{Address: "X", Rent: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.Update(ctx, owner, "missing", user.PropertyPatch{})
	assert.ErrorIs(t, err, user.ErrPropertyNotFound)

	err = svc.Delete(ctx, owner, "missing")
	assert.ErrorIs(t, err, user.ErrPropertyNotFound)

	_, err = svc.ListOwn(ctx, ghost.Subject)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_Validation(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, nil)
	owner := createOwner(t, repo, "o1")

	created, err := svc.Add(ctx, owner, user.Property{Address: "X", Rent: 5000})
	require.NoError(t, err)

	_, err = svc.Add(ctx, owner, user.Property{Address: "  ", Rent: 5000})
	assert.ErrorIs(t, err, ErrAddressRequired)

	_, err = svc.Add(ctx, owner, user.Property{Address: "X"})
	assert.ErrorIs(t, err, ErrInvalidRent)

	_, err = svc.Add(ctx, owner, user.Property{Address: "X", Rent: 1, Status: "Pending"})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	for _, rent := range []float64{0, -10} {
		_, err = svc.Update(ctx, owner, created.ID, user.PropertyPatch{Rent: &rent})
		assert.ErrorIs(t, err, ErrInvalidRent)
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	}

	bad := user.PropertyStatus("open")
	_, err = svc.Update(ctx, owner, created.ID, user.PropertyPatch{Status: &bad})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	own, err := svc.ListOwn(ctx, owner.Subject)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, 5000.0, own[0].Rent)
	assert.Equal(t, user.StatusOpen, own[0].Status)
}

func TestService_ListAll(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, nil)
	o1 := createOwner(t, repo, "o1")
	o2 := createOwner(t, repo, "o2")
	createTenant(t, repo, "u1")

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)

	p1, err := svc.Add(ctx, o1, user.Property{Address: "A", Rent: 1})
	require.NoError(t, err)
	p2, err := svc.Add(ctx, o2, user.Property{Address: "B", Rent: 2})
	require.NoError(t, err)

	all, err = svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, p1.ID, all[0].ID)
	assert.Equal(t, p2.ID, all[1].ID)

	require.NoError(t, svc.Delete(ctx, o1, p1.ID))
	all, err = svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, p2.ID, all[0].ID)
}

func TestService_Images(t *testing.T) {
	ctx := context.Background()
	images := &fakeImages{}
	svc, repo := newTestService(t, images)
	owner := createOwner(t, repo, "o1")

	created, err := svc.Add(ctx, owner, user.Property{
		Address: "X",
		Rent:    1,
		Images:  []string{"https://example.com/a.png", "data:image/png;base64,AAAA"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a.png", "https://cdn.example.com/img.png"}, created.Images)
	assert.Equal(t, []string{"data:image/png;base64,AAAA"}, images.uploaded)

	_, err = svc.Add(ctx, owner, user.Property{Address: "X", Rent: 1, Images: []string{"data:text/plain,hi"}})
	assert.ErrorIs(t, err, ErrInvalidImage)

	images.err = errors.New("cloud down")
	_, err = svc.Add(ctx, owner, user.Property{Address: "X", Rent: 1, Images: []string{"data:image/png;base64,AAAA"}})
	assert.ErrorIs(t, err, apperr.ErrInternal)

	own, err := svc.ListOwn(ctx, owner.Subject)
	require.NoError(t, err)
	assert.Len(t, own, 1)
}

func TestService_ImagesKeptWithoutStore(t *testing.T) {
	svc, repo := newTestService(t, nil)
	owner := createOwner(t, repo, "o1")

	created, err := svc.Add(context.Background(), owner, user.Property{Address: "X", Rent: 1, Images: []string{"data:image/png;base64,AAAA"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"data:image/png;base64,AAAA"}, created.Images)
}

func TestService_ConcurrentAddsSameOwner(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, nil)
	owner := createOwner(t, repo, "o1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Add(ctx, owner, user.Property{Address: "X", Rent: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	own, err := svc.ListOwn(ctx, owner.Subject)
	require.NoError(t, err)
	assert.Len(t, own, 20)
}
