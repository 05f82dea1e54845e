package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/avatars"
	"github.com/dmitrijs2005/gophauth/internal/server/mail"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const missingID = "3f1d1a2e-5c4b-4b7a-9a44-1f2e3d4c5b6a"

type fakeStore struct {
	url         string
	err         error
	contentType string
	body        []byte
}

func (f *fakeStore) Upload(ctx context.Context, contentType string, body io.Reader, size int64) (string, error) {
	f.contentType = contentType
	f.body, _ = io.ReadAll(body)
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

// countingRepo counts GetByID calls.
type countingRepo struct {
	*users.MemoryRepository
	calls atomic.Int32
}

func (r *countingRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.calls.Add(1)
	return r.MemoryRepository.GetByID(ctx, id)
}

type countingManager struct {
	repomanager.InMemoryRepositoryManager
	repo *countingRepo
}

func (m *countingManager) Users(dbx.DBTX) users.Repository { return m.repo }

// interleavingRepo runs afterLoad once, right after GetByID has read its
// snapshot and before the caller sees it.
type interleavingRepo struct {
	*users.MemoryRepository
	mu        sync.Mutex
	afterLoad func()
}

func (r *interleavingRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, err := r.MemoryRepository.GetByID(ctx, id)
	r.mu.Lock()
	hook := r.afterLoad
	r.afterLoad = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return u, err
}

type interleavingManager struct {
	repomanager.InMemoryRepositoryManager
	repo *interleavingRepo
}

func (m *interleavingManager) Users(dbx.DBTX) users.Repository { return m.repo }

type userFixture struct {
	svc    *UserService
	repo   users.Repository
	mailer *mockMailer
	cache  *spyCache
}

func newUserFixture(t *testing.T, rm repomanager.RepositoryManager, store AvatarStore) *userFixture {
	t.Helper()
	if rm == nil {
		rm = repomanager.NewInMemoryRepositoryManager()
	}
	f := &userFixture{mailer: &mockMailer{}, cache: newSpyCache(), repo: rm.Users(nil)}
	f.svc = NewUserService(nil, rm, f.mailer, f.cache, store, nopLog(), testConfig())
	t.Cleanup(func() { f.mailer.AssertExpectations(t) })
	return f
}

func (f *userFixture) create(t *testing.T, name, email string) *models.User {
	t.Helper()
	f.mailer.On("SendUserInfo", mock.Anything, mail.Recipient{Name: name, Email: email}, "pass1234",
		"http://localhost:8080/api/v1/auth/login").Return(nil).Once()
	u, err := f.svc.Create(context.Background(), CreateUserInput{Name: name, Email: email, Password: "pass1234"})
	require.NoError(t, err)
	return u
}

func strPtr(s string) *string { return &s }

func TestUserService_CreateAndGet(t *testing.T) {
	f := newUserFixture(t, nil, nil)

	u := f.create(t, "Bob", "bob@x.com")
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, common.RoleUser, u.Role)
	assert.Equal(t, common.DefaultAvatar, u.Avatar)
	assert.Nil(t, u.PasswordChangedAt)

	got, err := f.svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob@x.com", got.Email)
	assert.True(t, cryptox.CheckPassword("pass1234", got.Password))

	list, err := f.svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUserService_Create_MailFailureIsNotFatal(t *testing.T) {
	f := newUserFixture(t, nil, nil)
	f.mailer.On("SendUserInfo", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("smtp down")).Once()

	u, err := f.svc.Create(context.Background(), CreateUserInput{Name: "Bob", Email: "bob@x.com", Password: "pass1234", Role: common.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, common.RoleAdmin, u.Role)

	_, err = f.repo.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
}

func TestUserService_Create_Duplicate(t *testing.T) {
	f := newUserFixture(t, nil, nil)
	f.create(t, "Bob", "bob@x.com")

	_, err := f.svc.Create(context.Background(), CreateUserInput{Name: "B2", Email: "BOB@x.com", Password: "pass1234"})
	require.ErrorIs(t, err, common.ErrDuplicateEmail)
	assert.Equal(t, MsgEmailExists, appErr(t, err).Message)
}

func TestUserService_InvalidAndMissingIDs(t *testing.T) {
	f := newUserFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, "not-a-uuid")
	require.ErrorIs(t, err, common.ErrValidation)
	ae := appErr(t, err)
	assert.Equal(t, http.StatusBadRequest, ae.Status)
	assert.Equal(t, "Invalid id: not-a-uuid", ae.Message)

	err = f.svc.Delete(ctx, "not-a-uuid")
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = f.svc.Get(ctx, missingID)
	require.ErrorIs(t, err, common.ErrorNotFound)
	ae = appErr(t, err)
	assert.Equal(t, http.StatusNotFound, ae.Status)
	assert.Equal(t, MsgNoUserWithID, ae.Message)

	_, err = f.svc.Update(ctx, missingID, UpdateUserInput{Name: strPtr("x")})
	assert.Equal(t, http.StatusNotFound, appErr(t, err).Status)

	err = f.svc.Delete(ctx, missingID)
	assert.Equal(t, http.StatusNotFound, appErr(t, err).Status)
}

func TestUserService_Update(t *testing.T) {
	f := newUserFixture(t, nil, nil)
	u := f.create(t, "Bob", "bob@x.com")
	other := f.create(t, "Eve", "eve@x.com")

	got, err := f.svc.Update(context.Background(), u.ID, UpdateUserInput{
		Name: strPtr("Robert"),
		Role: strPtr(common.RoleAdmin),
	})
	require.NoError(t, err)
	assert.Equal(t, "Robert", got.Name)
	assert.Equal(t, common.RoleAdmin, got.Role)
	assert.Equal(t, "bob@x.com", got.Email, "nil fields are left alone")
	assert.Contains(t, f.cache.invalidated, u.ID)

	_, err = f.svc.Update(context.Background(), u.ID, UpdateUserInput{Email: strPtr("Eve@x.com")})
	require.ErrorIs(t, err, common.ErrDuplicateEmail)
	assert.Equal(t, http.StatusBadRequest, appErr(t, err).Status)

	stored, err := f.repo.GetByID(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Equal(t, "Eve", stored.Name)
}

func TestUserService_Delete(t *testing.T) {
	f := newUserFixture(t, nil, nil)
	u := f.create(t, "Bob", "bob@x.com")

	require.NoError(t, f.svc.Delete(context.Background(), u.ID))
	assert.Contains(t, f.cache.invalidated, u.ID)

	_, err := f.repo.GetByID(context.Background(), u.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUserService_UpdateMe(t *testing.T) {
	f := newUserFixture(t, nil, nil)
	u := f.create(t, "Bob", "bob@x.com")

	got, err := f.svc.UpdateMe(context.Background(), u.ID, UpdateMeInput{
		Name:   strPtr("Bobby"),
		Email:  strPtr(" NEW@x.com"),
		Avatar: strPtr("me.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Bobby", got.Name)
	assert.Equal(t, "new@x.com", got.Email)
	assert.Equal(t, "me.png", got.Avatar)
	assert.Equal(t, common.RoleUser, got.Role)

	profile, err := f.svc.Profile(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bobby", profile.Name)
}

func TestUserService_UploadAvatar(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		store := &fakeStore{url: "http://127.0.0.1:9000/avatars/avatars/k"}
		f := newUserFixture(t, nil, store)
		u := f.create(t, "Bob", "bob@x.com")

		got, err := f.svc.UploadAvatar(context.Background(), u.ID, "image/png", bytes.NewReader([]byte("png")), 3)
		require.NoError(t, err)
		assert.Equal(t, store.url, got.Avatar)
		assert.Equal(t, "image/png", store.contentType)
		assert.Equal(t, []byte("png"), store.body)
		assert.Contains(t, f.cache.invalidated, u.ID)
	})

	t.Run("not an image", func(t *testing.T) {
		f := newUserFixture(t, nil, &fakeStore{err: avatars.ErrNotAnImage})
		u := f.create(t, "Bob", "bob@x.com")

		_, err := f.svc.UploadAvatar(context.Background(), u.ID, "text/plain", bytes.NewReader(nil), 0)
		ae := appErr(t, err)
		assert.Equal(t, http.StatusBadRequest, ae.Status)
		assert.Equal(t, MsgNotAnImage, ae.Message)
	})

	t.Run("too large", func(t *testing.T) {
		f := newUserFixture(t, nil, &fakeStore{err: avatars.ErrTooLarge})
		u := f.create(t, "Bob", "bob@x.com")

		_, err := f.svc.UploadAvatar(context.Background(), u.ID, "image/png", bytes.NewReader(nil), avatars.DefaultMaxSize+1)
		ae := appErr(t, err)
		assert.Equal(t, http.StatusBadRequest, ae.Status)
		assert.Equal(t, MsgImageTooLarge, ae.Message)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newUserFixture(t, nil, &fakeStore{err: errors.New("s3 down")})
		u := f.create(t, "Bob", "bob@x.com")

		_, err := f.svc.UploadAvatar(context.Background(), u.ID, "image/png", bytes.NewReader(nil), 0)
		ae := appErr(t, err)
		assert.Equal(t, http.StatusBadRequest, ae.Status)
		assert.Equal(t, MsgImageUploadFailed, ae.Message)

		stored, err := f.repo.GetByID(context.Background(), u.ID)
		require.NoError(t, err)
		assert.Equal(t, common.DefaultAvatar, stored.Avatar)
	})

	t.Run("uploads disabled", func(t *testing.T) {
		f := newUserFixture(t, nil, nil)

		_, err := f.svc.UploadAvatar(context.Background(), missingID, "image/png", bytes.NewReader(nil), 0)
		assert.Equal(t, MsgAvatarUploadsDisabled, appErr(t, err).Message)
	})
}

func TestUserService_Identity(t *testing.T) {
	rm := &countingManager{repo: &countingRepo{MemoryRepository: users.NewMemoryRepository()}}
	f := newUserFixture(t, rm, nil)
	u := f.create(t, "Bob", "bob@x.com")
	ctx := context.Background()

	got, err := f.svc.Identity(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.EqualValues(t, 1, rm.repo.calls.Load())

	got.Name = "mutated"
	again, err := f.svc.Identity(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", again.Name, "callers get a copy")
	assert.EqualValues(t, 1, rm.repo.calls.Load(), "second lookup is served from cache")

	require.NoError(t, f.svc.Delete(ctx, u.ID))
	_, err = f.svc.Identity(ctx, u.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = f.svc.Identity(ctx, "garbage")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUserService_Identity_Concurrent(t *testing.T) {
	rm := &countingManager{repo: &countingRepo{MemoryRepository: users.NewMemoryRepository()}}
	f := newUserFixture(t, rm, nil)
	u := f.create(t, "Bob", "bob@x.com")

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := f.svc.Identity(context.Background(), u.ID)
			if err == nil && got.ID != u.ID {
				err = errors.New("wrong user")
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, rm.repo.calls.Load(), int32(n))
	assert.GreaterOrEqual(t, rm.repo.calls.Load(), int32(1))
}

func TestUserService_Identity_PasswordChangeDuringLoad(t *testing.T) {
	rm := &interleavingManager{repo: &interleavingRepo{MemoryRepository: users.NewMemoryRepository()}}
	f := newUserFixture(t, rm, nil)
	accounts := NewAccountService(nil, rm, f.mailer, f.cache, nopLog(), testConfig())
	u := f.create(t, "Bob", "bob@x.com")
	ctx := context.Background()

	rm.repo.afterLoad = func() {
		_, err := accounts.UpdatePassword(ctx, u.ID, "pass1234", "newpass99")
		require.NoError(t, err)
	}

	first, err := f.svc.Identity(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, first.PasswordChangedAt, "the racing request saw the old row")

	stored, err := f.repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PasswordChangedAt)

	next, err := f.svc.Identity(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, next.PasswordChangedAt, "the pre-change snapshot must not be served from cache")
	assert.True(t, stored.PasswordChangedAt.Equal(*next.PasswordChangedAt))
}

func TestUserService_Identity_DeleteDuringLoad(t *testing.T) {
	rm := &interleavingManager{repo: &interleavingRepo{MemoryRepository: users.NewMemoryRepository()}}
	f := newUserFixture(t, rm, nil)
	u := f.create(t, "Bob", "bob@x.com")
	ctx := context.Background()

	rm.repo.afterLoad = func() {
		require.NoError(t, f.svc.Delete(ctx, u.ID))
	}

	_, err := f.svc.Identity(ctx, u.ID)
	require.NoError(t, err)

	_, err = f.svc.Identity(ctx, u.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound, "a deleted user must not pass from cache")
}

// cancelAwareRepo fails loads whose context is already done.
type cancelAwareRepo struct {
	*users.MemoryRepository
}

func (r *cancelAwareRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.MemoryRepository.GetByID(ctx, id)
}

type cancelAwareManager struct {
	repomanager.InMemoryRepositoryManager
	repo *cancelAwareRepo
}

func (m *cancelAwareManager) Users(dbx.DBTX) users.Repository { return m.repo }

func TestUserService_Identity_SharedLoadOutlivesCallerCancel(t *testing.T) {
	rm := &cancelAwareManager{repo: &cancelAwareRepo{MemoryRepository: users.NewMemoryRepository()}}
	f := newUserFixture(t, rm, nil)
	u := f.create(t, "Bob", "bob@x.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := f.svc.Identity(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	cached, err := f.cache.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotNil(t, cached)
}
