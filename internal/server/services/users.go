package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/avatars"
	"github.com/dmitrijs2005/gophauth/internal/server/cache"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/mail"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// AvatarStore uploads profile images and returns their public URL.
type AvatarStore interface {
	Upload(ctx context.Context, contentType string, body io.Reader, size int64) (string, error)
}

// CreateUserInput is an admin create request. Empty Avatar and Role take
// the defaults.
type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Avatar   string
	Role     string
	Verified bool
}

// UpdateUserInput is a partial admin update; nil fields are left alone.
type UpdateUserInput struct {
	Name   *string
	Email  *string
	Avatar *string
	Role   *string
}

// UpdateMeInput is the subset of fields a user may change on themselves.
type UpdateMeInput struct {
	Name   *string
	Email  *string
	Avatar *string
}

// UserService implements user administration, self-service profile edits
// and the identity lookup used by the access gate.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	mailer      mail.Mailer
	cache       cache.UserCache
	avatars     AvatarStore
	log         logging.Logger
	baseURL     string
	now         func() time.Time
	sf          singleflight.Group
}

// NewUserService builds a UserService. avatars may be nil when uploads are
// not configured.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, mailer mail.Mailer, uc cache.UserCache,
	store AvatarStore, log logging.Logger, cfg *config.Config) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		mailer:      mailer,
		cache:       uc,
		avatars:     store,
		log:         log,
		baseURL:     cfg.BaseURL,
		now:         time.Now,
	}
}

func (s *UserService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.Warn(ctx, "user cache invalidation failed", "user_id", id, "error", err)
	}
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errInvalidID(id)
	}
	return nil
}

func (s *UserService) load(ctx context.Context, id string) (*models.User, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	u, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NotFound(MsgNoUserWithID)
		}
		return nil, err
	}
	return u, nil
}

func (s *UserService) save(ctx context.Context, u *models.User) (*models.User, error) {
	saved, err := s.repomanager.Users(s.db).Update(ctx, u)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrDuplicateEmail):
			return nil, errDuplicateEmail()
		case errors.Is(err, common.ErrorNotFound):
			return nil, common.NotFound(MsgNoUserWithID)
		}
		return nil, err
	}
	s.invalidate(ctx, u.ID)
	return saved, nil
}

// identityLoadTimeout bounds a shared identity load, which no longer follows
// the cancellation of the request that started it.
const identityLoadTimeout = 5 * time.Second

// Identity resolves the user behind a verified token. It reads through the
// cache and collapses concurrent loads of the same id. A missing user is
// common.ErrorNotFound.
func (s *UserService) Identity(ctx context.Context, id string) (*models.User, error) {
	if checkID(id) != nil {
		return nil, common.ErrorNotFound
	}

	if u, err := s.cache.Get(ctx, id); err != nil {
		s.log.Warn(ctx, "user cache read failed", "user_id", id, "error", err)
	} else if u != nil {
		return u, nil
	}

	v, err, _ := s.sf.Do(id, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), identityLoadTimeout)
		defer cancel()

		gen, genErr := s.cache.Generation(ctx, id)
		if genErr != nil {
			s.log.Warn(ctx, "user cache read failed", "user_id", id, "error", genErr)
		}

		u, err := s.repomanager.Users(s.db).GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if genErr == nil {
			if err := s.cache.Set(ctx, u, gen); err != nil {
				s.log.Warn(ctx, "user cache write failed", "user_id", id, "error", err)
			}
		}
		return u, nil
	})
	if err != nil {
		return nil, err
	}

	u := *v.(*models.User)
	return &u, nil
}

func (s *UserService) List(ctx context.Context) ([]*models.User, error) {
	return s.repomanager.Users(s.db).List(ctx)
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.load(ctx, id)
}

// Create adds a user on behalf of an admin and mails them their
// credentials. A failed mail is logged and does not undo the create.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	user := &models.User{
		Name:       in.Name,
		Email:      normalizeEmail(in.Email),
		Avatar:     in.Avatar,
		Role:       in.Role,
		IsVerified: in.Verified,
	}
	if user.Avatar == "" {
		user.Avatar = common.DefaultAvatar
	}
	if user.Role == "" {
		user.Role = common.RoleUser
	}
	if err := setPassword(user, in.Password, s.now()); err != nil {
		return nil, err
	}

	created, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrDuplicateEmail) {
			return nil, errDuplicateEmail()
		}
		return nil, err
	}

	to := mail.Recipient{Name: created.Name, Email: created.Email}
	if err := s.mailer.SendUserInfo(ctx, to, in.Password, s.baseURL+"/api/v1/auth/login"); err != nil {
		s.log.Warn(ctx, "account created email not sent", "user_id", created.ID, "error", err)
	}

	return created, nil
}

func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (*models.User, error) {
	u, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	applyProfile(u, in.Name, in.Email, in.Avatar)
	if in.Role != nil {
		u.Role = *in.Role
	}

	return s.save(ctx, u)
}

func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := s.repomanager.Users(s.db).Delete(ctx, id); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NotFound(MsgNoUserWithID)
		}
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// Profile returns the caller's own record, fresh from the store.
func (s *UserService) Profile(ctx context.Context, id string) (*models.User, error) {
	return s.load(ctx, id)
}

func (s *UserService) UpdateMe(ctx context.Context, id string, in UpdateMeInput) (*models.User, error) {
	u, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	applyProfile(u, in.Name, in.Email, in.Avatar)

	return s.save(ctx, u)
}

// UploadAvatar stores an image and points the user's avatar at it.
func (s *UserService) UploadAvatar(ctx context.Context, id, contentType string, body io.Reader, size int64) (*models.User, error) {
	if s.avatars == nil {
		return nil, common.BadRequest(MsgAvatarUploadsDisabled, common.ErrValidation)
	}

	u, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	url, err := s.avatars.Upload(ctx, contentType, body, size)
	if err != nil {
		if errors.Is(err, avatars.ErrNotAnImage) {
			return nil, common.BadRequest(MsgNotAnImage, err)
		}
		if errors.Is(err, avatars.ErrTooLarge) {
			return nil, common.BadRequest(MsgImageTooLarge, err)
		}
		s.log.Error(ctx, "avatar upload failed", "user_id", id, "error", err)
		return nil, common.BadRequest(MsgImageUploadFailed, err)
	}

	u.Avatar = url
	return s.save(ctx, u)
}

func applyProfile(u *models.User, name, email, avatar *string) {
	if name != nil {
		u.Name = *name
	}
	if email != nil {
		u.Email = normalizeEmail(*email)
	}
	if avatar != nil {
		u.Avatar = *avatar
	}
}
