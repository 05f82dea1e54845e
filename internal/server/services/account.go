// Package services contains server-side business logic: the account flows
// (AccountService) and user administration (UserService).
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/cache"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/mail"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

// RegisterInput is a validated registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// AccountService implements the self-service account flows. It returns the
// affected user; minting the session token is left to the caller.
//
// Errors are *common.AppError values wrapping the matching common sentinel,
// or plain errors for unexpected store failures.
type AccountService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	mailer        mail.Mailer
	cache         cache.UserCache
	log           logging.Logger
	baseURL       string
	resetValidity time.Duration
	now           func() time.Time
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, mailer mail.Mailer,
	uc cache.UserCache, log logging.Logger, cfg *config.Config) *AccountService {
	return &AccountService{
		db:            db,
		repomanager:   m,
		mailer:        mailer,
		cache:         uc,
		log:           log,
		baseURL:       cfg.BaseURL,
		resetValidity: cfg.PasswordResetTokenValidity,
		now:           time.Now,
	}
}

func (s *AccountService) verifyURL(token string) string {
	return s.baseURL + "/api/v1/auth/verify-email/" + token
}

func (s *AccountService) resetURL(token string) string {
	return s.baseURL + "/api/v1/auth/reset-password/" + token
}

func (s *AccountService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.log.Warn(ctx, "user cache invalidation failed", "user_id", id, "error", err)
	}
}

// saveCleanup persists u after a failed delivery. A failure here is only
// logged; the delivery error stays the one reported.
func (s *AccountService) saveCleanup(ctx context.Context, u *models.User) {
	if _, err := s.repomanager.Users(s.db).Update(ctx, u); err != nil {
		s.log.Error(ctx, "cleanup after failed email delivery", "user_id", u.ID, "error", err)
	}
}

// Register creates an unverified user and mails a verification link. When
// the mail cannot be sent the user stays, without a stored fingerprint.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := normalizeEmail(in.Email)

	role := in.Role
	if role == "" {
		role = common.RoleUser
	}

	token, err := cryptox.GenerateToken()
	if err != nil {
		return nil, err
	}
	fp := cryptox.Fingerprint(token)

	user := &models.User{
		Name:                 in.Name,
		Email:                email,
		Avatar:               common.DefaultAvatar,
		Role:                 role,
		EmailVerifyTokenHash: &fp,
	}
	if err := setPassword(user, in.Password, s.now()); err != nil {
		return nil, err
	}

	err = dbx.RunInTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		r := s.repomanager.Users(tx)
		if _, err := r.GetByEmail(ctx, email); err == nil {
			return common.ErrDuplicateEmail
		} else if !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		_, err := r.Create(ctx, user)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrDuplicateEmail) {
			return nil, errDuplicateEmail()
		}
		return nil, err
	}

	to := mail.Recipient{Name: user.Name, Email: user.Email}
	if err := s.mailer.SendVerifyEmail(ctx, to, s.verifyURL(token)); err != nil {
		s.log.Error(ctx, "verification email not sent", "user_id", user.ID, "error", err)
		user.EmailVerifyTokenHash = nil
		s.saveCleanup(ctx, user)
		return nil, errDeliveryFailed(err)
	}

	s.log.Info(ctx, "user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Login checks credentials. Unknown email and wrong password fail the same way.
func (s *AccountService) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			burnPasswordCheck(password)
			return nil, common.Unauthenticated(MsgIncorrectCredentials, common.ErrInvalidCredentials)
		}
		return nil, err
	}

	if !cryptox.CheckPassword(password, user.Password) {
		return nil, common.Unauthenticated(MsgIncorrectCredentials, common.ErrInvalidCredentials)
	}

	s.log.Info(ctx, "user logged in", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// ForgotPassword stores a reset fingerprint with an expiry and mails the raw
// token. An unknown email is reported as such.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NewAppError(http.StatusNotFound, MsgNoUserWithEmail, common.ErrUserNotFound)
		}
		return err
	}

	token, err := cryptox.GenerateToken()
	if err != nil {
		return err
	}
	fp := cryptox.Fingerprint(token)
	expires := s.now().Add(s.resetValidity)
	user.PasswordResetTokenHash = &fp
	user.PasswordResetExpiresAt = &expires

	if _, err := repo.Update(ctx, user); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	to := mail.Recipient{Name: user.Name, Email: user.Email}
	if err := s.mailer.SendPasswordReset(ctx, to, s.resetURL(token), s.resetValidity); err != nil {
		s.log.Error(ctx, "password reset email not sent", "user_id", user.ID, "error", err)
		user.ClearPasswordReset()
		s.saveCleanup(ctx, user)
		return errDeliveryFailed(err)
	}

	return nil
}

// ResetPassword consumes an unexpired reset token and sets a new password.
func (s *AccountService) ResetPassword(ctx context.Context, token, password string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByPasswordResetToken(ctx, cryptox.Fingerprint(token), s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.BadRequest(MsgResetTokenInvalid, common.ErrInvalidOrExpiredToken)
		}
		return nil, err
	}

	if err := setPassword(user, password, s.now()); err != nil {
		return nil, err
	}
	user.ClearPasswordReset()

	if _, err := repo.Update(ctx, user); err != nil {
		return nil, err
	}
	s.invalidate(ctx, user.ID)

	return user, nil
}

// UpdatePassword changes the password of an authenticated user after
// checking the current one. Tokens issued before the change stop working.
func (s *AccountService) UpdatePassword(ctx context.Context, userID, current, password string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.Unauthenticated(MsgUserNoLongerExists, common.ErrUserNotFound)
		}
		return nil, err
	}

	if !cryptox.CheckPassword(current, user.Password) {
		return nil, common.Unauthenticated(MsgCurrentPasswordWrong, common.ErrInvalidCredentials)
	}

	if err := setPassword(user, password, s.now()); err != nil {
		return nil, err
	}

	if _, err := repo.Update(ctx, user); err != nil {
		return nil, err
	}
	s.invalidate(ctx, user.ID)

	return user, nil
}

// VerifyEmail consumes a verification token. Verification tokens do not
// expire.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmailVerifyToken(ctx, cryptox.Fingerprint(token))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.BadRequest(MsgVerifyTokenInvalid, common.ErrInvalidOrAlreadyVerifiedToken)
		}
		return nil, err
	}

	user.IsVerified = true
	user.EmailVerifyTokenHash = nil

	if _, err := repo.Update(ctx, user); err != nil {
		return nil, err
	}
	s.invalidate(ctx, user.ID)

	return user, nil
}
