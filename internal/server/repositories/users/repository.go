package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository is the user record store. Lookups that match nothing return
// common.ErrorNotFound; writes that collide on email return
// common.ErrDuplicateEmail. Returned users carry the password hash and
// token fingerprints; callers must not expose them.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// GetByPasswordResetToken matches only while the reset has not expired at now.
	GetByPasswordResetToken(ctx context.Context, fingerprint string, now time.Time) (*models.User, error)
	GetByEmailVerifyToken(ctx context.Context, fingerprint string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	// Update saves every mutable field of user and refreshes UpdatedAt.
	Update(ctx context.Context, user *models.User) (*models.User, error)
	Delete(ctx context.Context, id string) error
}
