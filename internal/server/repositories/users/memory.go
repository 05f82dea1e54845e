package users

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// MemoryRepository is a process-local Repository. It enforces the same
// unique-email rule as the table and hands out copies, so callers never share
// records. Used for the "memory" DSN and in tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*models.User
	now   func() time.Time
	order []string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*models.User), now: time.Now}
}

func clone(u *models.User) *models.User {
	c := *u
	if u.PasswordChangedAt != nil {
		t := *u.PasswordChangedAt
		c.PasswordChangedAt = &t
	}
	if u.PasswordResetTokenHash != nil {
		s := *u.PasswordResetTokenHash
		c.PasswordResetTokenHash = &s
	}
	if u.PasswordResetExpiresAt != nil {
		t := *u.PasswordResetExpiresAt
		c.PasswordResetExpiresAt = &t
	}
	if u.EmailVerifyTokenHash != nil {
		s := *u.EmailVerifyTokenHash
		c.EmailVerifyTokenHash = &s
	}
	return &c
}

func (r *MemoryRepository) emailTaken(email, exceptID string) bool {
	for id, u := range r.byID {
		if u.Email == email && id != exceptID {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.emailTaken(user.Email, "") {
		return nil, common.ErrDuplicateEmail
	}

	user.ID = newID()
	now := r.now()
	user.CreatedAt = now
	user.UpdatedAt = now

	r.byID[user.ID] = clone(user)
	r.order = append(r.order, user.ID)
	return user, nil
}

func (r *MemoryRepository) find(match func(u *models.User) bool) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if u := r.byID[id]; match(u) {
			return clone(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	u, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(u), nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r *MemoryRepository) GetByPasswordResetToken(ctx context.Context, fingerprint string, now time.Time) (*models.User, error) {
	return r.find(func(u *models.User) bool {
		return u.PasswordResetTokenHash != nil && *u.PasswordResetTokenHash == fingerprint &&
			u.PasswordResetExpiresAt != nil && u.PasswordResetExpiresAt.After(now)
	})
}

func (r *MemoryRepository) GetByEmailVerifyToken(ctx context.Context, fingerprint string) (*models.User, error) {
	return r.find(func(u *models.User) bool {
		return u.EmailVerifyTokenHash != nil && *u.EmailVerifyTokenHash == fingerprint
	})
}

func (r *MemoryRepository) List(ctx context.Context) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.User, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, clone(r.byID[id]))
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (r *MemoryRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.byID[user.ID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if r.emailTaken(user.Email, user.ID) {
		return nil, common.ErrDuplicateEmail
	}

	user.CreatedAt = old.CreatedAt
	user.UpdatedAt = r.now()
	r.byID[user.ID] = clone(user)
	return user, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.byID, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
