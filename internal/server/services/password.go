package services

import (
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/cryptox"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// setPassword hashes plain into u. For a stored user (non-empty ID) it also
// stamps PasswordChangedAt one second in the past, so a token minted right
// after the change is still newer than the change.
func setPassword(u *models.User, plain string, now time.Time) error {
	h, err := cryptox.HashPassword(plain)
	if err != nil {
		return err
	}
	u.Password = h
	if u.ID != "" {
		changed := now.Add(-time.Second)
		u.PasswordChangedAt = &changed
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnPasswordCheck spends about as long as a real comparison so that an
// unknown email cannot be told apart from a wrong password by timing.
func burnPasswordCheck(plain string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = cryptox.HashPassword("gophauth-dummy-password")
	})
	_ = cryptox.CheckPassword(plain, dummyHash)
}
