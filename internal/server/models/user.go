// Package models holds the persistent records of the server.
package models

import "time"

// User is an account record. Nullable columns are pointers. Secrets are
// never serialized: Password is the bcrypt hash and the token fields hold
// SHA-256 fingerprints only.
type User struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	Email                  string     `json:"email"`
	Avatar                 string     `json:"avatar"`
	Role                   string     `json:"role"`
	Password               string     `json:"-"`
	PasswordChangedAt      *time.Time `json:"passwordChangedAt,omitempty"`
	PasswordResetTokenHash *string    `json:"-"`
	PasswordResetExpiresAt *time.Time `json:"-"`
	EmailVerifyTokenHash   *string    `json:"-"`
	IsVerified             bool       `json:"isVerified"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

// PasswordChangedAfter reports whether the password was changed after a
// token issued at iat (epoch seconds). Sub-second precision is dropped.
func (u *User) PasswordChangedAfter(iat int64) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Unix() > iat
}

// ClearPasswordReset drops both reset fields together.
func (u *User) ClearPasswordReset() {
	u.PasswordResetTokenHash = nil
	u.PasswordResetExpiresAt = nil
}

// HasRole reports whether the user's role is one of roles.
func (u *User) HasRole(roles ...string) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
