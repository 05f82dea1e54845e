package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordChangedAfter(t *testing.T) {
	iat := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		changed *time.Time
		want    bool
	}{
		{name: "never changed", changed: nil, want: false},
		{name: "changed before issue", changed: ptr(iat.Add(-time.Hour)), want: false},
		{name: "same second is not after", changed: ptr(iat.Add(900 * time.Millisecond)), want: false},
		{name: "changed after issue", changed: ptr(iat.Add(2 * time.Second)), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{PasswordChangedAt: tt.changed}
			assert.Equal(t, tt.want, u.PasswordChangedAfter(iat.Unix()))
		})
	}
}

func TestClearPasswordReset(t *testing.T) {
	h := "fp"
	exp := time.Now()
	u := &User{PasswordResetTokenHash: &h, PasswordResetExpiresAt: &exp}
	u.ClearPasswordReset()
	assert.Nil(t, u.PasswordResetTokenHash)
	assert.Nil(t, u.PasswordResetExpiresAt)
}

func TestHasRole(t *testing.T) {
	u := &User{Role: "user"}
	assert.True(t, u.HasRole("admin", "user"))
	assert.False(t, u.HasRole("admin"))
	assert.False(t, u.HasRole())
}

func TestUser_JSONHidesSecrets(t *testing.T) {
	h := "fingerprint"
	u := &User{
		ID: "1", Name: "Ann", Email: "a@x.com", Role: "user", Avatar: "default.jpeg",
		Password: "$2a$12$hash", PasswordResetTokenHash: &h, EmailVerifyTokenHash: &h,
	}
	b, err := json.Marshal(u)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "a@x.com", m["email"])
	assert.NotContains(t, string(b), "$2a$12$hash")
	assert.NotContains(t, string(b), "fingerprint")
	assert.NotContains(t, m, "passwordChangedAt")
}

func ptr[T any](v T) *T { return &v }
