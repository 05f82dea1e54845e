package cryptox

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

// TokenSize is the number of random bytes behind an ephemeral token.
const TokenSize = 32

// GenerateToken returns a fresh single-use token: TokenSize random bytes,
// hex-encoded. The plaintext is only ever mailed; callers persist
// Fingerprint(token).
func GenerateToken() (string, error) {
	return common.MakeRandHexString(TokenSize)
}

// Fingerprint is the lowercase hex SHA-256 digest of token.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
