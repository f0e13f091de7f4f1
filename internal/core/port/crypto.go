package port

import "time"

// SecretHasher hashes and verifies short secrets such as login codes.
type SecretHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) (bool, error)
}

// CodeGenerator produces numeric one-time codes.
type CodeGenerator interface {
	Generate(length int) (string, error)
}

// SessionTokens issues and parses session tokens that carry only a subject and an expiry.
type SessionTokens interface {
	Issue(userID string, now time.Time) (token string, expiresAt time.Time, err error)
	Parse(token string) (userID string, err error)
}

// TextSanitizer strips markup from free text before it is stored.
type TextSanitizer interface {
	Sanitize(s string) string
}
