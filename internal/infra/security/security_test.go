package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/213020aumc/matcha/internal/core/domain"
)

func TestArgon2HasherRoundTrip(t *testing.T) {
	hasher, err := NewArgon2Hasher(DefaultArgon2Config())
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}

	encoded, err := hasher.Hash("042917")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != argon2Variant || parts[1] != argon2Version {
		t.Fatalf("unexpected hash format: %q", encoded)
	}
	if strings.Contains(encoded, "042917") {
		t.Fatalf("hash must not contain the plaintext")
	}

	ok, err := hasher.Verify("042917", encoded)
	if err != nil || !ok {
		t.Fatalf("expected matching code to verify, got %v, %v", ok, err)
	}
	ok, err = hasher.Verify("042918", encoded)
	if err != nil || ok {
		t.Fatalf("expected different code to fail, got %v, %v", ok, err)
	}
}

func TestArgon2HasherVerifiesOlderParameters(t *testing.T) {
	older, err := NewArgon2Hasher(Argon2Config{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	encoded, err := older.Hash("123456")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	current, _ := NewArgon2Hasher(DefaultArgon2Config())
	ok, err := current.Verify("123456", encoded)
	if err != nil || !ok {
		t.Fatalf("expected hash from older parameters to verify, got %v, %v", ok, err)
	}
}

func TestArgon2HasherRejectsMalformed(t *testing.T) {
	hasher, _ := NewArgon2Hasher(DefaultArgon2Config())
	if _, err := hasher.Verify("123456", "not-a-hash"); err == nil {
		t.Fatalf("expected malformed hash to error")
	}
	if _, err := NewArgon2Hasher(Argon2Config{}); !errors.Is(err, errInvalidConfig) {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}

func TestNumericCodeGenerator(t *testing.T) {
	gen := NumericCodeGenerator{}
	for i := 0; i < 50; i++ {
		code, err := gen.Generate(6)
		if err != nil {
			t.Fatalf("Generate returned error: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("expected only digits, got %q", code)
			}
		}
	}
	if _, err := gen.Generate(0); err == nil {
		t.Fatalf("expected error for zero length")
	}
}

func TestSessionTokenManager(t *testing.T) {
	mgr, err := NewSessionTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionTokenManager returned error: %v", err)
	}

	now := time.Now()
	token, expiresAt, err := mgr.Issue("user-1", now)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	subject, err := mgr.Parse(token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("expected subject user-1, got %s", subject)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if len(claims) != 2 || claims["sub"] != "user-1" || claims["exp"] == nil {
		t.Fatalf("expected only sub and exp claims, got %v", claims)
	}
}

func TestSessionTokenManagerRejects(t *testing.T) {
	mgr, _ := NewSessionTokenManager("test-secret", time.Hour)

	expired, _, err := mgr.Issue("user-1", time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := mgr.Parse(expired); !errors.Is(err, domain.ErrExpiredSessionToken) {
		t.Fatalf("expected expired error, got %v", err)
	}

	other, _ := NewSessionTokenManager("other-secret", time.Hour)
	forged, _, _ := other.Issue("user-1", time.Now())
	if _, err := mgr.Parse(forged); !errors.Is(err, domain.ErrInvalidSessionToken) {
		t.Fatalf("expected invalid error for foreign signature, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := mgr.Parse(unsigned); !errors.Is(err, domain.ErrInvalidSessionToken) {
		t.Fatalf("expected invalid error for alg none, got %v", err)
	}
}

func TestTextSanitizer(t *testing.T) {
	s := NewTextSanitizer()
	cases := map[string]string{
		"<script>alert(1)</script>Hello": "Hello",
		"<b>Tall</b> & kind":             "Tall & kind",
		"plain":                          "plain",
		"":                               "",
	}
	for in, want := range cases {
		if got := s.Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
