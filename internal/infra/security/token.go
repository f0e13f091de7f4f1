package security

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/213020aumc/matcha/internal/core/port"
)

// NumericCodeGenerator produces uniformly distributed decimal codes from crypto/rand.
type NumericCodeGenerator struct{}

// Generate returns a random numeric string of the given length. Leading zeros are kept.
func (NumericCodeGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	ten := big.NewInt(10)
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}

	return string(digits), nil
}

var _ port.CodeGenerator = NumericCodeGenerator{}
