package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// NewNumericCode returns a uniformly distributed numeric code of the
// given length. Each digit is drawn independently from crypto/rand, so
// there is no modulo bias across the code as a whole.
func NewNumericCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code length")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}
