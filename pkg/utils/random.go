package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomString returns n characters drawn uniformly from [A-Za-z0-9] using crypto/rand.
func RandomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	max := big.NewInt(int64(len(alphanumeric)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("random index: %w", err)
		}
		b.WriteByte(alphanumeric[idx.Int64()])
	}
	return b.String(), nil
}

// RandomUpper returns n uppercase alphanumeric characters ([A-Z0-9]).
func RandomUpper(n int) (string, error) {
	s, err := RandomString(n)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(s), nil
}
