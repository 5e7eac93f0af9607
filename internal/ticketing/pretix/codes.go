package pretix

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ12345678"
	CodeLength   = 25
)

// GenerateCode returns CodeLength distinct characters sampled without
// replacement from A-Z and 1-8.
func GenerateCode() (string, error) {
	pool := []byte(codeAlphabet)
	out := make([]byte, CodeLength)
	for i := range CodeLength {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(pool)-i)))
		if err != nil {
			return "", fmt.Errorf("generate voucher code: %w", err)
		}
		j := i + int(n.Int64())
		pool[i], pool[j] = pool[j], pool[i]
		out[i] = pool[i]
	}
	return string(out), nil
}
