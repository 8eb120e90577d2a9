package businessflow

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// GenerateOTP returns a uniformly random six-digit code in 100000..999999.
func GenerateOTP() (string, error) {
	max := big.NewInt(999999)
	min := big.NewInt(100000)

	n, err := rand.Int(rand.Reader, new(big.Int).Sub(new(big.Int).Add(max, big.NewInt(1)), min))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%06d", new(big.Int).Add(n, min).Int64()), nil
}
