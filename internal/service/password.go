package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultTempPasswordLength is the length used when no override is configured.
const DefaultTempPasswordLength = 18

const (
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars  = "0123456789"
	symbolChars = "!@#$%&*-_+="
)

// GenerateTempPassword produces a random password of the given length
// containing at least one lowercase letter, one uppercase letter and one
// digit. The temporary password grants full account access until rotated, so
// it is drawn from crypto/rand throughout, including the final shuffle that
// keeps the mandatory characters positionally unpredictable.
func GenerateTempPassword(length int) (string, error) {
	if length < 4 {
		length = DefaultTempPasswordLength
	}

	full := lowerChars + upperChars + digitChars + symbolChars

	chars := make([]byte, 0, length)
	for _, set := range []string{lowerChars, upperChars, digitChars} {
		c, err := randomChar(set)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	for len(chars) < length {
		c, err := randomChar(full)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	if err := secureShuffle(chars); err != nil {
		return "", err
	}

	return string(chars), nil
}

func randomChar(set string) (byte, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("failed to read random source: %w", err)
	}
	return set[idx.Int64()], nil
}

func secureShuffle(chars []byte) error {
	for i := len(chars) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("failed to read random source: %w", err)
		}
		chars[i], chars[j.Int64()] = chars[j.Int64()], chars[i]
	}
	return nil
}
