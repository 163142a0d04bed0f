package custody

import (
	"crypto/rand"
	"fmt"
)

// alphabet is the 62-character salt alphabet.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// rejectAbove is the largest multiple of len(alphabet) that fits in a byte.
// Bytes at or above it are redrawn so every character is equally likely.
const rejectAbove = 256 - 256%len(alphabet)

// RandomString returns n characters drawn uniformly from alphabet using
// crypto/rand.
func RandomString(n int) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("custody: negative length %d", n)
	}

	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4+1)

	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}

		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}

			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}

	return string(out), nil
}
