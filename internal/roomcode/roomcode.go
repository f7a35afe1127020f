// Package roomcode generates short join codes for trivia rooms.
package roomcode

import (
	crand "crypto/rand"
	"math/big"
	"math/rand"
)

// Alphabet omits O to avoid confusion with zero; 25 letters.
const (
	Alphabet = "ABCDEFGHIJKLMNPQRSTUVWXYZ"
	Length   = 4
)

// New returns a random 4-letter room code.
func New() string {
	code := make([]byte, Length)
	for i := range code {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(Alphabet))))
		if err != nil {
			// fallback to math/rand if crypto fails
			code[i] = Alphabet[rand.Intn(len(Alphabet))]
			continue
		}
		code[i] = Alphabet[n.Int64()]
	}
	return string(code)
}

// Valid reports whether s is a well-formed room code.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		found := false
		for j := 0; j < len(Alphabet); j++ {
			if s[i] == Alphabet[j] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
