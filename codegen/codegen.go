// Package codegen generates the random base62 short codes that identify links.
package codegen

import (
	"crypto/rand"
	"errors"
)

const (
	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// DefaultLength is the length of generated short codes.
	DefaultLength = 8

	// Largest multiple of len(alphabet) that fits in a byte; bytes at or above
	// it are rejected so every symbol is equally likely.
	rejectAbove = 256 - 256%len(alphabet)
)

// Generator generates short codes.
// Implementations should be safe for concurrent use.
type Generator interface {
	Generate(length int) (string, error)
}

type base62 struct{}

// NewBase62 returns a crypto/rand backed base62 generator.
func NewBase62() Generator {
	return base62{}
}

func (base62) Generate(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("length must be positive")
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4+1)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether code is non-empty and uses only short code symbols:
// base62, plus dash and underscore for hand-picked codes.
func Valid(code string) bool {
	if code == "" {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
