package idgen

import (
	"github.com/google/uuid"
)

// Generator generates unique identifiers.
// Implementations should be safe for concurrent use.
type Generator interface {
	Generate() (uuid.UUID, error)
}

type v4Gen struct{}

// NewV4 returns a Generator that produces random UUID v4 values. Upload keys
// use it so object names reveal nothing about when they were issued.
func NewV4() Generator { return v4Gen{} }

func (v4Gen) Generate() (uuid.UUID, error) {
	return uuid.NewRandom()
}

type v7Gen struct{}

// NewV7 returns a Generator that produces time-ordered UUID v7 values.
// Notification IDs use it, so an inbox sorted by ID reads oldest to newest.
func NewV7() Generator { return v7Gen{} }

func (v7Gen) Generate() (uuid.UUID, error) {
	return uuid.NewV7()
}

// Func adapts a plain function to Generator. Tests use it to pin IDs.
type Func func() (uuid.UUID, error)

func (f Func) Generate() (uuid.UUID, error) { return f() }
