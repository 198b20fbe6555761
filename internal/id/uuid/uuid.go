// Package uuid generates and checks the row ids used by the library store.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUID v7 strings for chapters and presets.
type Generator struct{}

// NewUUIDGenerator returns a Generator.
func NewUUIDGenerator() *Generator {
	return &Generator{}
}

// NewID returns a fresh id.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// Valid reports whether s parses as a UUID. Ids taken from URLs are checked
// before they reach a uuid column, where Postgres would reject them.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
