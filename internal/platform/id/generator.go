package id

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates opaque IDs for snapshots, cycles and dispatches.
type Generator interface {
	NewID() (string, error)
}

// TimeOrderedGenerator issues UUIDv7 values so IDs sort by creation time.
type TimeOrderedGenerator struct{}

func NewTimeOrderedGenerator() *TimeOrderedGenerator {
	return &TimeOrderedGenerator{}
}

func (g *TimeOrderedGenerator) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid v7: %w", err)
	}
	return value.String(), nil
}

// MustNewID falls back to a random UUID when the v7 clock source fails.
func MustNewID(g Generator) string {
	if g != nil {
		if value, err := g.NewID(); err == nil {
			return value
		}
	}
	return uuid.NewString()
}
