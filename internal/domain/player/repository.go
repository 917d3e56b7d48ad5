package player

import "context"

// Repository is the registration source. Writes belong to the chat layer.
type Repository interface {
	ListTrackedPairs(ctx context.Context) ([]Identity, error)
}
