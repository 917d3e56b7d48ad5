package snapshot

import (
	"maps"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
)

// Snapshot is one normalized measurement of a player's rank and stats.
type Snapshot struct {
	ID         string
	Player     player.Identity
	CapturedAt time.Time
	Rank       game.Rank
	Metrics    map[string]float64
	RawSource  []byte
}

// NormalizeTime truncates to the precision every backend can round-trip.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// SameStats reports whether two snapshots carry the same effective stats.
// Identity, capture time and raw payload are ignored.
func SameStats(a, b Snapshot) bool {
	if a.Rank != b.Rank {
		return false
	}
	return maps.Equal(a.Metrics, b.Metrics)
}
