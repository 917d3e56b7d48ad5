package snapshot

import (
	"testing"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
)

func TestSameStatsIgnoresCaptureMetadata(t *testing.T) {
	t.Parallel()

	rank := game.Rank{Tier: "GOLD", TierIndex: 5, Division: "2", DivisionIndex: 2, Rating: 50}
	a := Snapshot{ID: "a", CapturedAt: time.Unix(10, 0), Rank: rank, Metrics: map[string]float64{"rr": 50}, RawSource: []byte(`{"a":1}`)}
	b := Snapshot{ID: "b", CapturedAt: time.Unix(20, 0), Rank: rank, Metrics: map[string]float64{"rr": 50}, RawSource: []byte(`{"b":2}`)}
	if !SameStats(a, b) {
		t.Fatalf("expected snapshots with equal rank and metrics to match")
	}

	b.Metrics = map[string]float64{"rr": 51}
	if SameStats(a, b) {
		t.Fatalf("expected metric change to differ")
	}

	b.Metrics = map[string]float64{"rr": 50}
	b.Rank.Rating = 51
	if SameStats(a, b) {
		t.Fatalf("expected rank change to differ")
	}
}

func TestNormalizeTime(t *testing.T) {
	t.Parallel()

	in := time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.FixedZone("x", 3600))
	got := NormalizeTime(in)
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got=%s", got.Location())
	}
	if got.Nanosecond() != 123456000 {
		t.Fatalf("unexpected nanoseconds: got=%d want=123456000", got.Nanosecond())
	}
}
