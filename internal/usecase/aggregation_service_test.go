package usecase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/ingestion"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/domain/report"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
	"github.com/riskibarqy/rank-tracker/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
	"github.com/stretchr/testify/mock"
)

func appendAt(t *testing.T, repo snapshot.Repository, p player.Identity, at time.Time, item snapshot.Snapshot) {
	t.Helper()
	item.Player = p
	item.CapturedAt = at
	if _, err := repo.Append(context.Background(), item); err != nil {
		t.Fatalf("append snapshot at %s: %v", at, err)
	}
}

func testWindow() report.Window {
	return report.Window{Name: "daily", Start: testBase, End: testBase.Add(24 * time.Hour), Game: game.Valorant}
}

func TestAggregationService_NoDataWindow(t *testing.T) {
	t.Parallel()

	svc := NewAggregationService(memory.NewSnapshotRepository(nil), nil, 2, logging.NewNop())
	deltas, err := svc.ComputeDeltas(context.Background(), testWindow(), []player.Identity{valorantPlayer})
	if err != nil {
		t.Fatalf("compute deltas: %v", err)
	}
	if len(deltas) != 1 {
		t.Fatalf("unexpected delta count: got=%d want=1", len(deltas))
	}
	got := deltas[0]
	if got.RankDelta != nil || got.MetricDeltas != nil {
		t.Fatalf("expected null deltas, got rank=%v metrics=%v", got.RankDelta, got.MetricDeltas)
	}
	if got.Note != report.NoteNoData {
		t.Fatalf("unexpected note: got=%q want=%q", got.Note, report.NoteNoData)
	}
}

func TestAggregationService_SingleSnapshotUsesBaselineBeforeWindow(t *testing.T) {
	t.Parallel()

	repo := memory.NewSnapshotRepository(nil)
	appendAt(t, repo, valorantPlayer, testBase.Add(-2*time.Hour), valorantSnapshot("SILVER", "3", 90))
	appendAt(t, repo, valorantPlayer, testBase.Add(time.Hour), valorantSnapshot("GOLD", "1", 5))

	svc := NewAggregationService(repo, nil, 2, logging.NewNop())
	deltas, err := svc.ComputeDeltas(context.Background(), testWindow(), []player.Identity{valorantPlayer})
	if err != nil {
		t.Fatalf("compute deltas: %v", err)
	}
	got := deltas[0]
	if got.RankDelta == nil {
		t.Fatalf("expected rank delta against baseline")
	}
	if got.RankDelta.Direction != 1 {
		t.Fatalf("tier-up must be positive: got=%d", got.RankDelta.Direction)
	}
	if got.RankDelta.Rating >= 0 {
		t.Fatalf("expected raw rating to decrease across boundary: got=%d", got.RankDelta.Rating)
	}
	if got.MetricDeltas["rr"] != -85 {
		t.Fatalf("unexpected rr delta: got=%v want=-85", got.MetricDeltas["rr"])
	}
}

func TestAggregationService_SingleSnapshotWithoutBaseline(t *testing.T) {
	t.Parallel()

	repo := memory.NewSnapshotRepository(nil)
	appendAt(t, repo, valorantPlayer, testBase.Add(time.Hour), valorantSnapshot("GOLD", "1", 5))

	svc := NewAggregationService(repo, nil, 2, logging.NewNop())
	deltas, err := svc.ComputeDeltas(context.Background(), testWindow(), []player.Identity{valorantPlayer})
	if err != nil {
		t.Fatalf("compute deltas: %v", err)
	}
	got := deltas[0]
	if got.RankDelta != nil {
		t.Fatalf("expected null delta without baseline")
	}
	if got.Note != report.NoteNoBaseline || got.To == nil {
		t.Fatalf("unexpected delta: note=%q to=%v", got.Note, got.To)
	}
}

func TestAggregationService_MultipleSnapshotsLastMinusFirst(t *testing.T) {
	t.Parallel()

	repo := memory.NewSnapshotRepository(nil)
	appendAt(t, repo, valorantPlayer, testBase.Add(-time.Hour), valorantSnapshot("IRON", "1", 0))
	appendAt(t, repo, valorantPlayer, testBase.Add(1*time.Hour), valorantSnapshot("GOLD", "1", 20))
	appendAt(t, repo, valorantPlayer, testBase.Add(2*time.Hour), valorantSnapshot("GOLD", "1", 10))
	appendAt(t, repo, valorantPlayer, testBase.Add(3*time.Hour), valorantSnapshot("GOLD", "1", 30))
	appendAt(t, repo, valorantPlayer, testBase.Add(4*time.Hour), valorantSnapshot("GOLD", "2", 5))

	svc := NewAggregationService(repo, nil, 2, logging.NewNop())
	deltas, err := svc.ComputeDeltas(context.Background(), testWindow(), []player.Identity{valorantPlayer})
	if err != nil {
		t.Fatalf("compute deltas: %v", err)
	}
	got := deltas[0]
	if got.SnapshotCount != 4 {
		t.Fatalf("unexpected snapshot count: got=%d want=4", got.SnapshotCount)
	}
	if got.RankDelta.From.Rating != 20 || got.RankDelta.To.Rating != 5 {
		t.Fatalf("delta must span first and last in window: from=%d to=%d", got.RankDelta.From.Rating, got.RankDelta.To.Rating)
	}
	if got.RankDelta.Divisions != 1 || got.RankDelta.Direction != 1 {
		t.Fatalf("unexpected rank delta: %+v", got.RankDelta)
	}
	if got.Streak != 2 {
		t.Fatalf("unexpected streak: got=%d want=2", got.Streak)
	}
}

func TestAggregationService_StaleNoteFromFailedIngestion(t *testing.T) {
	t.Parallel()

	audit := memory.NewIngestionRepository(8)
	if err := audit.Record(context.Background(), []ingestion.Result{{
		Player:      valorantPlayer,
		AttemptedAt: testBase,
		Outcome:     ingestion.Failed(ingestion.KindRateLimited, "429"),
	}}); err != nil {
		t.Fatalf("record audit: %v", err)
	}

	svc := NewAggregationService(memory.NewSnapshotRepository(nil), audit, 2, logging.NewNop())
	deltas, err := svc.ComputeDeltas(context.Background(), testWindow(), []player.Identity{valorantPlayer})
	if err != nil {
		t.Fatalf("compute deltas: %v", err)
	}
	if !strings.Contains(deltas[0].Note, "rate_limited") || !strings.HasPrefix(deltas[0].Note, report.NoteNoData) {
		t.Fatalf("unexpected note: %q", deltas[0].Note)
	}
}

type brokenRangeStore struct {
	*memory.SnapshotRepository
	err error
}

func (s brokenRangeStore) Range(context.Context, player.Key, time.Time, time.Time) iter.Seq2[snapshot.Snapshot, error] {
	return func(yield func(snapshot.Snapshot, error) bool) {
		yield(snapshot.Snapshot{}, s.err)
	}
}

func TestAggregationService_ReadErrors(t *testing.T) {
	t.Parallel()

	pairs := []player.Identity{valorantPlayer, {Game: game.Valorant, ExternalID: "other"}}

	t.Run("store unavailable aborts", func(t *testing.T) {
		t.Parallel()
		store := brokenRangeStore{SnapshotRepository: memory.NewSnapshotRepository(nil), err: fmt.Errorf("%w: timeout", snapshot.ErrStoreUnavailable)}
		svc := NewAggregationService(store, nil, 2, logging.NewNop())
		if _, err := svc.ComputeDeltas(context.Background(), testWindow(), pairs); !errors.Is(err, snapshot.ErrStoreUnavailable) {
			t.Fatalf("expected store unavailable, got=%v", err)
		}
	})

	t.Run("other errors become notes", func(t *testing.T) {
		t.Parallel()
		store := brokenRangeStore{SnapshotRepository: memory.NewSnapshotRepository(nil), err: errors.New("decode row")}
		svc := NewAggregationService(store, nil, 2, logging.NewNop())
		deltas, err := svc.ComputeDeltas(context.Background(), testWindow(), pairs)
		if err != nil {
			t.Fatalf("compute deltas: %v", err)
		}
		for _, d := range deltas {
			if d.Note != report.NoteReadFailed {
				t.Fatalf("unexpected note: %q", d.Note)
			}
		}
	})
}

func TestRankStreak(t *testing.T) {
	t.Parallel()

	series := func(ratings ...int) []snapshot.Snapshot {
		out := make([]snapshot.Snapshot, 0, len(ratings))
		for _, r := range ratings {
			out = append(out, snapshot.Snapshot{Rank: game.Rank{TierIndex: 3, Rating: r}})
		}
		return out
	}

	cases := []struct {
		name    string
		ratings []int
		want    int
	}{
		{name: "single", ratings: []int{10}, want: 0},
		{name: "winning", ratings: []int{10, 20, 30}, want: 2},
		{name: "losing after win", ratings: []int{10, 30, 20, 15}, want: -2},
		{name: "flat steps ignored", ratings: []int{10, 20, 20, 30}, want: 2},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := rankStreak(series(tc.ratings...)); got != tc.want {
				t.Fatalf("streak: got=%d want=%d", got, tc.want)
			}
		})
	}
}

// Player P on Valorant: Gold/50, then identical, then Platinum/10.
func TestPipeline_ValorantTierUpScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	adapter := newAdapterMock(t, game.Valorant)
	adapter.On("FetchSnapshot", mock.Anything, valorantPlayer).Return(valorantSnapshot("GOLD", "", 50), nil).Twice()
	adapter.On("FetchSnapshot", mock.Anything, valorantPlayer).Return(valorantSnapshot("PLATINUM", "", 10), nil).Once()

	fx, err := newIngestionFixture(nil, IngestionConfig{}, adapter)
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	wantStatuses := []ingestion.Status{ingestion.StatusSuccess, ingestion.StatusSkipped, ingestion.StatusSuccess}
	wantCounts := []int{1, 1, 2}
	for i := range wantStatuses {
		fx.clock.Advance(10 * time.Minute)
		cycle, err := fx.service.Ingest(ctx, []player.Identity{valorantPlayer})
		if err != nil {
			t.Fatalf("cycle %d: %v", i+1, err)
		}
		if got := cycle.Results[0].Outcome.Status; got != wantStatuses[i] {
			t.Fatalf("cycle %d outcome: got=%s want=%s", i+1, got, wantStatuses[i])
		}
		if got := countSnapshots(fx.snapshots, valorantPlayer.Key()); got != wantCounts[i] {
			t.Fatalf("cycle %d stored snapshots: got=%d want=%d", i+1, got, wantCounts[i])
		}
	}

	window := report.Window{Start: testBase, End: fx.clock.Now(), Game: game.Valorant}
	deltas, err := NewAggregationService(fx.snapshots, fx.audit, 1, logging.NewNop()).ComputeDeltas(ctx, window, []player.Identity{valorantPlayer})
	if err != nil {
		t.Fatalf("compute deltas: %v", err)
	}
	if deltas[0].RankDelta == nil || deltas[0].RankDelta.Tiers != 1 {
		t.Fatalf("expected +1 tier delta, got=%+v", deltas[0].RankDelta)
	}
}
