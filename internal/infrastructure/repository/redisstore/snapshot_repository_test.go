package redisstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
	"github.com/riskibarqy/rank-tracker/internal/platform/id"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRepository(t *testing.T) (*SnapshotRepository, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewSnapshotRepository(client, "test", id.NewTimeOrderedGenerator())
	repo.pageSize = 2
	return repo, srv
}

func sample(externalID string, capturedAt time.Time, rating int) snapshot.Snapshot {
	return snapshot.Snapshot{
		Player:     player.Identity{Game: game.Valorant, ExternalID: externalID, DisplayName: "Sage", Region: "eu"},
		CapturedAt: capturedAt,
		Rank:       game.Rank{Tier: "GOLD", TierIndex: 4, Division: "2", DivisionIndex: 2, Rating: rating},
		Metrics:    map[string]float64{"rr": float64(rating)},
		RawSource:  []byte(fmt.Sprintf(`{"rr":%d}`, rating)),
	}
}

func TestSnapshotRepository_AppendAndLatest(t *testing.T) {
	t.Parallel()

	repo, _ := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := repo.Append(ctx, sample("p1", base.Add(time.Duration(i)*time.Hour), 10*i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	latest, ok, err := repo.Latest(ctx, player.Key{Game: game.Valorant, ExternalID: "p1"})
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if !latest.CapturedAt.Equal(base.Add(2*time.Hour)) || latest.Rank.Rating != 20 {
		t.Fatalf("unexpected latest: %+v", latest)
	}
	if latest.Player.DisplayName != "Sage" || string(latest.RawSource) != `{"rr":20}` {
		t.Fatalf("latest lost fields: %+v", latest)
	}

	_, ok, err = repo.Latest(ctx, player.Key{Game: game.Valorant, ExternalID: "nobody"})
	if err != nil || ok {
		t.Fatalf("expected no latest for unknown player: ok=%v err=%v", ok, err)
	}
}

func TestSnapshotRepository_AppendRejectsOutOfOrder(t *testing.T) {
	t.Parallel()

	repo, _ := newTestRepository(t)
	ctx := context.Background()

	if _, err := repo.Append(ctx, sample("p1", base, 1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	for _, at := range []time.Time{base, base.Add(-time.Minute)} {
		if _, err := repo.Append(ctx, sample("p1", at, 2)); !errors.Is(err, snapshot.ErrOutOfOrder) {
			t.Fatalf("append at %s: expected out of order, got %v", at, err)
		}
	}
	if _, err := repo.Append(ctx, sample("p2", base.Add(-time.Hour), 1)); err != nil {
		t.Fatalf("other players are independent: %v", err)
	}
}

func TestSnapshotRepository_RangeIsInclusiveAndPaged(t *testing.T) {
	t.Parallel()

	repo, _ := newTestRepository(t)
	ctx := context.Background()
	key := player.Key{Game: game.Valorant, ExternalID: "p1"}

	for i := 0; i < 6; i++ {
		if _, err := repo.Append(ctx, sample("p1", base.Add(time.Duration(i)*time.Hour), i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	var ratings []int
	for item, err := range repo.Range(ctx, key, base.Add(time.Hour), base.Add(5*time.Hour)) {
		if err != nil {
			t.Fatalf("range: %v", err)
		}
		ratings = append(ratings, item.Rank.Rating)
	}
	want := []int{1, 2, 3, 4, 5}
	if fmt.Sprint(ratings) != fmt.Sprint(want) {
		t.Fatalf("unexpected range: got=%v want=%v", ratings, want)
	}

	count := 0
	for range repo.Range(ctx, key, base, base.Add(10*time.Hour)) {
		count++
		if count == 3 {
			break
		}
	}
	if count != 3 {
		t.Fatalf("early break not honored: got=%d", count)
	}
}

func TestSnapshotRepository_LatestBefore(t *testing.T) {
	t.Parallel()

	repo, _ := newTestRepository(t)
	ctx := context.Background()
	key := player.Key{Game: game.Valorant, ExternalID: "p1"}

	for i := 0; i < 3; i++ {
		if _, err := repo.Append(ctx, sample("p1", base.Add(time.Duration(i)*time.Hour), i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	item, ok, err := repo.LatestBefore(ctx, key, base.Add(2*time.Hour))
	if err != nil || !ok || item.Rank.Rating != 1 {
		t.Fatalf("unexpected latest before: item=%+v ok=%v err=%v", item, ok, err)
	}
	if _, ok, _ := repo.LatestBefore(ctx, key, base); ok {
		t.Fatalf("expected nothing strictly before the first snapshot")
	}
}

func TestSnapshotRepository_PruneKeepsLatest(t *testing.T) {
	t.Parallel()

	repo, _ := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := repo.Append(ctx, sample("p1", base.Add(time.Duration(i)*time.Hour), i)); err != nil {
			t.Fatalf("append p1 %d: %v", i, err)
		}
	}
	if _, err := repo.Append(ctx, sample("p2", base, 9)); err != nil {
		t.Fatalf("append p2: %v", err)
	}

	pruned, err := repo.Prune(ctx, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 2 {
		t.Fatalf("unexpected pruned count: got=%d want=%d", pruned, 2)
	}
	for _, externalID := range []string{"p1", "p2"} {
		if _, ok, err := repo.Latest(ctx, player.Key{Game: game.Valorant, ExternalID: externalID}); err != nil || !ok {
			t.Fatalf("latest of %s must survive prune: ok=%v err=%v", externalID, ok, err)
		}
	}
}

func TestSnapshotRepository_UnavailableStore(t *testing.T) {
	t.Parallel()

	repo, srv := newTestRepository(t)
	srv.Close()

	_, err := repo.Append(context.Background(), sample("p1", base, 1))
	if !errors.Is(err, snapshot.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}
