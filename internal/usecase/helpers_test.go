package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
	"github.com/riskibarqy/rank-tracker/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
	"github.com/stretchr/testify/mock"
)

var testBase = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

var valorantLadder = game.Ladder{
	Tiers:     []string{"UNRANKED", "IRON", "BRONZE", "SILVER", "GOLD", "PLATINUM", "DIAMOND"},
	Divisions: []string{"1", "2", "3"},
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(at time.Time) *testClock {
	return &testClock{now: at}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func valorantRank(tier, division string, rr int) game.Rank {
	rank, err := valorantLadder.Rank(tier, division, rr)
	if err != nil {
		panic(err)
	}
	return rank
}

func valorantSnapshot(tier, division string, rr int) snapshot.Snapshot {
	return snapshot.Snapshot{
		Rank:    valorantRank(tier, division, rr),
		Metrics: map[string]float64{"rr": float64(rr)},
	}
}

func newAdapterMock(t interface {
	mock.TestingT
	Cleanup(func())
}, id game.ID) *mockGameAdapter {
	adapter := newMockGameAdapter(t)
	adapter.On("Game").Return(id).Maybe()
	adapter.On("Budget").Return(nil).Maybe()
	return adapter
}

type ingestionFixture struct {
	service   *IngestionService
	snapshots *memory.SnapshotRepository
	audit     *memory.IngestionRepository
	clock     *testClock
	sleeps    *sleepRecorder
}

func newIngestionFixture(store snapshot.Repository, cfg IngestionConfig, adapters ...GameAdapter) (*ingestionFixture, error) {
	registry, err := NewAdapterRegistry(adapters...)
	if err != nil {
		return nil, err
	}
	mem := memory.NewSnapshotRepository(nil)
	if store == nil {
		store = mem
	}
	audit := memory.NewIngestionRepository(64)
	svc := NewIngestionService(
		memory.NewPlayerRepository(nil),
		registry,
		store,
		audit,
		nil,
		nil,
		cfg,
		logging.NewNop(),
	)
	clock := newTestClock(testBase)
	sleeps := &sleepRecorder{}
	svc.now = clock.Now
	svc.sleep = sleeps.Sleep
	return &ingestionFixture{
		service:   svc,
		snapshots: mem,
		audit:     audit,
		clock:     clock,
		sleeps:    sleeps,
	}, nil
}

func countSnapshots(repo snapshot.Repository, key player.Key) int {
	count := 0
	for _, err := range repo.Range(context.Background(), key, time.Time{}, testBase.Add(365*24*time.Hour)) {
		if err != nil {
			return -1
		}
		count++
	}
	return count
}
