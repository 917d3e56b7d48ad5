package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/ingestion"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
	"github.com/riskibarqy/rank-tracker/internal/infrastructure/repository/memory"
	playermock "github.com/riskibarqy/rank-tracker/internal/mocks/domain/player"
	"github.com/stretchr/testify/mock"
)

var valorantPlayer = player.Identity{Game: game.Valorant, ExternalID: "puuid-p", DisplayName: "P#0001", Region: "ap"}

func TestIngestionService_RerunWithUnchangedUpstreamIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	adapter := newAdapterMock(t, game.Valorant)
	adapter.On("FetchSnapshot", mock.Anything, valorantPlayer).Return(valorantSnapshot("GOLD", "2", 50), nil).Twice()

	fx, err := newIngestionFixture(nil, IngestionConfig{}, adapter)
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	first, err := fx.service.Ingest(ctx, []player.Identity{valorantPlayer})
	if err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	fx.clock.Advance(15 * time.Minute)
	second, err := fx.service.Ingest(ctx, []player.Identity{valorantPlayer})
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	if got := first.Results[0].Outcome.Status; got != ingestion.StatusSuccess {
		t.Fatalf("unexpected first outcome: got=%s want=%s", got, ingestion.StatusSuccess)
	}
	if got := second.Results[0].Outcome; got.Status != ingestion.StatusSkipped || got.Reason != ingestion.SkipUnchanged {
		t.Fatalf("unexpected second outcome: got=%+v", got)
	}
	if got := countSnapshots(fx.snapshots, valorantPlayer.Key()); got != 1 {
		t.Fatalf("unexpected stored snapshots: got=%d want=1", got)
	}
}

func TestIngestionService_RateLimitedExhaustsAttempts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	adapter := newAdapterMock(t, game.Valorant)
	adapter.On("FetchSnapshot", mock.Anything, valorantPlayer).
		Return(snapshot.Snapshot{}, &RateLimitedError{RetryAfter: 2 * time.Second}).
		Times(3)

	fx, err := newIngestionFixture(nil, IngestionConfig{MaxAttempts: 3}, adapter)
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	report, err := fx.service.Ingest(ctx, []player.Identity{valorantPlayer})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	result := report.Results[0]
	if result.Outcome.Status != ingestion.StatusFailed || result.Outcome.ErrorKind != ingestion.KindRateLimited {
		t.Fatalf("unexpected outcome: got=%+v", result.Outcome)
	}
	if result.Attempts != 3 {
		t.Fatalf("unexpected attempts: got=%d want=3", result.Attempts)
	}
	adapter.AssertNumberOfCalls(t, "FetchSnapshot", 3)

	delays := fx.sleeps.Delays()
	if len(delays) != 2 {
		t.Fatalf("unexpected backoff sleeps: got=%d want=2", len(delays))
	}
	for _, d := range delays {
		if d < 2*time.Second {
			t.Fatalf("backoff shorter than retry hint: got=%s", d)
		}
	}
	if got := countSnapshots(fx.snapshots, valorantPlayer.Key()); got != 0 {
		t.Fatalf("expected no snapshot written, got=%d", got)
	}
}

func TestIngestionService_RateLimitedDefaultDelayWithoutHint(t *testing.T) {
	t.Parallel()

	adapter := newAdapterMock(t, game.Valorant)
	adapter.On("FetchSnapshot", mock.Anything, valorantPlayer).
		Return(snapshot.Snapshot{}, &RateLimitedError{}).Once()
	adapter.On("FetchSnapshot", mock.Anything, valorantPlayer).
		Return(valorantSnapshot("GOLD", "1", 10), nil).Once()

	fx, err := newIngestionFixture(nil, IngestionConfig{}, adapter)
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	report, err := fx.service.Ingest(context.Background(), []player.Identity{valorantPlayer})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if report.Results[0].Outcome.Status != ingestion.StatusSuccess {
		t.Fatalf("unexpected outcome: %+v", report.Results[0].Outcome)
	}

	delays := fx.sleeps.Delays()
	if len(delays) != 1 {
		t.Fatalf("unexpected sleeps: got=%d want=1", len(delays))
	}
	// default 5s with 50% jitter
	if delays[0] < 2500*time.Millisecond || delays[0] > 7500*time.Millisecond {
		t.Fatalf("unexpected default delay: got=%s", delays[0])
	}
}

func TestIngestionService_TransientErrorsRetryTwice(t *testing.T) {
	t.Parallel()

	adapter := newAdapterMock(t, game.Valorant)
	adapter.On("FetchSnapshot", mock.Anything, valorantPlayer).
		Return(snapshot.Snapshot{}, fmt.Errorf("%w: status 503", ErrUpstreamUnavailable)).
		Times(3)

	fx, err := newIngestionFixture(nil, IngestionConfig{MaxAttempts: 5, TransientRetries: 2}, adapter)
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	report, err := fx.service.Ingest(context.Background(), []player.Identity{valorantPlayer})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	outcome := report.Results[0].Outcome
	if outcome.ErrorKind != ingestion.KindUpstreamUnavailable {
		t.Fatalf("unexpected outcome: got=%+v", outcome)
	}
	adapter.AssertNumberOfCalls(t, "FetchSnapshot", 3)
}

func TestIngestionService_ZeroTransientRetriesFailsOnFirstError(t *testing.T) {
	t.Parallel()

	adapter := newAdapterMock(t, game.Valorant)
	adapter.On("FetchSnapshot", mock.Anything, valorantPlayer).
		Return(snapshot.Snapshot{}, fmt.Errorf("%w: status 502", ErrUpstreamUnavailable)).Once()

	fx, err := newIngestionFixture(nil, IngestionConfig{TransientRetries: 0}, adapter)
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	report, err := fx.service.Ingest(context.Background(), []player.Identity{valorantPlayer})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if got := report.Results[0].Outcome.ErrorKind; got != ingestion.KindUpstreamUnavailable {
		t.Fatalf("unexpected error kind: got=%s", got)
	}
	adapter.AssertNumberOfCalls(t, "FetchSnapshot", 1)
	if len(fx.sleeps.Delays()) != 0 {
		t.Fatalf("expected no backoff sleep, got=%v", fx.sleeps.Delays())
	}
}

func TestIngestionService_IdentityNotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	adapter := newAdapterMock(t, game.Valorant)
	adapter.On("FetchSnapshot", mock.Anything, valorantPlayer).
		Return(snapshot.Snapshot{}, ErrIdentityNotFound).Once()

	fx, err := newIngestionFixture(nil, IngestionConfig{}, adapter)
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	report, err := fx.service.Ingest(context.Background(), []player.Identity{valorantPlayer})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if got := report.Results[0].Outcome.ErrorKind; got != ingestion.KindIdentityNotFound {
		t.Fatalf("unexpected error kind: got=%s", got)
	}
	if len(fx.sleeps.Delays()) != 0 {
		t.Fatalf("expected no backoff sleep")
	}
}

func TestIngestionService_OnePairFailureDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	lolPlayer := player.Identity{Game: game.LeagueOfLegends, ExternalID: "lol-1"}
	unknown := player.Identity{Game: game.ApexLegends, ExternalID: "apex-1"}

	valorant := newAdapterMock(t, game.Valorant)
	valorant.On("FetchSnapshot", mock.Anything, valorantPlayer).
		Return(snapshot.Snapshot{}, ErrUpstreamSchema).Times(3)
	lol := newAdapterMock(t, game.LeagueOfLegends)
	lol.On("FetchSnapshot", mock.Anything, lolPlayer).
		Return(snapshot.Snapshot{Rank: game.Rank{Tier: "GOLD", TierIndex: 5}, Metrics: map[string]float64{"lp": 10}}, nil).Once()

	fx, err := newIngestionFixture(nil, IngestionConfig{WorkerPoolSize: 2, TransientRetries: 2}, valorant, lol)
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	report, err := fx.service.Ingest(context.Background(), []player.Identity{valorantPlayer, lolPlayer, unknown})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	byPlayer := report.ByPlayer()
	if got := byPlayer[valorantPlayer.Key()].Outcome.ErrorKind; got != ingestion.KindUpstreamSchema {
		t.Fatalf("unexpected valorant outcome: got=%s", got)
	}
	if got := byPlayer[lolPlayer.Key()].Outcome.Status; got != ingestion.StatusSuccess {
		t.Fatalf("unexpected lol outcome: got=%s", got)
	}
	if got := byPlayer[unknown.Key()].Outcome.ErrorKind; got != ingestion.KindUnknownGame {
		t.Fatalf("unexpected unknown game outcome: got=%s", got)
	}
	if report.SuccessCount != 1 || report.FailedCount != 2 {
		t.Fatalf("unexpected counts: success=%d failed=%d", report.SuccessCount, report.FailedCount)
	}

	latest, ok, err := fx.audit.LatestByPlayer(context.Background(), valorantPlayer.Key())
	if err != nil || !ok || latest.Outcome.Status != ingestion.StatusFailed {
		t.Fatalf("expected failed result in audit trail: ok=%v err=%v", ok, err)
	}
}

type racingStore struct {
	*memory.SnapshotRepository
}

func (s racingStore) Append(context.Context, snapshot.Snapshot) (string, error) {
	return "", fmt.Errorf("%w: concurrent writer", snapshot.ErrOutOfOrder)
}

func TestIngestionService_OutOfOrderAppendIsSkippedAsRace(t *testing.T) {
	t.Parallel()

	adapter := newAdapterMock(t, game.Valorant)
	adapter.On("FetchSnapshot", mock.Anything, valorantPlayer).Return(valorantSnapshot("GOLD", "2", 50), nil).Once()

	store := racingStore{SnapshotRepository: memory.NewSnapshotRepository(nil)}
	fx, err := newIngestionFixture(store, IngestionConfig{}, adapter)
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	report, err := fx.service.Ingest(context.Background(), []player.Identity{valorantPlayer})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	outcome := report.Results[0].Outcome
	if outcome.Status != ingestion.StatusSkipped || outcome.Reason != ingestion.SkipRace {
		t.Fatalf("unexpected outcome: got=%+v", outcome)
	}
}

type unavailableStore struct {
	*memory.SnapshotRepository
}

func (s unavailableStore) Latest(context.Context, player.Key) (snapshot.Snapshot, bool, error) {
	return snapshot.Snapshot{}, false, fmt.Errorf("%w: connection refused", snapshot.ErrStoreUnavailable)
}

func TestIngestionService_StoreUnavailableAbortsCycle(t *testing.T) {
	t.Parallel()

	adapter := newAdapterMock(t, game.Valorant)
	store := unavailableStore{SnapshotRepository: memory.NewSnapshotRepository(nil)}
	fx, err := newIngestionFixture(store, IngestionConfig{WorkerPoolSize: 1}, adapter)
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	pairs := []player.Identity{
		valorantPlayer,
		{Game: game.Valorant, ExternalID: "puuid-q"},
		{Game: game.Valorant, ExternalID: "puuid-r"},
	}
	report, err := fx.service.Ingest(context.Background(), pairs)
	if !errors.Is(err, snapshot.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable error, got=%v", err)
	}
	if len(report.Results) != len(pairs) {
		t.Fatalf("expected a result for every pair: got=%d want=%d", len(report.Results), len(pairs))
	}
	for _, item := range report.Results {
		if item.Outcome.Status != ingestion.StatusFailed {
			t.Fatalf("unexpected outcome for %s: %+v", item.Player.ExternalID, item.Outcome)
		}
	}
	adapter.AssertNotCalled(t, "FetchSnapshot", mock.Anything, mock.Anything)
}

func TestIngestionService_CycleTimeoutMarksPendingPairs(t *testing.T) {
	t.Parallel()

	slow := player.Identity{Game: game.Valorant, ExternalID: "puuid-slow"}
	adapter := newAdapterMock(t, game.Valorant)
	adapter.On("FetchSnapshot", mock.Anything, slow).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(snapshot.Snapshot{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, context.DeadlineExceeded)).
		Maybe()

	fx, err := newIngestionFixture(nil, IngestionConfig{CycleTimeout: 50 * time.Millisecond}, adapter)
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	report, err := fx.service.Ingest(context.Background(), []player.Identity{slow})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	outcome := report.Results[0].Outcome
	if outcome.Status != ingestion.StatusFailed || outcome.ErrorKind != ingestion.KindTimeout {
		t.Fatalf("unexpected outcome: got=%+v", outcome)
	}
}

// slowAckStore commits the append and then holds the worker until the cycle
// deadline passes.
type slowAckStore struct {
	*memory.SnapshotRepository
}

func (s slowAckStore) Append(ctx context.Context, item snapshot.Snapshot) (string, error) {
	snapshotID, err := s.SnapshotRepository.Append(ctx, item)
	<-ctx.Done()
	return snapshotID, err
}

func TestIngestionService_CycleTimeoutKeepsCommittedAppend(t *testing.T) {
	t.Parallel()

	adapter := newAdapterMock(t, game.Valorant)
	adapter.On("FetchSnapshot", mock.Anything, valorantPlayer).
		Return(valorantSnapshot("GOLD", "2", 40), nil).Once()

	store := slowAckStore{SnapshotRepository: memory.NewSnapshotRepository(nil)}
	fx, err := newIngestionFixture(store, IngestionConfig{CycleTimeout: 50 * time.Millisecond}, adapter)
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	report, err := fx.service.Ingest(context.Background(), []player.Identity{valorantPlayer})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	latest, ok, err := store.Latest(context.Background(), valorantPlayer.Key())
	if err != nil || !ok {
		t.Fatalf("expected committed snapshot, ok=%v err=%v", ok, err)
	}
	outcome := report.Results[0].Outcome
	if outcome.Status != ingestion.StatusSuccess || outcome.SnapshotID != latest.ID {
		t.Fatalf("unexpected outcome: got=%+v want success with id=%s", outcome, latest.ID)
	}
	if report.FailedCount != 0 || report.SuccessCount != 1 {
		t.Fatalf("unexpected counts: success=%d failed=%d", report.SuccessCount, report.FailedCount)
	}
}

func TestIngestionService_RunCycleReadsRegistrationSource(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	players := playermock.NewRepository(t)
	players.On("ListTrackedPairs", mock.Anything).Return(nil, errors.New("registry down")).Once()

	registry, err := NewAdapterRegistry()
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	svc := NewIngestionService(players, registry, memory.NewSnapshotRepository(nil), nil, nil, nil, IngestionConfig{}, nil)

	if _, err := svc.RunCycle(ctx); err == nil {
		t.Fatalf("expected error from registration source")
	}
}

func TestIngestionService_DuplicatePairsDispatchOnce(t *testing.T) {
	t.Parallel()

	adapter := newAdapterMock(t, game.Valorant)
	adapter.On("FetchSnapshot", mock.Anything, valorantPlayer).Return(valorantSnapshot("GOLD", "2", 50), nil).Once()

	fx, err := newIngestionFixture(nil, IngestionConfig{}, adapter)
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}

	report, err := fx.service.Ingest(context.Background(), []player.Identity{valorantPlayer, valorantPlayer})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if report.PairCount != 1 {
		t.Fatalf("unexpected pair count: got=%d want=1", report.PairCount)
	}
}
