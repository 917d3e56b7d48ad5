package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/rank-tracker/internal/domain/ingestion"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
	"github.com/riskibarqy/rank-tracker/internal/platform/id"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
)

const (
	defaultIngestionWorkers      = 4
	defaultIngestionCycleTimeout = 10 * time.Minute
	defaultMaxAttempts           = 3
	defaultTransientRetries      = 2
	defaultRetryBaseDelay        = time.Second
	defaultRateLimitDelay        = 5 * time.Second
	defaultRetryMaxDelay         = time.Minute

	pendingReadTimeout = 2 * time.Second
)

type IngestionConfig struct {
	WorkerPoolSize int
	CycleTimeout   time.Duration
	// MaxAttempts bounds fetch attempts per pair per cycle.
	MaxAttempts int
	// TransientRetries bounds retries after unavailable or schema errors.
	// Zero disables them; a negative value selects the default.
	TransientRetries int
	RetryBaseDelay   time.Duration
	RateLimitDelay   time.Duration
	RetryMaxDelay    time.Duration
}

func (c IngestionConfig) normalize() IngestionConfig {
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = defaultIngestionWorkers
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = defaultIngestionCycleTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.TransientRetries < 0 {
		c.TransientRetries = defaultTransientRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.RateLimitDelay <= 0 {
		c.RateLimitDelay = defaultRateLimitDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	return c
}

// CycleReport summarizes one ingestion cycle.
type CycleReport struct {
	CycleID      string             `json:"cycle_id"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
	PairCount    int                `json:"pair_count"`
	SuccessCount int                `json:"success_count"`
	SkippedCount int                `json:"skipped_count"`
	FailedCount  int                `json:"failed_count"`
	Results      []ingestion.Result `json:"results"`
}

// ByPlayer indexes the cycle results by player key.
func (r CycleReport) ByPlayer() map[player.Key]ingestion.Result {
	out := make(map[player.Key]ingestion.Result, len(r.Results))
	for _, item := range r.Results {
		out[item.Player.Key()] = item
	}
	return out
}

type IngestionService struct {
	players   player.Repository
	registry  *AdapterRegistry
	snapshots snapshot.Repository
	auditRepo ingestion.Repository
	ids       id.Generator
	metrics   Metrics
	cfg       IngestionConfig
	logger    *logging.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewIngestionService(
	players player.Repository,
	registry *AdapterRegistry,
	snapshots snapshot.Repository,
	auditRepo ingestion.Repository,
	ids id.Generator,
	metrics Metrics,
	cfg IngestionConfig,
	logger *logging.Logger,
) *IngestionService {
	if logger == nil {
		logger = logging.Default()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if ids == nil {
		ids = id.NewTimeOrderedGenerator()
	}

	return &IngestionService{
		players:   players,
		registry:  registry,
		snapshots: snapshots,
		auditRepo: auditRepo,
		ids:       ids,
		metrics:   metrics,
		cfg:       cfg.normalize(),
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// RunCycle ingests every tracked pair once.
func (s *IngestionService) RunCycle(ctx context.Context) (CycleReport, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.IngestionService.RunCycle")
	defer span.End()

	pairs, err := s.players.ListTrackedPairs(ctx)
	if err != nil {
		return CycleReport{}, fmt.Errorf("list tracked pairs: %w", err)
	}
	return s.Ingest(ctx, pairs)
}

// Ingest runs one cycle over the given pairs. Per-pair failures are recorded
// in the report; only a store outage is returned as an error.
func (s *IngestionService) Ingest(ctx context.Context, pairs []player.Identity) (CycleReport, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.IngestionService.Ingest")
	defer span.End()

	pairs = uniquePairs(pairs)
	report := CycleReport{
		CycleID:   id.MustNewID(s.ids),
		StartedAt: s.now().UTC(),
		PairCount: len(pairs),
	}
	if len(pairs) == 0 {
		report.FinishedAt = s.now().UTC()
		return report, nil
	}

	cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	defer cancel()

	tracker := newCycleTracker()
	var abortErr atomic.Pointer[error]
	abort := func(err error) {
		if abortErr.CompareAndSwap(nil, &err) {
			cancel()
		}
	}

	workerCount := s.cfg.WorkerPoolSize
	if workerCount > len(pairs) {
		workerCount = len(pairs)
	}
	pool, err := ants.NewPool(workerCount)
	if err != nil {
		return CycleReport{}, fmt.Errorf("create ingestion worker pool: %w", err)
	}
	defer pool.Release()

	var workers sync.WaitGroup
	for _, pair := range pairs {
		if cycleCtx.Err() != nil {
			break
		}
		pair := pair
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()

			result, err := s.ingestPair(cycleCtx, report.CycleID, pair)
			if errors.Is(err, snapshot.ErrStoreUnavailable) {
				abort(err)
			}
			tracker.set(result)
		}); err != nil {
			workers.Done()
			s.logger.WarnContext(ctx, "submit ingestion task failed", "player", pair.Key().String(), "error", err)
			break
		}
	}

	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-cycleCtx.Done():
	}

	pendingOutcome := ingestion.Failed(ingestion.KindTimeout, "ingestion cycle deadline exceeded")
	aborted := abortErr.Load() != nil
	switch {
	case aborted:
		pendingOutcome = ingestion.Failed(ingestion.KindStoreUnavailable, "cycle aborted: snapshot store unavailable")
	case ctx.Err() != nil:
		pendingOutcome = ingestion.Failed(ingestion.KindCanceled, "ingestion cycle canceled")
	}
	attemptedAt := s.now().UTC()
	report.Results = tracker.finalize(pairs, func(pair player.Identity) ingestion.Result {
		result := ingestion.Result{
			CycleID:     report.CycleID,
			Player:      pair,
			AttemptedAt: attemptedAt,
			Outcome:     pendingOutcome,
		}
		if !aborted {
			if snapshotID, ok := s.committedDuringCycle(ctx, pair, report.StartedAt); ok {
				result.Outcome = ingestion.Success(snapshotID)
			}
		}
		return result
	})
	report.FinishedAt = s.now().UTC()

	for _, item := range report.Results {
		switch item.Outcome.Status {
		case ingestion.StatusSuccess:
			report.SuccessCount++
		case ingestion.StatusSkipped:
			report.SkippedCount++
		default:
			report.FailedCount++
		}
		s.metrics.ObserveIngestion(string(item.Player.Game), item.Outcome.Label())
	}
	s.recordResults(ctx, report.Results)

	s.logger.InfoContext(ctx, "ingestion cycle finished",
		"cycle_id", report.CycleID,
		"pairs", report.PairCount,
		"success", report.SuccessCount,
		"skipped", report.SkippedCount,
		"failed", report.FailedCount,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)

	if errPtr := abortErr.Load(); errPtr != nil {
		return report, fmt.Errorf("ingestion cycle %s aborted: %w", report.CycleID, *errPtr)
	}
	return report, nil
}

// committedDuringCycle reports a snapshot appended for a pair whose worker
// had not reported back before the cycle ended.
func (s *IngestionService) committedDuringCycle(ctx context.Context, pair player.Identity, cycleStart time.Time) (string, bool) {
	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pendingReadTimeout)
	defer cancel()

	latest, ok, err := s.snapshots.Latest(readCtx, pair.Key())
	if err != nil || !ok {
		return "", false
	}
	if latest.CapturedAt.Before(snapshot.NormalizeTime(cycleStart)) {
		return "", false
	}
	return latest.ID, true
}

func (s *IngestionService) ingestPair(ctx context.Context, cycleID string, identity player.Identity) (ingestion.Result, error) {
	result := ingestion.Result{
		CycleID:     cycleID,
		Player:      identity,
		AttemptedAt: s.now().UTC(),
	}

	adapter, err := s.registry.Get(identity.Game)
	if err != nil {
		result.Outcome = ingestion.Failed(ingestion.KindUnknownGame, err.Error())
		return result, nil
	}

	latest, hasLatest, err := s.snapshots.Latest(ctx, identity.Key())
	if err != nil {
		result.Outcome = storeFailure(ctx, err)
		return result, err
	}

	fetched, attempts, err := s.fetchWithRetry(ctx, adapter, identity)
	result.Attempts = attempts
	if err != nil {
		result.Outcome = ingestion.Failed(errorKind(ctx, err), err.Error())
		s.logger.WarnContext(ctx, "fetch snapshot failed",
			"player", identity.Key().String(),
			"attempts", attempts,
			"error", err,
		)
		return result, nil
	}

	fetched.Player = identity
	if fetched.CapturedAt.IsZero() {
		fetched.CapturedAt = s.now()
	}
	fetched.CapturedAt = snapshot.NormalizeTime(fetched.CapturedAt)

	if hasLatest && snapshot.SameStats(latest, fetched) {
		result.Outcome = ingestion.Skipped(ingestion.SkipUnchanged)
		return result, nil
	}

	snapshotID, err := s.snapshots.Append(ctx, fetched)
	switch {
	case err == nil:
		result.Outcome = ingestion.Success(snapshotID)
		return result, nil
	case errors.Is(err, snapshot.ErrOutOfOrder):
		result.Outcome = ingestion.Skipped(ingestion.SkipRace)
		return result, nil
	default:
		result.Outcome = storeFailure(ctx, err)
		return result, err
	}
}

func (s *IngestionService) fetchWithRetry(ctx context.Context, adapter GameAdapter, identity player.Identity) (snapshot.Snapshot, int, error) {
	var (
		rateBackoff      *backoff.ExponentialBackOff
		transientBackoff = s.newBackoff(s.cfg.RetryBaseDelay)
		transientRetries int
		lastErr          error
	)

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if err := s.waitForBudget(ctx, adapter.Budget()); err != nil {
			return snapshot.Snapshot{}, attempt - 1, err
		}

		item, err := adapter.FetchSnapshot(ctx, identity)
		if err == nil {
			return item, attempt, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return snapshot.Snapshot{}, attempt, err
		}

		var delay time.Duration
		switch {
		case errors.Is(err, ErrRateLimited):
			hint := RetryAfterHint(err)
			if rateBackoff == nil {
				initial := s.cfg.RateLimitDelay
				if hint > 0 {
					initial = hint
				}
				rateBackoff = s.newBackoff(initial)
			}
			delay = max(rateBackoff.NextBackOff(), hint)
		case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, ErrUpstreamSchema):
			if transientRetries >= s.cfg.TransientRetries {
				return snapshot.Snapshot{}, attempt, err
			}
			transientRetries++
			delay = transientBackoff.NextBackOff()
		default:
			return snapshot.Snapshot{}, attempt, err
		}

		if attempt == s.cfg.MaxAttempts {
			break
		}
		s.logger.DebugContext(ctx, "retrying snapshot fetch",
			"player", identity.Key().String(),
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if err := s.sleep(ctx, delay); err != nil {
			return snapshot.Snapshot{}, attempt, err
		}
	}

	return snapshot.Snapshot{}, s.cfg.MaxAttempts, lastErr
}

// waitForBudget blocks until the adapter allows another call. A wait that
// cannot finish before the cycle deadline fails as rate limited.
func (s *IngestionService) waitForBudget(ctx context.Context, budget RateBudget) error {
	if budget == nil {
		return nil
	}
	wait := budget.NextAllowedAt().Sub(s.now())
	if wait <= 0 {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok && s.now().Add(wait).After(deadline) {
		return &RateLimitedError{RetryAfter: wait}
	}
	return s.sleep(ctx, wait)
}

func (s *IngestionService) newBackoff(initial time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max(s.cfg.RetryMaxDelay, initial)
	b.Reset()
	return b
}

func (s *IngestionService) recordResults(ctx context.Context, results []ingestion.Result) {
	if s.auditRepo == nil || len(results) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.auditRepo.Record(ctx, results); err != nil {
		s.logger.WarnContext(ctx, "record ingestion results failed", "count", len(results), "error", err)
	}
}

func storeFailure(ctx context.Context, err error) ingestion.Outcome {
	kind := ingestion.KindStore
	switch {
	case errors.Is(err, snapshot.ErrStoreUnavailable):
		kind = ingestion.KindStoreUnavailable
	case ctx.Err() != nil:
		kind = errorKind(ctx, err)
	}
	return ingestion.Failed(kind, err.Error())
}

func errorKind(ctx context.Context, err error) ingestion.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ingestion.KindTimeout
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return ingestion.KindCanceled
	case errors.Is(err, ErrRateLimited):
		return ingestion.KindRateLimited
	case errors.Is(err, ErrIdentityNotFound):
		return ingestion.KindIdentityNotFound
	case errors.Is(err, ErrUpstreamSchema):
		return ingestion.KindUpstreamSchema
	case errors.Is(err, ErrUnknownGame):
		return ingestion.KindUnknownGame
	case errors.Is(err, snapshot.ErrStoreUnavailable):
		return ingestion.KindStoreUnavailable
	default:
		return ingestion.KindUpstreamUnavailable
	}
}

func uniquePairs(pairs []player.Identity) []player.Identity {
	seen := make(map[player.Key]struct{}, len(pairs))
	out := make([]player.Identity, 0, len(pairs))
	for _, pair := range pairs {
		key := pair.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, pair)
	}
	return out
}

// cycleTracker collects results until finalize; later writes are dropped.
type cycleTracker struct {
	mu      sync.Mutex
	closed  bool
	results map[player.Key]ingestion.Result
}

func newCycleTracker() *cycleTracker {
	return &cycleTracker{results: make(map[player.Key]ingestion.Result)}
}

func (t *cycleTracker) set(result ingestion.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.results[result.Player.Key()] = result
}

func (t *cycleTracker) finalize(pairs []player.Identity, pending func(player.Identity) ingestion.Result) []ingestion.Result {
	t.mu.Lock()
	t.closed = true
	out := make([]ingestion.Result, 0, len(pairs))
	for _, pair := range pairs {
		item, ok := t.results[pair.Key()]
		if !ok {
			item = pending(pair)
		}
		out = append(out, item)
	}
	t.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Player.Key().String() < out[j].Player.Key().String()
	})
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
