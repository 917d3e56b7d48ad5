package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/ingestion"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/domain/report"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
	conciter "github.com/sourcegraph/conc/iter"
)

const defaultAggregationWorkers = 8

type AggregationService struct {
	snapshots snapshot.Repository
	auditRepo ingestion.Repository
	workers   int
	logger    *logging.Logger
}

func NewAggregationService(
	snapshots snapshot.Repository,
	auditRepo ingestion.Repository,
	workers int,
	logger *logging.Logger,
) *AggregationService {
	if logger == nil {
		logger = logging.Default()
	}
	if workers <= 0 {
		workers = defaultAggregationWorkers
	}
	return &AggregationService{
		snapshots: snapshots,
		auditRepo: auditRepo,
		workers:   workers,
		logger:    logger,
	}
}

// ComputeDeltas returns one delta per pair, in input order. Only a store
// outage fails the whole computation.
func (s *AggregationService) ComputeDeltas(ctx context.Context, window report.Window, pairs []player.Identity) ([]report.Delta, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.AggregationService.ComputeDeltas")
	defer span.End()

	if window.End.Before(window.Start) {
		return nil, fmt.Errorf("%w: window end before start", ErrInvalidInput)
	}
	if len(pairs) == 0 {
		return []report.Delta{}, nil
	}

	mapper := conciter.Mapper[player.Identity, report.Delta]{MaxGoroutines: s.workers}
	out, err := mapper.MapErr(pairs, func(pair *player.Identity) (report.Delta, error) {
		return s.computeOne(ctx, window, *pair)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *AggregationService) computeOne(ctx context.Context, window report.Window, pair player.Identity) (report.Delta, error) {
	delta := report.Delta{
		Player: pair,
		Game:   pair.Game,
		Window: window,
	}

	items, err := s.collect(ctx, pair.Key(), window)
	if err != nil {
		if errors.Is(err, snapshot.ErrStoreUnavailable) {
			return report.Delta{}, fmt.Errorf("read snapshots player=%s: %w", pair.Key(), err)
		}
		s.logger.WarnContext(ctx, "read snapshots for delta failed", "player", pair.Key().String(), "error", err)
		delta.Note = report.NoteReadFailed
		return delta, nil
	}
	delta.SnapshotCount = len(items)

	switch len(items) {
	case 0:
		delta.Note = report.NoteNoData
	case 1:
		baseline, ok, err := s.snapshots.LatestBefore(ctx, pair.Key(), window.Start)
		if err != nil {
			if errors.Is(err, snapshot.ErrStoreUnavailable) {
				return report.Delta{}, fmt.Errorf("read baseline player=%s: %w", pair.Key(), err)
			}
			delta.Note = report.NoteReadFailed
			break
		}
		if !ok {
			last := items[0]
			delta.To = &last
			delta.Note = report.NoteNoBaseline
			break
		}
		fillDelta(&delta, append([]snapshot.Snapshot{baseline}, items...))
	default:
		fillDelta(&delta, items)
	}

	s.annotateStale(ctx, &delta)
	return delta, nil
}

func (s *AggregationService) collect(ctx context.Context, key player.Key, window report.Window) ([]snapshot.Snapshot, error) {
	out := make([]snapshot.Snapshot, 0, 8)
	for item, err := range s.snapshots.Range(ctx, key, window.Start, window.End) {
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// annotateStale appends a note when the latest ingestion for the player failed.
func (s *AggregationService) annotateStale(ctx context.Context, delta *report.Delta) {
	if s.auditRepo == nil {
		return
	}
	last, ok, err := s.auditRepo.LatestByPlayer(ctx, delta.Player.Key())
	if err != nil || !ok || last.Outcome.Status != ingestion.StatusFailed {
		return
	}
	note := fmt.Sprintf("%s (%s)", report.NoteStalePrefix, last.Outcome.ErrorKind)
	if delta.Note == "" {
		delta.Note = note
		return
	}
	delta.Note += "; " + note
}

func fillDelta(delta *report.Delta, ordered []snapshot.Snapshot) {
	first := ordered[0]
	last := ordered[len(ordered)-1]
	rankDelta := game.Diff(first.Rank, last.Rank)

	delta.From = &first
	delta.To = &last
	delta.RankDelta = &rankDelta
	delta.MetricDeltas = metricDeltas(first.Metrics, last.Metrics)
	delta.Streak = rankStreak(ordered)
}

func metricDeltas(from, to map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(to))
	for name, after := range to {
		before, ok := from[name]
		if !ok {
			continue
		}
		out[name] = after - before
	}
	return out
}

// rankStreak counts consecutive same-direction rank moves at the tail of the
// series. Unchanged steps are ignored. Positive is a winning run.
func rankStreak(ordered []snapshot.Snapshot) int {
	streak := 0
	for i := len(ordered) - 1; i > 0; i-- {
		dir := game.CompareRanks(ordered[i].Rank, ordered[i-1].Rank)
		if dir == 0 {
			continue
		}
		if streak != 0 && (dir > 0) != (streak > 0) {
			break
		}
		streak += dir
	}
	return streak
}
