package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/ingestion"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
)

const (
	defaultRangeLookback = 7 * 24 * time.Hour
	maxRangeSnapshots    = 1000
)

type PlayerLatest struct {
	Snapshot    snapshot.Snapshot
	LastAttempt *ingestion.Result
}

// SnapshotQueryService serves read-only snapshot lookups for ops tooling.
type SnapshotQueryService struct {
	snapshots snapshot.Repository
	auditRepo ingestion.Repository
	logger    *logging.Logger
	now       func() time.Time
}

func NewSnapshotQueryService(snapshots snapshot.Repository, auditRepo ingestion.Repository, logger *logging.Logger) *SnapshotQueryService {
	if logger == nil {
		logger = logging.Default()
	}
	return &SnapshotQueryService{
		snapshots: snapshots,
		auditRepo: auditRepo,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *SnapshotQueryService) Latest(ctx context.Context, rawGame, externalID string) (PlayerLatest, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SnapshotQueryService.Latest")
	defer span.End()

	key, err := parsePlayerKey(rawGame, externalID)
	if err != nil {
		return PlayerLatest{}, err
	}

	item, ok, err := s.snapshots.Latest(ctx, key)
	if err != nil {
		return PlayerLatest{}, fmt.Errorf("latest snapshot player=%s: %w", key, err)
	}
	if !ok {
		return PlayerLatest{}, fmt.Errorf("%w: no snapshot for player=%s", ErrNotFound, key)
	}

	out := PlayerLatest{Snapshot: item}
	if s.auditRepo != nil {
		result, found, err := s.auditRepo.LatestByPlayer(ctx, key)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "read latest ingestion result failed", "player", key.String(), "error", err)
		case found:
			out.LastAttempt = &result
		}
	}
	return out, nil
}

// Range lists snapshots in [from, to]. A zero to means now and a zero from
// means a week before to.
func (s *SnapshotQueryService) Range(ctx context.Context, rawGame, externalID string, from, to time.Time) ([]snapshot.Snapshot, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.SnapshotQueryService.Range")
	defer span.End()

	key, err := parsePlayerKey(rawGame, externalID)
	if err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-defaultRangeLookback)
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: from must not be after to", ErrInvalidInput)
	}

	out := make([]snapshot.Snapshot, 0)
	for item, err := range s.snapshots.Range(ctx, key, snapshot.NormalizeTime(from), snapshot.NormalizeTime(to)) {
		if err != nil {
			return nil, fmt.Errorf("range snapshots player=%s: %w", key, err)
		}
		out = append(out, item)
		if len(out) >= maxRangeSnapshots {
			break
		}
	}
	return out, nil
}

func parsePlayerKey(rawGame, externalID string) (player.Key, error) {
	id, err := game.ParseID(rawGame)
	if err != nil {
		return player.Key{}, fmt.Errorf("%w: %v", ErrUnknownGame, err)
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return player.Key{}, fmt.Errorf("%w: external id is required", ErrInvalidInput)
	}
	return player.Key{Game: id, ExternalID: externalID}, nil
}
