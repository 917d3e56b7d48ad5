package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/ingestion"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
)

const defaultAuditRetention = 7 * 24 * time.Hour

type RetentionConfig struct {
	SnapshotRetention time.Duration
	AuditRetention    time.Duration
}

type PruneResult struct {
	SnapshotCutoff  time.Time `json:"snapshot_cutoff"`
	SnapshotsPruned int64     `json:"snapshots_pruned"`
	AuditPruned     int64     `json:"audit_pruned"`
}

type RetentionService struct {
	snapshots snapshot.Repository
	auditRepo ingestion.Repository
	cfg       RetentionConfig
	metrics   Metrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewRetentionService(
	snapshots snapshot.Repository,
	auditRepo ingestion.Repository,
	cfg RetentionConfig,
	metrics Metrics,
	logger *logging.Logger,
) *RetentionService {
	if logger == nil {
		logger = logging.Default()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if cfg.AuditRetention <= 0 {
		cfg.AuditRetention = defaultAuditRetention
	}
	return &RetentionService{
		snapshots: snapshots,
		auditRepo: auditRepo,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Prune applies the retention policy. A zero snapshot retention keeps
// snapshots forever.
func (s *RetentionService) Prune(ctx context.Context) (PruneResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.RetentionService.Prune")
	defer span.End()

	now := s.now().UTC()
	result := PruneResult{}
	if s.cfg.SnapshotRetention > 0 {
		result.SnapshotCutoff = now.Add(-s.cfg.SnapshotRetention)
		pruned, err := s.snapshots.Prune(ctx, result.SnapshotCutoff)
		if err != nil {
			return result, fmt.Errorf("prune snapshots: %w", err)
		}
		result.SnapshotsPruned = pruned
		s.metrics.AddPruned("snapshots", pruned)
	}

	if s.auditRepo != nil {
		pruned, err := s.auditRepo.Prune(ctx, now.Add(-s.cfg.AuditRetention))
		if err != nil {
			s.logger.WarnContext(ctx, "prune ingestion audit failed", "error", err)
		} else {
			result.AuditPruned = pruned
			s.metrics.AddPruned("ingestion_results", pruned)
		}
	}

	s.logger.InfoContext(ctx, "retention prune finished",
		"snapshots_pruned", result.SnapshotsPruned,
		"audit_pruned", result.AuditPruned,
	)
	return result, nil
}
