package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/jobscheduler"
	"github.com/riskibarqy/rank-tracker/internal/domain/report"
	"github.com/riskibarqy/rank-tracker/internal/platform/cadence"
	"github.com/riskibarqy/rank-tracker/internal/platform/id"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel/trace"
)

const (
	JobIngestion = "ingestion"
	JobPrune     = "prune"

	triggerSchedule = "schedule"
	triggerManual   = "manual"
)

// ReportJobName is the scheduler key of a report definition.
func ReportJobName(name string) string {
	return "report:" + name
}

type CycleRunner interface {
	RunCycle(ctx context.Context) (CycleReport, error)
}

type ReportRunner interface {
	RunReport(ctx context.Context, def report.Definition, firedAt time.Time) (ReportRunResult, error)
}

type RetentionRunner interface {
	Prune(ctx context.Context) (PruneResult, error)
}

type SchedulerConfig struct {
	IngestionInterval time.Duration
	PruneInterval     time.Duration
	IngestOnStart     bool
	// StopTimeout bounds how long Stop waits for in-flight runs.
	StopTimeout time.Duration
}

type JobStatus struct {
	Name    string    `json:"name"`
	Kind    string    `json:"kind"`
	NextRun time.Time `json:"next_run"`
	Running bool      `json:"running"`
}

type scheduledJob struct {
	name     string
	kind     jobscheduler.Kind
	schedule cadence.Schedule
	run      func(ctx context.Context, firedAt time.Time) (map[string]any, error)
	due      time.Time
	running  atomic.Bool
}

// SchedulerService owns cadence timers and in-flight flags. It holds no
// business data.
type SchedulerService struct {
	jobs         []*scheduledJob
	byName       map[string]*scheduledJob
	dispatchRepo jobscheduler.Repository
	ids          id.Generator
	metrics      Metrics
	cfg          SchedulerConfig
	logger       *logging.Logger
	now          func() time.Time

	mu       sync.Mutex
	started  bool
	runCtx   context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	runs     conc.WaitGroup
}

func NewSchedulerService(
	ingester CycleRunner,
	reporter ReportRunner,
	retention RetentionRunner,
	definitions []report.Definition,
	dispatchRepo jobscheduler.Repository,
	ids id.Generator,
	metrics Metrics,
	cfg SchedulerConfig,
	logger *logging.Logger,
) (*SchedulerService, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if ids == nil {
		ids = id.NewTimeOrderedGenerator()
	}
	if cfg.IngestionInterval <= 0 {
		cfg.IngestionInterval = 15 * time.Minute
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = 6 * time.Hour
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}

	s := &SchedulerService{
		byName:       make(map[string]*scheduledJob),
		dispatchRepo: dispatchRepo,
		ids:          ids,
		metrics:      metrics,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}

	if ingester != nil {
		s.add(&scheduledJob{
			name:     JobIngestion,
			kind:     jobscheduler.KindIngestion,
			schedule: cadence.Every(cfg.IngestionInterval),
			run: func(ctx context.Context, _ time.Time) (map[string]any, error) {
				result, err := ingester.RunCycle(ctx)
				return map[string]any{
					"cycle_id": result.CycleID,
					"pairs":    result.PairCount,
					"success":  result.SuccessCount,
					"skipped":  result.SkippedCount,
					"failed":   result.FailedCount,
				}, err
			},
		})
	}

	if reporter != nil {
		for _, def := range definitions {
			def := def
			if err := def.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			schedule, err := cadence.Parse(def.Schedule)
			if err != nil {
				return nil, fmt.Errorf("%w: report %s: %v", ErrInvalidInput, def.Name, err)
			}
			if _, exists := s.byName[ReportJobName(def.Name)]; exists {
				return nil, fmt.Errorf("%w: duplicate report %s", ErrInvalidInput, def.Name)
			}
			s.add(&scheduledJob{
				name:     ReportJobName(def.Name),
				kind:     jobscheduler.KindReport,
				schedule: schedule,
				run: func(ctx context.Context, firedAt time.Time) (map[string]any, error) {
					result, err := reporter.RunReport(ctx, def, firedAt)
					return map[string]any{
						"report":    def.Name,
						"game":      string(def.Game),
						"players":   result.Players,
						"delivered": result.Delivered,
						"failed":    result.Failed,
					}, err
				},
			})
		}
	}

	if retention != nil {
		s.add(&scheduledJob{
			name:     JobPrune,
			kind:     jobscheduler.KindPrune,
			schedule: cadence.Every(cfg.PruneInterval),
			run: func(ctx context.Context, _ time.Time) (map[string]any, error) {
				result, err := retention.Prune(ctx)
				return map[string]any{
					"snapshots_pruned": result.SnapshotsPruned,
					"audit_pruned":     result.AuditPruned,
				}, err
			},
		})
	}

	return s, nil
}

func (s *SchedulerService) add(job *scheduledJob) {
	s.jobs = append(s.jobs, job)
	s.byName[job.name] = job
}

// Start launches the timer loop. Runs use ctx as their parent.
func (s *SchedulerService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}

	now := s.now()
	for _, job := range s.jobs {
		job.due = job.schedule.Next(now)
		if job.name == JobIngestion && s.cfg.IngestOnStart {
			job.due = now
		}
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.loopDone = make(chan struct{})
	s.started = true
	go s.loop(s.runCtx)

	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop cancels in-flight runs and waits for them to return.
func (s *SchedulerService) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel, loopDone := s.cancel, s.loopDone
	s.mu.Unlock()

	cancel()
	<-loopDone

	waited := make(chan struct{})
	go func() {
		defer close(waited)
		if recovered := s.runs.WaitAndRecover(); recovered != nil {
			s.logger.Error("scheduled run panicked", "panic", recovered.String())
		}
	}()
	select {
	case <-waited:
	case <-time.After(s.cfg.StopTimeout):
		s.logger.Warn("scheduler stop timed out waiting for runs", "timeout", s.cfg.StopTimeout)
	}
	s.logger.Info("scheduler stopped")
}

// Trigger dispatches a job now. A job already in flight is coalesced and
// ErrCycleInFlight is returned.
func (s *SchedulerService) Trigger(ctx context.Context, name string) error {
	job, ok := s.byName[strings.TrimSpace(name)]
	if !ok {
		return fmt.Errorf("%w: job=%s", ErrNotFound, name)
	}
	s.mu.Lock()
	runCtx, started := s.runCtx, s.started
	s.mu.Unlock()
	if !started {
		return fmt.Errorf("%w: scheduler not started", ErrInvalidInput)
	}
	return s.dispatch(ctx, runCtx, job, s.now(), triggerManual)
}

// Jobs lists every job with its next due time.
func (s *SchedulerService) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, JobStatus{
			Name:    job.name,
			Kind:    string(job.kind),
			NextRun: job.due,
			Running: job.running.Load(),
		})
	}
	slices.SortFunc(out, func(a, b JobStatus) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func (s *SchedulerService) loop(ctx context.Context) {
	defer close(s.loopDone)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		resetTimer(timer, s.untilNextDue())
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.fireDue(ctx)
		}
	}
}

func (s *SchedulerService) untilNextDue() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		return time.Hour
	}
	next := s.jobs[0].due
	for _, job := range s.jobs[1:] {
		if job.due.Before(next) {
			next = job.due
		}
	}
	return max(next.Sub(s.now()), 0)
}

func (s *SchedulerService) fireDue(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	due := make([]*scheduledJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if job.due.After(now) {
			continue
		}
		due = append(due, job)
		job.due = job.schedule.Next(now)
	}
	s.mu.Unlock()

	for _, job := range due {
		_ = s.dispatch(ctx, ctx, job, now, triggerSchedule)
	}
}

// dispatch starts one run of job unless the same job is still running.
func (s *SchedulerService) dispatch(reqCtx, runCtx context.Context, job *scheduledJob, firedAt time.Time, trigger string) error {
	dispatchID := id.MustNewID(s.ids)
	if !job.running.CompareAndSwap(false, true) {
		s.metrics.IncCoalesced(job.name)
		s.logger.InfoContext(reqCtx, "scheduled run coalesced, previous run still in flight",
			"job", job.name,
			"trigger", trigger,
		)
		s.recordDispatchEvent(reqCtx, jobscheduler.DispatchEvent{
			DispatchID: dispatchID,
			JobName:    job.name,
			Kind:       job.kind,
			Trigger:    trigger,
			Status:     jobscheduler.StatusCoalesced,
			OccurredAt: firedAt.UTC(),
		})
		return fmt.Errorf("%w: job=%s", ErrCycleInFlight, job.name)
	}

	s.recordDispatchEvent(reqCtx, jobscheduler.DispatchEvent{
		DispatchID: dispatchID,
		JobName:    job.name,
		Kind:       job.kind,
		Trigger:    trigger,
		Status:     jobscheduler.StatusSent,
		OccurredAt: firedAt.UTC(),
	})

	links := []trace.Link{}
	if sc := trace.SpanContextFromContext(reqCtx); sc.IsValid() {
		links = append(links, trace.Link{SpanContext: sc})
	}

	s.runs.Go(func() {
		defer job.running.Store(false)

		ctx, span := usecaseTracer.Start(runCtx, "usecase.SchedulerService.run."+string(job.kind), trace.WithLinks(links...))
		defer span.End()

		started := s.now()
		payload, err := job.run(ctx, firedAt)
		duration := s.now().Sub(started)
		s.metrics.ObserveCycle(string(job.kind), duration, err != nil)

		event := jobscheduler.DispatchEvent{
			DispatchID: dispatchID,
			JobName:    job.name,
			Kind:       job.kind,
			Trigger:    trigger,
			Status:     jobscheduler.StatusCompleted,
			Payload:    payload,
			OccurredAt: s.now().UTC(),
		}
		if err != nil {
			event.Status = jobscheduler.StatusFailed
			event.ErrorMessage = err.Error()
			s.logger.WarnContext(ctx, "scheduled run failed", "job", job.name, "duration", duration, "error", err)
		}
		s.recordDispatchEvent(ctx, event)
	})
	return nil
}

func (s *SchedulerService) recordDispatchEvent(ctx context.Context, event jobscheduler.DispatchEvent) {
	if s.dispatchRepo == nil || strings.TrimSpace(event.DispatchID) == "" {
		return
	}
	traceID, spanID := traceMetaFromContext(ctx)
	event.TraceID = traceID
	event.SpanID = spanID
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	if err := s.dispatchRepo.UpsertEvent(context.WithoutCancel(ctx), event); err != nil {
		s.logger.WarnContext(ctx, "record job dispatch event failed",
			"dispatch_id", event.DispatchID,
			"status", event.Status,
			"error", err,
		)
	}
}

func traceMetaFromContext(ctx context.Context) (string, string) {
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if !spanContext.IsValid() {
		return "", ""
	}
	return spanContext.TraceID().String(), spanContext.SpanID().String()
}

func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}
