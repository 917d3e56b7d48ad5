package usecase

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/domain/report"
	"github.com/riskibarqy/rank-tracker/internal/platform/cache"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
)

const previewCacheTTL = 30 * time.Second

// Publisher delivers a formatted report to one channel. Failures wrap
// ErrDeliveryFailed.
type Publisher interface {
	Publish(ctx context.Context, channelRef string, formatted report.Formatted) error
}

type ReportRunResult struct {
	Name      string         `json:"name"`
	Game      game.ID        `json:"game"`
	Window    report.Window  `json:"window"`
	Players   int            `json:"players"`
	Delivered []string       `json:"delivered"`
	Failed    []string       `json:"failed"`
	Deltas    []report.Delta `json:"-"`
}

type reportPreview struct {
	result    ReportRunResult
	formatted report.Formatted
}

type ReportService struct {
	players     player.Repository
	aggregator  *AggregationService
	publisher   Publisher
	definitions map[string]report.Definition
	metrics     Metrics
	logger      *logging.Logger
	previews    *cache.Store[reportPreview]
	now         func() time.Time
}

func NewReportService(
	players player.Repository,
	aggregator *AggregationService,
	publisher Publisher,
	definitions []report.Definition,
	metrics Metrics,
	logger *logging.Logger,
) *ReportService {
	if logger == nil {
		logger = logging.Default()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	defs := make(map[string]report.Definition, len(definitions))
	for _, def := range definitions {
		defs[def.Name] = def
	}
	return &ReportService{
		players:     players,
		aggregator:  aggregator,
		publisher:   publisher,
		definitions: defs,
		metrics:     metrics,
		logger:      logger,
		previews:    cache.NewStore[reportPreview](previewCacheTTL),
		now:         time.Now,
	}
}

func (s *ReportService) Definitions() []report.Definition {
	out := make([]report.Definition, 0, len(s.definitions))
	for _, def := range s.definitions {
		out = append(out, def)
	}
	slices.SortFunc(out, func(a, b report.Definition) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func (s *ReportService) Definition(name string) (report.Definition, error) {
	def, ok := s.definitions[strings.TrimSpace(name)]
	if !ok {
		return report.Definition{}, fmt.Errorf("%w: report=%s", ErrNotFound, name)
	}
	return def, nil
}

// Preview computes the report for the window ending now without publishing.
// Results are shared for a short TTL so repeated previews do not rescan the
// store.
func (s *ReportService) Preview(ctx context.Context, name string) (ReportRunResult, report.Formatted, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ReportService.Preview")
	defer span.End()

	def, err := s.Definition(name)
	if err != nil {
		return ReportRunResult{}, report.Formatted{}, err
	}
	preview, err := s.previews.GetOrLoad(ctx, def.Name, func(ctx context.Context) (reportPreview, error) {
		result, err := s.compute(ctx, def, s.now())
		if err != nil {
			return reportPreview{}, err
		}
		return reportPreview{
			result:    result,
			formatted: FormatReport(result.Window, result.Deltas, s.now().UTC()),
		}, nil
	})
	if err != nil {
		return ReportRunResult{}, report.Formatted{}, err
	}
	return preview.result, preview.formatted, nil
}

// RunReport computes and publishes one report. Delivery failures are logged
// and reported in the result, never returned.
func (s *ReportService) RunReport(ctx context.Context, def report.Definition, firedAt time.Time) (ReportRunResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ReportService.RunReport")
	defer span.End()

	result, err := s.compute(ctx, def, firedAt)
	if err != nil {
		return ReportRunResult{}, err
	}

	formatted := FormatReport(result.Window, result.Deltas, s.now().UTC())
	for _, recipient := range result.Window.Recipients {
		if err := s.publish(ctx, recipient, formatted); err != nil {
			result.Failed = append(result.Failed, recipient)
			s.metrics.ObserveDelivery(recipient, "failed")
			s.logger.WarnContext(ctx, "publish report failed",
				"report", def.Name,
				"channel", recipient,
				"error", err,
			)
			continue
		}
		result.Delivered = append(result.Delivered, recipient)
		s.metrics.ObserveDelivery(recipient, "delivered")
	}

	s.logger.InfoContext(ctx, "report published",
		"report", def.Name,
		"game", def.Game,
		"players", result.Players,
		"delivered", len(result.Delivered),
		"failed", len(result.Failed),
	)
	return result, nil
}

func (s *ReportService) compute(ctx context.Context, def report.Definition, firedAt time.Time) (ReportRunResult, error) {
	window := def.WindowEndingAt(firedAt)

	pairs, err := s.players.ListTrackedPairs(ctx)
	if err != nil {
		return ReportRunResult{}, fmt.Errorf("list tracked pairs for report=%s: %w", def.Name, err)
	}
	selected := make([]player.Identity, 0, len(pairs))
	for _, pair := range pairs {
		if pair.Game == def.Game {
			selected = append(selected, pair)
		}
	}
	slices.SortFunc(selected, func(a, b player.Identity) int {
		return strings.Compare(strings.ToLower(a.Label()), strings.ToLower(b.Label()))
	})

	deltas, err := s.aggregator.ComputeDeltas(ctx, window, selected)
	if err != nil {
		return ReportRunResult{}, fmt.Errorf("compute deltas for report=%s: %w", def.Name, err)
	}

	return ReportRunResult{
		Name:    def.Name,
		Game:    def.Game,
		Window:  window,
		Players: len(selected),
		Deltas:  deltas,
	}, nil
}

// publish makes a single delivery attempt.
func (s *ReportService) publish(ctx context.Context, channelRef string, formatted report.Formatted) error {
	if s.publisher == nil {
		return fmt.Errorf("%w: no publisher configured", ErrDeliveryFailed)
	}
	return s.publisher.Publish(ctx, channelRef, formatted)
}

// FormatReport renders deltas into a channel agnostic report.
func FormatReport(window report.Window, deltas []report.Delta, generatedAt time.Time) report.Formatted {
	out := report.Formatted{
		Title: fmt.Sprintf("%s rank report", window.Game.DisplayName()),
		Description: fmt.Sprintf("%s to %s (UTC)",
			window.Start.UTC().Format("2006-01-02 15:04"),
			window.End.UTC().Format("2006-01-02 15:04"),
		),
		Entries:     make([]report.Entry, 0, len(deltas)),
		GeneratedAt: generatedAt,
	}
	for _, delta := range deltas {
		out.Entries = append(out.Entries, formatEntry(delta))
	}
	return out
}

func formatEntry(delta report.Delta) report.Entry {
	entry := report.Entry{
		Title:    delta.Player.Label(),
		Movement: "none",
	}

	if delta.RankDelta == nil {
		if delta.To != nil {
			entry.Fields = append(entry.Fields, report.Field{Name: "Current", Value: describeRank(delta.Game, delta.To.Rank), Inline: true})
		}
		if delta.Note != "" {
			entry.Lines = append(entry.Lines, delta.Note)
		}
		return entry
	}

	rd := *delta.RankDelta
	entry.Movement = rd.Movement()
	ratingLabel := ratingName(delta.Game)
	entry.Fields = append(entry.Fields,
		report.Field{Name: "Baseline", Value: describeRank(delta.Game, rd.From), Inline: true},
		report.Field{Name: "Current", Value: describeRank(delta.Game, rd.To), Inline: true},
		report.Field{Name: "Diff", Value: fmt.Sprintf("%s %s", signed(rd.Rating), ratingLabel), Inline: true},
	)

	if rd.TierChanged() {
		entry.Lines = append(entry.Lines, fmt.Sprintf("Rank change: %s -> %s", rd.From, rd.To))
	}
	entry.Lines = append(entry.Lines, fmt.Sprintf("Rank movement: %s", entry.Movement))
	if delta.Streak != 0 {
		entry.Lines = append(entry.Lines, fmt.Sprintf("Streak: %s", signed(delta.Streak)))
	}
	for _, name := range sortedMetricNames(delta.MetricDeltas) {
		value := delta.MetricDeltas[name]
		if value == 0 {
			continue
		}
		entry.Lines = append(entry.Lines, fmt.Sprintf("%s: %s", name, signedFloat(value)))
	}
	if delta.Note != "" {
		entry.Lines = append(entry.Lines, delta.Note)
	}
	return entry
}

func describeRank(id game.ID, rank game.Rank) string {
	if rank.IsUnranked() {
		return rank.String()
	}
	return fmt.Sprintf("%s (%d %s)", rank, rank.Rating, ratingName(id))
}

func ratingName(id game.ID) string {
	switch id {
	case game.LeagueOfLegends:
		return "LP"
	case game.Valorant:
		return "RR"
	case game.ApexLegends:
		return "RP"
	case game.RocketLeague:
		return "MMR"
	default:
		return "pts"
	}
}

func sortedMetricNames(values map[string]float64) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func signed(v int) string {
	if v > 0 {
		return "+" + strconv.Itoa(v)
	}
	return strconv.Itoa(v)
}

func signedFloat(v float64) string {
	text := strconv.FormatFloat(v, 'f', -1, 64)
	if v > 0 {
		return "+" + text
	}
	return text
}
