// Package leagueoflegends reads ranked queue entries from the Riot league-v4
// API.
package leagueoflegends

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/riskibarqy/rank-tracker/external/gameapi"
	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
	"github.com/riskibarqy/rank-tracker/internal/platform/resilience"
	"github.com/riskibarqy/rank-tracker/internal/usecase"
)

const (
	defaultBaseURL  = "https://{region}.api.riotgames.com"
	defaultPlatform = "na1"
	DefaultQueue    = "RANKED_SOLO_5x5"
)

var Ladder = game.Ladder{
	Tiers: []string{
		game.UnrankedTier, "IRON", "BRONZE", "SILVER", "GOLD", "PLATINUM",
		"EMERALD", "DIAMOND", "MASTER", "GRANDMASTER", "CHALLENGER",
	},
	Divisions: []string{"IV", "III", "II", "I"},
	Undivided: []string{"MASTER", "GRANDMASTER", "CHALLENGER"},
}

type Config struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	Platform       string
	Queue          string
	Timeout        time.Duration
	RatePerMinute  int
	Burst          int
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
	Observer       gameapi.CallObserver
}

type Adapter struct {
	client   *gameapi.Client
	platform string
	queue    string
	now      func() time.Time
}

var _ usecase.GameAdapter = (*Adapter)(nil)

func New(cfg Config) *Adapter {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	platform := strings.ToLower(strings.TrimSpace(cfg.Platform))
	if platform == "" {
		platform = defaultPlatform
	}
	queue := strings.TrimSpace(cfg.Queue)
	if queue == "" {
		queue = DefaultQueue
	}

	return &Adapter{
		client: gameapi.NewClient(gameapi.Config{
			Provider:       "riot",
			HTTPClient:     cfg.HTTPClient,
			BaseURL:        baseURL,
			Timeout:        cfg.Timeout,
			RatePerMinute:  cfg.RatePerMinute,
			Burst:          cfg.Burst,
			Headers:        map[string]string{"X-Riot-Token": cfg.APIKey},
			Secrets:        []string{cfg.APIKey},
			Logger:         cfg.Logger,
			CircuitBreaker: cfg.CircuitBreaker,
			Observer:       cfg.Observer,
		}),
		platform: platform,
		queue:    queue,
		now:      time.Now,
	}
}

func (a *Adapter) Game() game.ID {
	return game.LeagueOfLegends
}

func (a *Adapter) Budget() usecase.RateBudget {
	return a.client.Budget()
}

type leagueEntry struct {
	QueueType    string `json:"queueType"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

// FetchSnapshot reads the configured queue. A player without an entry for
// the queue is unranked, which is still a valid snapshot.
func (a *Adapter) FetchSnapshot(ctx context.Context, identity player.Identity) (snapshot.Snapshot, error) {
	platform := strings.TrimSpace(identity.Region)
	if platform == "" {
		platform = a.platform
	}

	var entries []leagueEntry
	raw, err := a.client.GetJSON(ctx, gameapi.Request{
		Region: platform,
		Path:   "/lol/league/v4/entries/by-puuid/" + url.PathEscape(identity.ExternalID),
	}, &entries)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("fetch lol entries player=%s: %w", identity.Key(), err)
	}

	out := snapshot.Snapshot{
		Player:     identity,
		CapturedAt: a.now(),
		Rank:       Ladder.Unranked(),
		Metrics:    map[string]float64{"lp": 0, "wins": 0, "losses": 0, "games": 0, "win_rate": 0},
		RawSource:  raw,
	}
	for _, entry := range entries {
		if !strings.EqualFold(entry.QueueType, a.queue) {
			continue
		}
		rank, err := Ladder.Rank(entry.Tier, entry.Rank, entry.LeaguePoints)
		if err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("%w: lol player=%s: %v", usecase.ErrUpstreamSchema, identity.Key(), err)
		}
		out.Rank = rank
		out.Metrics = entryMetrics(entry)
		break
	}
	return out, nil
}

func entryMetrics(entry leagueEntry) map[string]float64 {
	games := entry.Wins + entry.Losses
	winRate := 0.0
	if games > 0 {
		winRate = float64(entry.Wins) * 100 / float64(games)
	}
	return map[string]float64{
		"lp":       float64(entry.LeaguePoints),
		"wins":     float64(entry.Wins),
		"losses":   float64(entry.Losses),
		"games":    float64(games),
		"win_rate": winRate,
	}
}
