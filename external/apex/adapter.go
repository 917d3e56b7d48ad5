// Package apex reads ranked stats from the mozambiquehe.re bridge.
package apex

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
	defaultBaseURL  = "https://api.mozambiquehe.re"
	defaultPlatform = "PC"
)

var Ladder = game.Ladder{
	Tiers: []string{
		game.UnrankedTier, "BRONZE", "SILVER", "GOLD", "PLATINUM", "DIAMOND", "MASTER", "APEX PREDATOR",
	},
	Divisions: []string{"IV", "III", "II", "I"},
	Undivided: []string{"MASTER", "APEX PREDATOR"},
}

var romanDivisions = map[int]string{4: "IV", 3: "III", 2: "II", 1: "I"}

type Config struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	Platform       string
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
	now      func() time.Time
}

var _ usecase.GameAdapter = (*Adapter)(nil)

func New(cfg Config) *Adapter {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	platform := strings.ToUpper(strings.TrimSpace(cfg.Platform))
	if platform == "" {
		platform = defaultPlatform
	}

	return &Adapter{
		client: gameapi.NewClient(gameapi.Config{
			Provider:       "mozambique",
			HTTPClient:     cfg.HTTPClient,
			BaseURL:        baseURL,
			Timeout:        cfg.Timeout,
			RatePerMinute:  cfg.RatePerMinute,
			Burst:          cfg.Burst,
			Headers:        map[string]string{"Authorization": cfg.APIKey},
			Secrets:        []string{cfg.APIKey},
			Logger:         cfg.Logger,
			CircuitBreaker: cfg.CircuitBreaker,
			Observer:       cfg.Observer,
		}),
		platform: platform,
		now:      time.Now,
	}
}

func (a *Adapter) Game() game.ID {
	return game.ApexLegends
}

func (a *Adapter) Budget() usecase.RateBudget {
	return a.client.Budget()
}

type bridgeResponse struct {
	Error  string        `json:"Error"`
	Global *bridgeGlobal `json:"global"`
}

type bridgeGlobal struct {
	Name     string      `json:"name"`
	Platform string      `json:"platform"`
	Level    int         `json:"level"`
	Rank     *bridgeRank `json:"rank"`
}

type bridgeRank struct {
	RankScore         int    `json:"rankScore"`
	RankName          string `json:"rankName"`
	RankDiv           int    `json:"rankDiv"`
	LadderPosPlatform int    `json:"ladderPosPlatform"`
}

func (a *Adapter) FetchSnapshot(ctx context.Context, identity player.Identity) (snapshot.Snapshot, error) {
	platform := strings.ToUpper(strings.TrimSpace(identity.Region))
	if platform == "" {
		platform = a.platform
	}

	var body bridgeResponse
	raw, err := a.client.GetJSON(ctx, gameapi.Request{
		Path:  "/bridge",
		Query: url.Values{"player": {identity.ExternalID}, "platform": {platform}},
	}, &body)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("fetch apex stats player=%s: %w", identity.Key(), err)
	}

	// The bridge reports unknown players with a 200 and an Error field.
	if msg := strings.TrimSpace(body.Error); msg != "" {
		if strings.Contains(strings.ToLower(msg), "not found") {
			return snapshot.Snapshot{}, fmt.Errorf("%w: apex player=%s: %s", usecase.ErrIdentityNotFound, identity.Key(), msg)
		}
		return snapshot.Snapshot{}, fmt.Errorf("%w: apex player=%s: %s", usecase.ErrUpstreamUnavailable, identity.Key(), msg)
	}
	if body.Global == nil || body.Global.Rank == nil {
		return snapshot.Snapshot{}, fmt.Errorf("%w: apex player=%s has no rank data", usecase.ErrIdentityNotFound, identity.Key())
	}

	info := body.Global.Rank
	rank, err := Ladder.Rank(normalizeTier(info.RankName), romanDivisions[info.RankDiv], info.RankScore)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("%w: apex player=%s: %v", usecase.ErrUpstreamSchema, identity.Key(), err)
	}

	return snapshot.Snapshot{
		Player:     identity,
		CapturedAt: a.now(),
		Rank:       rank,
		Metrics: map[string]float64{
			"rank_score": float64(info.RankScore),
			"ladder_pos": float64(info.LadderPosPlatform),
			"level":      float64(body.Global.Level),
		},
		RawSource: raw,
	}, nil
}

func normalizeTier(name string) string {
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "", "rookie", "unranked":
		return game.UnrankedTier
	case "predator":
		return "APEX PREDATOR"
	default:
		return name
	}
}
