// Package valorant reads competitive MMR from the HenrikDev Valorant API.
package valorant

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
	defaultBaseURL = "https://api.henrikdev.xyz/valorant"
	defaultRegion  = "na"
)

var Ladder = game.Ladder{
	Tiers: []string{
		game.UnrankedTier, "IRON", "BRONZE", "SILVER", "GOLD", "PLATINUM",
		"DIAMOND", "ASCENDANT", "IMMORTAL", "RADIANT",
	},
	Divisions: []string{"1", "2", "3"},
	Undivided: []string{"RADIANT"},
}

type Config struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	Region         string
	Timeout        time.Duration
	RatePerMinute  int
	Burst          int
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
	Observer       gameapi.CallObserver
}

type Adapter struct {
	client *gameapi.Client
	region string
	now    func() time.Time
}

var _ usecase.GameAdapter = (*Adapter)(nil)

func New(cfg Config) *Adapter {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	region := strings.ToLower(strings.TrimSpace(cfg.Region))
	if region == "" {
		region = defaultRegion
	}

	return &Adapter{
		client: gameapi.NewClient(gameapi.Config{
			Provider:       "henrikdev",
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
		region: region,
		now:    time.Now,
	}
}

func (a *Adapter) Game() game.ID {
	return game.Valorant
}

func (a *Adapter) Budget() usecase.RateBudget {
	return a.client.Budget()
}

type mmrEnvelope struct {
	Status int      `json:"status"`
	Data   *mmrData `json:"data"`
}

type mmrData struct {
	Name        string          `json:"name"`
	Tag         string          `json:"tag"`
	CurrentData *currentMMRData `json:"current_data"`
}

type currentMMRData struct {
	CurrentTier         int    `json:"currenttier"`
	CurrentTierPatched  string `json:"currenttierpatched"`
	RankingInTier       int    `json:"ranking_in_tier"`
	MMRChangeToLastGame int    `json:"mmr_change_to_last_game"`
	Elo                 int    `json:"elo"`
}

func (a *Adapter) FetchSnapshot(ctx context.Context, identity player.Identity) (snapshot.Snapshot, error) {
	region := strings.ToLower(strings.TrimSpace(identity.Region))
	if region == "" {
		region = a.region
	}

	var envelope mmrEnvelope
	raw, err := a.client.GetJSON(ctx, gameapi.Request{
		Path: fmt.Sprintf("/v2/by-puuid/mmr/%s/%s", url.PathEscape(region), url.PathEscape(identity.ExternalID)),
	}, &envelope)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("fetch valorant mmr player=%s: %w", identity.Key(), err)
	}
	if envelope.Data == nil || envelope.Data.CurrentData == nil {
		return snapshot.Snapshot{}, fmt.Errorf("%w: valorant player=%s has no mmr data", usecase.ErrIdentityNotFound, identity.Key())
	}

	current := envelope.Data.CurrentData
	tier, division := SplitPatchedTier(current.CurrentTierPatched)
	if current.CurrentTier == 0 {
		tier, division = game.UnrankedTier, ""
	}
	rank, err := Ladder.Rank(tier, division, current.RankingInTier)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("%w: valorant player=%s: %v", usecase.ErrUpstreamSchema, identity.Key(), err)
	}

	return snapshot.Snapshot{
		Player:     identity,
		CapturedAt: a.now(),
		Rank:       rank,
		Metrics: map[string]float64{
			"rr":          float64(current.RankingInTier),
			"elo":         float64(current.Elo),
			"last_change": float64(current.MMRChangeToLastGame),
		},
		RawSource: raw,
	}, nil
}

// SplitPatchedTier splits labels like "Gold 2" into tier and division.
// "Unrated" and empty labels are unranked.
func SplitPatchedTier(patched string) (string, string) {
	fields := strings.Fields(strings.TrimSpace(patched))
	if len(fields) == 0 || strings.EqualFold(fields[0], "unrated") || strings.EqualFold(fields[0], "unranked") {
		return game.UnrankedTier, ""
	}
	last := fields[len(fields)-1]
	if len(fields) > 1 && len(last) == 1 && last[0] >= '0' && last[0] <= '9' {
		return strings.Join(fields[:len(fields)-1], " "), last
	}
	return strings.Join(fields, " "), ""
}
