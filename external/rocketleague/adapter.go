// Package rocketleague reads playlist ranks from the RapidAPI rocket-league
// endpoint.
package rocketleague

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
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
	defaultHost     = "rocket-league1.p.rapidapi.com"
	DefaultPlaylist = "Ranked Doubles 2v2"
)

// Extra modes never feed the tracked rank.
var excludedPlaylists = []string{"hoops", "rumble", "dropshot", "snow day", "snowday"}

var Ladder = buildLadder()

func buildLadder() game.Ladder {
	tiers := []string{game.UnrankedTier}
	for _, name := range []string{"BRONZE", "SILVER", "GOLD", "PLATINUM", "DIAMOND", "CHAMPION", "GRAND CHAMPION"} {
		for _, level := range []string{"I", "II", "III"} {
			tiers = append(tiers, name+" "+level)
		}
	}
	tiers = append(tiers, "SUPERSONIC LEGEND")
	return game.Ladder{
		Tiers:     tiers,
		Divisions: []string{"I", "II", "III", "IV"},
	}
}

type Config struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	Host           string
	Playlist       string
	Timeout        time.Duration
	RatePerMinute  int
	Burst          int
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
	Observer       gameapi.CallObserver
}

type Adapter struct {
	client   *gameapi.Client
	playlist string
	now      func() time.Time
}

var _ usecase.GameAdapter = (*Adapter)(nil)

func New(cfg Config) *Adapter {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = defaultHost
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://" + host
	}
	playlist := strings.TrimSpace(cfg.Playlist)
	if playlist == "" {
		playlist = DefaultPlaylist
	}

	return &Adapter{
		client: gameapi.NewClient(gameapi.Config{
			Provider:      "rapidapi",
			HTTPClient:    cfg.HTTPClient,
			BaseURL:       baseURL,
			Timeout:       cfg.Timeout,
			RatePerMinute: cfg.RatePerMinute,
			Burst:         cfg.Burst,
			Headers: map[string]string{
				"x-rapidapi-key":  cfg.APIKey,
				"x-rapidapi-host": host,
				"Accept-Encoding": "identity",
			},
			Secrets:        []string{cfg.APIKey},
			Logger:         cfg.Logger,
			CircuitBreaker: cfg.CircuitBreaker,
			Observer:       cfg.Observer,
		}),
		playlist: playlist,
		now:      time.Now,
	}
}

func (a *Adapter) Game() game.ID {
	return game.RocketLeague
}

func (a *Adapter) Budget() usecase.RateBudget {
	return a.client.Budget()
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		value, err := strconv.Unquote(string(data))
		if err != nil {
			return err
		}
		*f = flexString(value)
		return nil
	}
	*f = flexString(data)
	return nil
}

type ranksResponse struct {
	Ranks []playlistRank `json:"ranks"`
}

type playlistRank struct {
	Playlist string     `json:"playlist"`
	Rank     string     `json:"rank"`
	Division flexString `json:"division"`
	MMR      flexString `json:"mmr"`
	Streak   flexString `json:"streak"`
}

func (a *Adapter) FetchSnapshot(ctx context.Context, identity player.Identity) (snapshot.Snapshot, error) {
	var body ranksResponse
	raw, err := a.client.GetJSON(ctx, gameapi.Request{
		Path: "/ranks/" + url.PathEscape(identity.ExternalID),
	}, &body)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("fetch rocket league ranks player=%s: %w", identity.Key(), err)
	}
	if body.Ranks == nil {
		return snapshot.Snapshot{}, fmt.Errorf("%w: rocket league player=%s has no ranks", usecase.ErrIdentityNotFound, identity.Key())
	}

	out := snapshot.Snapshot{
		Player:     identity,
		CapturedAt: a.now(),
		Rank:       Ladder.Unranked(),
		Metrics:    map[string]float64{"mmr": 0, "streak": 0},
		RawSource:  raw,
	}
	for _, entry := range filterCompetitive(body.Ranks) {
		mmr := parseNumber(string(entry.MMR))
		out.Metrics["mmr."+PlaylistSlug(entry.Playlist)] = float64(mmr)
		if !strings.EqualFold(strings.TrimSpace(entry.Playlist), a.playlist) {
			continue
		}

		rank, err := Ladder.Rank(entry.Rank, normalizeDivision(string(entry.Division)), mmr)
		if err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("%w: rocket league player=%s: %v", usecase.ErrUpstreamSchema, identity.Key(), err)
		}
		out.Rank = rank
		out.Metrics["mmr"] = float64(mmr)
		out.Metrics["streak"] = float64(ParseStreak(string(entry.Streak)))
	}
	return out, nil
}

// filterCompetitive drops the extra-mode playlists.
func filterCompetitive(ranks []playlistRank) []playlistRank {
	out := make([]playlistRank, 0, len(ranks))
	for _, item := range ranks {
		name := strings.ToLower(item.Playlist)
		excluded := false
		for _, mode := range excludedPlaylists {
			if strings.Contains(name, mode) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, item)
		}
	}
	return out
}

// ParseStreak turns "W3" into 3 and "L2" into -2.
func ParseStreak(value string) int {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return 0
	}
	sign := 1
	switch value[0] {
	case 'W':
		value = value[1:]
	case 'L':
		sign = -1
		value = value[1:]
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return sign * n
}

func PlaylistSlug(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimRight(b.String(), "_")
}

func normalizeDivision(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(value), "DIVISION"))
	switch value {
	case "1":
		return "I"
	case "2":
		return "II"
	case "3":
		return "III"
	case "4":
		return "IV"
	default:
		return value
	}
}

func parseNumber(value string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return int(f)
}
