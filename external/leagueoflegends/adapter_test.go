package leagueoflegends

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
	"github.com/riskibarqy/rank-tracker/internal/usecase"
)

const entriesPayload = `[
	{"queueType":"RANKED_FLEX_SR","tier":"SILVER","rank":"I","leaguePoints":10,"wins":3,"losses":4},
	{"queueType":"RANKED_SOLO_5x5","tier":"GOLD","rank":"II","leaguePoints":67,"wins":30,"losses":20}
]`

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	adapter := New(Config{
		HTTPClient: srv.Client(),
		BaseURL:    srv.URL,
		APIKey:     "RGAPI-test",
		Logger:     logging.NewNop(),
	})
	adapter.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return adapter
}

func TestAdapter_FetchSnapshotSoloQueue(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Riot-Token"); got != "RGAPI-test" {
			t.Errorf("unexpected riot token: got=%q", got)
		}
		if r.URL.Path != "/lol/league/v4/entries/by-puuid/puuid-1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(entriesPayload))
	})

	identity := player.Identity{Game: game.LeagueOfLegends, ExternalID: "puuid-1", Region: "euw1"}
	item, err := adapter.FetchSnapshot(context.Background(), identity)
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}

	if item.Rank.Tier != "GOLD" || item.Rank.Division != "II" || item.Rank.Rating != 67 {
		t.Fatalf("unexpected rank: %+v", item.Rank)
	}
	if item.Rank.TierIndex != 4 || item.Rank.DivisionIndex != 3 {
		t.Fatalf("unexpected rank order: tier=%d division=%d", item.Rank.TierIndex, item.Rank.DivisionIndex)
	}
	if got := item.Metrics["games"]; got != 50 {
		t.Fatalf("unexpected games metric: got=%v want=%v", got, 50)
	}
	if got := item.Metrics["win_rate"]; got != 60 {
		t.Fatalf("unexpected win rate: got=%v want=%v", got, 60)
	}
	if len(item.RawSource) == 0 || item.Player != identity {
		t.Fatalf("expected raw source and identity to be kept")
	}
}

func TestAdapter_FetchSnapshotWithoutQueueIsUnranked(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	item, err := adapter.FetchSnapshot(context.Background(), player.Identity{Game: game.LeagueOfLegends, ExternalID: "puuid-2"})
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if !item.Rank.IsUnranked() {
		t.Fatalf("expected unranked, got %+v", item.Rank)
	}
}

func TestAdapter_FetchSnapshotErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "unknown puuid", status: http.StatusNotFound, body: `{}`, want: usecase.ErrIdentityNotFound},
		{name: "unknown tier", status: http.StatusOK, body: `[{"queueType":"RANKED_SOLO_5x5","tier":"WOOD","rank":"I"}]`, want: usecase.ErrUpstreamSchema},
		{name: "outage", status: http.StatusServiceUnavailable, body: `{}`, want: usecase.ErrUpstreamUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			adapter := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := adapter.FetchSnapshot(context.Background(), player.Identity{Game: game.LeagueOfLegends, ExternalID: "p"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("unexpected error: got=%v want=%v", err, tc.want)
			}
		})
	}
}

func TestLadder_ApexTiersHaveNoDivision(t *testing.T) {
	t.Parallel()

	rank, err := Ladder.Rank("CHALLENGER", "I", 1200)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if rank.Division != "" || rank.TierIndex != 10 {
		t.Fatalf("unexpected challenger rank: %+v", rank)
	}
}
