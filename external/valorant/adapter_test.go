package valorant

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

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	adapter := New(Config{
		HTTPClient: srv.Client(),
		BaseURL:    srv.URL,
		APIKey:     "HDEV-test",
		Logger:     logging.NewNop(),
	})
	adapter.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return adapter
}

func TestAdapter_FetchSnapshot(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "HDEV-test" {
			t.Errorf("unexpected authorization: got=%q", got)
		}
		if r.URL.Path != "/v2/by-puuid/mmr/eu/puuid-9" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":200,"data":{"name":"Sova","tag":"EU1","current_data":{
			"currenttier":13,"currenttierpatched":"Gold 2","ranking_in_tier":45,
			"mmr_change_to_last_game":-18,"elo":1145}}}`))
	})

	item, err := adapter.FetchSnapshot(context.Background(), player.Identity{Game: game.Valorant, ExternalID: "puuid-9", Region: "EU"})
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if item.Rank.String() != "Gold 2" || item.Rank.Rating != 45 {
		t.Fatalf("unexpected rank: %+v", item.Rank)
	}
	if item.Rank.TierIndex != 4 || item.Rank.DivisionIndex != 2 {
		t.Fatalf("unexpected rank order: %+v", item.Rank)
	}
	if got := item.Metrics["last_change"]; got != -18 {
		t.Fatalf("unexpected last change: got=%v want=%v", got, -18)
	}
}

func TestAdapter_FetchSnapshotUnrated(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":200,"data":{"current_data":{"currenttier":0,"currenttierpatched":null,"ranking_in_tier":0,"elo":0}}}`))
	})

	item, err := adapter.FetchSnapshot(context.Background(), player.Identity{Game: game.Valorant, ExternalID: "p"})
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if !item.Rank.IsUnranked() {
		t.Fatalf("expected unranked, got %+v", item.Rank)
	}
}

func TestAdapter_FetchSnapshotMissingData(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":200,"data":null}`))
	})

	_, err := adapter.FetchSnapshot(context.Background(), player.Identity{Game: game.Valorant, ExternalID: "p"})
	if !errors.Is(err, usecase.ErrIdentityNotFound) {
		t.Fatalf("expected identity not found, got %v", err)
	}
}

func TestSplitPatchedTier(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input    string
		tier     string
		division string
	}{
		{input: "Gold 2", tier: "Gold", division: "2"},
		{input: "Radiant", tier: "Radiant", division: ""},
		{input: "Unrated", tier: game.UnrankedTier, division: ""},
		{input: "", tier: game.UnrankedTier, division: ""},
	}
	for _, tc := range cases {
		tier, division := SplitPatchedTier(tc.input)
		if tier != tc.tier || division != tc.division {
			t.Fatalf("SplitPatchedTier(%q): got=%q,%q want=%q,%q", tc.input, tier, division, tc.tier, tc.division)
		}
	}
}
