package game

import "testing"

var testLadder = Ladder{
	Tiers:     []string{"UNRANKED", "IRON", "BRONZE", "SILVER", "GOLD", "PLATINUM", "MASTER"},
	Divisions: []string{"IV", "III", "II", "I"},
	Undivided: []string{"MASTER"},
}

func mustRank(t *testing.T, tier, division string, rating int) Rank {
	t.Helper()
	r, err := testLadder.Rank(tier, division, rating)
	if err != nil {
		t.Fatalf("resolve rank %s %s: %v", tier, division, err)
	}
	return r
}

func TestCompareRanksTierBoundaryBeatsRating(t *testing.T) {
	t.Parallel()

	silver := mustRank(t, "silver", "III", 90)
	gold := mustRank(t, "GOLD", "IV", 0)

	delta := Diff(silver, gold)
	if delta.Direction != 1 {
		t.Fatalf("unexpected direction: got=%d want=1", delta.Direction)
	}
	if delta.Rating >= 0 {
		t.Fatalf("expected raw rating to decrease, got=%d", delta.Rating)
	}
	if delta.Tiers != 1 {
		t.Fatalf("unexpected tier delta: got=%d want=1", delta.Tiers)
	}
	if delta.Movement() != "up" {
		t.Fatalf("unexpected movement: got=%s", delta.Movement())
	}
}

func TestCompareRanksWithinTier(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b Rank
		want int
	}{
		{name: "division order", a: mustRank(t, "GOLD", "I", 0), b: mustRank(t, "GOLD", "IV", 99), want: 1},
		{name: "rating order", a: mustRank(t, "GOLD", "II", 10), b: mustRank(t, "GOLD", "II", 50), want: -1},
		{name: "equal", a: mustRank(t, "GOLD", "II", 10), b: mustRank(t, "GOLD", "II", 10), want: 0},
		{name: "unranked lowest", a: testLadder.Unranked(), b: mustRank(t, "IRON", "IV", 0), want: -1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := CompareRanks(tc.a, tc.b); got != tc.want {
				t.Fatalf("compare: got=%d want=%d", got, tc.want)
			}
		})
	}
}

func TestLadderRank(t *testing.T) {
	t.Parallel()

	master := mustRank(t, "master", "I", 120)
	if master.Division != "" || master.DivisionIndex != 0 {
		t.Fatalf("expected undivided tier to drop division, got=%+v", master)
	}
	if master.String() != "Master" {
		t.Fatalf("unexpected label: got=%q", master.String())
	}

	if _, err := testLadder.Rank("wood", "I", 0); err == nil {
		t.Fatalf("expected unknown tier error")
	}
	if _, err := testLadder.Rank("GOLD", "V", 0); err == nil {
		t.Fatalf("expected unknown division error")
	}

	gold := mustRank(t, "gold", "ii", 40)
	if gold.String() != "Gold II" {
		t.Fatalf("unexpected label: got=%q", gold.String())
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()

	id, err := ParseID(" RL ")
	if err != nil || id != RocketLeague {
		t.Fatalf("parse alias: got=%s err=%v", id, err)
	}
	if _, err := ParseID("chess"); err == nil {
		t.Fatalf("expected error for unknown game")
	}
}
