package game

import (
	"fmt"
	"strings"
)

const UnrankedTier = "UNRANKED"

// Rank is a point on a game's ladder. TierIndex and DivisionIndex are assigned
// by the owning ladder so ranks of the same game compare without knowing the
// upstream encoding.
type Rank struct {
	Tier          string
	TierIndex     int
	Division      string
	DivisionIndex int
	Rating        int
}

func (r Rank) IsUnranked() bool {
	return r.TierIndex == 0
}

func (r Rank) String() string {
	if r.IsUnranked() {
		return "Unranked"
	}
	label := titleCase(r.Tier)
	if r.Division != "" {
		label += " " + r.Division
	}
	return label
}

// CompareRanks orders by tier, then division, then rating.
func CompareRanks(a, b Rank) int {
	switch {
	case a.TierIndex != b.TierIndex:
		return sign(a.TierIndex - b.TierIndex)
	case a.DivisionIndex != b.DivisionIndex:
		return sign(a.DivisionIndex - b.DivisionIndex)
	default:
		return sign(a.Rating - b.Rating)
	}
}

// RankDelta is the movement between two ranks. Direction follows the ladder
// order; Rating is the raw rating difference and may disagree with Direction
// across tier boundaries.
type RankDelta struct {
	From      Rank
	To        Rank
	Tiers     int
	Divisions int
	Rating    int
	Direction int
}

func Diff(from, to Rank) RankDelta {
	return RankDelta{
		From:      from,
		To:        to,
		Tiers:     to.TierIndex - from.TierIndex,
		Divisions: to.DivisionIndex - from.DivisionIndex,
		Rating:    to.Rating - from.Rating,
		Direction: CompareRanks(to, from),
	}
}

func (d RankDelta) TierChanged() bool {
	return d.Tiers != 0 || d.Divisions != 0
}

func (d RankDelta) Movement() string {
	switch {
	case d.Direction > 0:
		return "up"
	case d.Direction < 0:
		return "down"
	default:
		return "none"
	}
}

// Ladder maps a game's tier and division labels to ordinal indexes.
// Index 0 of Tiers is the unranked tier. Divisions are listed lowest first.
type Ladder struct {
	Tiers     []string
	Divisions []string
	// Undivided lists tiers that carry no division (e.g. apex tiers).
	Undivided []string
}

// Rank resolves labels into an ordered rank. Labels match case-insensitively.
func (l Ladder) Rank(tier, division string, rating int) (Rank, error) {
	tierIdx := indexFold(l.Tiers, tier)
	if tierIdx < 0 {
		return Rank{}, fmt.Errorf("unknown tier %q", tier)
	}
	out := Rank{
		Tier:      l.Tiers[tierIdx],
		TierIndex: tierIdx,
		Rating:    rating,
	}
	if tierIdx == 0 || indexFold(l.Undivided, out.Tier) >= 0 {
		return out, nil
	}
	division = strings.TrimSpace(division)
	if division == "" {
		return out, nil
	}
	divIdx := indexFold(l.Divisions, division)
	if divIdx < 0 {
		return Rank{}, fmt.Errorf("unknown division %q for tier %q", division, tier)
	}
	out.Division = l.Divisions[divIdx]
	out.DivisionIndex = divIdx + 1
	return out, nil
}

func (l Ladder) Unranked() Rank {
	if len(l.Tiers) == 0 {
		return Rank{Tier: UnrankedTier}
	}
	return Rank{Tier: l.Tiers[0]}
}

func indexFold(values []string, target string) int {
	target = strings.TrimSpace(target)
	for i, v := range values {
		if strings.EqualFold(v, target) {
			return i
		}
	}
	return -1
}

func titleCase(value string) string {
	parts := strings.Fields(strings.ToLower(value))
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
