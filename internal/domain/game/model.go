package game

import (
	"fmt"
	"strings"
)

// ID identifies a tracked game.
type ID string

const (
	LeagueOfLegends ID = "lol"
	Valorant        ID = "valorant"
	ApexLegends     ID = "apex"
	RocketLeague    ID = "rocketleague"
)

var AllIDs = map[ID]struct{}{
	LeagueOfLegends: {},
	Valorant:        {},
	ApexLegends:     {},
	RocketLeague:    {},
}

var aliases = map[string]ID{
	"lol":           LeagueOfLegends,
	"league":        LeagueOfLegends,
	"valorant":      Valorant,
	"val":           Valorant,
	"apex":          ApexLegends,
	"apexlegends":   ApexLegends,
	"rocketleague":  RocketLeague,
	"rocket_league": RocketLeague,
	"rl":            RocketLeague,
}

// ParseID normalizes a user or config supplied game name.
func ParseID(raw string) (ID, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if id, ok := aliases[key]; ok {
		return id, nil
	}
	return "", fmt.Errorf("unknown game %q", raw)
}

func (id ID) Valid() bool {
	_, ok := AllIDs[id]
	return ok
}

func (id ID) DisplayName() string {
	switch id {
	case LeagueOfLegends:
		return "League of Legends"
	case Valorant:
		return "Valorant"
	case ApexLegends:
		return "Apex Legends"
	case RocketLeague:
		return "Rocket League"
	default:
		return string(id)
	}
}
