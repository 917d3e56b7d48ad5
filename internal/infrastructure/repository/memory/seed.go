package memory

import (
	"fmt"
	"strings"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
)

// ParseTrackedPlayers reads "game:externalId:displayName:region" entries
// separated by semicolons. Display name and region are optional.
func ParseTrackedPlayers(raw string) ([]player.Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	out := make([]player.Identity, 0)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid tracked player %q: expected game:externalId", entry)
		}
		gameID, err := game.ParseID(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid tracked player %q: %w", entry, err)
		}
		identity := player.Identity{
			Game:       gameID,
			ExternalID: strings.TrimSpace(parts[1]),
		}
		if len(parts) > 2 {
			identity.DisplayName = strings.TrimSpace(parts[2])
		}
		if len(parts) > 3 {
			identity.Region = strings.TrimSpace(parts[3])
		}
		if err := identity.Validate(); err != nil {
			return nil, fmt.Errorf("invalid tracked player %q: %w", entry, err)
		}
		out = append(out, identity)
	}
	return out, nil
}
