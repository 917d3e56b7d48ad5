package player

import (
	"fmt"
	"strings"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
)

// Identity is a registered account on one game platform.
type Identity struct {
	Game        game.ID
	ExternalID  string
	DisplayName string
	// Region is the platform or shard hint some upstream APIs require.
	Region string
}

// Key uniquely identifies a tracked identity.
type Key struct {
	Game       game.ID
	ExternalID string
}

func (i Identity) Key() Key {
	return Key{Game: i.Game, ExternalID: i.ExternalID}
}

func (k Key) String() string {
	return string(k.Game) + ":" + k.ExternalID
}

func (i Identity) Label() string {
	if strings.TrimSpace(i.DisplayName) != "" {
		return i.DisplayName
	}
	return i.ExternalID
}

func (i Identity) Validate() error {
	if !i.Game.Valid() {
		return fmt.Errorf("invalid player game: %q", i.Game)
	}
	if strings.TrimSpace(i.ExternalID) == "" {
		return fmt.Errorf("player external id is required")
	}
	return nil
}
