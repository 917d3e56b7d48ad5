package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
)

type snapshotInsertModel struct {
	ID            string    `db:"id"`
	Game          string    `db:"game"`
	ExternalID    string    `db:"external_id"`
	DisplayName   *string   `db:"display_name"`
	Region        *string   `db:"region"`
	CapturedAt    time.Time `db:"captured_at"`
	Tier          string    `db:"tier"`
	TierIndex     int       `db:"tier_index"`
	Division      string    `db:"division"`
	DivisionIndex int       `db:"division_index"`
	Rating        int       `db:"rating"`
	Metrics       string    `db:"metrics"`
	RawSource     []byte    `db:"raw_source"`
}

type snapshotTableModel struct {
	ID            string         `db:"id"`
	Game          string         `db:"game"`
	ExternalID    string         `db:"external_id"`
	DisplayName   sql.NullString `db:"display_name"`
	Region        sql.NullString `db:"region"`
	CapturedAt    time.Time      `db:"captured_at"`
	Tier          string         `db:"tier"`
	TierIndex     int            `db:"tier_index"`
	Division      string         `db:"division"`
	DivisionIndex int            `db:"division_index"`
	Rating        int            `db:"rating"`
	Metrics       []byte         `db:"metrics"`
	RawSource     []byte         `db:"raw_source"`
}

var snapshotSelectColumns = []string{
	"id",
	"game",
	"external_id",
	"display_name",
	"region",
	"captured_at",
	"tier",
	"tier_index",
	"division",
	"division_index",
	"rating",
	"metrics::text AS metrics",
	"raw_source",
}

func newSnapshotInsertModel(item snapshot.Snapshot) (snapshotInsertModel, error) {
	metrics, err := marshalJSON(item.Metrics)
	if err != nil {
		return snapshotInsertModel{}, fmt.Errorf("marshal snapshot metrics: %w", err)
	}
	return snapshotInsertModel{
		ID:            item.ID,
		Game:          string(item.Player.Game),
		ExternalID:    item.Player.ExternalID,
		DisplayName:   optionalString(item.Player.DisplayName),
		Region:        optionalString(item.Player.Region),
		CapturedAt:    item.CapturedAt,
		Tier:          item.Rank.Tier,
		TierIndex:     item.Rank.TierIndex,
		Division:      item.Rank.Division,
		DivisionIndex: item.Rank.DivisionIndex,
		Rating:        item.Rank.Rating,
		Metrics:       metrics,
		RawSource:     item.RawSource,
	}, nil
}

func (m snapshotTableModel) toDomain() (snapshot.Snapshot, error) {
	var metrics map[string]float64
	if len(m.Metrics) > 0 {
		if err := jsonAPI.Unmarshal(m.Metrics, &metrics); err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("decode metrics snapshot=%s: %w", m.ID, err)
		}
	}
	if len(metrics) == 0 {
		metrics = nil
	}
	return snapshot.Snapshot{
		ID: m.ID,
		Player: player.Identity{
			Game:        game.ID(m.Game),
			ExternalID:  m.ExternalID,
			DisplayName: m.DisplayName.String,
			Region:      m.Region.String,
		},
		CapturedAt: m.CapturedAt.UTC(),
		Rank: game.Rank{
			Tier:          m.Tier,
			TierIndex:     m.TierIndex,
			Division:      m.Division,
			DivisionIndex: m.DivisionIndex,
			Rating:        m.Rating,
		},
		Metrics:   metrics,
		RawSource: m.RawSource,
	}, nil
}
