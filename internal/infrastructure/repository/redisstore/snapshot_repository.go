// Package redisstore keeps snapshot series in redis sorted sets scored by
// capture time in unix microseconds.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
	"github.com/riskibarqy/rank-tracker/internal/platform/id"
)

const (
	defaultKeyPrefix = "rank-tracker"
	rangePageSize    = 200
)

type SnapshotRepository struct {
	client    redis.UniversalClient
	keyPrefix string
	ids       id.Generator
	pageSize  int64
}

func NewSnapshotRepository(client redis.UniversalClient, keyPrefix string, ids id.Generator) *SnapshotRepository {
	keyPrefix = strings.TrimRight(strings.TrimSpace(keyPrefix), ":")
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if ids == nil {
		ids = id.NewTimeOrderedGenerator()
	}
	return &SnapshotRepository{
		client:    client,
		keyPrefix: keyPrefix,
		ids:       ids,
		pageSize:  rangePageSize,
	}
}

// record is the sorted set member. The ID keeps members unique.
type record struct {
	ID          string             `json:"id"`
	Game        string             `json:"game"`
	ExternalID  string             `json:"external_id"`
	DisplayName string             `json:"display_name,omitempty"`
	Region      string             `json:"region,omitempty"`
	CapturedAt  int64              `json:"captured_at_us"`
	Tier        string             `json:"tier"`
	TierIndex   int                `json:"tier_index"`
	Division    string             `json:"division,omitempty"`
	DivisionIdx int                `json:"division_index,omitempty"`
	Rating      int                `json:"rating"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	RawSource   []byte             `json:"raw,omitempty"`
}

func (r *SnapshotRepository) seriesKey(key player.Key) string {
	return r.keyPrefix + ":snapshots:" + string(key.Game) + ":" + key.ExternalID
}

func (r *SnapshotRepository) playersKey() string {
	return r.keyPrefix + ":players"
}

// Append writes under WATCH so a concurrent writer for the same player loses
// with ErrOutOfOrder.
func (r *SnapshotRepository) Append(ctx context.Context, item snapshot.Snapshot) (string, error) {
	if err := item.Player.Validate(); err != nil {
		return "", fmt.Errorf("append snapshot: %w", err)
	}
	item.CapturedAt = snapshot.NormalizeTime(item.CapturedAt)
	if item.ID == "" {
		item.ID = id.MustNewID(r.ids)
	}

	member, err := sonic.Marshal(toRecord(item))
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	key := item.Player.Key()
	seriesKey := r.seriesKey(key)
	score := item.CapturedAt.UnixMicro()

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		last, err := tx.ZRevRangeWithScores(ctx, seriesKey, 0, 0).Result()
		if err != nil {
			return err
		}
		if len(last) > 0 && int64(last[0].Score) >= score {
			return fmt.Errorf("%w: player=%s captured_at=%s latest=%s",
				snapshot.ErrOutOfOrder, key,
				item.CapturedAt.Format(time.RFC3339Nano),
				time.UnixMicro(int64(last[0].Score)).UTC().Format(time.RFC3339Nano))
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZAdd(ctx, seriesKey, redis.Z{Score: float64(score), Member: member})
			pipe.SAdd(ctx, r.playersKey(), key.String())
			return nil
		})
		return err
	}, seriesKey)
	switch {
	case err == nil:
		return item.ID, nil
	case errors.Is(err, snapshot.ErrOutOfOrder):
		return "", err
	case errors.Is(err, redis.TxFailedErr):
		return "", fmt.Errorf("%w: player=%s concurrent append", snapshot.ErrOutOfOrder, key)
	default:
		return "", mapError("append snapshot", err)
	}
}

func (r *SnapshotRepository) Latest(ctx context.Context, key player.Key) (snapshot.Snapshot, bool, error) {
	members, err := r.client.ZRevRange(ctx, r.seriesKey(key), 0, 0).Result()
	if err != nil {
		return snapshot.Snapshot{}, false, mapError("latest snapshot", err)
	}
	return firstMember(members)
}

func (r *SnapshotRepository) LatestBefore(ctx context.Context, key player.Key, before time.Time) (snapshot.Snapshot, bool, error) {
	members, err := r.client.ZRevRangeByScore(ctx, r.seriesKey(key), &redis.ZRangeBy{
		Max:   "(" + strconv.FormatInt(snapshot.NormalizeTime(before).UnixMicro(), 10),
		Min:   "-inf",
		Count: 1,
	}).Result()
	if err != nil {
		return snapshot.Snapshot{}, false, mapError("latest snapshot before", err)
	}
	return firstMember(members)
}

// Range pages through ZRANGEBYSCORE so large windows never load at once.
func (r *SnapshotRepository) Range(ctx context.Context, key player.Key, from, to time.Time) iter.Seq2[snapshot.Snapshot, error] {
	return func(yield func(snapshot.Snapshot, error) bool) {
		seriesKey := r.seriesKey(key)
		minScore := strconv.FormatInt(snapshot.NormalizeTime(from).UnixMicro(), 10)
		maxScore := strconv.FormatInt(snapshot.NormalizeTime(to).UnixMicro(), 10)

		for offset := int64(0); ; offset += r.pageSize {
			members, err := r.client.ZRangeByScore(ctx, seriesKey, &redis.ZRangeBy{
				Min:    minScore,
				Max:    maxScore,
				Offset: offset,
				Count:  r.pageSize,
			}).Result()
			if err != nil {
				yield(snapshot.Snapshot{}, mapError("range snapshots", err))
				return
			}
			for _, member := range members {
				item, err := decodeMember(member)
				if !yield(item, err) || err != nil {
					return
				}
			}
			if int64(len(members)) < r.pageSize {
				return
			}
		}
	}
}

// Prune trims each series below the cutoff but never removes its newest
// member.
func (r *SnapshotRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	players, err := r.client.SMembers(ctx, r.playersKey()).Result()
	if err != nil {
		return 0, mapError("list players", err)
	}

	cutoff := snapshot.NormalizeTime(olderThan).UnixMicro()
	var pruned int64
	for _, raw := range players {
		if err := ctx.Err(); err != nil {
			return pruned, err
		}
		key, ok := parsePlayerKey(raw)
		if !ok {
			continue
		}
		seriesKey := r.seriesKey(key)
		last, err := r.client.ZRevRangeWithScores(ctx, seriesKey, 0, 0).Result()
		if err != nil {
			return pruned, mapError("prune snapshots", err)
		}
		if len(last) == 0 {
			continue
		}
		limit := min(cutoff, int64(last[0].Score))
		removed, err := r.client.ZRemRangeByScore(ctx, seriesKey, "-inf", "("+strconv.FormatInt(limit, 10)).Result()
		if err != nil {
			return pruned, mapError("prune snapshots", err)
		}
		pruned += removed
	}
	return pruned, nil
}

func toRecord(item snapshot.Snapshot) record {
	return record{
		ID:          item.ID,
		Game:        string(item.Player.Game),
		ExternalID:  item.Player.ExternalID,
		DisplayName: item.Player.DisplayName,
		Region:      item.Player.Region,
		CapturedAt:  item.CapturedAt.UnixMicro(),
		Tier:        item.Rank.Tier,
		TierIndex:   item.Rank.TierIndex,
		Division:    item.Rank.Division,
		DivisionIdx: item.Rank.DivisionIndex,
		Rating:      item.Rank.Rating,
		Metrics:     item.Metrics,
		RawSource:   item.RawSource,
	}
}

func (rec record) snapshot() snapshot.Snapshot {
	return snapshot.Snapshot{
		ID: rec.ID,
		Player: player.Identity{
			Game:        game.ID(rec.Game),
			ExternalID:  rec.ExternalID,
			DisplayName: rec.DisplayName,
			Region:      rec.Region,
		},
		CapturedAt: time.UnixMicro(rec.CapturedAt).UTC(),
		Rank: game.Rank{
			Tier:          rec.Tier,
			TierIndex:     rec.TierIndex,
			Division:      rec.Division,
			DivisionIndex: rec.DivisionIdx,
			Rating:        rec.Rating,
		},
		Metrics:   rec.Metrics,
		RawSource: rec.RawSource,
	}
}

func decodeMember(member string) (snapshot.Snapshot, error) {
	var rec record
	if err := sonic.UnmarshalString(member, &rec); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("decode snapshot member: %w", err)
	}
	return rec.snapshot(), nil
}

func firstMember(members []string) (snapshot.Snapshot, bool, error) {
	if len(members) == 0 {
		return snapshot.Snapshot{}, false, nil
	}
	item, err := decodeMember(members[0])
	if err != nil {
		return snapshot.Snapshot{}, false, err
	}
	return item, true, nil
}

func parsePlayerKey(raw string) (player.Key, bool) {
	gamePart, externalID, ok := strings.Cut(raw, ":")
	if !ok || externalID == "" {
		return player.Key{}, false
	}
	return player.Key{Game: game.ID(gamePart), ExternalID: externalID}, true
}

// mapError marks connection level failures as store unavailable. Server
// replies such as WRONGTYPE stay plain errors.
func mapError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, snapshot.ErrStoreUnavailable, err)
}
