package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/standard"
)

const (
	levelsPrefix        = "levels:"
	levelsVersionPrefix = "levels:version:"
	defaultLevelsTTL    = time.Hour
)

// LevelCache keeps the levels of standards as JSON documents.
// Every standard has a version counter, bumped on invalidation; levels read at an older version are not cached.
type LevelCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ standard.LevelCache = (*LevelCache)(nil) // interface compliance check

// Connect dials the redis server of conf and checks it answers.
func Connect(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

func NewLevelCache(client *redis.Client, ttl time.Duration) *LevelCache {
	if ttl <= 0 {
		ttl = defaultLevelsTTL
	}
	return &LevelCache{client: client, ttl: ttl}
}

func levelsKey(standardID int64) string {
	return fmt.Sprintf("%s%d", levelsPrefix, standardID)
}

func levelsVersionKey(standardID int64) string {
	return fmt.Sprintf("%s%d", levelsVersionPrefix, standardID)
}

// levelEntry keeps StandardID which Level does not marshal.
type levelEntry struct {
	standard.Level
	StandardID int64 `json:"standard_id"`
}

func (c *LevelCache) GetLevels(ctx context.Context, standardID int64) ([]standard.Level, error) {
	data, err := c.client.Get(ctx, levelsKey(standardID)).Bytes()
	if err == redis.Nil {
		return nil, standard.ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "getting cached levels")
	}

	var entries []levelEntry
	if err = json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "decoding cached levels")
	}
	levels := make([]standard.Level, 0, len(entries))
	for _, e := range entries {
		lvl := e.Level
		lvl.StandardID = e.StandardID
		levels = append(levels, lvl)
	}
	return levels, nil
}

func (c *LevelCache) LevelsVersion(ctx context.Context, standardID int64) (int64, error) {
	version, err := c.client.Get(ctx, levelsVersionKey(standardID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "getting levels version")
	}
	return version, nil
}

// SetLevels caches levels unless the version of the standard moved past version.
func (c *LevelCache) SetLevels(ctx context.Context, standardID int64, levels []standard.Level, version int64) error {
	entries := make([]levelEntry, 0, len(levels))
	for _, lvl := range levels {
		entries = append(entries, levelEntry{Level: lvl, StandardID: lvl.StandardID})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "encoding levels")
	}

	verKey := levelsVersionKey(standardID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, verKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, levelsKey(standardID), data, c.ttl)
			return nil
		})
		return err
	}, verKey)
	if err != nil && err != redis.TxFailedErr {
		return errors.Wrap(err, "caching levels")
	}
	return nil
}

// InvalidateLevels drops the cached levels and bumps the version of the standard.
func (c *LevelCache) InvalidateLevels(ctx context.Context, standardID int64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, levelsVersionKey(standardID))
		pipe.Del(ctx, levelsKey(standardID))
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "invalidating cached levels")
	}
	return nil
}
