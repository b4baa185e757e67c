package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"boardsync-backend/internal/model"
)

// CachedRaster is the latest authoritative canvas kept per board so
// joiners skip the element-log read on the hot path.
type CachedRaster struct {
	Image    string    `json:"image"`
	AuthorID int64     `json:"author_id"`
	Version  int64     `json:"version"`
	CachedAt time.Time `json:"cached_at"`
}

// BoardCache keeps the latest raster and the recent collaboration history
// per board in Redis. Fully optional: a nil *BoardCache is a valid
// disabled cache and every method degrades to a no-op/miss.
type BoardCache struct {
	client *redis.Client
}

// NewBoardCache connects and pings. Callers treat a failed connect as
// "cache disabled", not a startup failure.
func NewBoardCache(addr, password string, db int) (*BoardCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Info().Str("addr", addr).Msg("board cache connected")
	return &BoardCache{client: client}, nil
}

func rasterKey(boardID string) string {
	return "board:" + boardID + ":raster"
}

func historyKey(boardID string) string {
	return "board:" + boardID + ":history"
}

// SetLatestRaster stores the authoritative canvas for a board.
func (c *BoardCache) SetLatestRaster(ctx context.Context, boardID string, raster *CachedRaster) {
	if c == nil || c.client == nil {
		return
	}
	raster.CachedAt = time.Now()
	data, err := json.Marshal(raster)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, rasterKey(boardID), data, 24*time.Hour).Err(); err != nil {
		log.Warn().Str("board", boardID).Err(err).Msg("raster cache write failed")
	}
}

// LatestRaster returns the cached canvas, or nil on miss or cache outage.
func (c *BoardCache) LatestRaster(ctx context.Context, boardID string) *CachedRaster {
	if c == nil || c.client == nil {
		return nil
	}
	val, err := c.client.Get(ctx, rasterKey(boardID)).Result()
	if err != nil {
		return nil
	}
	var raster CachedRaster
	if err := json.Unmarshal([]byte(val), &raster); err != nil {
		return nil
	}
	return &raster
}

// AppendHistory mirrors a collaboration history entry, keeping the most
// recent entries only.
func (c *BoardCache) AppendHistory(ctx context.Context, boardID string, entry model.HistoryEntry) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	key := historyKey(boardID)
	pipe := c.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -int64(model.MaxHistoryEntries), -1)
	pipe.Expire(ctx, key, 24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Str("board", boardID).Err(err).Msg("history cache write failed")
	}
}

// RecentHistory returns the last count cached entries, oldest first.
func (c *BoardCache) RecentHistory(ctx context.Context, boardID string, count int64) []model.HistoryEntry {
	if c == nil || c.client == nil {
		return nil
	}
	results, err := c.client.LRange(ctx, historyKey(boardID), -count, -1).Result()
	if err != nil {
		return nil
	}
	entries := make([]model.HistoryEntry, 0, len(results))
	for _, data := range results {
		var entry model.HistoryEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// DeleteBoard drops all cached state for a board (clear, deactivation).
func (c *BoardCache) DeleteBoard(ctx context.Context, boardID string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, rasterKey(boardID), historyKey(boardID))
}

// Health pings the cache.
func (c *BoardCache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close closes the connection.
func (c *BoardCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
