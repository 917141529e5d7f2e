package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CacheConfig holds history cache settings.
type CacheConfig struct {
	Prefix string
	Size   int
	TTL    time.Duration
}

// DefaultCacheConfig returns the default history cache configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Prefix: "roomchat:history:",
		Size:   50,
		TTL:    time.Hour,
	}
}

// CachedHistory keeps the newest messages of each room in Redis in front of a
// chat.MessageStore. A room is held in three keys: a sorted set of message IDs
// scored by timestamp, a hash of encoded records, and a ready marker written
// only by a full load. Saves merge into the set whether or not the room is
// loaded, so a load racing a save can never drop it; reads trust the set only
// once the marker exists. Redis failures are logged and fall through to next.
type CachedHistory struct {
	next   chat.MessageStore
	client *redis.Client
	cfg    CacheConfig
	group  singleflight.Group
}

// mergeScript adds (score, id, body) triples to a room, trims it to the newest
// ARGV[1] entries and refreshes TTLs. ARGV[3] == "1" marks the room loaded.
var mergeScript = redis.NewScript(`
local size = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
for i = 4, #ARGV, 3 do
  redis.call('ZADD', KEYS[1], ARGV[i], ARGV[i + 1])
  redis.call('HSET', KEYS[2], ARGV[i + 1], ARGV[i + 2])
end
local extra = redis.call('ZCARD', KEYS[1]) - size
if extra > 0 then
  local old = redis.call('ZRANGE', KEYS[1], 0, extra - 1)
  redis.call('ZREMRANGEBYRANK', KEYS[1], 0, extra - 1)
  redis.call('HDEL', KEYS[2], unpack(old))
end
if redis.call('EXISTS', KEYS[1]) == 1 then
  redis.call('PEXPIRE', KEYS[1], ttl)
  redis.call('PEXPIRE', KEYS[2], ttl)
end
if ARGV[3] == '1' then
  redis.call('SET', KEYS[3], '1', 'PX', ttl)
end
return 1
`)

// NewCachedHistory creates a history cache in front of next.
func NewCachedHistory(next chat.MessageStore, client *redis.Client, cfg CacheConfig) *CachedHistory {
	def := DefaultCacheConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.Size <= 0 {
		cfg.Size = def.Size
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	return &CachedHistory{next: next, client: client, cfg: cfg}
}

// NewRedisClient connects to the Redis server at url and verifies it responds.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// keys returns the ids, records and ready keys of room. The hash tag keeps
// them in one cluster slot for mergeScript.
func (c *CachedHistory) keys(room string) []string {
	base := c.cfg.Prefix + "{" + room + "}"
	return []string{base + ":ids", base + ":records", base + ":ready"}
}

// merge writes msgs into the room through mergeScript.
func (c *CachedHistory) merge(ctx context.Context, room string, msgs []chat.Message, ready bool) error {
	args := make([]any, 0, 3+3*len(msgs))
	flag := "0"
	if ready {
		flag = "1"
	}
	args = append(args, c.cfg.Size, c.cfg.TTL.Milliseconds(), flag)
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode message %s: %w", msg.ID, err)
		}
		args = append(args, strconv.FormatInt(msg.Timestamp.UnixMicro(), 10), msg.ID, data)
	}
	return mergeScript.Run(ctx, c.client, c.keys(room), args...).Err()
}

// Save persists through next, then merges the record into the room's cache.
// If the merge fails the room is invalidated so the next read reloads it.
func (c *CachedHistory) Save(ctx context.Context, msg chat.Message) (chat.Message, error) {
	saved, err := c.next.Save(ctx, msg)
	if err != nil {
		return saved, err
	}

	if err := c.merge(ctx, saved.Room, []chat.Message{saved}, false); err != nil {
		log.Printf("History cache append error for room %q: %v", saved.Room, err)
		if err := c.Invalidate(ctx, saved.Room); err != nil {
			log.Printf("History cache invalidate error for room %q: %v", saved.Room, err)
		}
	}
	return saved, nil
}

// FindByRoom serves history from Redis, loading the room from next on a miss.
func (c *CachedHistory) FindByRoom(ctx context.Context, room string, limit int) ([]chat.Message, error) {
	if limit > c.cfg.Size {
		return c.next.FindByRoom(ctx, room, limit)
	}
	if limit <= 0 {
		return []chat.Message{}, nil
	}

	messages, hit, err := c.read(ctx, room, limit)
	if err != nil {
		log.Printf("History cache read error for room %q: %v", room, err)
		return c.next.FindByRoom(ctx, room, limit)
	}
	if hit {
		return messages, nil
	}

	if _, err, _ := c.group.Do(room, func() (any, error) {
		return nil, c.load(ctx, room)
	}); err != nil {
		log.Printf("History cache fill error for room %q: %v", room, err)
		return c.next.FindByRoom(ctx, room, limit)
	}

	messages, hit, err = c.read(ctx, room, limit)
	if err != nil || !hit {
		return c.next.FindByRoom(ctx, room, limit)
	}
	return messages, nil
}

// read returns the newest limit cached records of room, oldest first. It
// misses when the room was never fully loaded or a record has been trimmed
// between the two lookups.
func (c *CachedHistory) read(ctx context.Context, room string, limit int) ([]chat.Message, bool, error) {
	keys := c.keys(room)
	ready, err := c.client.Exists(ctx, keys[2]).Result()
	if err != nil {
		return nil, false, err
	}
	if ready == 0 {
		return nil, false, nil
	}

	ids, err := c.client.ZRange(ctx, keys[0], int64(-limit), -1).Result()
	if err != nil {
		return nil, false, err
	}
	if len(ids) == 0 {
		return []chat.Message{}, true, nil
	}

	records, err := c.client.HMGet(ctx, keys[1], ids...).Result()
	if err != nil {
		return nil, false, err
	}

	messages := make([]chat.Message, 0, len(records))
	for _, record := range records {
		data, ok := record.(string)
		if !ok {
			return nil, false, nil
		}
		var msg chat.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			return nil, false, fmt.Errorf("decode cached message: %w", err)
		}
		messages = append(messages, msg)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, true, nil
}

// load merges the room's newest messages from next and marks it ready.
func (c *CachedHistory) load(ctx context.Context, room string) error {
	messages, err := c.next.FindByRoom(ctx, room, c.cfg.Size)
	if err != nil {
		return err
	}
	return c.merge(ctx, room, messages, true)
}

// Invalidate drops the cached history of room.
func (c *CachedHistory) Invalidate(ctx context.Context, room string) error {
	return c.client.Del(ctx, c.keys(room)...).Err()
}
