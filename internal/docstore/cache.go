package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultCacheTTL   = 30 * time.Second
	cacheKeyDocument  = "dividis:doc:"
	cacheKeyList      = "dividis:list:"
	cacheKeyGen       = "dividis:gen:"
	cacheOperationGet = "get"
	cacheOperationLst = "list"
)

// CacheObserver records cache hits and misses.
type CacheObserver interface {
	ObserveCache(operation string, hit bool)
}

// CachedClientConfig wires a Redis read-through cache in front of a Client.
type CachedClientConfig struct {
	Next     Client
	Redis    *redis.Client
	TTL      time.Duration
	Logger   *zap.Logger
	Observer CacheObserver
}

// CachedClient serves Get and List from Redis when possible and invalidates
// the affected keys after every write. Redis failures fall through to Next.
//
// Every cache key has a generation counter that writes bump. A miss records
// the generation before reading Next and only fills the key if it is still
// unchanged, so a read that raced a write never repopulates the old value.
type CachedClient struct {
	next     Client
	redis    *redis.Client
	ttl      time.Duration
	logger   *zap.Logger
	observer CacheObserver
}

var _ Client = (*CachedClient)(nil)

var errStaleFill = errors.New("docstore: cache generation moved during fill")

type cachedSnapshot struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Exists     bool   `json:"exists"`
	Data       Data   `json:"data,omitempty"`
}

// NewCachedClient returns a caching decorator. A nil Redis client yields Next unchanged.
func NewCachedClient(cfg CachedClientConfig) (Client, error) {
	if cfg.Next == nil {
		return nil, errors.New("docstore: cached client requires a backing client")
	}
	if cfg.Redis == nil {
		return cfg.Next, nil
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &CachedClient{
		next:     cfg.Next,
		redis:    cfg.Redis,
		ttl:      ttl,
		logger:   logger,
		observer: cfg.Observer,
	}, nil
}

func (c *CachedClient) Get(ctx context.Context, ref Ref) (Snapshot, error) {
	key := cacheKeyDocument + ref.Path()
	var cached cachedSnapshot
	if c.readJSON(ctx, key, &cached) {
		c.observe(cacheOperationGet, true)
		return cached.snapshot(), nil
	}
	c.observe(cacheOperationGet, false)

	generation, fillable := c.generation(ctx, key)
	snapshot, err := c.next.Get(ctx, ref)
	if err != nil {
		return Snapshot{}, err
	}
	if fillable {
		c.fill(ctx, key, generation, fromSnapshot(snapshot))
	}
	return snapshot, nil
}

func (c *CachedClient) Set(ctx context.Context, ref Ref, data Data, opts SetOptions) error {
	err := c.next.Set(ctx, ref, data, opts)
	c.invalidate(ctx, ref)
	return err
}

func (c *CachedClient) Update(ctx context.Context, ref Ref, fields Data) error {
	err := c.next.Update(ctx, ref, fields)
	c.invalidate(ctx, ref)
	return err
}

func (c *CachedClient) Delete(ctx context.Context, ref Ref) error {
	err := c.next.Delete(ctx, ref)
	c.invalidate(ctx, ref)
	return err
}

func (c *CachedClient) List(ctx context.Context, collection string) ([]Snapshot, error) {
	key := cacheKeyList + collection
	var cached []cachedSnapshot
	if c.readJSON(ctx, key, &cached) {
		c.observe(cacheOperationLst, true)
		snapshots := make([]Snapshot, 0, len(cached))
		for _, entry := range cached {
			snapshots = append(snapshots, entry.snapshot())
		}
		return snapshots, nil
	}
	c.observe(cacheOperationLst, false)

	generation, fillable := c.generation(ctx, key)
	snapshots, err := c.next.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	entries := make([]cachedSnapshot, 0, len(snapshots))
	for _, snapshot := range snapshots {
		entries = append(entries, fromSnapshot(snapshot))
	}
	if fillable {
		c.fill(ctx, key, generation, entries)
	}
	return snapshots, nil
}

func (c *CachedClient) readJSON(ctx context.Context, key string, dest any) bool {
	raw, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// generation reports the current generation of key. A Redis failure
// disables the fill for this read.
func (c *CachedClient) generation(ctx context.Context, key string) (int64, bool) {
	generation, err := c.redis.Get(ctx, cacheKeyGen+key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		c.logger.Warn("cache generation read failed", zap.String("key", key), zap.Error(err))
		return 0, false
	}
	return generation, true
}

// fill stores value under key only while the generation observed before the
// backing read is still current.
func (c *CachedClient) fill(ctx context.Context, key string, generation int64, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	genKey := cacheKeyGen + key
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug("cache fill skipped", zap.String("key", key))
	default:
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate also runs after failed writes.
func (c *CachedClient) invalidate(ctx context.Context, ref Ref) {
	documentKey := cacheKeyDocument + ref.Path()
	listKey := cacheKeyList + ref.Collection
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, cacheKeyGen+documentKey)
		pipe.Incr(ctx, cacheKeyGen+listKey)
		pipe.Del(ctx, documentKey, listKey)
		return nil
	})
	if err != nil {
		c.logger.Warn("cache invalidation failed", zap.String("path", ref.Path()), zap.Error(err))
	}
}

func (c *CachedClient) observe(operation string, hit bool) {
	if c.observer != nil {
		c.observer.ObserveCache(operation, hit)
	}
}

func fromSnapshot(snapshot Snapshot) cachedSnapshot {
	return cachedSnapshot{
		Collection: snapshot.Ref.Collection,
		ID:         snapshot.Ref.ID,
		Exists:     snapshot.Exists,
		Data:       snapshot.Data,
	}
}

func (c cachedSnapshot) snapshot() Snapshot {
	return Snapshot{
		Ref:    Ref{Collection: c.Collection, ID: c.ID},
		Exists: c.Exists,
		Data:   c.Data,
	}
}
