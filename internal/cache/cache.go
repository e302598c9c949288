// Package cache keeps a Redis copy of each product's board records.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fluxr/fluxr/internal/domain"
)

type recordLoader interface {
	LoadRecords(ctx context.Context, productUUID string) (domain.Records, error)
}

type itemWriter interface {
	UpdateFeature(ctx context.Context, actor, uuid string, upd domain.FeatureUpdate, ifMatch int64) (int64, error)
	UpdateBug(ctx context.Context, actor, uuid string, upd domain.BugUpdate, ifMatch int64) (int64, error)
	UpdateTask(ctx context.Context, actor, uuid string, upd domain.TaskUpdate, ifMatch int64) (int64, error)
	UpdatePage(ctx context.Context, actor, uuid string, upd domain.PageUpdate, ifMatch int64) (int64, error)
}

// Cache wraps a record loader with Redis-backed caching. A nil client or a
// zero TTL disables caching and every read goes to the loader.
//
// Each product has a generation counter that Invalidate bumps. Entries carry
// the generation they were read under, and a fill is only stored while the
// generation is unchanged, so a read that raced a write cannot outlive it.
type Cache struct {
	base  recordLoader
	redis *redis.Client
	ttl   time.Duration

	// products whose last eviction failed; reads bypass Redis until one lands
	owed sync.Map
}

type entry struct {
	Gen     int64          `json:"gen"`
	Records domain.Records `json:"records"`
}

var errSuperseded = errors.New("board cache fill superseded")

// New creates a caching loader using the provided Redis client and TTL.
func New(base recordLoader, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("cache.New: base loader is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

// Dial parses a redis:// URL and checks the server is reachable.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// LoadRecords serves from Redis when possible and fills it on a miss.
func (c *Cache) LoadRecords(ctx context.Context, productUUID string) (domain.Records, error) {
	if c.redis == nil || !c.settle(ctx, productUUID) {
		return c.base.LoadRecords(ctx, productUUID)
	}

	gen, genErr := generation(ctx, c.redis, productUUID)
	if genErr == nil {
		if records, ok := c.load(ctx, productUUID, gen); ok {
			return records, nil
		}
	}

	records, err := c.base.LoadRecords(ctx, productUUID)
	if err != nil {
		return domain.Records{}, err
	}
	if genErr == nil {
		c.fill(ctx, productUUID, gen, records)
	}
	return records, nil
}

// Fresh reads past Redis and refills it with what the loader returned.
func (c *Cache) Fresh(ctx context.Context, productUUID string) (domain.Records, error) {
	if c.redis == nil || !c.settle(ctx, productUUID) {
		return c.base.LoadRecords(ctx, productUUID)
	}
	gen, genErr := generation(ctx, c.redis, productUUID)
	records, err := c.base.LoadRecords(ctx, productUUID)
	if err != nil {
		return domain.Records{}, err
	}
	if genErr == nil {
		c.fill(ctx, productUUID, gen, records)
	}
	return records, nil
}

// FreshSource returns a record source that always reads past Redis.
func (c *Cache) FreshSource() FreshSource {
	return FreshSource{cache: c}
}

// FreshSource loads records through Cache.Fresh.
type FreshSource struct {
	cache *Cache
}

func (f FreshSource) LoadRecords(ctx context.Context, productUUID string) (domain.Records, error) {
	return f.cache.Fresh(ctx, productUUID)
}

// Invalidate bumps the product's generation and drops its cached records.
// When Redis cannot be reached the eviction is owed: reads of the product
// skip Redis until a later attempt succeeds.
func (c *Cache) Invalidate(ctx context.Context, productUUID string) error {
	if c.redis == nil {
		return nil
	}
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(productUUID))
		pipe.Del(ctx, boardCacheKey(productUUID))
		return nil
	})
	if err != nil {
		c.owed.Store(productUUID, struct{}{})
		return fmt.Errorf("invalidate board cache: %w", err)
	}
	c.owed.Delete(productUUID)
	return nil
}

// settle retries an owed eviction and reports whether Redis may be used.
func (c *Cache) settle(ctx context.Context, productUUID string) bool {
	if _, owed := c.owed.Load(productUUID); !owed {
		return true
	}
	return c.Invalidate(ctx, productUUID) == nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func generation(ctx context.Context, r getter, productUUID string) (int64, error) {
	n, err := r.Get(ctx, generationKey(productUUID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (c *Cache) load(ctx context.Context, productUUID string, gen int64) (domain.Records, bool) {
	data, err := c.redis.Get(ctx, boardCacheKey(productUUID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the loader without failing.
			_ = c.redis.Del(ctx, boardCacheKey(productUUID)).Err()
		}
		return domain.Records{}, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(productUUID)).Err()
		return domain.Records{}, false
	}
	if e.Gen != gen {
		return domain.Records{}, false
	}
	return e.Records, true
}

// fill stores records read under gen unless the generation moved meanwhile.
func (c *Cache) fill(ctx context.Context, productUUID string, gen int64, records domain.Records) {
	if c.ttl == 0 {
		return
	}
	data, err := json.Marshal(entry{Gen: gen, Records: records})
	if err != nil {
		return
	}
	genKey := generationKey(productUUID)
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := generation(ctx, tx, productUUID)
		if err != nil {
			return err
		}
		if current != gen {
			return errSuperseded
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, boardCacheKey(productUUID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)
}

// Writer returns an item writer for one product that evicts the product's
// cached records after every successful write.
func (c *Cache) Writer(productUUID string, base itemWriter) *Writer {
	return &Writer{cache: c, productUUID: productUUID, base: base}
}

// Writer evicts a product's cache entry after writes.
type Writer struct {
	cache       *Cache
	productUUID string
	base        itemWriter
}

// A failed eviction does not fail the committed write; the cache keeps it
// owed instead.
func (w *Writer) evictOnSuccess(ctx context.Context, etag int64, err error) (int64, error) {
	if err == nil {
		_ = w.cache.Invalidate(ctx, w.productUUID)
	}
	return etag, err
}

func (w *Writer) UpdateFeature(ctx context.Context, actor, uuid string, upd domain.FeatureUpdate, ifMatch int64) (int64, error) {
	etag, err := w.base.UpdateFeature(ctx, actor, uuid, upd, ifMatch)
	return w.evictOnSuccess(ctx, etag, err)
}

func (w *Writer) UpdateBug(ctx context.Context, actor, uuid string, upd domain.BugUpdate, ifMatch int64) (int64, error) {
	etag, err := w.base.UpdateBug(ctx, actor, uuid, upd, ifMatch)
	return w.evictOnSuccess(ctx, etag, err)
}

func (w *Writer) UpdateTask(ctx context.Context, actor, uuid string, upd domain.TaskUpdate, ifMatch int64) (int64, error) {
	etag, err := w.base.UpdateTask(ctx, actor, uuid, upd, ifMatch)
	return w.evictOnSuccess(ctx, etag, err)
}

func (w *Writer) UpdatePage(ctx context.Context, actor, uuid string, upd domain.PageUpdate, ifMatch int64) (int64, error) {
	etag, err := w.base.UpdatePage(ctx, actor, uuid, upd, ifMatch)
	return w.evictOnSuccess(ctx, etag, err)
}

func boardCacheKey(productUUID string) string {
	return "fluxr:board:" + productUUID
}

func generationKey(productUUID string) string {
	return "fluxr:board:" + productUUID + ":gen"
}
