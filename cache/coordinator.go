// cache/coordinator.go
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	core_errors "github.com/dealflowhq/dealflow/core/errors"
	logger "github.com/dealflowhq/dealflow/core/logging"
)

// InvalidationEvent is broadcast once per logical invalidation so that every
// instance can drop its matching local entries. Delivery is at-least-once
// and unordered across channels; handling is idempotent.
type InvalidationEvent struct {
	Channel    string    `json:"channel"`
	KeyPattern string    `json:"key_pattern"`
	TenantID   string    `json:"tenant_id"`
	ResourceID string    `json:"resource_id,omitempty"`
	Origin     string    `json:"origin"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// NewInvalidationEvent builds an event for one logical invalidation. Origin
// and EmittedAt are stamped by the coordinator at publish time.
func NewInvalidationEvent(resourceType, keyPattern, tenantID, resourceID string) InvalidationEvent {
	return InvalidationEvent{
		Channel:    Channel(resourceType),
		KeyPattern: keyPattern,
		TenantID:   tenantID,
		ResourceID: resourceID,
	}
}

// Coordinator is the generic cache-aside primitive shared by every cached
// resource type. Redis is the shared tier; a small in-process ttlcache
// mirrors hot entries and is kept honest by the invalidation bus and by its
// own short TTL.
//
// Reads fail open: if Redis is unreachable every operation degrades to a
// miss and the caller falls back to the authoritative store. Invalidation
// is the one path that reports errors, because ACL mutations must not
// return success before their invalidation has been issued.
type Coordinator struct {
	client    *redis.Client
	local     *ttlcache.Cache[string, string]
	localTTL  time.Duration
	opTimeout time.Duration
	id        string

	mu       sync.Mutex
	pubsub   *redis.PubSub
	handlers []func(InvalidationEvent)
}

func NewCoordinator(client *redis.Client) *Coordinator {
	localTTL := viper.GetDuration("cache.localTTL")
	if localTTL <= 0 {
		localTTL = 30 * time.Second
	}
	opTimeout := viper.GetDuration("cache.opTimeout")
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}

	local := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](localTTL),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go local.Start()

	return &Coordinator{
		client:    client,
		local:     local,
		localTTL:  localTTL,
		opTimeout: opTimeout,
		id:        uuid.New().String(),
	}
}

// Get returns the cached value for key, or absent. It never returns an
// error: store unavailability is a miss and the caller is expected to fall
// back to the authoritative store.
func (c *Coordinator) Get(ctx context.Context, key string) (string, bool) {
	if !TenantScoped(key) {
		logger.Warn("Rejected cache key outside tenant namespace", zap.String("key", key))
		return "", false
	}

	if item := c.local.Get(key); item != nil {
		return item.Value(), true
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	} else if err != nil {
		logger.Warn("Cache read failed, treating as miss", zap.Error(err), zap.String("key", key))
		return "", false
	}

	c.local.Set(key, val, c.localTTL)
	return val, true
}

// Set stores a value with the given TTL in both tiers.
func (c *Coordinator) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if !TenantScoped(key) {
		return core_errors.ErrInvalidCacheKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return err
	}

	localTTL := c.localTTL
	if ttl > 0 && ttl < localTTL {
		localTTL = ttl
	}
	c.local.Set(key, value, localTTL)
	return nil
}

// GetOrCompute returns the cached value for key, invoking compute on a miss
// and storing the result. There is no single-flight guarantee: concurrent
// misses for one key may each invoke compute. compute must be idempotent.
// A failure to store the computed value is tolerated; the value is still
// returned (slower, not wrong).
func (c *Coordinator) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (string, error)) (string, error) {
	if val, ok := c.Get(ctx, key); ok {
		return val, nil
	}

	val, err := compute(ctx)
	if err != nil {
		return "", err
	}

	if err := c.Set(ctx, key, val, ttl); err != nil {
		logger.Warn("Failed to store computed cache value", zap.Error(err), zap.String("key", key))
	}

	return val, nil
}

// MGet performs one bulk read for a set of keys and returns the hits.
// Like Get, it fails open: unavailability means fewer hits, never an error.
func (c *Coordinator) MGet(ctx context.Context, keys []string) map[string]string {
	hits := make(map[string]string, len(keys))
	var remote []string
	for _, key := range keys {
		if !TenantScoped(key) {
			continue
		}
		if item := c.local.Get(key); item != nil {
			hits[key] = item.Value()
			continue
		}
		remote = append(remote, key)
	}

	if len(remote) == 0 {
		return hits
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	vals, err := c.client.MGet(ctx, remote...).Result()
	if err != nil {
		logger.Warn("Bulk cache read failed, treating as misses", zap.Error(err), zap.Int("keys", len(remote)))
		return hits
	}

	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		hits[remote[i]] = s
		c.local.Set(remote[i], s, c.localTTL)
	}
	return hits
}

// Invalidate deletes every entry matching the event's pattern from both
// tiers and publishes the event exactly once so other instances can do
// pattern-based local deletion. Unlike reads, failures surface: callers on
// the ACL write path must not report success without an issued invalidation.
func (c *Coordinator) Invalidate(ctx context.Context, ev InvalidationEvent) error {
	if !TenantScoped(ev.KeyPattern) {
		return core_errors.ErrInvalidCacheKey
	}

	ev.Origin = c.id
	ev.EmittedAt = time.Now().UTC()

	c.deleteLocal(ev.KeyPattern)

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	iter := c.client.Scan(ctx, 0, ev.KeyPattern, 100).Iterator()
	var deleted int
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err), zap.String("key", iter.Val()))
		} else {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return core_errors.ErrStoreUnavailable
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := c.client.Publish(ctx, ev.Channel, payload).Err(); err != nil {
		return core_errors.ErrStoreUnavailable
	}

	logger.Debug("Invalidation published",
		zap.String("channel", ev.Channel),
		zap.String("pattern", ev.KeyPattern),
		zap.Int("deleted", deleted))
	return nil
}

// Subscribe registers this instance on the invalidation bus. Called once at
// startup; the receive loop runs until ctx is cancelled. Handling is
// idempotent, so at-least-once delivery and redeliveries are harmless.
func (c *Coordinator) Subscribe(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pubsub != nil {
		return
	}

	c.pubsub = c.client.PSubscribe(ctx, channelPrefix+"*")
	ch := c.pubsub.Channel()

	go func() {
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev InvalidationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Warn("Dropping malformed invalidation event", zap.Error(err))
					continue
				}
				c.handle(ev)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (c *Coordinator) handle(ev InvalidationEvent) {
	// Self-delivery: the local entries were already dropped when the event
	// was published from this instance.
	if ev.Origin != c.id {
		c.deleteLocal(ev.KeyPattern)
	}

	c.mu.Lock()
	handlers := c.handlers
	c.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// OnInvalidation registers an additional consumer of received events.
func (c *Coordinator) OnInvalidation(fn func(InvalidationEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

func (c *Coordinator) deleteLocal(pattern string) {
	for _, key := range c.local.Keys() {
		if Match(pattern, key) {
			c.local.Delete(key)
		}
	}
}

// Close drains the subscription and stops the local tier.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pubsub != nil {
		if err := c.pubsub.Close(); err != nil {
			logger.Error("Error closing invalidation subscription", zap.Error(err))
		}
		c.pubsub = nil
	}
	c.local.Stop()
}
