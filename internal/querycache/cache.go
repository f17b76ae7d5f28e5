// Package querycache caches GestionRH API query results in Redis and keeps the
// active queries fresh when their keys are invalidated.
package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	versionKey = "hrq:version"
	// BumpChannel carries cross-instance invalidation events.
	BumpChannel = "hr.bump"

	defaultTTL            = 5 * time.Minute
	defaultRefreshTimeout = 15 * time.Second
)

// ErrLoaderRequired is returned when Fetch is called without a loader.
var ErrLoaderRequired = errors.New("querycache: loader required")

// Loader produces the value stored under a key.
type Loader func(ctx context.Context) (any, error)

// Key composes a query key from its parts.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// UserKey composes a query key scoped to one user.
func UserKey(user string, parts ...string) string {
	return Key(append(parts, "u="+user)...)
}

func ownedBy(key, user string) bool {
	scope := "u=" + user
	return key == scope || strings.HasSuffix(key, ":"+scope)
}

// Options tune a Cache.
type Options struct {
	TTL            time.Duration
	RefreshTimeout time.Duration
	// ActiveTTL is how long a query stays active without being read. It
	// defaults to TTL.
	ActiveTTL time.Duration
	Clock     clockwork.Clock
	Metrics        *Metrics
	Logger         *slog.Logger
}

// Cache is a Redis backed read-through cache with versioned keys. A nil Cache
// or one without a Redis client calls loaders directly.
type Cache struct {
	client         *redis.Client
	ttl            time.Duration
	refreshTimeout time.Duration
	activeTTL      time.Duration
	clock          clockwork.Clock
	metrics        *Metrics
	logger         *slog.Logger

	group singleflight.Group
	wg    sync.WaitGroup

	mu         sync.Mutex
	active     map[string]activeQuery
	refreshing map[string]bool
}

// activeQuery is a loader and the last time its key was read.
type activeQuery struct {
	loader Loader
	seen   time.Time
}

// New constructs the cache.
func New(client *redis.Client, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = defaultRefreshTimeout
	}
	if opts.ActiveTTL <= 0 {
		opts.ActiveTTL = opts.TTL
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{
		client:         client,
		ttl:            opts.TTL,
		refreshTimeout: opts.RefreshTimeout,
		activeTTL:      opts.ActiveTTL,
		clock:          opts.Clock,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		active:         make(map[string]activeQuery),
		refreshing:     make(map[string]bool),
	}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, versionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, versionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

func (c *Cache) storageKey(ctx context.Context, key string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("hrq:%d:%s", ver, key), nil
}

// Fetch loads key into dest, calling loader on a miss. The loader is remembered
// as the key's active query and re-run when the key is invalidated.
func (c *Cache) Fetch(ctx context.Context, key string, dest any, loader Loader) error {
	if loader == nil {
		return ErrLoaderRequired
	}
	if c == nil || c.client == nil {
		return loadInto(ctx, loader, dest)
	}
	c.remember(key, loader)

	storage, err := c.storageKey(ctx, key)
	if err != nil {
		c.logger.Warn("query cache unavailable", slog.String("key", key), slog.Any("error", err))
		return loadInto(ctx, loader, dest)
	}
	payload, err := c.client.Get(ctx, storage).Bytes()
	switch {
	case err == nil:
		c.metrics.hit(key)
		return json.Unmarshal(payload, dest)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("query cache read failed", slog.String("key", key), slog.Any("error", err))
		return loadInto(ctx, loader, dest)
	}

	c.metrics.miss(key)
	raw, err := c.load(ctx, key, loader)
	if err != nil {
		c.dropIfUnauthorized(key, err)
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Get is a typed Fetch.
func Get[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	var out T
	err := c.Fetch(ctx, key, &out, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	return out, err
}

// load runs loader once per key at a time and stores the encoded result.
func (c *Cache) load(ctx context.Context, key string, loader Loader) ([]byte, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("querycache: encode %s: %w", key, err)
		}
		storage, err := c.storageKey(ctx, key)
		if err == nil {
			err = c.client.Set(ctx, storage, raw, c.ttl).Err()
		}
		if err != nil {
			c.logger.Warn("query cache write failed", slog.String("key", key), slog.Any("error", err))
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func loadInto(ctx context.Context, loader Loader, dest any) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func (c *Cache) remember(key string, loader Loader) {
	c.mu.Lock()
	c.active[key] = activeQuery{loader: loader, seen: c.clock.Now()}
	c.mu.Unlock()
}

// activeMatching returns the live loaders whose key matches one of prefixes,
// or every live loader when prefixes is empty. Queries nobody read within the
// active TTL are dropped on the way. Caller holds mu.
func (c *Cache) activeMatching(prefixes []string) map[string]Loader {
	cutoff := c.clock.Now().Add(-c.activeTTL)
	out := make(map[string]Loader)
	for key, q := range c.active {
		if q.seen.Before(cutoff) {
			delete(c.active, key)
			continue
		}
		if len(prefixes) == 0 || matchesAny(key, prefixes) {
			out[key] = q.loader
		}
	}
	return out
}

// Forget drops the active queries under the given keys.
func (c *Cache) Forget(keys ...string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for active := range c.active {
		if matchesAny(active, keys) {
			delete(c.active, active)
		}
	}
}

// ForgetUser drops every active query scoped to user, so their credentials
// are not replayed once the user signed out or the API rejected them.
func (c *Cache) ForgetUser(user string) {
	if c == nil || user == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.active {
		if ownedBy(key, user) {
			delete(c.active, key)
		}
	}
}

// Active returns the number of queries currently kept fresh.
func (c *Cache) Active() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.activeMatching(nil))
}

// Invalidate drops the cached entries under keys and re-fetches the matching
// active queries in the background. A key also matches every key it prefixes.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	c.mu.Lock()
	targets := c.activeMatching(keys)
	c.mu.Unlock()

	toDelete := make([]string, 0, len(keys)+len(targets))
	seen := make(map[string]struct{}, len(keys)+len(targets))
	for _, key := range keys {
		seen[key] = struct{}{}
		toDelete = append(toDelete, key)
	}
	for key := range targets {
		if _, ok := seen[key]; !ok {
			toDelete = append(toDelete, key)
		}
	}
	storage := make([]string, 0, len(toDelete))
	for _, key := range toDelete {
		sk, err := c.storageKey(ctx, key)
		if err != nil {
			return err
		}
		storage = append(storage, sk)
	}
	if err := c.client.Del(ctx, storage...).Err(); err != nil {
		return err
	}

	for key, loader := range targets {
		c.scheduleRefresh(key, loader)
	}
	return nil
}

// scheduleRefresh starts a background refresh of key. Invalidations arriving
// while a refresh runs collapse into one follow-up refresh.
func (c *Cache) scheduleRefresh(key string, loader Loader) {
	c.mu.Lock()
	if _, running := c.refreshing[key]; running {
		c.refreshing[key] = true
		c.mu.Unlock()
		c.metrics.refresh(key, "coalesced")
		return
	}
	c.refreshing[key] = false
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			c.refreshOnce(key, loader)

			c.mu.Lock()
			if c.refreshing[key] {
				c.refreshing[key] = false
				latest, ok := c.active[key]
				if !ok {
					delete(c.refreshing, key)
					c.mu.Unlock()
					return
				}
				loader = latest.loader
				c.mu.Unlock()
				continue
			}
			delete(c.refreshing, key)
			c.mu.Unlock()
			return
		}
	}()
}

func (c *Cache) refreshOnce(key string, loader Loader) {
	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()
	if _, err := c.load(ctx, key, loader); err != nil {
		c.metrics.refresh(key, "failure")
		c.logger.Warn("query refresh failed", slog.String("key", key), slog.Any("error", err))
		c.dropIfUnauthorized(key, err)
		return
	}
	c.metrics.refresh(key, "success")
}

// Wait blocks until the background refreshes started so far have finished.
func (c *Cache) Wait() {
	if c == nil {
		return
	}
	c.wg.Wait()
}

// Bump invalidates every entry by incrementing the version and publishing it.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// Listen applies version bumps published by other instances and refreshes the
// local active queries. It returns once subscribed.
func (c *Cache) Listen(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, BumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil && ver > 0 {
					_ = c.client.Set(ctx, versionKey, ver, 0).Err()
				}
				c.refreshActive()
			}
		}
	}()
	return nil
}

func (c *Cache) refreshActive() {
	c.mu.Lock()
	targets := c.activeMatching(nil)
	c.mu.Unlock()
	for key, loader := range targets {
		c.scheduleRefresh(key, loader)
	}
}

// dropIfUnauthorized forgets a query whose credentials were rejected so it is
// not replayed on the next invalidation.
func (c *Cache) dropIfUnauthorized(key string, err error) {
	var sc interface{ StatusCode() int }
	if !errors.As(err, &sc) || sc.StatusCode() != http.StatusUnauthorized {
		return
	}
	c.mu.Lock()
	delete(c.active, key)
	c.mu.Unlock()
}

func matchesAny(key string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if key == prefix || strings.HasPrefix(key, prefix+":") {
			return true
		}
	}
	return false
}
