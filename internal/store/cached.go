package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// CacheConfig bounds the configuration read cache
type CacheConfig struct {
	Size int           `mapstructure:"size" json:"size" yaml:"size"`
	TTL  time.Duration `mapstructure:"ttl" json:"ttl" yaml:"ttl"`
}

// DefaultCacheConfig returns 256 entries with a five minute TTL
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Size: 256,
		TTL:  5 * time.Minute,
	}
}

// CachedStore is a read-through cache over the configuration reads of a
// Repository. Concurrent misses for the same key share one backend call and
// every configuration write invalidates the affected entries. A read that
// started before an invalidation never refills the cache.
type CachedStore struct {
	Repository

	configs *expirable.LRU[string, *MixingConfiguration]
	lists   *expirable.LRU[string, []*MixingConfiguration]
	group   singleflight.Group
	logger  logging.Logger

	// mu orders refills against invalidations
	mu         sync.Mutex
	configGens generations
	listGens   generations
}

// generations counts invalidations per key plus purges of the whole cache.
// Both only grow, so their sum changes on every invalidation of a key.
type generations struct {
	epoch uint64
	keys  map[string]uint64
}

func (g *generations) current(key string) uint64 {
	return g.epoch + g.keys[key]
}

func (g *generations) bump(key string) {
	if g.keys == nil {
		g.keys = make(map[string]uint64)
	}
	g.keys[key]++
}

func (g *generations) bumpAll() {
	g.epoch++
}

// NewCachedStore wraps backend with a bounded TTL cache
func NewCachedStore(backend Repository, config *CacheConfig, logger logging.Logger) *CachedStore {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if config.Size <= 0 {
		config.Size = 256
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &CachedStore{
		Repository: backend,
		configs:    expirable.NewLRU[string, *MixingConfiguration](config.Size, nil, config.TTL),
		lists:      expirable.NewLRU[string, []*MixingConfiguration](config.Size, nil, config.TTL),
		logger: logger.WithFields(logging.Fields{
			"component": "config_cache",
			"size":      config.Size,
			"ttl":       config.TTL.String(),
		}),
	}
}

func (c *CachedStore) GetConfig(ctx context.Context, id string) (*MixingConfiguration, error) {
	if cfg, ok := c.configs.Get(id); ok {
		return cfg.Clone(), nil
	}

	c.mu.Lock()
	gen := c.configGens.current(id)
	c.mu.Unlock()

	v, err, _ := c.group.Do(flightKey("config", id, gen), func() (any, error) {
		cfg, err := c.Repository.GetConfig(ctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.configGens.current(id) == gen {
			c.configs.Add(id, cfg)
		}
		c.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*MixingConfiguration).Clone(), nil
}

func (c *CachedStore) ListByGenre(ctx context.Context, genre string) ([]*MixingConfiguration, error) {
	if list, ok := c.lists.Get(genre); ok {
		return cloneConfigs(list), nil
	}

	c.mu.Lock()
	gen := c.listGens.current(genre)
	c.mu.Unlock()

	v, err, _ := c.group.Do(flightKey("genre", genre, gen), func() (any, error) {
		list, err := c.Repository.ListByGenre(ctx, genre)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.listGens.current(genre) == gen {
			c.lists.Add(genre, list)
		} else {
			c.logger.Debug("Discarded configuration list read across a write", logging.Fields{"genre": genre})
		}
		c.mu.Unlock()
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneConfigs(v.([]*MixingConfiguration)), nil
}

func (c *CachedStore) CreateConfig(ctx context.Context, cfg *MixingConfiguration) error {
	if err := c.Repository.CreateConfig(ctx, cfg); err != nil {
		return err
	}
	c.mu.Lock()
	c.invalidateList(cfg.Scope.Genre)
	c.mu.Unlock()
	return nil
}

func (c *CachedStore) IncrementUsage(ctx context.Context, id string) error {
	if err := c.Repository.IncrementUsage(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg, ok := c.configs.Peek(id); ok {
		c.invalidateList(cfg.Scope.Genre)
	} else {
		c.listGens.bumpAll()
		c.lists.Purge()
	}
	c.configGens.bump(id)
	c.configs.Remove(id)
	return nil
}

func (c *CachedStore) SetDefault(ctx context.Context, genre, configID, reason string) error {
	if err := c.Repository.SetDefault(ctx, genre, configID, reason); err != nil {
		return err
	}
	c.mu.Lock()
	// IsDefault changes on every configuration of the genre
	c.configGens.bumpAll()
	c.configs.Purge()
	c.invalidateList(genre)
	c.mu.Unlock()

	c.logger.Debug("Invalidated cache after default change", logging.Fields{
		"genre":     genre,
		"config_id": configID,
	})
	return nil
}

// invalidateList drops the cached list of a genre; c.mu must be held
func (c *CachedStore) invalidateList(genre string) {
	c.listGens.bump(genre)
	c.lists.Remove(genre)
}

func flightKey(kind, key string, gen uint64) string {
	return kind + ":" + key + "@" + strconv.FormatUint(gen, 10)
}

func cloneConfigs(list []*MixingConfiguration) []*MixingConfiguration {
	out := make([]*MixingConfiguration, len(list))
	for i, cfg := range list {
		out[i] = cfg.Clone()
	}
	return out
}
