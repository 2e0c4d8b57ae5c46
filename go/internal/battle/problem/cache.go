package problem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrCacheMiss is returned by a Cache that holds nothing for the language.
var ErrCacheMiss = errors.New("problem cache miss")

// Cache keeps the last problem that was generated successfully per language.
type Cache interface {
	Get(ctx context.Context, language string) (Problem, error)
	Set(ctx context.Context, language string, p Problem) error
}

const (
	cacheKeyPrefix  = "battle:problem:"
	DefaultCacheTTL = 24 * time.Hour
)

// RedisCache stores problems as JSON strings.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, language string) (Problem, error) {
	raw, err := c.rdb.Get(ctx, cacheKeyPrefix+language).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Problem{}, ErrCacheMiss
		}
		return Problem{}, fmt.Errorf("redis get: %w", err)
	}

	var p Problem
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Problem{}, fmt.Errorf("unmarshal cached problem: %w", err)
	}
	return p, nil
}

func (c *RedisCache) Set(ctx context.Context, language string, p Problem) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal problem: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKeyPrefix+language, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// CachingGenerator remembers good problems and replays them when the next
// generator fails.
type CachingGenerator struct {
	next  Generator
	cache Cache
}

func NewCachingGenerator(next Generator, cache Cache) *CachingGenerator {
	return &CachingGenerator{next: next, cache: cache}
}

func (g *CachingGenerator) Generate(ctx context.Context, language string) (Problem, error) {
	p, genErr := g.next.Generate(ctx, language)
	if genErr == nil {
		genErr = p.Validate()
	}
	if genErr == nil {
		if err := g.cache.Set(ctx, language, p); err != nil {
			log.Warn().Err(err).Str("language", language).Msg("failed to cache problem")
		}
		return p, nil
	}

	cached, err := g.cache.Get(ctx, language)
	if err != nil {
		return Problem{}, errors.Join(genErr, err)
	}
	if err := cached.Validate(); err != nil {
		return Problem{}, errors.Join(genErr, err)
	}

	log.Info().
		Err(genErr).
		Str("language", language).
		Msg("serving cached problem after generation failure")
	return cached, nil
}
