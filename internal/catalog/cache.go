package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/errors"
)

const defaultListingTTL = 5 * time.Minute

type CacheConfig struct {
	Redis  redis.UniversalClient
	Prefix string
	TTL    time.Duration
}

// Cache keeps quiz listings per course in redis.
type Cache struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewCache(c CacheConfig) *Cache {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = defaultListingTTL
	}

	return &Cache{
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    ttl,
	}
}

// GetQuizzes returns the cached listing of a course. ok is false on a miss.
func (c *Cache) GetQuizzes(ctx context.Context, courseCode string) (quizzes []domain.Quiz, ok bool, err error) {
	b, err := c.redis.Get(ctx, c.listingKey(courseCode)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get listing: %w", err)
	}

	if err := json.Unmarshal(b, &quizzes); err != nil {
		return nil, false, fmt.Errorf("unmarshal listing: %w", err)
	}

	return quizzes, true, nil
}

func (c *Cache) SetQuizzes(ctx context.Context, courseCode string, quizzes []domain.Quiz) error {
	b, err := json.Marshal(quizzes)
	if err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}

	return c.redis.Set(ctx, c.listingKey(courseCode), b, c.ttl).Err()
}

// InvalidateQuizzes drops the cached listing of a course.
func (c *Cache) InvalidateQuizzes(ctx context.Context, courseCode string) error {
	if err := c.redis.Del(ctx, c.listingKey(courseCode)).Err(); err != nil {
		return fmt.Errorf("invalidate listing: %w", err)
	}
	return nil
}

func (c *Cache) listingKey(courseCode string) string {
	return fmt.Sprintf("%s:course:%s:quizzes", c.prefix, courseCode)
}
