package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"emailthing/pkg/circuitbreaker"
	"emailthing/pkg/logger"
	"emailthing/pkg/metrics"
	"emailthing/pkg/util"
)

const (
	DefaultTTL = 5 * time.Minute

	keyPrefix = "mailbox_access"
	// noRole is cached for users without access so repeated denials skip
	// the database as well.
	noRole = "-"
)

// Cache is the subset of redis.Cmdable the decorator uses.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// CachedRoleSource is a read-through Redis cache in front of a RoleSource.
// When Redis is unavailable lookups go straight to the wrapped source.
type CachedRoleSource struct {
	next    RoleSource
	rdb     Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewCachedRoleSource(next RoleSource, rdb Cache, ttl time.Duration, logger *zap.Logger) *CachedRoleSource {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	cfg := circuitbreaker.DefaultConfig()
	cfg.IsFailure = func(err error) bool {
		return err != nil && !errors.Is(err, redis.Nil)
	}
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("Access cache circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &CachedRoleSource{
		next:    next,
		rdb:     rdb,
		ttl:     ttl,
		breaker: circuitbreaker.NewCircuitBreaker(cfg),
		logger:  logger,
	}
}

func cacheKey(mailboxID, userID string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, mailboxID, userID)
}

func (c *CachedRoleSource) MailboxRole(ctx context.Context, mailboxID, userID string) (string, error) {
	key := cacheKey(mailboxID, userID)
	log := logger.WithTrace(ctx, c.logger)

	var cached string
	err := c.breaker.Execute(func() error {
		var err error
		cached, err = c.rdb.Get(ctx, key).Result()
		return err
	})
	switch {
	case err == nil:
		metrics.IncrementAccessCache("hit")
		if cached == noRole {
			return "", nil
		}
		return cached, nil
	case errors.Is(err, redis.Nil):
		metrics.IncrementAccessCache("miss")
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
		metrics.IncrementAccessCache("bypass")
		return c.next.MailboxRole(ctx, mailboxID, userID)
	default:
		metrics.IncrementAccessCache("error")
		log.Warn("Access cache read failed, falling back to database",
			zap.String("key", key),
			zap.Error(err),
		)
		return c.next.MailboxRole(ctx, mailboxID, userID)
	}

	role, err := c.next.MailboxRole(ctx, mailboxID, userID)
	if err != nil {
		return "", err
	}

	value := role
	if value == "" {
		value = noRole
	}
	if err := c.breaker.Execute(func() error {
		return c.rdb.Set(ctx, key, value, c.ttl).Err()
	}); err != nil {
		log.Warn("Access cache write failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return role, nil
}

// Invalidate drops the cached role of one user on one mailbox. Redis
// failures, including an open breaker, are returned as util.ErrTransient so
// the triggering event is redelivered.
func (c *CachedRoleSource) Invalidate(ctx context.Context, mailboxID, userID string) error {
	key := cacheKey(mailboxID, userID)
	err := c.breaker.Execute(func() error {
		return c.rdb.Del(ctx, key).Err()
	})
	if err != nil {
		return fmt.Errorf("invalidate %s: %w: %w", key, util.ErrTransient, err)
	}
	return nil
}

// InvalidateMailbox drops every cached role on a mailbox.
func (c *CachedRoleSource) InvalidateMailbox(ctx context.Context, mailboxID string) error {
	pattern := fmt.Sprintf("%s:%s:*", keyPrefix, mailboxID)

	var cursor uint64
	for {
		var keys []string
		err := c.breaker.Execute(func() error {
			var err error
			keys, cursor, err = c.rdb.Scan(ctx, cursor, pattern, 100).Result()
			return err
		})
		if err != nil {
			return fmt.Errorf("scan %s: %w: %w", pattern, util.ErrTransient, err)
		}

		if len(keys) > 0 {
			if err := c.breaker.Execute(func() error {
				return c.rdb.Del(ctx, keys...).Err()
			}); err != nil {
				return fmt.Errorf("invalidate %s: %w: %w", pattern, util.ErrTransient, err)
			}
		}

		if cursor == 0 {
			return nil
		}
	}
}
