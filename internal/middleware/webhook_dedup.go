package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"eventpay/internal/returnflow"
)

// CallbackDeduper remembers where a gateway callback was redirected so a
// repeated callback for the same pidx replays the redirect instead of
// re-running the lookup.
type CallbackDeduper interface {
	Lookup(ctx context.Context, pidx string) (location string, ok bool, err error)
	Remember(ctx context.Context, pidx, location string) error
}

type redisCallbackDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (d *redisCallbackDeduper) key(pidx string) string {
	return d.prefix + ":" + pidx
}

func (d *redisCallbackDeduper) Lookup(ctx context.Context, pidx string) (string, bool, error) {
	location, err := d.client.Get(ctx, d.key(pidx)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return location, true, nil
}

func (d *redisCallbackDeduper) Remember(ctx context.Context, pidx, location string) error {
	// First writer wins.
	return d.client.SetNX(ctx, d.key(pidx), location, d.ttl).Err()
}

type memoryEntry struct {
	location string
	expires  time.Time
}

type memoryCallbackDeduper struct {
	mu     sync.Mutex
	seen   map[string]memoryEntry
	ttl    time.Duration
	nextGC time.Time
	now    func() time.Time
}

func newMemoryCallbackDeduper(ttl time.Duration) *memoryCallbackDeduper {
	now := time.Now()
	return &memoryCallbackDeduper{
		seen:   make(map[string]memoryEntry),
		ttl:    ttl,
		nextGC: now.Add(ttl),
		now:    time.Now,
	}
}

func (d *memoryCallbackDeduper) Lookup(_ context.Context, pidx string) (string, bool, error) {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.seen[pidx]; ok && e.expires.After(now) {
		return e.location, true, nil
	}
	return "", false, nil
}

func (d *memoryCallbackDeduper) Remember(_ context.Context, pidx, location string) error {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.seen[pidx]; ok && e.expires.After(now) {
		return nil
	}
	d.seen[pidx] = memoryEntry{location: location, expires: now.Add(d.ttl)}
	if now.After(d.nextGC) {
		for id, e := range d.seen {
			if e.expires.Before(now) {
				delete(d.seen, id)
			}
		}
		d.nextGC = now.Add(d.ttl)
	}
	return nil
}

// NewCallbackDeduper uses Redis when reachable and falls back to memory.
func NewCallbackDeduper(client *redis.Client, ttl time.Duration) (CallbackDeduper, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if client == nil {
		return newMemoryCallbackDeduper(ttl), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return newMemoryCallbackDeduper(ttl), err
	}

	return &redisCallbackDeduper{
		client: client,
		prefix: "khalti:callback",
		ttl:    ttl,
	}, nil
}

// CallbackDedup replays the stored redirect for a pidx that was already
// handled, and stores the redirect of the first handling that settled the
// payment. Pending outcomes are not stored.
func CallbackDedup(deduper CallbackDeduper, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if deduper == nil {
				return next(c)
			}

			pidx := c.QueryParam("pidx")
			if pidx == "" {
				return next(c)
			}

			ctx := c.Request().Context()
			location, ok, err := deduper.Lookup(ctx, pidx)
			if err != nil {
				logger.Warn("Callback dedup lookup failed", zap.String("pidx", pidx), zap.Error(err))
				return next(c)
			}
			if ok {
				logger.Debug("Replaying callback redirect", zap.String("pidx", pidx))
				return c.Redirect(http.StatusFound, location)
			}

			if err := next(c); err != nil {
				return err
			}

			res := c.Response()
			if res.Status == http.StatusFound {
				if loc := res.Header().Get(echo.HeaderLocation); settledRedirect(loc) {
					if err := deduper.Remember(ctx, pidx, loc); err != nil {
						logger.Warn("Callback dedup store failed", zap.String("pidx", pidx), zap.Error(err))
					}
				}
			}
			return nil
		}
	}
}

func settledRedirect(location string) bool {
	if location == "" {
		return false
	}
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	switch returnflow.Parse(u.Query()).Kind {
	case returnflow.KindSuccess, returnflow.KindFailed:
		return true
	}
	return false
}
