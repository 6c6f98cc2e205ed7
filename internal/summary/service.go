// Package summary fetches the read-only aggregates served by the API.
// Responses are cached for a short TTL and concurrent fetches of the same
// aggregate share one request.
package summary

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"domu/internal/cache"
	"domu/internal/core"
	"domu/internal/log"
)

const (
	HomePath     = "homepage-summary/"
	ExpensesPath = "expenses/summary/"
)

// Requester performs API calls. *api.Client implements it.
type Requester interface {
	Do(ctx context.Context, method, path string, body, out any, expect ...int) (int, error)
}

type Service struct {
	client Requester
	logger *log.Logger
	group  singleflight.Group

	home   *cache.LRUCache[core.HomeSummary]
	series *cache.LRUCache[core.ExpenseSeries]
}

// New builds a service caching responses for ttl. A zero ttl disables
// caching.
func New(client Requester, ttl time.Duration, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	s := &Service{
		client: client,
		logger: logger.WithComponent(log.ComponentSummary),
	}
	if ttl > 0 {
		s.home = cache.NewLRUCache[core.HomeSummary](1, ttl)
		s.series = cache.NewLRUCache[core.ExpenseSeries](1, ttl)
	}
	return s
}

// Register hands the service caches to j for periodic cleanup.
func (s *Service) Register(j *cache.Janitor) {
	if s.home != nil {
		j.Register(s.home)
		j.Register(s.series)
	}
}

// Home returns the dashboard numbers of homepage-summary/. A rejected
// credential surfaces as an AuthExpired *api.Error.
func (s *Service) Home(ctx context.Context) (core.HomeSummary, error) {
	return fetch(ctx, s, s.home, HomePath)
}

// Expenses returns the aggregated expense series of expenses/summary/.
func (s *Service) Expenses(ctx context.Context) (core.ExpenseSeries, error) {
	return fetch(ctx, s, s.series, ExpensesPath)
}

// Invalidate drops cached aggregates, e.g. after the expense collection
// changed or the session ended.
func (s *Service) Invalidate() {
	if s.home != nil {
		s.home.Purge()
		s.series.Purge()
	}
}

func fetch[T any](ctx context.Context, s *Service, c *cache.LRUCache[T], path string) (T, error) {
	if c != nil {
		if v, ok := c.Get(path); ok {
			s.logger.DebugContext(ctx, "Summary served from cache", log.FieldPath, path)
			return v, nil
		}
	}

	v, err, shared := s.group.Do(path, func() (any, error) {
		var out T
		if _, err := s.client.Do(ctx, http.MethodGet, path, nil, &out, http.StatusOK); err != nil {
			return out, err
		}
		if c != nil {
			c.Set(path, out)
		}
		return out, nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Summary fetch failed", log.FieldPath, path, log.FieldError, err)
		var zero T
		return zero, err
	}
	if shared {
		s.logger.DebugContext(ctx, "Summary request shared", log.FieldPath, path)
	}
	return v.(T), nil
}
