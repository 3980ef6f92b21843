package dispatcher

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/fastdata/cepbridge/internal/metrics"
)

// sinkLimiters hands out one token bucket per sink URL.
type sinkLimiters struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newSinkLimiters(perSecond float64, burst int) *sinkLimiters {
	if burst < 1 {
		burst = 1
	}
	return &sinkLimiters{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (s *sinkLimiters) enabled() bool {
	return s != nil && s.limit > 0
}

// wait blocks until url may be sent to, or ctx is done.
func (s *sinkLimiters) wait(ctx context.Context, url string) error {
	if !s.enabled() {
		return nil
	}

	s.mu.Lock()
	l, ok := s.limiters[url]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[url] = l
	}
	s.mu.Unlock()

	if l.Allow() {
		return nil
	}
	metrics.RateLimitWaits.Inc()
	return l.Wait(ctx)
}

// forget drops the limiter for url.
func (s *sinkLimiters) forget(url string) {
	if !s.enabled() {
		return
	}
	s.mu.Lock()
	delete(s.limiters, url)
	s.mu.Unlock()
}
