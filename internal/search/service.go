package search

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coderomm/Xolana/internal/cacheutil"
	"github.com/coderomm/Xolana/internal/circuitbreaker"
	"github.com/coderomm/Xolana/internal/config"
	"github.com/coderomm/Xolana/internal/httputil"
	"github.com/coderomm/Xolana/internal/metrics"
)

// ErrUpstream is returned when the search upstream cannot serve the query.
var ErrUpstream = errors.New("search: upstream request failed")

const maxUpstreamResponseBytes = 4 * 1024 * 1024

// Service relays token search queries to the configured upstream. The request
// body is forwarded verbatim and the response JSON is passed through, with a
// short response cache keyed on the query body.
type Service struct {
	upstreamURL string
	cacheTTL    time.Duration
	httpClient  *http.Client
	breakers    *circuitbreaker.Manager
	metrics     *metrics.Metrics

	mu    sync.RWMutex
	cache map[string]cacheutil.CachedValue[[]byte]
}

// Option customizes the search service.
type Option func(*Service)

// WithBreakers sets the circuit breaker manager for upstream calls.
func WithBreakers(m *circuitbreaker.Manager) Option {
	return func(s *Service) {
		s.breakers = m
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService constructs the search relay.
func NewService(cfg config.SearchConfig, opts ...Option) *Service {
	s := &Service{
		upstreamURL: cfg.UpstreamURL,
		cacheTTL:    cfg.CacheTTL.Duration,
		httpClient:  httputil.NewClient(15 * time.Second),
		cache:       make(map[string]cacheutil.CachedValue[[]byte]),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Relay forwards the raw query body upstream and returns the response body.
func (s *Service) Relay(ctx context.Context, body []byte) ([]byte, error) {
	start := time.Now()
	response, err := s.relay(ctx, body)

	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "upstream_error"
		}
		s.metrics.ObserveSearch(status, time.Since(start))
	}
	return response, err
}

func (s *Service) relay(ctx context.Context, body []byte) ([]byte, error) {
	if s.cacheTTL <= 0 {
		return s.query(ctx, body)
	}

	key := cacheKey(body)
	return cacheutil.ReadThrough(
		&s.mu,
		func(now time.Time) ([]byte, bool) {
			if entry, ok := s.cache[key]; ok && now.Sub(entry.FetchedAt) < s.cacheTTL {
				return entry.Value, true
			}
			return nil, false
		},
		func(now time.Time) ([]byte, error) {
			response, err := s.query(ctx, body)
			if err != nil {
				return nil, err
			}
			s.cache[key] = cacheutil.CachedValue[[]byte]{Value: response, FetchedAt: now}
			s.evictExpired(now)
			return response, nil
		},
	)
}

// query performs the upstream round trip, through the circuit breaker when
// one is configured.
func (s *Service) query(ctx context.Context, body []byte) ([]byte, error) {
	call := func() (interface{}, error) {
		response, err := s.callUpstream(ctx, body)
		return response, err
	}

	var result interface{}
	var err error
	if s.breakers != nil {
		result, err = s.breakers.Execute(circuitbreaker.ServiceSearch, call)
	} else {
		result, err = call()
	}
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (s *Service) callUpstream(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.upstreamURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	response, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	return response, nil
}

// evictExpired drops stale cache entries. Caller must hold the write lock.
func (s *Service) evictExpired(now time.Time) {
	for key, entry := range s.cache {
		if now.Sub(entry.FetchedAt) >= s.cacheTTL {
			delete(s.cache, key)
		}
	}
}

func cacheKey(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
