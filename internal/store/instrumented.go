package store

import (
	"context"
	"time"

	"github.com/sealbox/sealbox/pkg/metrics"
)

// instrumentedStore wraps a Store and records operation latency and failures.
type instrumentedStore struct {
	inner Store
	m     *metrics.Metrics
}

// instrumentedAtomicStore adds the GetDelete passthrough for backends that
// can consume a key atomically.
type instrumentedAtomicStore struct {
	instrumentedStore
	atomic AtomicStore
}

// WithMetrics wraps s so that every operation is observed in m. The returned
// store satisfies AtomicStore only when s itself does; the wrapper never
// fabricates an atomic read-and-delete the backend cannot provide.
func WithMetrics(s Store, m *metrics.Metrics) Store {
	base := instrumentedStore{inner: s, m: m}
	if atomic, ok := s.(AtomicStore); ok {
		return &instrumentedAtomicStore{instrumentedStore: base, atomic: atomic}
	}
	return &base
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	s.m.StoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil && !IsNotFound(err) {
		s.m.StoreErrors.WithLabelValues(op).Inc()
	}
}

func (s *instrumentedStore) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := s.inner.Set(ctx, key, value)
	s.observe("set", start, err)
	return err
}

func (s *instrumentedStore) Get(ctx context.Context, key string) (string, error) {
	start := time.Now()
	value, err := s.inner.Get(ctx, key)
	s.observe("get", start, err)
	return value, err
}

func (s *instrumentedStore) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := s.inner.Exists(ctx, key)
	s.observe("exists", start, err)
	return ok, err
}

func (s *instrumentedStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}

func (s *instrumentedStore) Close() error {
	return s.inner.Close()
}

func (s *instrumentedAtomicStore) GetDelete(ctx context.Context, key string) (string, error) {
	start := time.Now()
	value, err := s.atomic.GetDelete(ctx, key)
	s.observe("get_delete", start, err)
	return value, err
}
