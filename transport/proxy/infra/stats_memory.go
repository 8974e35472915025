package infra

import (
	"context"
	"sync"

	"proxy-transport/transport/proxy/domain"
)

// Counters agrega resultados por tipo.
type Counters map[string]int64

func (c Counters) clone() Counters {
	out := make(Counters, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byTarget map[string]Counters
	byStatus map[int]int64

	trackTargets bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackTargets(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackTargets = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		total:    make(Counters),
		byTarget: make(map[string]Counters),
		byStatus: make(map[int]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.Result]++
	if ev.StatusCode > 0 {
		s.byStatus[ev.StatusCode]++
	}
	if s.trackTargets && ev.Target != "" {
		c := s.byTarget[ev.Target]
		if c == nil {
			c = make(Counters)
			s.byTarget[ev.Target] = c
		}
		c[ev.Result]++
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total.clone()
}

func (s *MemoryStatsStore) ByTarget() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byTarget))
	for k, v := range s.byTarget {
		out[k] = v.clone()
	}
	return out
}

func (s *MemoryStatsStore) ByStatus() map[int]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]int64, len(s.byStatus))
	for k, v := range s.byStatus {
		out[k] = v
	}
	return out
}
