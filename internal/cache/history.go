package cache

import (
	"time"

	"Friday_1.0/internal/config"
	"Friday_1.0/internal/models"
	"Friday_1.0/pkg/util"
)

const (
	defaultPressureThreshold = 0.9
	defaultPressureFraction  = 0.25
)

// AgentStats aggregates the retained executions of a single agent.
type AgentStats struct {
	Executions  int           `json:"executions"`
	Successes   int           `json:"successes"`
	SuccessRate float64       `json:"successRate"`
	AvgDuration time.Duration `json:"avgDuration"`
	TokensUsed  int           `json:"tokensUsed"`
}

// History retains recent execution results under count and byte ceilings.
// When usage crosses the pressure threshold, a fraction of the oldest
// entries is dropped in one batch instead of one-by-one on every insert.
type History struct {
	lru       *util.LRUCache[string, *models.ExecutionResult]
	maxBytes  int
	threshold float64
	fraction  float64
}

// NewHistory builds the bounded execution history from configuration.
func NewHistory(cfg config.HistoryConfig) (*History, error) {
	lru, err := util.NewWithConfig(util.CacheConfig[string, *models.ExecutionResult]{
		Capacity:  cfg.MaxEntries,
		MaxWeight: cfg.MaxBytes,
	})
	if err != nil {
		return nil, err
	}

	threshold := cfg.PressureThreshold
	if threshold <= 0 {
		threshold = defaultPressureThreshold
	}
	fraction := cfg.PressureFraction
	if fraction <= 0 {
		fraction = defaultPressureFraction
	}

	return &History{
		lru:       lru,
		maxBytes:  cfg.MaxBytes,
		threshold: threshold,
		fraction:  fraction,
	}, nil
}

// Record retains a completed execution. The ceilings may evict the
// oldest retained results to make room.
func (h *History) Record(res *models.ExecutionResult) {
	if res == nil || res.ID == "" {
		return
	}
	h.lru.Put(res.ID, res, res.SizeBytes())
}

// Get returns a retained result by execution ID without disturbing
// retention order.
func (h *History) Get(id string) (*models.ExecutionResult, bool) {
	return h.lru.Peek(id)
}

// Recent returns up to n retained results, newest first. n <= 0 returns
// everything retained.
func (h *History) Recent(n int) []*models.ExecutionResult {
	keys := h.lru.Keys()
	if n > 0 && n < len(keys) {
		keys = keys[:n]
	}
	out := make([]*models.ExecutionResult, 0, len(keys))
	for _, key := range keys {
		if res, ok := h.lru.Peek(key); ok {
			out = append(out, res)
		}
	}
	return out
}

// Len returns the number of retained results.
func (h *History) Len() int {
	return h.lru.Len()
}

// SizeBytes returns the approximate retained payload size.
func (h *History) SizeBytes() int {
	return h.lru.Weight()
}

// ApplyPressure drops the oldest fraction of retained results when byte
// usage has crossed the pressure threshold. It returns how many entries
// were dropped.
func (h *History) ApplyPressure() int {
	if h.maxBytes <= 0 {
		return 0
	}
	if float64(h.lru.Weight()) < h.threshold*float64(h.maxBytes) {
		return 0
	}
	return h.lru.EvictOldestFraction(h.fraction)
}

// PerAgent computes per-agent success and cost statistics over the
// currently retained results.
func (h *History) PerAgent() map[string]AgentStats {
	totals := make(map[string]AgentStats)
	durations := make(map[string]time.Duration)

	for _, key := range h.lru.Keys() {
		res, ok := h.lru.Peek(key)
		if !ok {
			continue
		}
		s := totals[res.AgentName]
		s.Executions++
		if res.Success {
			s.Successes++
		}
		s.TokensUsed += res.Metrics.TokensUsed
		durations[res.AgentName] += res.Metrics.Duration
		totals[res.AgentName] = s
	}

	for name, s := range totals {
		if s.Executions > 0 {
			s.SuccessRate = float64(s.Successes) / float64(s.Executions)
			s.AvgDuration = durations[name] / time.Duration(s.Executions)
		}
		totals[name] = s
	}
	return totals
}
