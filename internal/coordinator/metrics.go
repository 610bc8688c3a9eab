package coordinator

import (
	"sync"
	"time"

	"Friday_1.0/internal/models"
)

// AgentMetrics summarizes the cumulative outcomes of one agent.
type AgentMetrics struct {
	Executions  int64   `json:"executions"`
	Successes   int64   `json:"successes"`
	SuccessRate float64 `json:"successRate"`
}

// Snapshot is a point-in-time view of the coordinator counters.
type Snapshot struct {
	TotalExecutions int64                   `json:"totalExecutions"`
	Succeeded       int64                   `json:"succeeded"`
	Failed          int64                   `json:"failed"`
	InFlight        int64                   `json:"inFlight"`
	FailuresByKind  map[string]int64        `json:"failuresByKind"`
	AvgDurationMs   float64                 `json:"avgDurationMs"`
	TotalTokensUsed int64                   `json:"totalTokensUsed"`
	PerAgent        map[string]AgentMetrics `json:"perAgent"`
}

// Metrics accumulates execution counters for the life of the process.
// The history answers "what ran recently"; this answers "how has it gone
// overall".
type Metrics struct {
	mu            sync.Mutex
	total         int64
	succeeded     int64
	failed        int64
	inFlight      int64
	byKind        map[models.ErrorKind]int64
	totalDuration time.Duration
	totalTokens   int64
	perAgent      map[string]*agentTally
}

type agentTally struct {
	executions int64
	successes  int64
}

// NewMetrics returns an empty counter set.
func NewMetrics() *Metrics {
	return &Metrics{
		byKind:   make(map[models.ErrorKind]int64),
		perAgent: make(map[string]*agentTally),
	}
}

// Observe folds one completed execution into the counters.
func (m *Metrics) Observe(res *models.ExecutionResult) {
	if res == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.totalDuration += res.Metrics.Duration
	m.totalTokens += int64(res.Metrics.TokensUsed)

	if res.Success {
		m.succeeded++
	} else {
		m.failed++
		m.byKind[res.ErrorKind]++
	}

	if res.AgentName == "" {
		return
	}
	tally := m.perAgent[res.AgentName]
	if tally == nil {
		tally = &agentTally{}
		m.perAgent[res.AgentName] = tally
	}
	tally.executions++
	if res.Success {
		tally.successes++
	}
}

func (m *Metrics) enterFlight() {
	m.mu.Lock()
	m.inFlight++
	m.mu.Unlock()
}

func (m *Metrics) exitFlight() {
	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
}

// Snapshot copies the counters into an export-friendly form.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		TotalExecutions: m.total,
		Succeeded:       m.succeeded,
		Failed:          m.failed,
		InFlight:        m.inFlight,
		FailuresByKind:  make(map[string]int64, len(m.byKind)),
		TotalTokensUsed: m.totalTokens,
		PerAgent:        make(map[string]AgentMetrics, len(m.perAgent)),
	}
	for kind, n := range m.byKind {
		s.FailuresByKind[string(kind)] = n
	}
	if m.total > 0 {
		s.AvgDurationMs = float64(m.totalDuration.Milliseconds()) / float64(m.total)
	}
	for name, tally := range m.perAgent {
		am := AgentMetrics{
			Executions: tally.executions,
			Successes:  tally.successes,
		}
		if tally.executions > 0 {
			am.SuccessRate = float64(tally.successes) / float64(tally.executions)
		}
		s.PerAgent[name] = am
	}
	return s
}
