package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Script fixes the behavior of one agent under the scripted runtime.
type Script struct {
	Output     string
	TokensUsed int
	Delay      time.Duration // simulated work before responding
	Err        error         // returned instead of a result when set
}

// Scripted is an offline runtime with fixed per-agent behavior. It backs
// tests and dry runs where no model should be called. Agents without a
// script echo their task.
type Scripted struct {
	mu        sync.Mutex
	scripts   map[string]Script
	calls     map[string]int
	inFlight  int
	highWater int
}

// NewScripted 创建一个离线的确定性运行时。
func NewScripted() *Scripted {
	return &Scripted{
		scripts: make(map[string]Script),
		calls:   make(map[string]int),
	}
}

// SetScript fixes the behavior for one agent name.
func (s *Scripted) SetScript(agent string, script Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[agent] = script
}

// Calls reports how many invocations an agent has received.
func (s *Scripted) Calls(agent string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[agent]
}

// InFlightHighWater reports the most invocations ever active at once.
func (s *Scripted) InFlightHighWater() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highWater
}

// Name 返回运行时标识。
func (s *Scripted) Name() string {
	return "scripted"
}

// Invoke 按预设脚本执行一次 Agent 调用。
func (s *Scripted) Invoke(ctx context.Context, inv *Invocation) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	script, ok := s.scripts[inv.AgentName]
	s.calls[inv.AgentName]++
	s.inFlight++
	if s.inFlight > s.highWater {
		s.highWater = s.inFlight
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if script.Delay > 0 {
		select {
		case <-time.After(script.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if !ok {
		return &Result{
			Output:     fmt.Sprintf("[%s] %s", inv.AgentName, inv.Task),
			TokensUsed: (len(inv.Task) + len(inv.Context)) / 4,
		}, nil
	}
	if script.Err != nil {
		return nil, script.Err
	}
	return &Result{Output: script.Output, TokensUsed: script.TokensUsed}, nil
}
