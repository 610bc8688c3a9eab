package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"Friday_1.0/internal/cache"
	"Friday_1.0/internal/config"
	"Friday_1.0/internal/models"
	"Friday_1.0/internal/runtime"
	"Friday_1.0/internal/security"
	"Friday_1.0/pkg/circuitbreaker"
	"Friday_1.0/pkg/logger"
	"Friday_1.0/pkg/ratelimiter"
)

// Coordinator executes agent tasks under a global concurrency ceiling,
// a hard per-task timeout and the security gate. Every submission yields
// exactly one ExecutionResult; failures are classified results, never
// Go errors.
type Coordinator struct {
	runtime  runtime.AgentRuntime
	gate     *security.Gate
	cache    *cache.Cache   // nil disables context caching
	history  *cache.History // nil disables retention
	slots    *semaphore.Weighted
	throttle ratelimiter.RateLimiter       // nil when disabled
	breaker  circuitbreaker.CircuitBreaker // nil when disabled
	timeout  time.Duration
	metrics  *Metrics
	logger   *logger.Logger
}

// NewCoordinator wires the coordinator from configuration. The cache and
// history are optional; the runtime and gate are not.
func NewCoordinator(cfg config.CoordinatorConfig, rt runtime.AgentRuntime, gate *security.Gate, contentCache *cache.Cache, history *cache.History) (*Coordinator, error) {
	if rt == nil {
		return nil, fmt.Errorf("coordinator requires an agent runtime")
	}
	if gate == nil {
		return nil, fmt.Errorf("coordinator requires a security gate")
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	c := &Coordinator{
		runtime: rt,
		gate:    gate,
		cache:   contentCache,
		history: history,
		slots:   semaphore.NewWeighted(int64(maxConcurrent)),
		timeout: cfg.DefaultTaskTimeout(),
		metrics: NewMetrics(),
		logger:  logger.New("Coordinator", ""),
	}

	if cfg.Throttle.Enabled {
		throttle, err := buildThrottle(cfg.Throttle)
		if err != nil {
			return nil, err
		}
		c.throttle = throttle
	}
	if cfg.Breaker.Enabled {
		breaker, err := buildBreaker(cfg.Breaker)
		if err != nil {
			return nil, err
		}
		c.breaker = breaker
	}

	return c, nil
}

// Metrics exposes the cumulative execution counters.
func (c *Coordinator) Metrics() *Metrics {
	return c.metrics
}

// RuntimeName reports which agent runtime backs this coordinator.
func (c *Coordinator) RuntimeName() string {
	return c.runtime.Name()
}

// ExecuteSingle runs one task to completion and returns its result.
// Validation is the only stage that prevents an attempt; everything after
// it produces a classified failure result.
func (c *Coordinator) ExecuteSingle(ctx context.Context, task *models.Task) *models.ExecutionResult {
	executionID := uuid.NewString()
	start := time.Now()

	if err := validateTask(task); err != nil {
		return c.finish(failResult(executionID, agentNameOf(task), start, models.ErrorKindValidation, err))
	}

	log := logger.New("Coordinator", executionID).WithField("agent", task.AgentName)
	log.Info("Task accepted")

	timeout := c.timeout
	if task.Timeout > 0 {
		timeout = task.Timeout
	}

	// Context gathering happens before admission: gate checks and file
	// reads must not hold an execution slot.
	contextText, contextBytes, kind, cerr := c.gatherContext(ctx, task)
	if cerr != nil {
		log.WithError(cerr).Warn("Context stage failed")
		return c.finish(failResult(executionID, task.AgentName, start, kind, cerr))
	}

	if err := c.slots.Acquire(ctx, 1); err != nil {
		return c.finish(failResult(executionID, task.AgentName, start, models.ErrorKindTimeout,
			fmt.Errorf("cancelled while waiting for an execution slot: %w", err)))
	}

	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	c.metrics.enterFlight()
	res, kind, aerr := c.attempt(taskCtx, timeout, task, contextText)
	c.metrics.exitFlight()
	cancel()
	// The slot frees as soon as the attempt settles, even when a
	// timed-out invocation is still unwinding in its goroutine.
	c.slots.Release(1)

	if aerr != nil {
		log.WithError(aerr).Warn("Attempt failed")
		failure := failResult(executionID, task.AgentName, start, kind, aerr)
		failure.Metrics.ContextBytes = contextBytes
		return c.finish(failure)
	}

	output, blocked := c.gate.SanitizeContent(res.Output)
	if len(blocked) > 0 {
		log.WithField("blocked_fragments", len(blocked)).Warn("Agent output required sanitization")
	}

	if task.OutputPath != "" {
		if kind, werr := c.writeOutput(task.OutputPath, output); werr != nil {
			log.WithError(werr).Warn("Output stage failed")
			failure := failResult(executionID, task.AgentName, start, kind, werr)
			failure.Metrics.ContextBytes = contextBytes
			failure.Metrics.TokensUsed = res.TokensUsed
			return c.finish(failure)
		}
	}

	return c.finish(&models.ExecutionResult{
		ID:        executionID,
		AgentName: task.AgentName,
		Success:   true,
		Output:    output,
		Metrics: models.ExecutionMetrics{
			Duration:     time.Since(start),
			TokensUsed:   res.TokensUsed,
			ContextBytes: contextBytes,
		},
		Timestamp: time.Now(),
	})
}

// ExecuteBatch runs tasks concurrently under a batch-local limit in
// addition to the global ceiling. Results keep submission order; a
// failing task never disturbs its siblings.
func (c *Coordinator) ExecuteBatch(ctx context.Context, tasks []*models.Task, limit int) *models.BatchResult {
	start := time.Now()
	batch := &models.BatchResult{
		Total:   len(tasks),
		Results: make([]*models.ExecutionResult, len(tasks)),
	}
	if len(tasks) == 0 {
		batch.Summary = "no tasks submitted"
		return batch
	}

	if limit <= 0 || limit > len(tasks) {
		limit = len(tasks)
	}
	admission := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task *models.Task) {
			defer wg.Done()
			admission <- struct{}{}
			defer func() { <-admission }()
			batch.Results[i] = c.ExecuteSingle(ctx, task)
		}(i, task)
	}
	wg.Wait()

	for _, res := range batch.Results {
		if res.Success {
			batch.Successful++
		} else {
			batch.Failed++
		}
	}
	batch.Duration = time.Since(start)
	batch.Summary = fmt.Sprintf("%d of %d tasks succeeded in %s",
		batch.Successful, batch.Total, batch.Duration.Round(time.Millisecond))
	return batch
}

// attempt runs the throttle wait and the runtime invocation under the
// task budget. The invocation lives in its own goroutine so a hung
// runtime cannot outlive the budget; the buffered channel lets an
// abandoned invocation finish without blocking.
func (c *Coordinator) attempt(ctx context.Context, timeout time.Duration, task *models.Task, contextText string) (*runtime.Result, models.ErrorKind, error) {
	if c.throttle != nil {
		if err := ratelimiter.Wait(ctx, c.throttle); err != nil {
			return nil, models.ErrorKindTimeout, fmt.Errorf("timed out waiting for the runtime throttle: %w", err)
		}
	}

	type outcome struct {
		res *runtime.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := c.invoke(ctx, &runtime.Invocation{
			AgentName: task.AgentName,
			Task:      task.Description,
			Context:   contextText,
		})
		ch <- outcome{res, err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, classifyRuntimeError(out.err), out.err
		}
		return out.res, "", nil
	case <-ctx.Done():
		return nil, models.ErrorKindTimeout, fmt.Errorf("task exceeded its %s budget", timeout)
	}
}

// invoke routes the runtime call through the circuit breaker when one
// is configured.
func (c *Coordinator) invoke(ctx context.Context, inv *runtime.Invocation) (*runtime.Result, error) {
	if c.breaker == nil {
		return c.runtime.Invoke(ctx, inv)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.runtime.Invoke(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return out.(*runtime.Result), nil
}

// gatherContext validates, reads and joins the task's context files.
// Cached content is reused when a file's fingerprint still matches; all
// content passes sanitization before injection.
func (c *Coordinator) gatherContext(ctx context.Context, task *models.Task) (string, int, models.ErrorKind, error) {
	if len(task.ContextPaths) == 0 {
		return "", 0, "", nil
	}

	var sb strings.Builder
	total := 0
	for _, path := range task.ContextPaths {
		decision := c.gate.ValidatePath(path, security.OpRead)
		if !decision.Valid {
			return "", 0, models.ErrorKindSecurity,
				fmt.Errorf("context path %q rejected: %s", path, describeViolations(decision.Violations))
		}

		content, err := c.readContext(ctx, decision.ResolvedPath)
		if err != nil {
			return "", 0, models.ErrorKindIO, fmt.Errorf("read context %q: %w", path, err)
		}
		if mimeType, ok := c.gate.CheckTextFile(decision.ResolvedPath); !ok {
			return "", 0, models.ErrorKindSecurity,
				fmt.Errorf("context path %q is not text content (%s)", path, mimeType)
		}
		total += len(content)

		sanitized, _ := c.gate.SanitizeContent(string(content))
		fmt.Fprintf(&sb, "### %s\n\n%s\n\n", path, sanitized)
	}
	return sb.String(), total, "", nil
}

// readContext serves a context file from the cache when possible and
// refreshes the cache after a direct read. Cache write failures are
// logged, not fatal.
func (c *Coordinator) readContext(ctx context.Context, resolved string) ([]byte, error) {
	if c.cache != nil {
		if content, ok := c.cache.GetContext(ctx, resolved); ok {
			return content, nil
		}
	}
	content, err := os.ReadFile(resolved)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.PutContext(ctx, resolved, content); err != nil {
			c.logger.WithError(err).Warn("Context caching failed")
		}
	}
	return content, nil
}

// writeOutput persists sanitized output behind the same gate as reads.
func (c *Coordinator) writeOutput(path, output string) (models.ErrorKind, error) {
	decision := c.gate.ValidatePath(path, security.OpWrite)
	if !decision.Valid {
		return models.ErrorKindSecurity,
			fmt.Errorf("output path %q rejected: %s", path, describeViolations(decision.Violations))
	}
	if err := os.MkdirAll(filepath.Dir(decision.ResolvedPath), 0o755); err != nil {
		return models.ErrorKindIO, fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(decision.ResolvedPath, []byte(output), 0o644); err != nil {
		return models.ErrorKindIO, fmt.Errorf("write output: %w", err)
	}
	return "", nil
}

// finish records the result in the history and metrics, logs it, and
// hands it back to the caller.
func (c *Coordinator) finish(res *models.ExecutionResult) *models.ExecutionResult {
	if c.history != nil {
		c.history.Record(res)
	}
	c.metrics.Observe(res)

	entry := c.logger.WithPayload(map[string]interface{}{
		"execution_id": res.ID,
		"agent":        res.AgentName,
		"duration":     res.Metrics.Duration.String(),
	})
	if res.Success {
		entry.Info("Task execution successful")
	} else {
		entry.WithField("error_kind", string(res.ErrorKind)).Warn("Task execution failed")
	}
	return res
}

func validateTask(task *models.Task) error {
	if task == nil {
		return fmt.Errorf("task is nil")
	}
	if strings.TrimSpace(task.AgentName) == "" {
		return fmt.Errorf("task is missing an agent name")
	}
	if strings.TrimSpace(task.Description) == "" {
		return fmt.Errorf("task is missing a description")
	}
	if task.Timeout < 0 {
		return fmt.Errorf("task timeout must not be negative")
	}
	return nil
}

func classifyRuntimeError(err error) models.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorKindTimeout
	}
	return models.ErrorKindRuntime
}

func failResult(id, agent string, start time.Time, kind models.ErrorKind, err error) *models.ExecutionResult {
	return &models.ExecutionResult{
		ID:        id,
		AgentName: agent,
		Error:     err.Error(),
		ErrorKind: kind,
		Metrics:   models.ExecutionMetrics{Duration: time.Since(start)},
		Timestamp: time.Now(),
	}
}

func agentNameOf(task *models.Task) string {
	if task == nil {
		return ""
	}
	return task.AgentName
}

func describeViolations(violations []security.Violation) string {
	kinds := make([]string, len(violations))
	for i, v := range violations {
		kinds[i] = string(v.Kind)
	}
	return strings.Join(kinds, ", ")
}

func buildThrottle(cfg config.RateLimiterConfig) (ratelimiter.RateLimiter, error) {
	switch cfg.Algorithm {
	case "tokenBucket":
		return ratelimiter.NewTokenBucket(cfg.TokenBucket.Rate, cfg.TokenBucket.Capacity), nil
	case "leakyBucket":
		return ratelimiter.NewLeakyBucket(cfg.LeakyBucket.Rate, cfg.LeakyBucket.Capacity), nil
	default:
		return nil, fmt.Errorf("unknown throttle algorithm: %s", cfg.Algorithm)
	}
}

func buildBreaker(cfg config.CircuitBreakerConfig) (circuitbreaker.CircuitBreaker, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid breaker timeout: %w", err)
	}
	return circuitbreaker.New(cfg.FailureThreshold, cfg.SuccessThreshold, timeout), nil
}
