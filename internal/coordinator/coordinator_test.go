package coordinator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"Friday_1.0/internal/cache"
	"Friday_1.0/internal/config"
	"Friday_1.0/internal/models"
	"Friday_1.0/internal/runtime"
	"Friday_1.0/internal/security"
)

type testEnv struct {
	dir     string
	rt      *runtime.Scripted
	coord   *Coordinator
	cache   *cache.Cache
	history *cache.History
}

func newTestEnv(t *testing.T, cfg config.CoordinatorConfig) *testEnv {
	t.Helper()

	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}

	gate, err := security.NewGate(config.SecurityConfig{
		AllowedDirs:    []string{dir},
		MaxAuditEvents: 100,
	})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	contentCache, err := cache.New(config.CacheConfig{MaxEntries: 16}, nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	history, err := cache.NewHistory(config.HistoryConfig{MaxEntries: 100})
	if err != nil {
		t.Fatalf("NewHistory: %v", err)
	}

	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.DefaultTimeout == "" {
		cfg.DefaultTimeout = "2s"
	}

	rt := runtime.NewScripted()
	coord, err := NewCoordinator(cfg, rt, gate, contentCache, history)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}

	return &testEnv{dir: dir, rt: rt, coord: coord, cache: contentCache, history: history}
}

func (e *testEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestExecuteSingleSuccess(t *testing.T) {
	env := newTestEnv(t, config.CoordinatorConfig{})
	env.rt.SetScript("writer", runtime.Script{Output: "the chapter", TokensUsed: 7})
	ctxFile := env.writeFile(t, "notes.md", "plot notes")
	outFile := filepath.Join(env.dir, "out", "chapter.md")

	res := env.coord.ExecuteSingle(context.Background(), &models.Task{
		AgentName:    "writer",
		Description:  "write the chapter",
		ContextPaths: []string{ctxFile},
		OutputPath:   outFile,
	})

	if !res.Success {
		t.Fatalf("expected success, got %s: %s", res.ErrorKind, res.Error)
	}
	if res.Output != "the chapter" {
		t.Errorf("Output = %q", res.Output)
	}
	if res.Metrics.TokensUsed != 7 {
		t.Errorf("TokensUsed = %d, want 7", res.Metrics.TokensUsed)
	}
	if res.Metrics.ContextBytes != len("plot notes") {
		t.Errorf("ContextBytes = %d, want %d", res.Metrics.ContextBytes, len("plot notes"))
	}

	written, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("output file not written: %v", err)
	}
	if string(written) != "the chapter" {
		t.Errorf("written output = %q", written)
	}

	if _, ok := env.history.Get(res.ID); !ok {
		t.Error("result missing from history")
	}
	snap := env.coord.Metrics().Snapshot()
	if snap.TotalExecutions != 1 || snap.Succeeded != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestExecuteSingleValidation(t *testing.T) {
	env := newTestEnv(t, config.CoordinatorConfig{})

	cases := []*models.Task{
		nil,
		{Description: "no agent"},
		{AgentName: "writer"},
		{AgentName: "writer", Description: "x", Timeout: -time.Second},
	}
	for i, task := range cases {
		res := env.coord.ExecuteSingle(context.Background(), task)
		if res.Success {
			t.Fatalf("case %d: expected failure", i)
		}
		if res.ErrorKind != models.ErrorKindValidation {
			t.Errorf("case %d: ErrorKind = %s, want validation_error", i, res.ErrorKind)
		}
		if res.ID == "" {
			t.Errorf("case %d: result has no id", i)
		}
	}

	// Validation failures must never reach the runtime.
	if n := env.rt.Calls("writer"); n != 0 {
		t.Errorf("runtime called %d times for invalid tasks", n)
	}
}

func TestExecuteSingleSecurityViolation(t *testing.T) {
	env := newTestEnv(t, config.CoordinatorConfig{})
	env.rt.SetScript("reader", runtime.Script{Output: "ok"})

	res := env.coord.ExecuteSingle(context.Background(), &models.Task{
		AgentName:    "reader",
		Description:  "summarize",
		ContextPaths: []string{"../../etc/passwd"},
	})

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorKind != models.ErrorKindSecurity {
		t.Errorf("ErrorKind = %s, want security_violation", res.ErrorKind)
	}
	if !strings.Contains(res.Error, string(security.ViolationTraversal)) {
		t.Errorf("error %q does not name the violation", res.Error)
	}
	// A rejected path must not reach the runtime.
	if n := env.rt.Calls("reader"); n != 0 {
		t.Errorf("runtime called %d times after a gate rejection", n)
	}
}

func TestExecuteSingleIOError(t *testing.T) {
	env := newTestEnv(t, config.CoordinatorConfig{})
	env.rt.SetScript("reader", runtime.Script{Output: "ok"})

	res := env.coord.ExecuteSingle(context.Background(), &models.Task{
		AgentName:    "reader",
		Description:  "summarize",
		ContextPaths: []string{filepath.Join(env.dir, "missing.md")},
	})

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorKind != models.ErrorKindIO {
		t.Errorf("ErrorKind = %s, want io_error", res.ErrorKind)
	}
}

func TestExecuteSingleBinaryContext(t *testing.T) {
	env := newTestEnv(t, config.CoordinatorConfig{})
	env.rt.SetScript("reader", runtime.Script{Output: "ok"})

	imagePath := filepath.Join(env.dir, "chart.png")
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d}
	if err := os.WriteFile(imagePath, png, 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	res := env.coord.ExecuteSingle(context.Background(), &models.Task{
		AgentName:    "reader",
		Description:  "describe the chart",
		ContextPaths: []string{imagePath},
	})

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorKind != models.ErrorKindSecurity {
		t.Errorf("ErrorKind = %s, want security_violation", res.ErrorKind)
	}
	if !strings.Contains(res.Error, "not text content") {
		t.Errorf("error %q does not name the binary rejection", res.Error)
	}
	if env.rt.Calls("reader") != 0 {
		t.Errorf("runtime invoked %d times, want 0", env.rt.Calls("reader"))
	}
}

func TestExecuteSingleRuntimeError(t *testing.T) {
	env := newTestEnv(t, config.CoordinatorConfig{})
	env.rt.SetScript("flaky", runtime.Script{Err: errors.New("model exploded")})

	res := env.coord.ExecuteSingle(context.Background(), &models.Task{
		AgentName:   "flaky",
		Description: "anything",
	})

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorKind != models.ErrorKindRuntime {
		t.Errorf("ErrorKind = %s, want runtime_error", res.ErrorKind)
	}
	if !strings.Contains(res.Error, "model exploded") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestExecuteSingleTimeout(t *testing.T) {
	env := newTestEnv(t, config.CoordinatorConfig{MaxConcurrent: 1})
	env.rt.SetScript("slow", runtime.Script{Output: "late", Delay: 500 * time.Millisecond})
	env.rt.SetScript("quick", runtime.Script{Output: "fast"})

	start := time.Now()
	res := env.coord.ExecuteSingle(context.Background(), &models.Task{
		AgentName:   "slow",
		Description: "takes too long",
		Timeout:     40 * time.Millisecond,
	})
	if res.Success {
		t.Fatal("expected a timeout failure")
	}
	if res.ErrorKind != models.ErrorKindTimeout {
		t.Errorf("ErrorKind = %s, want timeout", res.ErrorKind)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("timeout not enforced promptly: took %s", elapsed)
	}

	// The slot must be free again even though the slow invocation may
	// still be unwinding.
	quick := env.coord.ExecuteSingle(context.Background(), &models.Task{
		AgentName:   "quick",
		Description: "runs right after",
	})
	if !quick.Success {
		t.Fatalf("follow-up task failed: %s", quick.Error)
	}
}

func TestExecuteSingleSanitizesOutput(t *testing.T) {
	env := newTestEnv(t, config.CoordinatorConfig{})
	env.rt.SetScript("writer", runtime.Script{Output: `before<script>alert(1)</script>after`})
	outFile := filepath.Join(env.dir, "clean.md")

	res := env.coord.ExecuteSingle(context.Background(), &models.Task{
		AgentName:   "writer",
		Description: "write",
		OutputPath:  outFile,
	})

	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Error)
	}
	if strings.Contains(res.Output, "alert(1)") {
		t.Errorf("output still contains the script payload: %q", res.Output)
	}
	if !strings.Contains(res.Output, "[blocked:") {
		t.Errorf("output has no visible placeholder: %q", res.Output)
	}

	written, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(written), "alert(1)") {
		t.Error("persisted output was not sanitized")
	}
}

func TestExecuteSingleOutputPathRejected(t *testing.T) {
	env := newTestEnv(t, config.CoordinatorConfig{})
	env.rt.SetScript("writer", runtime.Script{Output: "content"})

	res := env.coord.ExecuteSingle(context.Background(), &models.Task{
		AgentName:   "writer",
		Description: "write",
		OutputPath:  "/somewhere/else/out.md",
	})

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorKind != models.ErrorKindSecurity {
		t.Errorf("ErrorKind = %s, want security_violation", res.ErrorKind)
	}
}

func TestExecuteSingleReusesCachedContext(t *testing.T) {
	env := newTestEnv(t, config.CoordinatorConfig{})
	env.rt.SetScript("reader", runtime.Script{Output: "ok"})
	ctxFile := env.writeFile(t, "shared.md", "shared context")

	task := &models.Task{AgentName: "reader", Description: "read", ContextPaths: []string{ctxFile}}
	for i := 0; i < 2; i++ {
		if res := env.coord.ExecuteSingle(context.Background(), task); !res.Success {
			t.Fatalf("run %d failed: %s", i, res.Error)
		}
	}

	stats := env.cache.Stats(context.Background())
	if stats.Hits < 1 {
		t.Errorf("cache Hits = %d, want at least 1 on the second run", stats.Hits)
	}
}

func TestExecuteBatchOrderAndIsolation(t *testing.T) {
	env := newTestEnv(t, config.CoordinatorConfig{})
	env.rt.SetScript("ok", runtime.Script{Output: "fine"})
	env.rt.SetScript("bad", runtime.Script{Err: errors.New("boom")})

	tasks := []*models.Task{
		{AgentName: "ok", Description: "first"},
		{AgentName: "bad", Description: "second"},
		{AgentName: "ok", Description: "third"},
	}
	batch := env.coord.ExecuteBatch(context.Background(), tasks, 0)

	if batch.Total != 3 || batch.Successful != 2 || batch.Failed != 1 {
		t.Fatalf("batch tally = %d/%d/%d", batch.Total, batch.Successful, batch.Failed)
	}
	if len(batch.Results) != 3 {
		t.Fatalf("Results length = %d", len(batch.Results))
	}
	if batch.Results[0].AgentName != "ok" || batch.Results[1].AgentName != "bad" || batch.Results[2].AgentName != "ok" {
		t.Error("results are not in submission order")
	}
	if batch.Results[1].Success {
		t.Error("failing task reported success")
	}
	if !batch.Results[0].Success || !batch.Results[2].Success {
		t.Error("sibling tasks were disturbed by the failure")
	}
	if !strings.Contains(batch.Summary, "2 of 3") {
		t.Errorf("Summary = %q", batch.Summary)
	}
}

func TestExecuteBatchRespectsGlobalCeiling(t *testing.T) {
	env := newTestEnv(t, config.CoordinatorConfig{MaxConcurrent: 2})
	env.rt.SetScript("worker", runtime.Script{Output: "done", Delay: 40 * time.Millisecond})

	tasks := make([]*models.Task, 6)
	for i := range tasks {
		tasks[i] = &models.Task{AgentName: "worker", Description: "chunk"}
	}
	batch := env.coord.ExecuteBatch(context.Background(), tasks, 0)

	if batch.Successful != 6 {
		t.Fatalf("Successful = %d, want 6", batch.Successful)
	}
	if hw := env.rt.InFlightHighWater(); hw > 2 {
		t.Errorf("high water = %d, want at most 2", hw)
	}
}

func TestExecuteBatchLocalLimit(t *testing.T) {
	env := newTestEnv(t, config.CoordinatorConfig{MaxConcurrent: 8})
	env.rt.SetScript("worker", runtime.Script{Output: "done", Delay: 30 * time.Millisecond})

	tasks := make([]*models.Task, 4)
	for i := range tasks {
		tasks[i] = &models.Task{AgentName: "worker", Description: "chunk"}
	}
	batch := env.coord.ExecuteBatch(context.Background(), tasks, 1)

	if batch.Successful != 4 {
		t.Fatalf("Successful = %d, want 4", batch.Successful)
	}
	if hw := env.rt.InFlightHighWater(); hw > 1 {
		t.Errorf("high water = %d, want 1 with a batch limit of 1", hw)
	}
}

func TestExecuteBatchEmpty(t *testing.T) {
	env := newTestEnv(t, config.CoordinatorConfig{})

	batch := env.coord.ExecuteBatch(context.Background(), nil, 0)
	if batch.Total != 0 || len(batch.Results) != 0 {
		t.Errorf("batch = %+v", batch)
	}
}

func TestBreakerShieldsRuntime(t *testing.T) {
	env := newTestEnv(t, config.CoordinatorConfig{
		Breaker: config.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 2,
			SuccessThreshold: 1,
			Timeout:          "1m",
		},
	})
	env.rt.SetScript("flaky", runtime.Script{Err: errors.New("down")})

	task := &models.Task{AgentName: "flaky", Description: "x"}
	for i := 0; i < 3; i++ {
		res := env.coord.ExecuteSingle(context.Background(), task)
		if res.Success {
			t.Fatalf("run %d unexpectedly succeeded", i)
		}
		if res.ErrorKind != models.ErrorKindRuntime {
			t.Errorf("run %d: ErrorKind = %s", i, res.ErrorKind)
		}
	}

	// Two failures trip the breaker; the third task is rejected without
	// touching the runtime.
	if n := env.rt.Calls("flaky"); n != 2 {
		t.Errorf("runtime called %d times, want 2", n)
	}
}

func TestNewCoordinatorRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	gate, err := security.NewGate(config.SecurityConfig{AllowedDirs: []string{dir}})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	rt := runtime.NewScripted()

	_, err = NewCoordinator(config.CoordinatorConfig{
		Throttle: config.RateLimiterConfig{Enabled: true, Algorithm: "bogus"},
	}, rt, gate, nil, nil)
	if err == nil {
		t.Error("expected an error for an unknown throttle algorithm")
	}

	_, err = NewCoordinator(config.CoordinatorConfig{
		Breaker: config.CircuitBreakerConfig{Enabled: true, Timeout: "soon"},
	}, rt, gate, nil, nil)
	if err == nil {
		t.Error("expected an error for an unparseable breaker timeout")
	}

	if _, err := NewCoordinator(config.CoordinatorConfig{}, nil, gate, nil, nil); err == nil {
		t.Error("expected an error for a missing runtime")
	}
	if _, err := NewCoordinator(config.CoordinatorConfig{}, rt, nil, nil, nil); err == nil {
		t.Error("expected an error for a missing gate")
	}
}

func TestMetricsSnapshot(t *testing.T) {
	env := newTestEnv(t, config.CoordinatorConfig{})
	env.rt.SetScript("ok", runtime.Script{Output: "fine", TokensUsed: 5})
	env.rt.SetScript("bad", runtime.Script{Err: errors.New("boom")})

	env.coord.ExecuteSingle(context.Background(), &models.Task{AgentName: "ok", Description: "a"})
	env.coord.ExecuteSingle(context.Background(), &models.Task{AgentName: "ok", Description: "b"})
	env.coord.ExecuteSingle(context.Background(), &models.Task{AgentName: "bad", Description: "c"})

	snap := env.coord.Metrics().Snapshot()
	if snap.TotalExecutions != 3 || snap.Succeeded != 2 || snap.Failed != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.FailuresByKind[string(models.ErrorKindRuntime)] != 1 {
		t.Errorf("FailuresByKind = %v", snap.FailuresByKind)
	}
	if snap.TotalTokensUsed != 10 {
		t.Errorf("TotalTokensUsed = %d, want 10", snap.TotalTokensUsed)
	}
	ok := snap.PerAgent["ok"]
	if ok.Executions != 2 || ok.SuccessRate != 1.0 {
		t.Errorf("PerAgent[ok] = %+v", ok)
	}
	bad := snap.PerAgent["bad"]
	if bad.Executions != 1 || bad.SuccessRate != 0 {
		t.Errorf("PerAgent[bad] = %+v", bad)
	}
	if snap.InFlight != 0 {
		t.Errorf("InFlight = %d after all tasks settled", snap.InFlight)
	}
}
