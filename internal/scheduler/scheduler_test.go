package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"Friday_1.0/internal/cache"
	"Friday_1.0/internal/config"
	"Friday_1.0/internal/coordinator"
	"Friday_1.0/internal/models"
	"Friday_1.0/internal/runtime"
	"Friday_1.0/internal/security"
)

// fakeExecutor settles every task immediately and records what it saw.
type fakeExecutor struct {
	batches [][]*models.Task
	limits  []int
	fail    map[string]string // agent name -> error message
}

func (f *fakeExecutor) ExecuteBatch(_ context.Context, tasks []*models.Task, limit int) *models.BatchResult {
	f.batches = append(f.batches, tasks)
	f.limits = append(f.limits, limit)

	batch := &models.BatchResult{
		Total:   len(tasks),
		Results: make([]*models.ExecutionResult, len(tasks)),
	}
	for i, task := range tasks {
		res := &models.ExecutionResult{
			ID:        fmt.Sprintf("exec-%d-%d", len(f.batches), i),
			AgentName: task.AgentName,
			Timestamp: time.Now(),
		}
		if msg, bad := f.fail[task.AgentName]; bad {
			res.Error = msg
			res.ErrorKind = models.ErrorKindRuntime
			batch.Failed++
		} else {
			res.Success = true
			res.Output = "done: " + task.Description
			batch.Successful++
		}
		batch.Results[i] = res
	}
	return batch
}

func TestExecuteRecipeHappyPath(t *testing.T) {
	fake := &fakeExecutor{}
	s := NewScheduler(fake)

	recipe := &models.Recipe{
		Name: "article",
		Variables: map[string]models.VariableDef{
			"topic": {Type: models.VariableTypeString, Default: "caching"},
		},
		Steps: []models.Step{
			{ID: "draft", AgentName: "writer", TaskTemplate: "draft an article about {{topic}}"},
			{ID: "review", AgentName: "reviewer", TaskTemplate: "review the draft", DependsOn: []string{"draft"}},
			{ID: "publish", AgentName: "publisher", TaskTemplate: "publish it", DependsOn: []string{"review"}},
		},
	}

	result, err := s.ExecuteRecipe(context.Background(), recipe, Options{})
	if err != nil {
		t.Fatalf("ExecuteRecipe: %v", err)
	}

	if !result.Success {
		t.Fatalf("run failed: %v", result.Errors)
	}
	if result.StepsCompleted != 3 || result.StepsTotal != 3 {
		t.Errorf("steps = %d/%d, want 3/3", result.StepsCompleted, result.StepsTotal)
	}
	if len(fake.batches) != 3 {
		t.Fatalf("executor saw %d batches, want 3", len(fake.batches))
	}
	if got := fake.batches[0][0].Description; got != "draft an article about caching" {
		t.Errorf("rendered description = %q", got)
	}
	if _, ok := result.Results["draft"]; !ok {
		t.Error("Results is missing the draft step")
	}
	if !strings.Contains(result.Summary, "3 of 3") {
		t.Errorf("Summary = %q", result.Summary)
	}
	if result.RunID == "" {
		t.Error("RunID is empty")
	}
}

func TestExecuteRecipeFailedDependencyDoesNotBlock(t *testing.T) {
	fake := &fakeExecutor{fail: map[string]string{"writer": "model unavailable"}}
	s := NewScheduler(fake)

	recipe := &models.Recipe{
		Name: "resilient",
		Steps: []models.Step{
			{ID: "draft", AgentName: "writer", TaskTemplate: "draft"},
			{ID: "review", AgentName: "reviewer", TaskTemplate: "review", DependsOn: []string{"draft"}},
		},
	}

	result, err := s.ExecuteRecipe(context.Background(), recipe, Options{})
	if err != nil {
		t.Fatalf("ExecuteRecipe: %v", err)
	}

	if result.Success {
		t.Error("run should be marked failed")
	}
	if result.StepsCompleted != 2 {
		t.Errorf("StepsCompleted = %d, want 2: the dependent must still run", result.StepsCompleted)
	}
	review, ok := result.Results["review"]
	if !ok || !review.Success {
		t.Error("dependent step did not run to success after its dependency failed")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "draft") {
		t.Errorf("Errors = %v", result.Errors)
	}
}

func TestExecuteRecipePreflightErrors(t *testing.T) {
	fake := &fakeExecutor{}
	s := NewScheduler(fake)
	ctx := context.Background()

	// Undeclared caller variable.
	_, err := s.ExecuteRecipe(ctx, &models.Recipe{
		Name:  "r",
		Steps: []models.Step{{AgentName: "a", TaskTemplate: "x"}},
	}, Options{Variables: map[string]interface{}{"nope": 1}})
	if err == nil {
		t.Error("expected an error for an undeclared variable")
	}

	// Template referencing an unknown variable.
	_, err = s.ExecuteRecipe(ctx, &models.Recipe{
		Name:  "r",
		Steps: []models.Step{{AgentName: "a", TaskTemplate: "about {{missing}}"}},
	}, Options{})
	if err == nil {
		t.Error("expected an error for an unresolved placeholder")
	}

	// Unparseable step timeout.
	_, err = s.ExecuteRecipe(ctx, &models.Recipe{
		Name:  "r",
		Steps: []models.Step{{AgentName: "a", TaskTemplate: "x", Timeout: "fast"}},
	}, Options{})
	if err == nil {
		t.Error("expected an error for a bad timeout")
	}

	if len(fake.batches) != 0 {
		t.Errorf("executor ran %d batches during failed pre-flight", len(fake.batches))
	}
}

func TestExecuteRecipeOutputPaths(t *testing.T) {
	fake := &fakeExecutor{}
	s := NewScheduler(fake)

	recipe := &models.Recipe{
		Name: "files",
		Steps: []models.Step{
			{ID: "gather data", AgentName: "collector", TaskTemplate: "collect"},
			{ID: "report", AgentName: "writer", TaskTemplate: "write", DependsOn: []string{"gather data"}},
		},
	}

	_, err := s.ExecuteRecipe(context.Background(), recipe, Options{OutputDir: filepath.Join("run", "out")})
	if err != nil {
		t.Fatalf("ExecuteRecipe: %v", err)
	}

	first := fake.batches[0][0].OutputPath
	if first != filepath.Join("run", "out", "1-gather-data.md") {
		t.Errorf("first output path = %q", first)
	}
	second := fake.batches[1][0].OutputPath
	if second != filepath.Join("run", "out", "2-report.md") {
		t.Errorf("second output path = %q", second)
	}
}

func TestExecuteRecipeCleanup(t *testing.T) {
	fake := &fakeExecutor{fail: map[string]string{"janitor": "mop broke"}}
	s := NewScheduler(fake)

	recipe := &models.Recipe{
		Name: "tidy",
		Steps: []models.Step{
			{ID: "work", AgentName: "worker", TaskTemplate: "do the thing"},
		},
		Cleanup: []models.Step{
			{ID: "sweep", AgentName: "janitor", TaskTemplate: "sweep up"},
		},
	}

	result, err := s.ExecuteRecipe(context.Background(), recipe, Options{OutputDir: "out"})
	if err != nil {
		t.Fatalf("ExecuteRecipe: %v", err)
	}

	// A cleanup failure is reported but never fails the run.
	if !result.Success {
		t.Error("cleanup failure flipped the run outcome")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "cleanup sweep") {
		t.Errorf("Errors = %v", result.Errors)
	}
	if _, ok := result.Results["cleanup:sweep"]; !ok {
		t.Error("cleanup result not recorded")
	}
	if result.StepsTotal != 1 || result.StepsCompleted != 1 {
		t.Errorf("cleanup leaked into the step counts: %d/%d", result.StepsCompleted, result.StepsTotal)
	}

	cleanupTask := fake.batches[len(fake.batches)-1][0]
	if cleanupTask.OutputPath != "" {
		t.Errorf("cleanup task has an output path: %q", cleanupTask.OutputPath)
	}
}

func TestExecuteRecipeVariableOverrides(t *testing.T) {
	fake := &fakeExecutor{}
	s := NewScheduler(fake)

	recipe := &models.Recipe{
		Name: "tones",
		Variables: map[string]models.VariableDef{
			"tone": {Type: models.VariableTypeString, Default: "neutral"},
		},
		Steps: []models.Step{
			{ID: "plain", AgentName: "writer", TaskTemplate: "write in a {{tone}} tone"},
			{
				ID: "spicy", AgentName: "writer2", TaskTemplate: "write in a {{tone}} tone",
				VariableOverrides: map[string]interface{}{"tone": "sarcastic"},
			},
		},
	}

	_, err := s.ExecuteRecipe(context.Background(), recipe, Options{})
	if err != nil {
		t.Fatalf("ExecuteRecipe: %v", err)
	}

	batch := fake.batches[0]
	byAgent := map[string]string{}
	for _, task := range batch {
		byAgent[task.AgentName] = task.Description
	}
	if byAgent["writer"] != "write in a neutral tone" {
		t.Errorf("plain = %q", byAgent["writer"])
	}
	if byAgent["writer2"] != "write in a sarcastic tone" {
		t.Errorf("spicy = %q", byAgent["writer2"])
	}
}

func TestExecuteRecipeContextAndConcurrency(t *testing.T) {
	fake := &fakeExecutor{}
	s := NewScheduler(fake)

	recipe := &models.Recipe{
		Name: "ctx",
		Variables: map[string]models.VariableDef{
			"dataset": {Type: models.VariableTypeString, Default: "q3"},
		},
		Steps: []models.Step{
			{ID: "analyze", AgentName: "analyst", TaskTemplate: "analyze", ContextRefs: []string{"data/{{dataset}}.csv"}},
		},
		Cleanup: []models.Step{
			{ID: "sweep", AgentName: "janitor", TaskTemplate: "sweep"},
		},
	}

	_, err := s.ExecuteRecipe(context.Background(), recipe, Options{
		ContextPaths: []string{"README.md"},
		Concurrency:  2,
	})
	if err != nil {
		t.Fatalf("ExecuteRecipe: %v", err)
	}

	task := fake.batches[0][0]
	if len(task.ContextPaths) != 2 || task.ContextPaths[0] != "README.md" || task.ContextPaths[1] != "data/q3.csv" {
		t.Errorf("ContextPaths = %v", task.ContextPaths)
	}
	if fake.limits[0] != 2 {
		t.Errorf("main batch limit = %d, want 2", fake.limits[0])
	}
	if fake.limits[len(fake.limits)-1] != 1 {
		t.Errorf("cleanup limit = %d, want 1", fake.limits[len(fake.limits)-1])
	}
}

func TestExecuteRecipeThroughCoordinator(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	gate, err := security.NewGate(config.SecurityConfig{AllowedDirs: []string{dir}, MaxAuditEvents: 100})
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	history, err := cache.NewHistory(config.HistoryConfig{MaxEntries: 50})
	if err != nil {
		t.Fatalf("NewHistory: %v", err)
	}

	rt := runtime.NewScripted()
	rt.SetScript("writer", runtime.Script{Output: "draft text", TokensUsed: 3})
	rt.SetScript("reviewer", runtime.Script{Output: "approved", TokensUsed: 2})

	coord, err := coordinator.NewCoordinator(config.CoordinatorConfig{
		MaxConcurrent:  2,
		DefaultTimeout: "2s",
	}, rt, gate, nil, history)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}

	s := NewScheduler(coord)
	outDir := filepath.Join(dir, "run1")

	result, err := s.ExecuteRecipe(context.Background(), &models.Recipe{
		Name: "pipeline",
		Steps: []models.Step{
			{ID: "draft", AgentName: "writer", TaskTemplate: "write the draft"},
			{ID: "review", AgentName: "reviewer", TaskTemplate: "review it", DependsOn: []string{"draft"}},
		},
	}, Options{OutputDir: outDir})
	if err != nil {
		t.Fatalf("ExecuteRecipe: %v", err)
	}

	if !result.Success {
		t.Fatalf("run failed: %v", result.Errors)
	}

	draft, err := os.ReadFile(filepath.Join(outDir, "1-draft.md"))
	if err != nil {
		t.Fatalf("draft output missing: %v", err)
	}
	if string(draft) != "draft text" {
		t.Errorf("draft output = %q", draft)
	}
	if _, err := os.ReadFile(filepath.Join(outDir, "2-review.md")); err != nil {
		t.Errorf("review output missing: %v", err)
	}

	// Both executions must be retained in the history.
	if history.Len() != 2 {
		t.Errorf("history retained %d results, want 2", history.Len())
	}
}
