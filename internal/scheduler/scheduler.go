package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"Friday_1.0/internal/models"
	"Friday_1.0/pkg/logger"
)

// TaskExecutor runs materialized tasks. The coordinator satisfies it.
type TaskExecutor interface {
	ExecuteBatch(ctx context.Context, tasks []*models.Task, limit int) *models.BatchResult
}

// Options adjust one recipe run.
type Options struct {
	Variables    map[string]interface{} // caller values for declared variables
	ContextPaths []string               // extra context injected into every step
	OutputDir    string                 // step outputs land here; empty disables file output
	Concurrency  int                    // per-batch parallelism limit; 0 means unbounded
}

// Scheduler turns recipes into execution plans and drives them through
// a task executor, batch by batch. A failed step never blocks its
// dependents; it only marks the run as failed.
type Scheduler struct {
	executor TaskExecutor
	log      *logger.Logger
}

// NewScheduler builds a scheduler over the given executor.
func NewScheduler(executor TaskExecutor) *Scheduler {
	return &Scheduler{
		executor: executor,
		log:      logger.New("Scheduler", ""),
	}
}

type plannedTask struct {
	identity string
	task     *models.Task
}

// ExecuteRecipe validates, plans and runs a recipe. Pre-flight problems
// (bad plan, bad variables, bad templates) return an error before any
// step runs; once execution starts, step failures are folded into the
// RecipeResult instead.
func (s *Scheduler) ExecuteRecipe(ctx context.Context, recipe *models.Recipe, opts Options) (*models.RecipeResult, error) {
	plan, err := BuildPlan(recipe)
	if err != nil {
		return nil, err
	}
	vars, err := MergeVariables(recipe.Variables, opts.Variables)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := logger.New("Scheduler", runID).WithField("recipe", recipe.Name)

	// Materialize every task up front so template, timeout and path
	// problems surface before anything runs.
	seq := 0
	batches := make([][]plannedTask, len(plan.Batches))
	for bi, batch := range plan.Batches {
		batches[bi] = make([]plannedTask, len(batch))
		for si, step := range batch {
			seq++
			task, err := materializeStep(step, vars, opts, seq)
			if err != nil {
				return nil, fmt.Errorf("step %q: %w", step.Identity(), err)
			}
			batches[bi][si] = plannedTask{identity: step.Identity(), task: task}
		}
	}

	cleanupOpts := opts
	cleanupOpts.OutputDir = "" // cleanup steps produce no output files
	cleanupTasks := make([]plannedTask, len(recipe.Cleanup))
	for i, step := range recipe.Cleanup {
		seq++
		task, err := materializeStep(step, vars, cleanupOpts, seq)
		if err != nil {
			return nil, fmt.Errorf("cleanup step %q: %w", step.Identity(), err)
		}
		cleanupTasks[i] = plannedTask{identity: step.Identity(), task: task}
	}

	start := time.Now()
	result := &models.RecipeResult{
		RunID:      runID,
		RecipeName: recipe.Name,
		Success:    true,
		StepsTotal: plan.StepCount(),
		Results:    make(map[string]*models.ExecutionResult, plan.StepCount()),
	}

	log.WithPayload(map[string]interface{}{
		"batches": len(batches),
		"steps":   result.StepsTotal,
	}).Info("Recipe run starting")

	succeeded := 0
	for bi, batch := range batches {
		tasks := make([]*models.Task, len(batch))
		for i, pt := range batch {
			tasks[i] = pt.task
		}

		batchRes := s.executor.ExecuteBatch(ctx, tasks, opts.Concurrency)
		for i, pt := range batch {
			res := batchRes.Results[i]
			result.Results[pt.identity] = res
			result.StepsCompleted++
			if res.Success {
				succeeded++
			} else {
				result.Success = false
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", pt.identity, res.Error))
			}
		}

		log.WithPayload(map[string]interface{}{
			"batch":     bi + 1,
			"succeeded": batchRes.Successful,
			"failed":    batchRes.Failed,
		}).Info("Batch complete")

		if ctx.Err() != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("run cancelled after batch %d: %v", bi+1, ctx.Err()))
			break
		}
	}

	// Cleanup steps run in order after the main batches. Their failures
	// are reported but never flip the run outcome.
	for _, pt := range cleanupTasks {
		batchRes := s.executor.ExecuteBatch(ctx, []*models.Task{pt.task}, 1)
		res := batchRes.Results[0]
		result.Results["cleanup:"+pt.identity] = res
		if !res.Success {
			log.WithField("step", pt.identity).Warn("Cleanup step failed")
			result.Errors = append(result.Errors, fmt.Sprintf("cleanup %s: %s", pt.identity, res.Error))
		}
	}

	result.Duration = time.Since(start)
	result.Summary = fmt.Sprintf("recipe %q: %d of %d steps succeeded in %s",
		recipe.Name, succeeded, result.StepsTotal, result.Duration.Round(time.Millisecond))

	if result.Success {
		log.Info("Recipe run successful")
	} else {
		log.WithField("errors", len(result.Errors)).Warn("Recipe run finished with failures")
	}
	return result, nil
}

// materializeStep renders a step into a concrete task. Step-level
// overrides sit on top of the run variables for this step only.
func materializeStep(step models.Step, vars map[string]interface{}, opts Options, seq int) (*models.Task, error) {
	local := vars
	if len(step.VariableOverrides) > 0 {
		local = make(map[string]interface{}, len(vars)+len(step.VariableOverrides))
		for k, v := range vars {
			local[k] = v
		}
		for k, v := range step.VariableOverrides {
			local[k] = v
		}
	}

	description, err := RenderTemplate(step.TaskTemplate, local)
	if err != nil {
		return nil, err
	}

	contexts := make([]string, 0, len(opts.ContextPaths)+len(step.ContextRefs))
	contexts = append(contexts, opts.ContextPaths...)
	for _, ref := range step.ContextRefs {
		rendered, err := RenderTemplate(ref, local)
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, rendered)
	}

	task := &models.Task{
		AgentName:    step.AgentName,
		Description:  description,
		ContextPaths: contexts,
		Variables:    local,
	}

	if step.Timeout != "" {
		timeout, err := time.ParseDuration(step.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", step.Timeout, err)
		}
		task.Timeout = timeout
	}

	if opts.OutputDir != "" {
		task.OutputPath = filepath.Join(opts.OutputDir, fmt.Sprintf("%d-%s.md", seq, fileSafeName(step.Identity())))
	}
	return task, nil
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// fileSafeName flattens a step identity into something safe for a file
// name; identities are author-controlled strings, not paths.
func fileSafeName(name string) string {
	cleaned := unsafeNameChars.ReplaceAllString(name, "-")
	cleaned = strings.Trim(cleaned, "-.")
	if cleaned == "" {
		return "step"
	}
	return cleaned
}
