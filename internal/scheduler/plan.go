package scheduler

import (
	"errors"
	"fmt"
	"strings"

	"Friday_1.0/internal/models"
)

var (
	// ErrCircularDependency reports a dependency cycle; the wrapped
	// message names a witness path through the cycle.
	ErrCircularDependency = errors.New("circular dependency")
	// ErrUnknownDependency reports a dependency on a step identity that
	// does not exist in the recipe.
	ErrUnknownDependency = errors.New("unknown dependency")
	// ErrDuplicateStep reports two steps sharing one identity.
	ErrDuplicateStep = errors.New("duplicate step identity")
)

// ExecutionPlan is the ordered batching of a recipe's main steps. Steps
// inside one batch have no dependencies among each other and may run
// together; batch N+1 starts only after batch N has fully drained.
type ExecutionPlan struct {
	RecipeName string
	Batches    [][]models.Step
}

// StepCount returns the number of planned steps across all batches.
func (p *ExecutionPlan) StepCount() int {
	n := 0
	for _, batch := range p.Batches {
		n += len(batch)
	}
	return n
}

// BuildPlan derives the batch order from the recipe's dependency edges.
// Batching is greedy: every step whose dependencies are already planned
// joins the next batch. Steps that opt out of parallelism become
// singleton batches. A stall before all steps are planned means a cycle,
// and the error names one.
func BuildPlan(recipe *models.Recipe) (*ExecutionPlan, error) {
	if recipe == nil {
		return nil, fmt.Errorf("recipe is nil")
	}
	if len(recipe.Steps) == 0 {
		return nil, fmt.Errorf("recipe %q has no steps", recipe.Name)
	}

	byIdentity := make(map[string]models.Step, len(recipe.Steps))
	order := make([]string, 0, len(recipe.Steps))
	for _, step := range recipe.Steps {
		if strings.TrimSpace(step.AgentName) == "" {
			return nil, fmt.Errorf("step %q is missing an agent name", step.Identity())
		}
		id := step.Identity()
		if _, exists := byIdentity[id]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStep, id)
		}
		byIdentity[id] = step
		order = append(order, id)
	}

	for _, step := range recipe.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := byIdentity[dep]; !ok {
				return nil, fmt.Errorf("%w: step %q depends on %q", ErrUnknownDependency, step.Identity(), dep)
			}
		}
	}

	plan := &ExecutionPlan{RecipeName: recipe.Name}
	planned := make(map[string]bool, len(order))
	remaining := order

	for len(remaining) > 0 {
		var parallel []models.Step
		var serial []models.Step
		var next []string

		for _, id := range remaining {
			step := byIdentity[id]
			if !depsPlanned(step, planned) {
				next = append(next, id)
				continue
			}
			if step.Parallel != nil && !*step.Parallel {
				serial = append(serial, step)
			} else {
				parallel = append(parallel, step)
			}
		}

		if len(parallel) == 0 && len(serial) == 0 {
			witness := findCycle(byIdentity, remaining)
			return nil, fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(witness, " -> "))
		}

		if len(parallel) > 0 {
			plan.Batches = append(plan.Batches, parallel)
		}
		for _, step := range serial {
			plan.Batches = append(plan.Batches, []models.Step{step})
		}
		for _, step := range parallel {
			planned[step.Identity()] = true
		}
		for _, step := range serial {
			planned[step.Identity()] = true
		}
		remaining = next
	}

	return plan, nil
}

func depsPlanned(step models.Step, planned map[string]bool) bool {
	for _, dep := range step.DependsOn {
		if !planned[dep] {
			return false
		}
	}
	return true
}

// findCycle walks the dependency edges of the stalled steps and returns
// a witness path, e.g. ["a", "b", "a"]. It is only called when a cycle
// is known to exist.
func findCycle(byIdentity map[string]models.Step, remaining []string) []string {
	const (
		white = iota
		gray
		black
	)
	pending := make(map[string]bool, len(remaining))
	for _, id := range remaining {
		pending[id] = true
	}

	color := make(map[string]int, len(remaining))
	var stack []string
	var witness []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range byIdentity[id].DependsOn {
			if !pending[dep] {
				continue
			}
			switch color[dep] {
			case gray:
				for i, s := range stack {
					if s == dep {
						witness = append(append([]string{}, stack[i:]...), dep)
						return true
					}
				}
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range remaining {
		if color[id] == white && visit(id) {
			return witness
		}
	}
	return nil
}
