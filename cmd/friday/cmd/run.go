package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"Friday_1.0/internal/models"
	"Friday_1.0/internal/scheduler"
)

var (
	runVars        []string
	runContexts    []string
	runOutputDir   string
	runConcurrency int
	runDryRun      bool
)

var runCmd = &cobra.Command{
	Use:   "run [recipe file]",
	Short: "Run a multi-step recipe",
	Long: `Loads a recipe definition from a YAML file, resolves its variables and
executes its steps in dependency order. Steps without dependencies between
them run in parallel batches.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runRecipe(args[0])
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "recipe variable as name=value (repeatable)")
	runCmd.Flags().StringArrayVar(&runContexts, "context", nil, "context file injected into every step (repeatable)")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "directory for step output files")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "parallelism limit per batch (0 = unbounded)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print the execution plan without running anything")
}

func runRecipe(path string) {
	recipe, err := scheduler.LoadRecipe(path)
	if err != nil {
		log.Fatalf("Error loading recipe: %v", err)
	}

	if runDryRun {
		printPlan(recipe)
		return
	}

	vars, err := parseVarFlags(recipe, runVars)
	if err != nil {
		log.Fatalf("Error parsing variables: %v", err)
	}

	app, err := newApp()
	if err != nil {
		log.Fatalf("Error initializing: %v", err)
	}
	defer app.close()

	stopOperator := startOperatorIfEnabled(app)
	defer stopOperator()

	result, err := app.scheduler.ExecuteRecipe(context.Background(), recipe, scheduler.Options{
		Variables:    vars,
		ContextPaths: runContexts,
		OutputDir:    runOutputDir,
		Concurrency:  runConcurrency,
	})
	if err != nil {
		log.Fatalf("Error running recipe: %v", err)
	}

	printRecipeResult(recipe, result)
	if !result.Success {
		os.Exit(1)
	}
}

func printPlan(recipe *models.Recipe) {
	plan, err := scheduler.BuildPlan(recipe)
	if err != nil {
		log.Fatalf("Error planning recipe: %v", err)
	}
	fmt.Printf("Recipe %q: %d steps in %d batches\n", plan.RecipeName, plan.StepCount(), len(plan.Batches))
	for i, batch := range plan.Batches {
		fmt.Printf("  batch %d: %s\n", i+1, strings.Join(stepIdentities(batch), ", "))
	}
	if len(recipe.Cleanup) > 0 {
		fmt.Printf("  cleanup: %s\n", strings.Join(stepIdentities(recipe.Cleanup), ", "))
	}
}

func printRecipeResult(recipe *models.Recipe, result *models.RecipeResult) {
	// The plan was already validated by the run, so ordering the output by
	// batch cannot fail here.
	if plan, err := scheduler.BuildPlan(recipe); err == nil {
		for _, batch := range plan.Batches {
			for _, step := range batch {
				printStepLine(step.Identity(), result.Results[step.Identity()])
			}
		}
		for _, step := range recipe.Cleanup {
			printStepLine("cleanup "+step.Identity(), result.Results["cleanup:"+step.Identity()])
		}
	}
	fmt.Println(result.Summary)
	for _, msg := range result.Errors {
		fmt.Printf("  error: %s\n", msg)
	}
}

func printStepLine(name string, res *models.ExecutionResult) {
	switch {
	case res == nil:
		fmt.Printf("  [skipped] %s\n", name)
	case res.Success:
		fmt.Printf("  [ok]      %s (%s, %d tokens)\n",
			name, res.Metrics.Duration.Round(time.Millisecond), res.Metrics.TokensUsed)
	default:
		fmt.Printf("  [failed]  %s: %s\n", name, res.Error)
	}
}

func stepIdentities(steps []models.Step) []string {
	names := make([]string, 0, len(steps))
	for _, step := range steps {
		names = append(names, step.Identity())
	}
	return names
}

func parseVarFlags(recipe *models.Recipe, flags []string) (map[string]interface{}, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	vars := make(map[string]interface{}, len(flags))
	for _, raw := range flags {
		name, value, found := strings.Cut(raw, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid --var %q, expected name=value", raw)
		}
		vars[name] = coerceVariable(recipe.Variables[name], value)
	}
	return vars, nil
}

// coerceVariable converts a command line string according to the type the
// recipe declares. Unknown names and unparsable values stay strings so the
// variable validation reports them consistently.
func coerceVariable(def models.VariableDef, value string) interface{} {
	switch def.Type {
	case models.VariableTypeNumber:
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	case models.VariableTypeBoolean:
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	case models.VariableTypeArray:
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return value
}
