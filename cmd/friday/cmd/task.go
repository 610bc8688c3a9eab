package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"Friday_1.0/internal/models"
)

var (
	taskAgent    string
	taskContexts []string
	taskOutput   string
	taskTimeout  time.Duration
)

var taskCmd = &cobra.Command{
	Use:   "task [description]",
	Short: "Run a single task against the configured agent runtime",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runTask(strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.Flags().StringVar(&taskAgent, "agent", "assistant", "name of the agent to run")
	taskCmd.Flags().StringArrayVar(&taskContexts, "context", nil, "context file for the task (repeatable)")
	taskCmd.Flags().StringVar(&taskOutput, "out", "", "file to write the output to")
	taskCmd.Flags().DurationVar(&taskTimeout, "timeout", 0, "execution timeout (0 = configured default)")
}

func runTask(description string) {
	app, err := newApp()
	if err != nil {
		log.Fatalf("Error initializing: %v", err)
	}
	defer app.close()

	res := app.coord.ExecuteSingle(context.Background(), &models.Task{
		AgentName:    taskAgent,
		Description:  description,
		ContextPaths: taskContexts,
		OutputPath:   taskOutput,
		Timeout:      taskTimeout,
	})

	if !res.Success {
		fmt.Printf("Task failed (%s): %s\n", res.ErrorKind, res.Error)
		os.Exit(1)
	}

	if taskOutput != "" {
		fmt.Printf("Output written to %s\n", taskOutput)
	} else {
		fmt.Println(res.Output)
	}
	fmt.Printf("Done in %s, %d tokens used\n",
		res.Metrics.Duration.Round(time.Millisecond), res.Metrics.TokensUsed)
}
