package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the context cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache occupancy and hit counters",
	Run: func(cmd *cobra.Command, args []string) {
		printCacheStats()
	},
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired entries from both cache tiers",
	Run: func(cmd *cobra.Command, args []string) {
		sweepCache()
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheSweepCmd)
}

func printCacheStats() {
	app, err := newApp()
	if err != nil {
		log.Fatalf("Error initializing: %v", err)
	}
	defer app.close()

	stats := app.cache.Stats(context.Background())
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(stats); err != nil {
		log.Fatalf("Error encoding stats: %v", err)
	}
}

func sweepCache() {
	app, err := newApp()
	if err != nil {
		log.Fatalf("Error initializing: %v", err)
	}
	defer app.close()

	removed := app.cache.SweepExpired(context.Background())
	fmt.Printf("Removed %d expired entries\n", removed)
}
