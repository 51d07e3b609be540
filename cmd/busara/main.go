// Busara — a plan/execute/replan agent with multi-role orchestration.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "busara",
	Short: "Busara — a plan/execute/replan agent with multi-role orchestration.",
	Long: `Busara turns a user request into a normalized tool plan, executes it in
dependency order, and replans within a bounded budget when tools fail.
Multi-role routing templates decompose larger goals into a dependency-aware
set of work items executed in bounded-parallel waves.`,
	RunE:          runServe, // Default to server mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, queryCmd, orchestrateCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
