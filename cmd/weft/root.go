package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "LLM task orchestration with an S-expression DSL",
	Long: `Weft evaluates S-expression programs that compose LLM task templates,
tools, and Director-Evaluator refinement loops, under per-session turn
and context budgets.

With no arguments, launches the interactive REPL.

Core capabilities:
- Lexically scoped DSL with closures and bounded map fan-out
- YAML task templates with literal {{param}} substitution
- Three-dimensional context assembly (inherit, accumulate, fresh)
- Depth- and cycle-guarded subtask spawning
- Director-Evaluator loops with optional script steps`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRepl()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
