package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weft-dsl/weft/internal/config"
	"github.com/weft-dsl/weft/internal/orchestrator"
	"github.com/weft-dsl/weft/internal/tui"
)

var replTemplates string

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start the interactive evaluator",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRepl()
	},
}

func runRepl() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if replTemplates != "" {
		cfg.Templates.Dir = replTemplates
	}

	session, err := orchestrator.NewSession(cfg)
	if err != nil {
		return err
	}

	if err := tui.Run(session); err != nil {
		session.Close("failed")
		return err
	}
	if err := session.Close("complete"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return nil
}

func init() {
	replCmd.Flags().StringVar(&replTemplates, "templates", "", "Template directory (overrides config)")
}
