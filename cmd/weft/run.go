package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/weft-dsl/weft/internal/config"
	"github.com/weft-dsl/weft/internal/orchestrator"
	"github.com/weft-dsl/weft/internal/sexpr"
	"github.com/weft-dsl/weft/pkg/models"
)

var (
	runExpr      string
	runTemplates string
	runMaxTurns  int
)

var runCmd = &cobra.Command{
	Use:   "run [program.weft]",
	Short: "Evaluate a DSL program",
	Long: `Evaluate a weft program from a file, or from -e.

The program's last top-level value is printed to stdout. Failures are
reported with their reason and, where available, source position.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := runExpr
		if src == "" {
			if len(args) == 0 {
				return fmt.Errorf("provide a program file or -e expression")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read program: %w", err)
			}
			src = string(data)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if runTemplates != "" {
			cfg.Templates.Dir = runTemplates
		}
		if runMaxTurns > 0 {
			cfg.Resources.MaxTurns = runMaxTurns
		}

		session, err := orchestrator.NewSession(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		value, err := session.Run(ctx, src)
		if err != nil {
			session.Close("failed")
			reportFailure(err)
			os.Exit(1)
		}
		if err := session.Close("complete"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}

		fmt.Println(sexpr.FormatValue(value))
		return nil
	},
}

// reportFailure prints an evaluation error with its classification.
func reportFailure(err error) {
	red := color.New(color.FgRed, color.Bold)
	if failure, ok := models.AsTaskFailure(err); ok {
		red.Fprintf(os.Stderr, "task failure (%s)\n", failure.Reason)
		fmt.Fprintln(os.Stderr, failure.Message)
		for key, value := range failure.Detail() {
			if key == "reason" {
				continue
			}
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
		return
	}
	if exhausted, ok := models.AsResourceExhausted(err); ok {
		red.Fprintln(os.Stderr, "resource exhausted")
		fmt.Fprintln(os.Stderr, exhausted.Error())
		return
	}
	red.Fprintln(os.Stderr, "error")
	fmt.Fprintln(os.Stderr, err.Error())
}

func init() {
	runCmd.Flags().StringVarP(&runExpr, "expr", "e", "", "Evaluate an inline expression instead of a file")
	runCmd.Flags().StringVar(&runTemplates, "templates", "", "Template directory (overrides config)")
	runCmd.Flags().IntVar(&runMaxTurns, "max-turns", 0, "Turn limit for this run (overrides config)")
}
