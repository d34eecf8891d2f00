package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/weft-dsl/weft/internal/config"
	"github.com/weft-dsl/weft/internal/task"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List registered task templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		registry := task.NewRegistry()
		if cfg.Templates.Dir != "" {
			if _, err := os.Stat(cfg.Templates.Dir); err == nil {
				if _, err := task.LoadDir(registry, cfg.Templates.Dir); err != nil {
					return err
				}
			}
		}

		names := registry.Names()
		if len(names) == 0 {
			fmt.Printf("no templates found in %s\n", cfg.Templates.Dir)
			return nil
		}

		bold := color.New(color.Bold)
		for _, name := range names {
			tmpl := registry.Find(name)
			bold.Printf("%s", name)
			fmt.Printf("  [%s]", tmpl.EffectiveType())
			if len(tmpl.Params) > 0 {
				fmt.Printf("  (%s)", strings.Join(tmpl.Params, " "))
			}
			fmt.Println()
			if tmpl.Description != "" {
				fmt.Printf("    %s\n", tmpl.Description)
			}
		}
		return nil
	},
}
