package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/weft-dsl/weft/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify weft configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/weft/config.yaml
Project-specific overrides can be placed in .weft.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

func displayAllConfig(cfg *config.Config) {
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}
	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("resources.max_turns: %d\n", cfg.Resources.MaxTurns)
	fmt.Printf("resources.max_context: %d\n", cfg.Resources.MaxContext)
	fmt.Printf("evaluator.map_workers: %d\n", cfg.Evaluator.MapWorkers)
	fmt.Printf("evaluator.max_depth: %d\n", cfg.Evaluator.MaxDepth)
	fmt.Printf("templates.dir: %s\n", cfg.Templates.Dir)
	fmt.Printf("templates.watch: %t\n", cfg.Templates.Watch)
	fmt.Printf("script.timeout: %s\n", cfg.Script.Timeout)
	fmt.Printf("state.path: %s\n", cfg.State.Path)
	fmt.Println()
	fmt.Printf("user config: %s\n", config.GetUserConfigPath())
	if project := config.GetProjectConfigPath(); project != "" {
		fmt.Printf("project config: %s\n", project)
	}
}

func displayConfigKey(cfg *config.Config, key string) {
	switch key {
	case "anthropic.model":
		fmt.Println(cfg.Anthropic.Model)
	case "resources.max_turns":
		fmt.Println(cfg.Resources.MaxTurns)
	case "resources.max_context":
		fmt.Println(cfg.Resources.MaxContext)
	case "evaluator.map_workers":
		fmt.Println(cfg.Evaluator.MapWorkers)
	case "evaluator.max_depth":
		fmt.Println(cfg.Evaluator.MaxDepth)
	case "templates.dir":
		fmt.Println(cfg.Templates.Dir)
	case "state.path":
		fmt.Println(cfg.State.Path)
	default:
		fmt.Fprintf(os.Stderr, "unknown config key: %s\n", key)
		os.Exit(1)
	}
}

func setConfigKey(cfg *config.Config, key, value string) {
	var err error
	switch key {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "resources.max_turns":
		cfg.Resources.MaxTurns, err = strconv.Atoi(value)
	case "resources.max_context":
		cfg.Resources.MaxContext, err = strconv.Atoi(value)
	case "evaluator.map_workers":
		cfg.Evaluator.MapWorkers, err = strconv.Atoi(value)
	case "evaluator.max_depth":
		cfg.Evaluator.MaxDepth, err = strconv.Atoi(value)
	case "templates.dir":
		cfg.Templates.Dir = value
	case "state.path":
		cfg.State.Path = value
	default:
		fmt.Fprintf(os.Stderr, "unknown config key: %s\n", key)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid value for %s: %v\n", key, err)
		os.Exit(1)
	}
	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("set %s\n", key)
}
