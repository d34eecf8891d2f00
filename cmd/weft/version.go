package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weft-dsl/weft/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("weft version %s\n", version.Get())
	},
}
