package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/routeflow"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of routeflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("routeflow version %s\n", strings.TrimSpace(routeflow.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
