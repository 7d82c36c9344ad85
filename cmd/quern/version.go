package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quern-dev/quern"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of quern",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("quern version %s\n", quern.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
