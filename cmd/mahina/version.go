package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/mahina"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of mahina",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mahina version %s\n", mahina.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
