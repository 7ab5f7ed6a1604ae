package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/mahina"
	"github.com/aretw0/mahina/internal/platform"
)

var (
	verbose    bool
	configPath string

	// cfg is loaded once by the root command before any subcommand runs.
	cfg *mahina.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mahina",
	Short: "Hawaiian moon and tide calendar renderer",
	Long: `Mahina renders monthly calendars that overlay tide times, sunrise and
sunset, moon phases and Hawaiian lunar month names on a typeset template,
optionally composited over a background photo.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		wd, _ := os.Getwd()
		loaded, err := mahina.LoadConfig(platform.ResolveConfigPath(configPath, wd))
		if err != nil {
			fatal("Error loading config", err)
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		slog.SetDefault(loaded.Logging.NewLogger(os.Stderr))
		cfg = loaded
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to mahina.yaml (default: nearest project root)")
}
