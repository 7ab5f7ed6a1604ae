package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/mahina/pkg/core"
	"github.com/aretw0/mahina/pkg/defs"
	"github.com/aretw0/mahina/pkg/tools"
)

var (
	defsMonth int
	defsYear  int
	defsFile  string
	defsJSON  bool
)

var defsCmd = &cobra.Command{
	Use:   "defs",
	Short: "Print the resolved lunar definitions for a month",
	Long: `Defs runs the typesetter's discovery pass over the 36 month window
anchored one year before the requested month and prints the deduplicated
definitions as they would be written to mahina.def.dat.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		req := core.Request{Month: defsMonth, Year: defsYear}
		if err := req.Validate(); err != nil {
			fatal("Invalid request", err)
		}
		file := defsFile
		if file == "" {
			file = filepath.Join(cfg.DataDir, "mahina.def")
		}
		if _, err := os.Stat(file); err != nil {
			fatal("Definitions file", err)
		}

		tc := tools.NewToolchain(tools.NewExecRunner(slog.Default()), cfg.Tools, cfg.Raster)
		ctx := context.Background()
		if t := cfg.Timeouts.Discovery; t > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t)
			defer cancel()
		}

		found := defs.NewResolver(tc, slog.Default()).Resolve(ctx, file, req.Month, req.Year)
		if defsJSON {
			out := make([]map[string]string, 0, len(found))
			for _, d := range found {
				out = append(out, map[string]string{"name": d.Name, "date": d.Date})
			}
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(out); err != nil {
				fatal("Error encoding JSON", err)
			}
			return
		}
		fmt.Print(defs.Render(found))
	},
}

func init() {
	rootCmd.AddCommand(defsCmd)
	now := time.Now()
	defsCmd.Flags().IntVarP(&defsMonth, "month", "m", int(now.Month()), "Month (1-12)")
	defsCmd.Flags().IntVarP(&defsYear, "year", "y", now.Year(), "Year")
	defsCmd.Flags().StringVarP(&defsFile, "file", "f", "", "Lunar definitions file (default: <data_dir>/mahina.def)")
	defsCmd.Flags().BoolVar(&defsJSON, "json", false, "Output in JSON format")
}
