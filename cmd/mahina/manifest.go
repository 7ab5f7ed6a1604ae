package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aretw0/mahina/pkg/core"
	"github.com/aretw0/mahina/pkg/manifest"
)

var (
	manifestFlags  requestFlags
	manifestCustom bool
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print the include manifest for a set of layers",
	Long: `Manifest prints the include.dat the pipeline would write for the given
layers and region. With --expanded it prints the custom.dat content instead.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		in, err := manifestFlags.input()
		if err != nil {
			fatal("Error reading input", err)
		}
		region, err := core.ParseRegion(in.Region)
		if err != nil {
			fatal("Invalid region", err)
		}
		features, unknown := core.ParseFeatures(in.Options)
		for _, u := range unknown {
			slog.Warn("ignoring unknown option", "option", u)
		}

		custom := manifest.ExpandCustomText(in.CustomText, features.Has(core.FeatureCustom))
		if manifestCustom {
			fmt.Println(custom)
			return
		}
		fmt.Print(manifest.Build(features, manifest.SelectRegion(region, custom)).String())
	},
}

func init() {
	rootCmd.AddCommand(manifestCmd)
	manifestFlags.register(manifestCmd)
	manifestCmd.Flags().BoolVar(&manifestCustom, "expanded", false, "Print the expanded custom text instead")
}
