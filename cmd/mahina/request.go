package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/mahina/pkg/core"
)

// requestFlags are the render inputs shared by render and manifest.
type requestFlags struct {
	month      string
	year       string
	station    string
	custom     string
	customFile string
	region     string
	options    []string
	background string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.month, "month", "m", "", "Month to render (1-12)")
	cmd.Flags().StringVarP(&f.year, "year", "y", "", "Year to render")
	cmd.Flags().StringVarP(&f.station, "station", "s", "", "Tide station name")
	cmd.Flags().StringVar(&f.custom, "custom", "", "Custom calendar text")
	cmd.Flags().StringVar(&f.customFile, "custom-file", "", "Read custom calendar text from a file")
	cmd.Flags().StringVar(&f.region, "region", "", "Base region (oahu, big_island)")
	cmd.Flags().StringSliceVarP(&f.options, "option", "o", nil,
		"Enabled layers: language, tide, sun, moon, mahina, holidays, custom")
}

func (f *requestFlags) input() (core.RequestInput, error) {
	in := core.RequestInput{
		Month:      f.month,
		Year:       f.year,
		Station:    f.station,
		CustomText: f.custom,
		Region:     f.region,
		Options:    f.options,
	}
	if f.customFile != "" {
		b, err := os.ReadFile(f.customFile)
		if err != nil {
			return in, fmt.Errorf("read custom text: %w", err)
		}
		in.CustomText = string(b)
	}
	if f.background != "" {
		b, err := os.ReadFile(f.background)
		if err != nil {
			return in, fmt.Errorf("read background: %w", err)
		}
		in.Background = b
	}
	return in, nil
}
