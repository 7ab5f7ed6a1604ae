package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aretw0/mahina"
	"github.com/aretw0/mahina/pkg/core"
	"github.com/aretw0/mahina/pkg/retention"
)

var (
	renderFlags requestFlags
	renderOut   string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render one calendar to a local directory",
	Long: `Render runs the full pipeline once, copies mahina.ps, mahina.pdf and
mahina.png to the output directory and removes the workspace.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return render(context.Background())
	},
}

// render returns instead of exiting so the workspace release and the
// runtime close always run.
func render(ctx context.Context, opts ...mahina.Option) error {
	in, err := renderFlags.input()
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	req, unknown, err := core.ParseRequest(in)
	if err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	for _, u := range unknown {
		slog.Warn("ignoring unknown option", "option", u)
	}

	// The workspace is released right after copying, so nothing needs
	// to outlive this process.
	opts = append([]mahina.Option{
		mahina.WithLogger(slog.Default()),
		mahina.WithStore(retention.NewMemoryStore()),
	}, opts...)
	rt, err := mahina.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("initializing: %w", err)
	}
	defer rt.Close()

	res, err := rt.Pipeline.Run(ctx, req)
	if err != nil {
		if detail := core.Detail(err); detail != "" {
			fmt.Fprintln(os.Stderr, detail)
		}
		return fmt.Errorf("render failed: %w", err)
	}
	defer func() {
		if err := rt.Pipeline.Release(ctx, res.ID); err != nil {
			slog.Warn("failed to release workspace", "error", err)
		}
	}()

	if err := os.MkdirAll(renderOut, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	for _, src := range res.Artifacts.Paths() {
		dst := filepath.Join(renderOut, filepath.Base(src))
		n, err := copyFile(src, dst)
		if err != nil {
			return fmt.Errorf("copying artifact: %w", err)
		}
		fmt.Printf("%s\t%s\n", dst, humanize.Bytes(uint64(n)))
	}
	for _, src := range res.Degraded {
		fmt.Fprintf(os.Stderr, "warning: %s data unavailable, layer left empty\n", src)
	}
	return nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderFlags.register(renderCmd)
	renderCmd.Flags().StringVarP(&renderFlags.background, "background", "b", "", "Background image to composite under the calendar")
	renderCmd.Flags().StringVar(&renderOut, "out", ".", "Output directory")
	_ = renderCmd.MarkFlagRequired("month")
	_ = renderCmd.MarkFlagRequired("year")
}
