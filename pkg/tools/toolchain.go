package tools

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aretw0/mahina/pkg/core"
)

// Binaries names the executables of every external tool.
type Binaries struct {
	Tide        string `yaml:"tide"`
	Pcal        string `yaml:"pcal"`
	Convert     string `yaml:"convert"`
	Composite   string `yaml:"composite"`
	Ghostscript string `yaml:"gs"`
}

// DefaultBinaries expects every tool on PATH.
func DefaultBinaries() Binaries {
	return Binaries{
		Tide:        "tide",
		Pcal:        "pcal",
		Convert:     "convert",
		Composite:   "composite",
		Ghostscript: "gs",
	}
}

// Raster holds the rasterization and canvas parameters.
type Raster struct {
	Density int `yaml:"density"`
	Rotate  int `yaml:"rotate"`
	Width   int `yaml:"width"`
	Height  int `yaml:"height"`
	Quality int `yaml:"quality"`
}

// DefaultRaster renders at 300 dpi onto an 11x17 inch canvas.
func DefaultRaster() Raster {
	return Raster{Density: 300, Rotate: 90, Width: 3300, Height: 5100, Quality: 85}
}

func (r Raster) geometry() string { return fmt.Sprintf("%dx%d", r.Width, r.Height) }

// Toolchain builds and runs the invocations of each external tool.
type Toolchain struct {
	Runner Runner
	Bin    Binaries
	Raster Raster
}

// NewToolchain creates a Toolchain.
func NewToolchain(r Runner, bin Binaries, raster Raster) *Toolchain {
	return &Toolchain{Runner: r, Bin: bin, Raster: raster}
}

// AstroQuery selects one source's events for a station and date range.
type AstroQuery struct {
	Source  core.SourceKind
	Station string
	Begin   time.Time
	End     time.Time
}

const providerTimeLayout = "2006-01-02 15:04"

// FetchAstro runs the tide/astronomy provider for one source and returns
// its raw output.
func (t *Toolchain) FetchAstro(ctx context.Context, q AstroQuery) (string, error) {
	res, err := t.Runner.Run(ctx, Command{
		Name: t.Bin.Tide,
		Args: []string{
			"-b", q.Begin.Format(providerTimeLayout),
			"-e", q.End.Format(providerTimeLayout),
			"-l", q.Station,
			"-df", "%m/%d/%Y",
			"-tf", q.Source.Prefix() + ":%l:%M%p",
			"-em", q.Source.Mask(),
		},
	})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// DiscoverDefinitions runs the typesetter in definitions-only mode with its
// output discarded, returning the diagnostic listing.
func (t *Toolchain) DiscoverDefinitions(ctx context.Context, defFile string, month, year, months int) (string, error) {
	res, err := t.Runner.Run(ctx, Command{
		Name: t.Bin.Pcal,
		Args: []string{
			"-o", os.DevNull,
			"-f", defFile,
			"-ZT",
			strconv.Itoa(month), strconv.Itoa(year), strconv.Itoa(months),
		},
	})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// Typeset renders one month of the calendar template to PostScript. The
// template's relative includes resolve against dir.
func (t *Toolchain) Typeset(ctx context.Context, dir, template, output string, month, year int) error {
	_, err := t.Runner.Run(ctx, Command{
		Name: t.Bin.Pcal,
		Args: []string{"-f", template, "-o", output, strconv.Itoa(month), strconv.Itoa(year), "1"},
		Dir:  dir,
	})
	return err
}

// RenderPDF converts PostScript to PDF.
func (t *Toolchain) RenderPDF(ctx context.Context, dir, ps, pdf string) error {
	_, err := t.Runner.Run(ctx, Command{
		Name: t.Bin.Ghostscript,
		Args: []string{"-q", "-dNOPAUSE", "-dBATCH", "-sDEVICE=pdfwrite", "-sOutputFile=" + pdf, ps},
		Dir:  dir,
	})
	return err
}

// Rasterize renders PostScript to a rotated high resolution image. With
// transparent set, white becomes transparent so the result can be laid over
// a background.
func (t *Toolchain) Rasterize(ctx context.Context, dir, ps, png string, transparent bool) error {
	var args []string
	if transparent {
		args = append(args, "-transparent", "white",
			"-rotate", strconv.Itoa(t.Raster.Rotate),
			"-density", strconv.Itoa(t.Raster.Density))
	} else {
		args = append(args,
			"-density", strconv.Itoa(t.Raster.Density),
			"-rotate", strconv.Itoa(t.Raster.Rotate))
	}
	args = append(args, ps, png)

	_, err := t.Runner.Run(ctx, Command{Name: t.Bin.Convert, Args: args, Dir: dir})
	return err
}

// FitCanvas resamples and crops an image to the fixed canvas size.
func (t *Toolchain) FitCanvas(ctx context.Context, dir, src, dst string) error {
	g := t.Raster.geometry()
	_, err := t.Runner.Run(ctx, Command{
		Name: t.Bin.Convert,
		Args: []string{
			"-sample", g,
			"-crop", g + "+0+0",
			"-quality", strconv.Itoa(t.Raster.Quality),
			src, dst,
		},
		Dir: dir,
	})
	return err
}

// Composite lays overlay over base with src-over and writes out.
func (t *Toolchain) Composite(ctx context.Context, dir, overlay, base, out string) error {
	_, err := t.Runner.Run(ctx, Command{
		Name: t.Bin.Composite,
		Args: []string{"-compose", "src-over", overlay, base, out},
		Dir:  dir,
	})
	return err
}
