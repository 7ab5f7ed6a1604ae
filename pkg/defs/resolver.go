// Package defs resolves the symbolic date definitions of the lunar template
// by running the typesetter in definitions-only discovery mode.
package defs

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aretw0/mahina/pkg/core"
)

// DefaultWindow is the number of months scanned by a discovery pass.
const DefaultWindow = 36

// Discoverer runs the discovery invocation and returns its diagnostic text.
type Discoverer interface {
	DiscoverDefinitions(ctx context.Context, defFile string, month, year, months int) (string, error)
}

// Window is the month range scanned by one discovery pass.
type Window struct {
	Month  int
	Year   int
	Months int
}

// WindowFor anchors the scan on the requested month of the previous year.
func WindowFor(month, year int) Window {
	return Window{Month: month, Year: year - 1, Months: DefaultWindow}
}

// Resolver produces the deduplicated definition set for a request.
type Resolver struct {
	Discoverer Discoverer
	Logger     *slog.Logger
}

// NewResolver creates a Resolver. A nil logger falls back to slog.Default().
func NewResolver(d Discoverer, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{Discoverer: d, Logger: logger}
}

// Resolve scans the lunar definitions file around (month, year). A failing
// or silent discovery yields an empty set; it never fails the caller.
func (r *Resolver) Resolve(ctx context.Context, defFile string, month, year int) []core.Definition {
	w := WindowFor(month, year)
	out, err := r.Discoverer.DiscoverDefinitions(ctx, defFile, w.Month, w.Year, w.Months)
	if err != nil {
		r.Logger.Warn("definition discovery failed, continuing without definitions",
			"file", defFile, "month", w.Month, "year", w.Year, "error", err)
		return nil
	}

	parsed, errs := Parse(out)
	for _, e := range errs {
		r.Logger.Warn("discovery output drift", "error", e)
	}
	if len(parsed) == 0 && len(errs) > 0 {
		r.Logger.Error("discovery output unreadable", "lines", len(errs))
	}

	defs := Dedupe(parsed)
	r.Logger.Debug("definitions resolved", "count", len(defs))
	return defs
}

// Dedupe makes names unique in scan order. The first occurrence keeps its
// name; later ones get a numeric suffix (_2, _3, ...). Every occurrence is
// preserved.
func Dedupe(defs []core.Definition) []core.Definition {
	if len(defs) == 0 {
		return nil
	}
	seen := make(map[string]int, len(defs))
	used := make(map[string]bool, len(defs))
	out := make([]core.Definition, 0, len(defs))

	for _, d := range defs {
		seen[d.Name]++
		name := d.Name
		if n := seen[d.Name]; n > 1 || used[name] {
			for i := max(n, 2); ; i++ {
				name = d.Name + "_" + strconv.Itoa(i)
				if !used[name] {
					break
				}
			}
		}
		used[name] = true
		out = append(out, core.Definition{Name: name, Date: d.Date})
	}
	return out
}

// Render writes one `def <name> <date>` statement per line.
func Render(defs []core.Definition) string {
	var b strings.Builder
	for _, d := range defs {
		b.WriteString(d.Statement())
		b.WriteByte('\n')
	}
	return b.String()
}
