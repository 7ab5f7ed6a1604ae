// Package toolstest provides a scripted tools.Runner that stands in for the
// external programs in tests.
package toolstest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/aretw0/mahina/pkg/core"
	"github.com/aretw0/mahina/pkg/tools"
)

// Invocation keys, as returned by Key.
const (
	KeyTypeset   = "pcal:typeset"
	KeyDiscover  = "pcal:discover"
	KeyPDF       = "gs"
	KeyRaster    = "convert:raster"
	KeyFitCanvas = "convert:fit"
	KeyComposite = "composite"
)

// FetchKey is the invocation key of a provider query for src.
func FetchKey(src core.SourceKind) string { return "tide:" + string(src) }

// Fake answers provider and discovery queries from canned output and
// writes a placeholder for every file a render command would produce.
type Fake struct {
	// Astro is the provider output per source.
	Astro map[core.SourceKind]string
	// Discovery is the definitions listing.
	Discovery string
	// Fail makes the invocations with these keys exit non-zero.
	Fail map[string]bool
	// SkipOutput makes these invocations succeed without writing output.
	SkipOutput map[string]bool

	mu    sync.Mutex
	calls []tools.Command
}

// Key classifies a command.
func Key(cmd tools.Command) string {
	switch cmd.Name {
	case "tide":
		if i := slices.Index(cmd.Args, "-tf"); i >= 0 && i+1 < len(cmd.Args) {
			prefix, _, _ := strings.Cut(cmd.Args[i+1], ":")
			return "tide:" + strings.TrimSuffix(prefix, "data")
		}
		return "tide"
	case "pcal":
		if slices.Contains(cmd.Args, "-ZT") {
			return KeyDiscover
		}
		return KeyTypeset
	case "convert":
		if slices.Contains(cmd.Args, "-sample") {
			return KeyFitCanvas
		}
		return KeyRaster
	}
	return cmd.Name
}

// Run implements tools.Runner.
func (f *Fake) Run(ctx context.Context, cmd tools.Command) (tools.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return tools.Result{ExitCode: -1}, &tools.Error{Command: cmd, ExitCode: -1, Err: err}
	}

	key := Key(cmd)
	if f.Fail[key] {
		return tools.Result{ExitCode: 1, Stderr: key + ": simulated failure"}, &tools.Error{
			Command:  cmd,
			ExitCode: 1,
			Output:   key + ": simulated failure",
			Err:      errors.New("exit status 1"),
		}
	}

	switch key {
	case FetchKey(core.SourceTide), FetchKey(core.SourceSun), FetchKey(core.SourceMoon):
		src := core.SourceKind(strings.TrimPrefix(key, "tide:"))
		return tools.Result{Stdout: f.Astro[src]}, nil
	case KeyDiscover:
		return tools.Result{Stdout: f.Discovery}, nil
	}

	if out := outputOf(cmd); out != "" && !f.SkipOutput[key] {
		if !filepath.IsAbs(out) {
			out = filepath.Join(cmd.Dir, out)
		}
		if err := os.WriteFile(out, []byte("fake "+key+"\n"), 0o644); err != nil {
			return tools.Result{ExitCode: 1}, &tools.Error{Command: cmd, ExitCode: 1, Output: err.Error(), Err: err}
		}
	}
	return tools.Result{}, nil
}

func outputOf(cmd tools.Command) string {
	switch cmd.Name {
	case "pcal":
		if i := slices.Index(cmd.Args, "-o"); i >= 0 && i+1 < len(cmd.Args) {
			return cmd.Args[i+1]
		}
	case "gs":
		for _, a := range cmd.Args {
			if v, ok := strings.CutPrefix(a, "-sOutputFile="); ok {
				return v
			}
		}
	default:
		if len(cmd.Args) > 0 {
			return cmd.Args[len(cmd.Args)-1]
		}
	}
	return ""
}

// Calls returns the recorded commands in order.
func (f *Fake) Calls() []tools.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Keys returns the keys of the recorded commands in order.
func (f *Fake) Keys() []string {
	var keys []string
	for _, c := range f.Calls() {
		keys = append(keys, Key(c))
	}
	return keys
}

var _ tools.Runner = (*Fake)(nil)
