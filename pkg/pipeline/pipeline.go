// Package pipeline sequences one calendar render: data fetch, normalization,
// workspace preparation, definition discovery, typesetting, rasterization,
// optional background compositing and exposure.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/introspection"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/mahina/pkg/core"
	"github.com/aretw0/mahina/pkg/defs"
	"github.com/aretw0/mahina/pkg/manifest"
	"github.com/aretw0/mahina/pkg/normalize"
	"github.com/aretw0/mahina/pkg/retention"
	"github.com/aretw0/mahina/pkg/tools"
	"github.com/aretw0/mahina/pkg/workspace"
)

// Static and intermediate workspace files.
const (
	TemplateFile     = "calendar.dat"
	LunarDefsFile    = "mahina.def"
	MaskFile         = "mask.png"
	BackgroundFile   = "userbg.jpg"
	CanvasFile       = "bg.jpg"
	MaskedCanvasFile = "bg_masked.jpg"
)

// Pipeline renders calendars. It is safe for concurrent use; each Run owns
// its own workspace.
type Pipeline struct {
	tools      *tools.Toolchain
	resolver   *defs.Resolver
	workspaces *workspace.Manager
	store      retention.Store

	retention    time.Duration
	publicPrefix string
	timeouts     Timeouts
	logger       *slog.Logger
	now          func() time.Time

	inFlight  atomic.Int64
	runs      atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	degraded  atomic.Int64
}

// New creates a Pipeline.
func New(tc *tools.Toolchain, workspaces *workspace.Manager, store retention.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		tools:        tc,
		workspaces:   workspaces,
		store:        store,
		retention:    retention.DefaultWindow,
		publicPrefix: "/tmp",
		timeouts:     DefaultTimeouts(),
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.resolver = defs.NewResolver(tc, p.logger)
	return p
}

// Result describes the outcome of one Run.
type Result struct {
	ID    string
	State core.State
	// Trace lists every state entered, in order. Skipped stages are absent.
	Trace       []core.State
	Dir         string
	Artifacts   core.Artifacts
	Links       core.Links
	ExpiresAt   time.Time
	Degraded    []core.SourceKind
	Definitions []core.Definition
	Err         error
}

// Run renders req. A non-nil error means the run ended in StateError; the
// Result is returned in both cases. Partial artifacts of a failed run are
// removed before Run returns.
func (p *Pipeline) Run(ctx context.Context, req core.Request) (*Result, error) {
	p.runs.Add(1)
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	logger := p.logger
	if trace := TraceID(ctx); trace != "" {
		logger = logger.With("trace_id", trace)
	}
	r := &run{p: p, req: req, logger: logger, res: &Result{}}
	r.enter(core.StateInit)

	if err := req.Validate(); err != nil {
		return r.fail(err)
	}

	ws, err := p.workspaces.Acquire(ctx)
	if err != nil {
		return r.fail(err)
	}
	r.ws = ws
	r.res.ID = ws.ID
	r.res.Dir = ws.Path
	r.logger = logger.With("request_id", ws.ID)
	r.logger.Info("render started",
		"month", req.MonthString(), "year", req.Year,
		"station", req.Station, "features", req.Features.String(),
		"background", req.HasBackground())

	for _, st := range p.stages() {
		if st.when != nil && !st.when(r) {
			continue
		}
		r.enter(st.state)

		sctx, cancel := ctx, context.CancelFunc(func() {})
		if st.timeout > 0 {
			sctx, cancel = context.WithTimeout(ctx, st.timeout)
		}
		err := st.run(r, sctx)
		cancel()
		if err != nil {
			return r.fail(&core.StageError{Stage: st.state, Err: err})
		}
	}

	r.enter(core.StateDone)
	p.succeeded.Add(1)
	if len(r.res.Degraded) > 0 {
		p.degraded.Add(1)
	}
	r.logger.Info("render finished", "expires_at", r.res.ExpiresAt, "degraded", r.res.Degraded)
	return r.res, nil
}

type traceKey struct{}

// ContextWithTraceID tags ctx with a caller's trace id. Run logs it next to
// the request_id of the workspace it acquires.
func ContextWithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceID returns the trace id carried by ctx, if any.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// Release withdraws an exposure early and removes its workspace.
func (p *Pipeline) Release(ctx context.Context, id string) error {
	if err := p.store.Delete(ctx, id); err != nil {
		return err
	}
	return p.workspaces.Remove(id)
}

// stage is one typed step of the state machine.
type stage struct {
	state   core.State
	timeout time.Duration
	// when gates optional stages; nil means always.
	when func(*run) bool
	run  func(*run, context.Context) error
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{state: core.StateDataFetch, run: (*run).fetch},
		{state: core.StateNormalize, run: (*run).normalize},
		{state: core.StateWriteWorkspace, run: (*run).writeWorkspace},
		{state: core.StateDefinitionDiscovery, timeout: p.timeouts.Discovery, run: (*run).discover},
		{state: core.StateTypeset, timeout: p.timeouts.Typeset, run: (*run).typeset},
		{state: core.StateRasterize, timeout: p.timeouts.Rasterize, run: (*run).rasterize},
		{
			state:   core.StateBackgroundComposite,
			timeout: p.timeouts.Composite,
			when:    func(r *run) bool { return r.req.HasBackground() },
			run:     (*run).composite,
		},
		{state: core.StateFinalize, run: (*run).finalize},
	}
}

// run is the mutable state of a single render.
type run struct {
	p      *Pipeline
	req    core.Request
	ws     *workspace.Workspace
	logger *slog.Logger
	res    *Result

	raw   map[core.SourceKind]string
	lines map[core.SourceKind][]core.DataLine
}

func (r *run) enter(s core.State) {
	r.res.State = s
	r.res.Trace = append(r.res.Trace, s)
	if r.ws != nil {
		r.logger.Debug("stage", "state", s.String())
	}
}

func (r *run) fail(err error) (*Result, error) {
	failedIn := r.res.State
	r.enter(core.StateError)
	r.res.Err = err
	r.p.failed.Add(1)

	if core.IsValidation(err) {
		r.logger.Warn("render rejected", "error", err)
		return r.res, err
	}

	r.logger.Error("render failed", "stage", failedIn.String(), "error", err, "detail", core.Detail(err))
	if r.ws != nil {
		// Only Finalize records an exposure, but a failed Put may leave a row.
		if derr := r.p.store.Delete(context.Background(), r.ws.ID); derr != nil {
			r.logger.Warn("failed to withdraw exposure", "error", derr)
		}
		if rerr := r.ws.Release(); rerr != nil {
			r.logger.Warn("failed to release workspace", "error", rerr)
		}
	}
	return r.res, err
}

// fetch queries the provider for every enabled source concurrently. A
// failed source degrades to no data; it never fails the run.
func (r *run) fetch(ctx context.Context) error {
	r.raw = make(map[core.SourceKind]string, len(core.Sources))
	if r.req.Station == "" {
		r.logger.Debug("no station, skipping data fetch")
		return nil
	}

	var (
		mu     sync.Mutex
		failed = make(map[core.SourceKind]bool)
		g      errgroup.Group
	)
	for _, src := range core.Sources {
		if !r.req.Features.Has(src.Feature()) {
			continue
		}
		g.Go(func() error {
			fctx := ctx
			if t := r.p.timeouts.Fetch; t > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(ctx, t)
				defer cancel()
			}
			out, err := r.p.tools.FetchAstro(fctx, tools.AstroQuery{
				Source:  src,
				Station: r.req.Station,
				Begin:   r.req.Start(),
				End:     r.req.End(),
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[src] = true
				r.logger.Warn("data source degraded", "source", string(src), "error", err, "detail", core.Detail(err))
				return nil
			}
			r.raw[src] = out
			return nil
		})
	}
	_ = g.Wait()

	for _, src := range core.Sources {
		if failed[src] {
			r.res.Degraded = append(r.res.Degraded, src)
		}
	}
	return nil
}

func (r *run) normalize(context.Context) error {
	r.lines = make(map[core.SourceKind][]core.DataLine, len(core.Sources))
	for _, src := range core.Sources {
		if !r.req.Features.Has(src.Feature()) {
			continue
		}
		r.lines[src] = normalize.Output(src, r.raw[src])
		r.logger.Debug("normalized", "source", string(src), "lines", len(r.lines[src]))
	}
	return nil
}

func (r *run) writeWorkspace(context.Context) error {
	if err := r.ws.Seed(); err != nil {
		return err
	}
	for _, src := range core.Sources {
		if err := r.ws.WriteFile(src.DataFile(), []byte(normalize.Render(r.lines[src]))); err != nil {
			return err
		}
	}

	custom := manifest.ExpandCustomText(r.req.CustomText, r.req.Features.Has(core.FeatureCustom))
	if err := r.ws.WriteFile(manifest.CustomFile, []byte(custom+"\n")); err != nil {
		return err
	}
	m := manifest.ForRequest(r.req, custom)
	if err := r.ws.WriteFile(manifest.FileName, []byte(m.String())); err != nil {
		return err
	}
	r.logger.Debug("manifest written", "includes", strings.Join(m.Includes(), ","))

	if r.req.HasBackground() {
		if err := r.ws.WriteFile(BackgroundFile, r.req.Background); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) discover(ctx context.Context) error {
	found := r.p.resolver.Resolve(ctx, r.ws.Join(LunarDefsFile), r.req.Month, r.req.Year)
	r.res.Definitions = found
	return r.ws.WriteFile(manifest.DefinitionsFile, []byte(defs.Render(found)))
}

func (r *run) typeset(ctx context.Context) error {
	a := core.NewArtifacts(r.ws.Path)
	if err := r.p.tools.Typeset(ctx, r.ws.Path, r.ws.Join(TemplateFile), a.PostScript, r.req.Month, r.req.Year); err != nil {
		return err
	}
	return r.expect(core.ArtifactPostScript)
}

// rasterize renders the PDF and the image from the typeset document. With
// a background the image keeps a transparent page for compositing.
func (r *run) rasterize(ctx context.Context) error {
	a := core.NewArtifacts(r.ws.Path)
	if err := r.p.tools.RenderPDF(ctx, r.ws.Path, a.PostScript, a.PDF); err != nil {
		return err
	}
	if err := r.p.tools.Rasterize(ctx, r.ws.Path, a.PostScript, a.PNG, r.req.HasBackground()); err != nil {
		return err
	}
	return r.expect(core.ArtifactPDF, core.ArtifactPNG)
}

func (r *run) composite(ctx context.Context) error {
	a := core.NewArtifacts(r.ws.Path)
	tc := r.p.tools
	if err := tc.FitCanvas(ctx, r.ws.Path, r.ws.Join(BackgroundFile), r.ws.Join(CanvasFile)); err != nil {
		return err
	}
	if err := tc.Composite(ctx, r.ws.Path, r.ws.Join(MaskFile), r.ws.Join(CanvasFile), r.ws.Join(MaskedCanvasFile)); err != nil {
		return err
	}
	if err := tc.Composite(ctx, r.ws.Path, a.PNG, r.ws.Join(MaskedCanvasFile), a.PNG); err != nil {
		return err
	}
	return r.expect(core.ArtifactPNG)
}

func (r *run) finalize(ctx context.Context) error {
	if err := r.expect(core.ArtifactNames...); err != nil {
		return err
	}
	expires := r.p.now().Add(r.p.retention)
	if err := r.p.store.Put(ctx, retention.Entry{ID: r.ws.ID, Path: r.ws.Path, ExpiresAt: expires}); err != nil {
		return err
	}
	r.res.Artifacts = core.NewArtifacts(r.ws.Path)
	r.res.Links = core.NewLinks(strings.TrimRight(r.p.publicPrefix, "/") + "/" + r.ws.ID)
	r.res.ExpiresAt = expires
	return nil
}

// expect fails when a tool exited cleanly without producing its output.
func (r *run) expect(names ...string) error {
	for _, n := range names {
		if !r.ws.Exists(n) {
			return fmt.Errorf("expected output %s was not produced", n)
		}
	}
	return nil
}

// PipelineState exposes run counters for observability.
type PipelineState struct {
	InFlight  int64         `json:"in_flight"`
	Runs      int64         `json:"runs"`
	Succeeded int64         `json:"succeeded"`
	Failed    int64         `json:"failed"`
	Degraded  int64         `json:"degraded"`
	Retention time.Duration `json:"retention"`
	Timeouts  Timeouts      `json:"timeouts"`
}

// State implements introspection.Introspectable.
func (p *Pipeline) State() any {
	return PipelineState{
		InFlight:  p.inFlight.Load(),
		Runs:      p.runs.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Degraded:  p.degraded.Load(),
		Retention: p.retention,
		Timeouts:  p.timeouts,
	}
}

// ComponentType implements introspection.Component.
func (p *Pipeline) ComponentType() string { return "pipeline" }

var _ introspection.Introspectable = (*Pipeline)(nil)
var _ introspection.Component = (*Pipeline)(nil)
