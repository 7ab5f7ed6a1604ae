// Package mahina is the composition root of the Hawaiian moon and tide
// calendar service.
//
// A render turns a month, a tide station and a set of feature flags into a
// typeset calendar (PostScript, PDF and PNG), optionally laid over a user
// photo. The work is delegated to external programs: a tide/astronomy
// provider, the pcal typesetter, ImageMagick and Ghostscript.
//
// Features:
//
//   - **Line Normalizer**: provider output becomes typed include directives.
//   - **Definition Resolver**: lunar definitions are discovered over a 36 month
//     window and deduplicated.
//   - **Manifest Builder**: a pure, fixed-order include list per request.
//   - **Pipeline**: typed stages with per-stage timeouts; failed data sources
//     degrade, failed render stages abort and clean up.
//   - **Retention**: finished workspaces stay reachable for a fixed window,
//     then a single sweeper deletes them (memory or SQLite backed).
//
// Usage:
//
//	cfg, err := mahina.LoadConfig("mahina.yaml")
//	rt, err := mahina.New(cfg, mahina.WithLogger(logger))
//	defer rt.Close()
//	_ = rt.Start(ctx)
//
//	res, err := rt.Pipeline.Run(ctx, req)
package mahina
