package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/mahina"
	"github.com/aretw0/mahina/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Serve accepts calendar requests on POST /generate and exposes the
rendered artifacts under the public prefix until the retention window ends.`,
	Run: func(cmd *cobra.Command, args []string) {
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		if err := serve(cmd.Context()); err != nil {
			fatal("Server error", err)
		}
	},
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	rt, err := mahina.New(cfg, mahina.WithLogger(logger))
	if err != nil {
		return err
	}
	defer rt.Close()

	g, gctx := errgroup.WithContext(ctx)
	if err := rt.Start(gctx); err != nil {
		return err
	}

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	h := server.NewHandler(rt.Pipeline, rt.Store, logger)
	h.State = rt
	h.MaxUploadBytes = cfg.Server.MaxUploadBytes
	h.PublicPrefix = cfg.Server.PublicPrefix

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("HTTP server listening",
			"addr", srv.Addr,
			"data_dir", cfg.DataDir,
			"store", cfg.Store.Backend,
			"retention", cfg.Retention,
			"max_upload", humanize.IBytes(uint64(cfg.Server.MaxUploadBytes)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}
