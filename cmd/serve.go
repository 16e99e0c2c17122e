package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/agristat/internal/api"
	"github.com/sells-group/agristat/internal/cache"
	"github.com/sells-group/agristat/internal/fixture"
	"github.com/sells-group/agristat/internal/resilience"
	"github.com/sells-group/agristat/internal/snapshot"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the statistics API",
	Long:  "Loads the initial snapshot, then serves the HTTP API. SIGHUP, a fixture rewrite or POST /api/admin/reload publish a fresh snapshot.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		src, err := openSource(ctx)
		if err != nil {
			return err
		}
		defer src.Close()

		mgr := snapshot.NewManager(src.Loader, snapshotOptions())
		err = resilience.Retry(ctx, startupPolicy("initial snapshot"), func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, reloadTimeout())
			defer cancel()
			_, err := mgr.Reload(ctx)
			return err
		})
		if err != nil {
			return eris.Wrap(err, "initial snapshot")
		}

		respCache, err := cache.New(cache.Options{
			Driver:     cfg.Cache.Driver,
			MaxEntries: cfg.Cache.MaxEntries,
			TTL:        cfg.Cache.TTL(),
			RedisURL:   cfg.Cache.RedisURL,
		})
		if err != nil {
			return eris.Wrap(err, "init cache")
		}
		if c, ok := respCache.(io.Closer); ok {
			defer c.Close() //nolint:errcheck
		}

		srv := api.NewServer(mgr, respCache, api.Options{
			CORSOrigins:   cfg.Server.CORSOrigins,
			RateLimit:     cfg.Server.RateLimit,
			RateBurst:     cfg.Server.RateBurst,
			EvolutionFrom: cfg.Stats.EvolutionFrom,
			EvolutionTo:   cfg.Stats.EvolutionTo,
			TopProducts:   cfg.Stats.TopProducts,
			AdminToken:    cfg.Server.AdminToken,
			ReloadTimeout: reloadTimeout(),
		})
		if src.Store != nil {
			srv.WithFactWriter(src.Store)
		}

		go reloadOnHangup(ctx, srv)

		if cfg.Store.Driver == "file" && cfg.Snapshot.WatchFixture {
			w, err := fixture.NewWatcher(cfg.Store.FixturePath, fixture.DefaultDebounce)
			if err != nil {
				return eris.Wrap(err, "watch fixture")
			}
			w.OnChange(func(path string) {
				zap.L().Info("fixture changed, reloading", zap.String("path", path))
				reload(ctx, srv)
			})
			w.Start()
			defer w.Stop() //nolint:errcheck
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.String("store", cfg.Store.Driver))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// reloadOnHangup publishes a fresh snapshot on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, srv *api.Server) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			zap.L().Info("SIGHUP received, reloading")
			reload(ctx, srv)
		}
	}
}

func reload(ctx context.Context, srv *api.Server) {
	if _, err := srv.Reload(ctx); err != nil {
		zap.L().Error("reload failed, previous snapshot still active", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
