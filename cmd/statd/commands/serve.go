package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/libstat/builtin"
	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/logger"
	"github.com/teranos/libstat/loop"
	"github.com/teranos/libstat/stat"
)

// ServeCmd keeps a process-wide context open until interrupted
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep a context open, expose metrics, reload on change",
	Long: `Bootstrap the configuration into the process-wide stat context and keep
it open. Periodic backend tasks run on the shared runtime, prometheus
metrics are served on metrics.listen, and the context is rebuilt whenever
the configuration file changes.

Press Ctrl+C to shut down.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveWatch bool

func init() {
	ServeCmd.Flags().BoolVar(&serveWatch, "watch", true, "Rebuild the context when the config file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	path := ConfigPath
	if path == "" {
		path = config.ConfigFileName
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return err
	}

	reg, err := builtin.NewRegistry(logger.Logger)
	if err != nil {
		return err
	}

	if err := stat.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	rt := loop.New(cmd.Context())
	statLog := logger.Logger.Named("stat")
	sc, err := stat.Open(reg, cfg, rt, statLog)
	if err != nil {
		_ = rt.Stop()
		printHints(err)
		return err
	}
	defer func() {
		stat.Shutdown()
		if err := rt.Stop(); err != nil {
			logger.Warnw("Runtime stopped with error", logger.FieldError, err)
		}
	}()

	if serveWatch {
		watcher, err := config.NewConfigWatcher(path, logger.Logger)
		if err != nil {
			return err
		}
		watcher.OnReload(func(next *config.Config) error {
			_, err := stat.Reload(reg, next, rt, statLog)
			if err != nil {
				printHints(err)
				return errors.Wrap(err, "keeping previous configuration")
			}
			return nil
		})
		watcher.Start()
		defer watcher.Stop()
	}

	errChan := make(chan error, 1)
	var srv *http.Server
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
		logger.Infow("Serving metrics", logger.FieldAddress, cfg.Metrics.Listen)
	}

	pterm.Success.Printf("statd running with %d statfiles\n", len(sc.Statfiles()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "metrics server failed")
	case <-sigChan:
		pterm.Info.Println("Shutting down")
	case <-rt.Context().Done():
	}

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warnw("Metrics server shutdown failed", logger.FieldError, err)
		}
	}
	return nil
}
