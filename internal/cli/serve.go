package cli

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/vaultshell/shell"
)

var (
	serveAddr     string
	serveInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep a vault shell warm and export its health and metrics",
	Long: `Start the vault CLI shell and keep it running, restarting it when it
exits. Serves:

  GET /healthz   session state as JSON (503 until ready)
  GET /metrics   Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:9477", "Listen address")
	serveCmd.Flags().DurationVar(&serveInterval, "restart-interval", 30*time.Second, "How often to restart a dead session")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cfg.Logger

	reg := prometheus.NewRegistry()
	sh, err := shell.New(cfg, shell.WithMetrics(shell.NewMetrics(reg)))
	if err != nil {
		return err
	}
	defer sh.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go keepWarm(ctx, sh, serveInterval, logger)

	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           newRouter(sh, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", slog.String("addr", serveAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// stateReporter is the part of *shell.Shell the health handler reads.
type stateReporter interface {
	State() shell.State
}

func newRouter(sh stateReporter, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		state := sh.State()
		w.Header().Set("Content-Type", "application/json")
		if state != shell.StateReady {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"state": state.String()})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

// keepWarm starts the shell now and again whenever it is found dead.
func keepWarm(ctx context.Context, sh *shell.Shell, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if !sh.IsReady() {
			if err := sh.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("vault shell start failed", slog.Any("error", err))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
