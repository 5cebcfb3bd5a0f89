// Package main runs the content push server.
//
// Usage:
//
//	content-push                      # serve on :3000
//	content-push --port 8080          # override the port
//	content-push --env-file prod.env  # load settings from a file
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go-content-push/internal/domain/content"
	"go-content-push/internal/infrastructure/config"
	"go-content-push/internal/infrastructure/hub"
	"go-content-push/internal/infrastructure/logger"
	"go-content-push/internal/infrastructure/metrics"
	"go-content-push/internal/infrastructure/server"
)

var rootCmd = &cobra.Command{
	Use:   "content-push",
	Short: "Push shared content to browsers over SSE, WebSocket and polling",
	Long: `content-push keeps one piece of shared content (an image URL and a
message), replaces it at random intervals and pushes every change to
connected clients.

Endpoints:
  GET /events        Server-Sent Events stream
  GET /ws            WebSocket (any unmatched path also accepts upgrades)
  GET /random        current content
  GET /polling       current content
  GET /long-polling  held until the next update or the long-poll timeout

Every flag can also be set through the environment or an .env file, e.g.
PORT=8080 or LONG_POLL_TIMEOUT=10s.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("env-file", ".env", "optional .env file")
	flags.Int("port", 3000, "HTTP port")
	flags.String("http-addr", "", "listen address, overrides --port")
	flags.Duration("update-min-interval", hub.DefaultMinInterval, "minimum delay between updates")
	flags.Duration("update-max-interval", hub.DefaultMaxInterval, "maximum delay between updates")
	flags.Duration("long-poll-timeout", hub.DefaultLongPollTimeout, "how long /long-polling holds a request")
	flags.String("static-dir", "client", "directory of static client files")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("log-format", "console", "console, text or json")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.NewLogrusLogger(cfg.LoggerConfig())

	var reg *prometheus.Registry
	opts := []hub.Option{
		hub.WithUpdateInterval(cfg.UpdateMinInterval, cfg.UpdateMaxInterval),
		hub.WithLongPollTimeout(cfg.LongPollTimeout),
		hub.WithGenerator(content.NewGenerator(cfg.ImageBaseURL, cfg.Messages, nil)),
	}
	if cfg.MetricsEnabled {
		reg = metrics.NewRegistry()
		opts = append(opts, hub.WithMetrics(metrics.New(reg)))
	}

	ctx := WithSignal(cmd.Context())
	hubInstance := hub.New(log, opts...)
	if err := hubInstance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	router := InitRouter(hubInstance, cfg, reg, log)
	httpSrv := server.NewHTTPServer(cfg.HTTPAddr, router, log)
	app := newApplication(log, httpSrv, hubInstance, cfg.ShutdownTimeout)
	if err := app.Run(ctx); err != nil {
		log.Errorf("failed to run application: %v", err)
		return err
	}
	return nil
}

type Application struct {
	logger          logger.Logger
	httpSrv         server.Server
	hub             *hub.Hub
	shutdownTimeout time.Duration
}

func newApplication(
	logger logger.Logger,
	httpSrv server.Server,
	hubInstance *hub.Hub,
	shutdownTimeout time.Duration,
) *Application {
	return &Application{
		logger:          logger.WithField("app", "content-push"),
		httpSrv:         httpSrv,
		hub:             hubInstance,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run serves until ctx is cancelled, then stops the hub before the HTTP
// server so held long-polls are answered and streams end cleanly.
func (app *Application) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return app.httpSrv.Start(ctx)
	})

	eg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout)
		defer cancel()

		if err := app.hub.Stop(shutdownCtx); err != nil {
			app.logger.Errorf("failed to stop hub: %v", err)
		}

		return app.httpSrv.Stop(shutdownCtx)
	})

	return eg.Wait()
}

func WithSignal(pctx context.Context) context.Context {
	if pctx == nil {
		pctx = context.Background()
	}
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)

		select {
		case <-sigc:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx
}
