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

	"callcenter-gateway/internal/infrastructure/config"
	"callcenter-gateway/internal/infrastructure/events"
	"callcenter-gateway/internal/infrastructure/gateway"
	"callcenter-gateway/internal/infrastructure/logger"
	"callcenter-gateway/internal/infrastructure/metrics"
	"callcenter-gateway/internal/infrastructure/server"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "gateway",
		Short:        "Real-time notification gateway for call-center agent clients",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML or JSON config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept agent websocket connections and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServer(WithSignal(cmd.Context()), cfg)
		},
	}

	root.AddCommand(serveCmd)
	root.RunE = serveCmd.RunE
	return root
}

func runServer(ctx context.Context, cfg *config.Config) error {
	log := logger.NewLogrusLogger(cfg.Log.LoggerConfig())

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.MustNewMetrics(prometheus.DefaultRegisterer)
	}

	gw := gateway.New(gateway.WithLogger(log), gateway.WithMetrics(m))
	subscribeAgentLog(gw, log)

	if err := gw.Start(); err != nil {
		log.Errorf("failed to start gateway: %v", err)
		return err
	}

	router := InitRouter(gw, cfg, log)
	httpSrv := server.NewHTTPServer(router, cfg.Server)
	app := newApplication(log, httpSrv, gw, cfg.Server.ShutdownTimeout)

	log.Infof("gateway listening on %s", cfg.Server.Addr)
	if err := app.Run(ctx); err != nil {
		log.Errorf("failed to run application: %v", err)
		return err
	}
	return nil
}

// subscribeAgentLog records agent state changes so they show up in the
// service log even before any other consumer subscribes.
func subscribeAgentLog(gw *gateway.Gateway, log logger.Logger) {
	agentLog := log.WithField("component", "agents")
	gw.Subscribe(events.EventHello, func(e events.Event) error {
		if conn, ok := e.Connection(); ok {
			agentLog.Infof("client %s said hello", conn.ID())
		}
		return nil
	})
	for _, name := range []string{events.EventPause, events.EventAvail} {
		gw.Subscribe(name, func(e events.Event) error {
			agentID, ok := e.AgentID()
			if !ok {
				return fmt.Errorf("%s without agent id", e.Name())
			}
			agentLog.WithField("agent_id", agentID).Infof("agent state change: %s", e.Name())
			return nil
		})
	}
}

type Application struct {
	logger          logger.Logger
	httpSrv         server.Server
	gateway         *gateway.Gateway
	shutdownTimeout time.Duration
}

func newApplication(
	logger logger.Logger,
	httpSrv *server.HTTPServer,
	gw *gateway.Gateway,
	shutdownTimeout time.Duration,
) *Application {
	return &Application{
		logger:          logger.WithField("app", "gateway"),
		httpSrv:         httpSrv,
		gateway:         gw,
		shutdownTimeout: shutdownTimeout,
	}
}

func (app *Application) Run(ctx context.Context) error {
	eg := errgroup.Group{}

	eg.Go(func() error {
		return app.httpSrv.Start(ctx)
	})

	eg.Go(func() error {
		<-ctx.Done()

		gracefulshutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			app.shutdownTimeout,
		)
		defer cancel()

		// Close client connections before the listener goes away.
		if err := app.gateway.Stop(gracefulshutdownCtx); err != nil {
			app.logger.Errorf("failed to stop gateway: %v", err)
		}

		return app.httpSrv.Stop(gracefulshutdownCtx)
	})

	return eg.Wait()
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
