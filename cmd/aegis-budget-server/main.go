package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/samijaber1/aegis-budget/internal/api"
	"github.com/samijaber1/aegis-budget/internal/app"
	"github.com/samijaber1/aegis-budget/internal/config"
	"github.com/samijaber1/aegis-budget/internal/logging"
	metricsprometheus "github.com/samijaber1/aegis-budget/internal/metrics/prometheus"
)

type flags struct {
	configFile string
	sloFile    string
	listenAddr string
	debug      bool
}

func newFlags(app *kingpin.Application) *flags {
	f := &flags{}
	app.Flag("config", "Runtime configuration file (YAML).").StringVar(&f.configFile)
	app.Flag("slo-config", "SLO definition file, overrides the configuration file.").StringVar(&f.sloFile)
	app.Flag("listen-address", "API listen address, overrides the configuration file.").StringVar(&f.listenAddr)
	app.Flag("debug", "Enable debug logging.").BoolVar(&f.debug)
	return f
}

// Run runs the monitoring server until ctx is cancelled or a termination signal is received.
func Run(ctx context.Context, args []string, stderr io.Writer) error {
	kapp := kingpin.New("aegis-budget-server", "Continuous error budget monitor with an HTTP API.")
	kapp.DefaultEnvars()
	kapp.ErrorWriter(stderr)
	f := newFlags(kapp)

	if _, err := kapp.Parse(args[1:]); err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	cfg, err := config.Read(f.configFile)
	if err != nil {
		return err
	}
	if f.sloFile != "" {
		cfg.SLO.File = f.sloFile
	}
	if f.debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	if f.listenAddr != "" {
		addr = f.listenAddr
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	promReg := prometheus.DefaultRegisterer
	recorder := metricsprometheus.NewRecorder(promReg)

	components, err := app.Build(ctx, cfg, recorder, logger)
	if err != nil {
		return fmt.Errorf("could not build components: %w", err)
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Error("error while releasing components", zap.Error(err))
		}
	}()

	logger.Info("monitoring SLO",
		zap.String("service", components.Definition.Service),
		zap.String("source", cfg.Source.Type),
		zap.Duration("interval", cfg.Monitor.Interval),
		zap.Strings("sinks", components.Dispatcher.Sinks()),
	)

	var g run.Group

	// Handle cancellation.
	{
		// Listen for shutdown signals, when signal received, stop main context to start the graceful shutdown.
		ctx, signalCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		exitC := make(chan struct{})

		g.Add(
			func() error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-exitC:
				}

				return nil
			},
			func(_ error) {
				close(exitC)
			},
		)
	}

	// Monitor.
	{
		stopC := make(chan struct{})

		g.Add(
			func() error {
				if err := components.Monitor.Start(); err != nil {
					return fmt.Errorf("could not start monitor: %w", err)
				}
				<-stopC
				return nil
			},
			func(_ error) {
				close(stopC)
				components.Monitor.Stop()
			},
		)
	}

	// API server.
	{
		server := api.NewServer(components.Monitor, components.Store, api.Options{
			Addr:           addr,
			MetricsHandler: promhttp.Handler(),
			PushInterval:   cfg.Server.PushInterval,
			Logger:         logger,
		})

		g.Add(
			func() error {
				return server.Start()
			},
			func(_ error) {
				ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
				defer cancel()

				if err := server.Shutdown(ctx); err != nil {
					logger.Error("error while shutting down the server", zap.Error(err))
				}
			},
		)
	}

	err = g.Run()
	if err == context.Canceled {
		return nil
	}
	return err
}

func main() {
	ctx := context.Background()
	if err := Run(ctx, os.Args, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
