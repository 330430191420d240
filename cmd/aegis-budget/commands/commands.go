package commands

import (
	"context"
	"io"

	"go.uber.org/zap"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/samijaber1/aegis-budget/internal/config"
)

const (
	// LoggerTypeConsole is the logger console type.
	LoggerTypeConsole = "console"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"

	// OutputText renders human readable reports.
	OutputText = "text"
	// OutputJSON renders reports as JSON.
	OutputJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context, config RootConfig) error
}

// RootConfig represents the root command configuration and global configuration
// for all the commands.
type RootConfig struct {
	// Global flags.
	ConfigFile string
	SLOFile    string
	Source     string
	Fixture    string
	Prometheus string
	Database   string
	Debug      bool
	NoLog      bool
	LoggerType string

	// Global instances.
	Stdout io.Writer
	Stderr io.Writer
	Logger *zap.Logger
}

// NewRootConfig initializes the main root configuration.
func NewRootConfig(app *kingpin.Application) *RootConfig {
	c := &RootConfig{}

	// Register.
	app.Flag("config", "Runtime configuration file (YAML).").StringVar(&c.ConfigFile)
	app.Flag("slo-config", "SLO definition file, overrides the configuration file.").StringVar(&c.SLOFile)
	app.Flag("source", "Time-series source, overrides the configuration file.").EnumVar(&c.Source, "prometheus", "synthetic", "cloudmonitoring")
	app.Flag("fixture", "Synthetic fixture file.").StringVar(&c.Fixture)
	app.Flag("prometheus", "Prometheus URL, overrides the configuration file.").StringVar(&c.Prometheus)
	app.Flag("db", "History database path, overrides the configuration file.").StringVar(&c.Database)
	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeConsole).EnumVar(&c.LoggerType, LoggerTypeConsole, LoggerTypeJSON)

	return c
}

// LoadConfig loads the runtime configuration and applies flag overrides
func (c RootConfig) LoadConfig() (*config.Config, error) {
	cfg, err := config.Read(c.ConfigFile)
	if err != nil {
		return nil, err
	}

	if c.SLOFile != "" {
		cfg.SLO.File = c.SLOFile
	}
	if c.Source != "" {
		cfg.Source.Type = c.Source
	}
	if c.Fixture != "" {
		cfg.Source.Fixture = c.Fixture
	}
	if c.Prometheus != "" {
		cfg.Source.PrometheusURL = c.Prometheus
	}
	if c.Database != "" {
		cfg.Storage.Path = c.Database
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
