package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AEGIS_MONITOR_INTERVAL
const EnvPrefix = "AEGIS"

// Source types
const (
	SourcePrometheus      = "prometheus"
	SourceSynthetic       = "synthetic"
	SourceCloudMonitoring = "cloudmonitoring"
)

// Config holds runtime configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	SLO      SLOConfig      `mapstructure:"slo"`
	Source   SourceConfig   `mapstructure:"source"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host                    string        `mapstructure:"host"`
	Port                    int           `mapstructure:"port" validate:"min=1,max=65535"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout" validate:"gt=0"`
	PushInterval            time.Duration `mapstructure:"push_interval" validate:"gt=0"`
}

// SLOConfig locates the SLO definition
type SLOConfig struct {
	File string `mapstructure:"file" validate:"required"`
}

// SourceConfig selects and configures the time-series source
type SourceConfig struct {
	Type           string        `mapstructure:"type" validate:"oneof=prometheus synthetic cloudmonitoring"`
	Step           time.Duration `mapstructure:"step" validate:"gt=0"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout" validate:"gt=0"`
	Parallelism    int           `mapstructure:"parallelism" validate:"min=1"`
	PrometheusURL  string        `mapstructure:"prometheus_url" validate:"omitempty,url"`
	MaxConcurrency int           `mapstructure:"max_concurrency" validate:"min=1"`
	RetryCount     int           `mapstructure:"retry_count" validate:"min=0"`
	Fixture        string        `mapstructure:"fixture"`
	Project        string        `mapstructure:"project"`
	Reduce         bool          `mapstructure:"reduce"`
}

// StorageConfig locates the history database
type StorageConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// MonitorConfig holds continuous monitoring settings
type MonitorConfig struct {
	Interval      time.Duration `mapstructure:"interval" validate:"gte=1s"`
	LookbackHours int           `mapstructure:"lookback_hours" validate:"min=1"`
	TickTimeout   time.Duration `mapstructure:"tick_timeout" validate:"gt=0"`
}

// AlertingConfig configures the optional alert sinks. A sink is enabled when
// its address is set.
type AlertingConfig struct {
	WebhookURL     string        `mapstructure:"webhook_url" validate:"omitempty,url"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout" validate:"gt=0"`
	Email          EmailConfig   `mapstructure:"email"`
	NATS           NATSConfig    `mapstructure:"nats"`
}

// EmailConfig holds SMTP settings
type EmailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port" validate:"min=1,max=65535"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from" validate:"omitempty,email"`
	To       []string `mapstructure:"to" validate:"dive,email"`
}

// NATSConfig holds NATS publisher settings
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

var configValidate = func() *validator.Validate {
	return validator.New()
}()

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q check", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	switch c.Source.Type {
	case SourcePrometheus:
		if c.Source.PrometheusURL == "" {
			return fmt.Errorf("Prometheus URL required when source type is 'prometheus'")
		}
	case SourceSynthetic:
		if c.Source.Fixture == "" {
			return fmt.Errorf("fixture required when source type is 'synthetic'")
		}
	case SourceCloudMonitoring:
		if c.Source.Project == "" {
			return fmt.Errorf("project required when source type is 'cloudmonitoring'")
		}
	}

	if c.Alerting.Email.Host != "" {
		if c.Alerting.Email.From == "" || len(c.Alerting.Email.To) == 0 {
			return fmt.Errorf("email alerts require a sender and at least one recipient")
		}
	}

	return nil
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:                    "0.0.0.0",
			Port:                    8080,
			GracefulShutdownTimeout: 30 * time.Second,
			PushInterval:            60 * time.Second,
		},
		SLO: SLOConfig{
			File: "slo_config.json",
		},
		Source: SourceConfig{
			Type:           SourcePrometheus,
			Step:           60 * time.Second,
			QueryTimeout:   30 * time.Second,
			Parallelism:    4,
			PrometheusURL:  "http://localhost:9090",
			MaxConcurrency: 10,
			RetryCount:     1,
		},
		Storage: StorageConfig{
			Path: "error_budget.db",
		},
		Monitor: MonitorConfig{
			Interval:      5 * time.Minute,
			LookbackHours: 24,
			TickTimeout:   2 * time.Minute,
		},
		Alerting: AlertingConfig{
			WebhookTimeout: 10 * time.Second,
			Email: EmailConfig{
				Port: 587,
				To:   []string{},
			},
			NATS: NATSConfig{
				SubjectPrefix: "aegis.alerts",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads and validates configuration
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read reads configuration from defaults, an optional file and AEGIS_*
// environment variables, in increasing order of precedence. The result is not
// validated so callers can apply overrides first.
func Read(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply on Unmarshal
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.graceful_shutdown_timeout", d.Server.GracefulShutdownTimeout)
	v.SetDefault("server.push_interval", d.Server.PushInterval)

	v.SetDefault("slo.file", d.SLO.File)

	v.SetDefault("source.type", d.Source.Type)
	v.SetDefault("source.step", d.Source.Step)
	v.SetDefault("source.query_timeout", d.Source.QueryTimeout)
	v.SetDefault("source.parallelism", d.Source.Parallelism)
	v.SetDefault("source.prometheus_url", d.Source.PrometheusURL)
	v.SetDefault("source.max_concurrency", d.Source.MaxConcurrency)
	v.SetDefault("source.retry_count", d.Source.RetryCount)
	v.SetDefault("source.fixture", d.Source.Fixture)
	v.SetDefault("source.project", d.Source.Project)
	v.SetDefault("source.reduce", d.Source.Reduce)

	v.SetDefault("storage.path", d.Storage.Path)

	v.SetDefault("monitor.interval", d.Monitor.Interval)
	v.SetDefault("monitor.lookback_hours", d.Monitor.LookbackHours)
	v.SetDefault("monitor.tick_timeout", d.Monitor.TickTimeout)

	v.SetDefault("alerting.webhook_url", d.Alerting.WebhookURL)
	v.SetDefault("alerting.webhook_timeout", d.Alerting.WebhookTimeout)
	v.SetDefault("alerting.email.host", d.Alerting.Email.Host)
	v.SetDefault("alerting.email.port", d.Alerting.Email.Port)
	v.SetDefault("alerting.email.username", d.Alerting.Email.Username)
	v.SetDefault("alerting.email.password", d.Alerting.Email.Password)
	v.SetDefault("alerting.email.from", d.Alerting.Email.From)
	v.SetDefault("alerting.email.to", d.Alerting.Email.To)
	v.SetDefault("alerting.nats.url", d.Alerting.NATS.URL)
	v.SetDefault("alerting.nats.subject_prefix", d.Alerting.NATS.SubjectPrefix)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}
