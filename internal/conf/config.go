// Package conf loads leafwatch settings from a YAML file and the environment.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. LEAFWATCH_DATABASE_PATH.
const EnvPrefix = "LEAFWATCH"

// Settings is the root configuration.
type Settings struct {
	Main struct {
		Name string `mapstructure:"name" yaml:"name"`
	} `mapstructure:"main" yaml:"main"`

	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	Database DatabaseSettings `mapstructure:"database" yaml:"database"`

	WebServer struct {
		Listen string `mapstructure:"listen" yaml:"listen"`
	} `mapstructure:"webserver" yaml:"webserver"`

	MQTT MQTTSettings `mapstructure:"mqtt" yaml:"mqtt"`

	Alerting AlertingSettings `mapstructure:"alerting" yaml:"alerting"`

	Realtime RealtimeSettings `mapstructure:"realtime" yaml:"realtime"`

	Sentry SentrySettings `mapstructure:"sentry" yaml:"sentry"`
}

// SentrySettings enables error reporting when DSN is set.
type SentrySettings struct {
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// DatabaseSettings selects and configures the backing store.
type DatabaseSettings struct {
	Type string `mapstructure:"type" yaml:"type"` // "sqlite" or "mysql"
	Path string `mapstructure:"path" yaml:"path"` // sqlite file path
	DSN  string `mapstructure:"dsn" yaml:"dsn"`   // mysql DSN
}

// MQTTSettings configures sensor ingestion and device preference pushes.
type MQTTSettings struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker    string `mapstructure:"broker" yaml:"broker"`
	ClientID  string `mapstructure:"client_id" yaml:"client_id"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	Username  string `mapstructure:"username" yaml:"username"`
	Password  string `mapstructure:"password" yaml:"password"`
	QoS       byte   `mapstructure:"qos" yaml:"qos"`
}

// AlertingSettings tunes condition evaluation, suppression and the sweep.
type AlertingSettings struct {
	DedupWindow          Duration `mapstructure:"dedup_window" yaml:"dedup_window"`
	DriftTolerance       float64  `mapstructure:"drift_tolerance" yaml:"drift_tolerance"`
	ThresholdTolerance   float64  `mapstructure:"threshold_tolerance" yaml:"threshold_tolerance"`
	SweepInterval        Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	SweepTimeout         Duration `mapstructure:"sweep_timeout" yaml:"sweep_timeout"`
	HistoryRetentionDays int      `mapstructure:"history_retention_days" yaml:"history_retention_days"`
	ReadingWorkers       int      `mapstructure:"reading_workers" yaml:"reading_workers"`
	ReadingBuffer        int      `mapstructure:"reading_buffer" yaml:"reading_buffer"`
}

// RealtimeSettings tunes websocket fan-out.
type RealtimeSettings struct {
	BroadcastConcurrency int      `mapstructure:"broadcast_concurrency" yaml:"broadcast_concurrency"`
	WriteTimeout         Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("main.name", "leafwatch")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "leafwatch.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("webserver.listen", ":8080")
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "leafwatch")
	v.SetDefault("mqtt.namespace", "greenhouse")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("alerting.dedup_window", "12h")
	v.SetDefault("alerting.drift_tolerance", 1.0)
	v.SetDefault("alerting.threshold_tolerance", 0.001)
	v.SetDefault("alerting.sweep_interval", "24h")
	v.SetDefault("alerting.sweep_timeout", "30s")
	v.SetDefault("alerting.history_retention_days", 0)
	v.SetDefault("alerting.reading_workers", 4)
	v.SetDefault("alerting.reading_buffer", 1000)
	v.SetDefault("realtime.broadcast_concurrency", 16)
	v.SetDefault("realtime.write_timeout", "10s")
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
}

// Load reads settings from path (optional) and LEAFWATCH_* environment variables.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks settings that would otherwise fail late at runtime.
func (s *Settings) Validate() error {
	switch s.Database.Type {
	case "sqlite":
		if s.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "mysql":
		if s.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for mysql")
		}
	default:
		return fmt.Errorf("unsupported database.type %q", s.Database.Type)
	}
	if s.Alerting.DedupWindow.Std() <= 0 {
		return fmt.Errorf("alerting.dedup_window must be positive")
	}
	if s.Alerting.SweepInterval.Std() < time.Minute {
		return fmt.Errorf("alerting.sweep_interval must be at least 1m")
	}
	if s.Alerting.SweepTimeout.Std() <= 0 {
		return fmt.Errorf("alerting.sweep_timeout must be positive")
	}
	if s.Alerting.ReadingWorkers <= 0 {
		return fmt.Errorf("alerting.reading_workers must be positive")
	}
	if s.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	return nil
}
