package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings are the ambient options of the tool: where logs go and how the
// optional serve, watch, notify and publish features behave. The check plan
// itself is a separate case-sensitive document (internal/plan) and never
// lives here.
type Settings struct {
	Env     string          `mapstructure:"env"`
	LogDir  string          `mapstructure:"log_dir"`
	Serve   ServeSettings   `mapstructure:"serve"`
	Watch   WatchSettings   `mapstructure:"watch"`
	History HistorySettings `mapstructure:"history"`
	Notify  NotifySettings  `mapstructure:"notify"`
	Publish PublishSettings `mapstructure:"publish"`
}

// ServeSettings configure the HTTP mode.
type ServeSettings struct {
	Addr string `mapstructure:"addr"`
}

// WatchSettings configure the periodic re-run mode. 0 disables it.
type WatchSettings struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

// HistorySettings pick the run history backend for serve and watch modes.
// An empty DSN keeps history in memory.
type HistorySettings struct {
	DSN string `mapstructure:"dsn"`
}

// NotifySettings configure out-of-band alerts.
type NotifySettings struct {
	SlackWebhook string `mapstructure:"slack_webhook"`
}

// PublishSettings configure shipping finished reports to Kafka. No brokers
// means publishing is off.
type PublishSettings struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Load reads settings from CONNCHECK_* environment variables and an
// optional conncheck.yaml in the working directory. Environment wins over
// the file; both win over defaults.
func Load() (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CONNCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("conncheck")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("log_dir", "logs")
	v.SetDefault("serve.addr", "127.0.0.1:8080")
	v.SetDefault("watch.interval_seconds", 0)
	v.SetDefault("history.dsn", "")
	v.SetDefault("notify.slack_webhook", "")
	v.SetDefault("publish.brokers", []string{})
	v.SetDefault("publish.topic", "conncheck-reports")
}

// WatchInterval converts the configured seconds to a duration.
func (s *Settings) WatchInterval() time.Duration {
	if s.Watch.IntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(s.Watch.IntervalSeconds) * time.Second
}
