// Package config loads the layered configuration (config/rules.* file,
// config.* file, RULES_-prefixed environment) and builds the plugin
// registry and listener set described by it.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// PluginConfig is one entry of the plugins list: a tag, a kind
// discriminant, and kind-specific options decoded later by the plugin's
// own builder via mapstructure.
type PluginConfig struct {
	Tag     string         `mapstructure:"tag"`
	Type    string         `mapstructure:"type"`
	Options map[string]any `mapstructure:",remain"`
}

// ObservabilityConfig holds the environment-driven tracing and metrics knobs.
type ObservabilityConfig struct {
	TraceExporterType     string  `mapstructure:"trace_exporter_type"`
	TraceExporterEndpoint string  `mapstructure:"trace_exporter_endpoint"`
	TraceSampleRate       float64 `mapstructure:"trace_exporter_sample_rate"`
	MetricsExporterType   string  `mapstructure:"metrics_exporter_type"`
	MetricsListenAddr     string  `mapstructure:"metrics_prometheus_listen_addr"`
}

// Config is the fully decoded, not-yet-built configuration document.
type Config struct {
	Plugins       []PluginConfig      `mapstructure:"plugins"`
	Observability ObservabilityConfig `mapstructure:"-"`
	Debug         bool                `mapstructure:"debug"`
}

// serverKinds are plugin "type" values handled by the bootstrap/server
// layer rather than plugin.NewHandler's generic builder dispatch.
var serverKinds = map[string]struct{}{
	"udp_server":  {},
	"tcp_server":  {},
	"quic_server": {},
	"http_server": {},
}

// IsServerKind reports whether kind names a listener stanza rather than
// an executable plugin.
func IsServerKind(kind string) bool {
	_, ok := serverKinds[kind]
	return ok
}

// Load merges config/rules.* (lowest precedence), then config.*, then
// RULES_-prefixed environment variables (highest precedence) via viper,
// and decodes the result into a Config.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("rules")
	v.AddConfigPath("config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config/rules.*: %w", err)
		}
	}

	overlay := viper.New()
	overlay.SetConfigName("config")
	overlay.AddConfigPath(".")
	if configPath != "" {
		overlay.SetConfigFile(configPath)
	}
	if err := overlay.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config.*: %w", err)
		}
	} else if err := v.MergeConfigMap(overlay.AllSettings()); err != nil {
		return nil, fmt.Errorf("config: merge config.*: %w", err)
	}

	v.SetEnvPrefix("RULES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Observability knobs come from unprefixed environment variables
	// (TRACE_EXPORTER_TYPE, METRICS_EXPORTER_TYPE, ...).
	for _, key := range []string{"trace_exporter_type", "trace_exporter_endpoint", "trace_exporter_sample_rate", "metrics_exporter_type", "metrics_prometheus_listen_addr"} {
		_ = v.BindEnv(key, strings.ToUpper(key))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	cfg.Observability = ObservabilityConfig{
		TraceExporterType:     v.GetString("trace_exporter_type"),
		TraceExporterEndpoint: v.GetString("trace_exporter_endpoint"),
		TraceSampleRate:       v.GetFloat64("trace_exporter_sample_rate"),
		MetricsExporterType:   v.GetString("metrics_exporter_type"),
		MetricsListenAddr:     v.GetString("metrics_prometheus_listen_addr"),
	}
	if cfg.Observability.MetricsListenAddr == "" {
		cfg.Observability.MetricsListenAddr = "0.0.0.0:9090"
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	seen := make(map[string]struct{}, len(cfg.Plugins))
	for _, p := range cfg.Plugins {
		if p.Tag == "" {
			return fmt.Errorf("config: plugin entry with empty tag")
		}
		if _, dup := seen[p.Tag]; dup {
			return fmt.Errorf("config: duplicate plugin tag %q", p.Tag)
		}
		seen[p.Tag] = struct{}{}
	}
	return nil
}
