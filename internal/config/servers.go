package config

import (
	"fmt"

	"github.com/ahdark-oss/vdns/core/dnsserver"
	"github.com/ahdark-oss/vdns/plugin"
)

// ListenerConfig is the decoded shape of a udp_server/tcp_server/
// quic_server stanza.
type ListenerConfig struct {
	Entry       string `mapstructure:"entry"`
	Listen      string `mapstructure:"listen"`
	Cert        string `mapstructure:"cert"`
	Key         string `mapstructure:"key"`
	IdleTimeout *int   `mapstructure:"idle_timeout"`
}

// HTTPListenerConfig is the decoded shape of an http_server stanza.
type HTTPListenerConfig struct {
	Entries      []dnsserver.HTTPEntry `mapstructure:"entries"`
	SrcIPHeaders []string              `mapstructure:"src_ip_headers"`
	Listen       string                `mapstructure:"listen"`
	Cert         string                `mapstructure:"cert"`
	Key          string                `mapstructure:"key"`
	IdleTimeout  *int                  `mapstructure:"idle_timeout"`
}

// Listeners extracted from cfg.Plugins, grouped by kind, ready to be bound
// by the bootstrap orchestrator.
type Listeners struct {
	UDP  []PluginListener
	TCP  []PluginListener
	QUIC []PluginListener
	HTTP []PluginHTTPListener
}

// PluginListener pairs a server stanza's tag with its decoded options.
type PluginListener struct {
	Tag    string
	Config ListenerConfig
}

// PluginHTTPListener pairs an http_server stanza's tag with its decoded
// options.
type PluginHTTPListener struct {
	Tag    string
	Config HTTPListenerConfig
}

// ExtractListeners decodes every server stanza in cfg into typed listener
// descriptors, grouped by kind.
func ExtractListeners(cfg *Config) (*Listeners, error) {
	ls := &Listeners{}
	for _, p := range cfg.Plugins {
		switch p.Type {
		case "udp_server":
			var lc ListenerConfig
			if err := plugin.DecodeOptions(p.Options, &lc); err != nil {
				return nil, fmt.Errorf("config: udp_server %q: %w", p.Tag, err)
			}
			ls.UDP = append(ls.UDP, PluginListener{Tag: p.Tag, Config: lc})
		case "tcp_server":
			var lc ListenerConfig
			if err := plugin.DecodeOptions(p.Options, &lc); err != nil {
				return nil, fmt.Errorf("config: tcp_server %q: %w", p.Tag, err)
			}
			ls.TCP = append(ls.TCP, PluginListener{Tag: p.Tag, Config: lc})
		case "quic_server":
			var lc ListenerConfig
			if err := plugin.DecodeOptions(p.Options, &lc); err != nil {
				return nil, fmt.Errorf("config: quic_server %q: %w", p.Tag, err)
			}
			ls.QUIC = append(ls.QUIC, PluginListener{Tag: p.Tag, Config: lc})
		case "http_server":
			var lc HTTPListenerConfig
			if err := plugin.DecodeOptions(p.Options, &lc); err != nil {
				return nil, fmt.Errorf("config: http_server %q: %w", p.Tag, err)
			}
			ls.HTTP = append(ls.HTTP, PluginHTTPListener{Tag: p.Tag, Config: lc})
		}
	}
	return ls, nil
}
