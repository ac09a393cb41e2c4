package config

import (
	"fmt"

	"github.com/ahdark-oss/vdns/plugin"
)

// BuildRegistry constructs every non-server plugin kind named in cfg into
// an executable plugin.Handler and freezes them into a plugin.App. Server
// stanzas (udp_server/tcp_server/quic_server/http_server) are skipped
// here — they are not plugins in their own right, just listener
// descriptions consumed by ExtractListeners.
func BuildRegistry(cfg *Config) (*plugin.App, error) {
	var handlers []plugin.Handler
	for _, p := range cfg.Plugins {
		if IsServerKind(p.Type) {
			continue
		}
		h, err := plugin.NewHandler(p.Type, p.Tag, p.Options)
		if err != nil {
			return nil, fmt.Errorf("config: building plugin %q: %w", p.Tag, err)
		}
		handlers = append(handlers, h)
	}

	app, err := plugin.NewApp(handlers)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	for _, p := range cfg.Plugins {
		if !IsServerKind(p.Type) {
			continue
		}
		// http_server names its entries under "entries", not a single
		// "entry" key; validated separately in ExtractListeners' caller
		// once the http_server stanza's per-path Exec tags are decoded.
		if p.Type == "http_server" {
			continue
		}
		entry, _ := p.Options["entry"].(string)
		if entry == "" {
			continue
		}
		if err := app.ValidateEntry(entry); err != nil {
			return nil, fmt.Errorf("config: server %q: %w", p.Tag, err)
		}
	}

	return app, nil
}
