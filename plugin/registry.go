package plugin

import "fmt"

// App is the immutable, shared application context threaded through every
// plugin's Exec call: a frozen tag -> Handler mapping built once at startup
// and never mutated afterward.
type App struct {
	plugins map[string]Handler
}

// NewApp validates and freezes a set of handlers into an App. It enforces
// the registry invariants: every declared Children target resolves to a
// registered tag, and every handler's own tag is non-empty and unique.
// Next tags returned at exec time are not checked here.
func NewApp(handlers []Handler) (*App, error) {
	m := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		tag := h.Tag()
		if tag == "" {
			return nil, fmt.Errorf("plugin: registry contains a handler with an empty tag")
		}
		if _, dup := m[tag]; dup {
			return nil, fmt.Errorf("plugin: duplicate plugin tag %q", tag)
		}
		m[tag] = h
	}

	for _, h := range handlers {
		for _, child := range h.Children() {
			if _, ok := m[child]; !ok {
				return nil, fmt.Errorf("plugin: %q declares unknown child %q", h.Tag(), child)
			}
		}
	}

	return &App{plugins: m}, nil
}

// Get returns the handler registered for tag, if any.
func (a *App) Get(tag string) (Handler, bool) {
	h, ok := a.plugins[tag]
	return h, ok
}

// ValidateEntry reports whether tag is a registered, executable plugin tag
// — used to check a server's entry and each http_server path's exec.
func (a *App) ValidateEntry(tag string) error {
	if _, ok := a.plugins[tag]; !ok {
		return fmt.Errorf("plugin: entry tag %q is not registered", tag)
	}
	return nil
}
