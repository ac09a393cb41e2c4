// Package plugin defines the contract every query-handling plugin satisfies,
// the cooperative result type plugins return, and the registry that binds
// plugin tags together into an executable graph.
package plugin

import (
	"context"
	"fmt"

	"github.com/miekg/dns"
)

// Query is the input identity threaded through a plugin chain: an owner
// name and record type, class IN assumed.
type Query struct {
	Name  string // canonical: lowercased, fully qualified
	Qtype uint16
}

// NewQuery builds a Query from a question name and type, normalizing the
// name the way the cache and hosts plugins expect to see it.
func NewQuery(name string, qtype uint16) Query {
	return Query{Name: dns.CanonicalName(name), Qtype: qtype}
}

func (q Query) String() string {
	return fmt.Sprintf("%s %s", q.Name, dns.TypeToString[q.Qtype])
}

// Result is what a plugin's Exec returns: zero or more records, and either
// a continuation tag or a stop. Records short-circuit: if non-empty, the
// executor returns them immediately regardless of Next/Stop.
type Result struct {
	Records []dns.RR
	Next    string
	Stop    bool
}

// Records builds a terminal Result carrying the given records.
func Records(rrs []dns.RR) Result { return Result{Records: rrs, Stop: true} }

// ContinueWith builds a non-terminal Result with no records, pointing the
// executor at the next plugin tag.
func ContinueWith(tag string) Result { return Result{Next: tag} }

// Empty builds a terminal Result with no records: "this plugin cannot
// answer and there is nowhere else to go."
func Empty() Result { return Result{Stop: true} }

// Handler is the uniform contract every plugin satisfies.
type Handler interface {
	// Tag is the plugin's stable, unique-within-registry identifier.
	Tag() string
	// Children lists the plugin's declared child tags, in order. Most
	// plugins have none; Cache uses this to find its wrap-pattern sibling.
	Children() []string
	// Exec runs the plugin against a query. Errors are the caller's
	// responsibility to demote to an empty result and log; Exec itself
	// should not swallow its own errors.
	Exec(ctx context.Context, app *App, q Query) (Result, error)
}

// Builder constructs a Handler from its tag and a decoded options map, as
// produced by the config loader from a plugin stanza's non-tag/type keys.
type Builder func(tag string, opts map[string]any) (Handler, error)

var builders = map[string]Builder{}

// RegisterBuilder makes a plugin kind buildable from configuration. Plugin
// packages call this from an init() func; main blank-imports every plugin
// package so these registrations run before configuration is loaded.
func RegisterBuilder(kind string, b Builder) {
	if _, exists := builders[kind]; exists {
		panic("plugin: builder already registered for kind " + kind)
	}
	builders[kind] = b
}

// NewHandler looks up the builder for kind and constructs a Handler from
// tag and opts. Returns an error (not a panic) for unknown kinds, since
// this is reached from user-supplied configuration.
func NewHandler(kind, tag string, opts map[string]any) (Handler, error) {
	b, ok := builders[kind]
	if !ok {
		return nil, fmt.Errorf("plugin: unknown plugin type %q", kind)
	}
	return b(tag, opts)
}
