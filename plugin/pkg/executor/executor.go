// Package executor drives a single DNS query through the plugin chain
// formed by each plugin's returned continuation, starting at a listener's
// configured entry plugin.
package executor

import (
	"context"
	"fmt"

	"github.com/ahdark-oss/vdns/plugin"
	"github.com/ahdark-oss/vdns/plugin/pkg/log"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// MaxHops bounds the number of plugin hops a single query may take before
// the executor gives up and returns an empty answer. A plugin may
// legitimately form a cycle (A -> B -> A), so without this bound such a
// configuration would loop forever.
const MaxHops = 32

// Execute runs query starting at the entry plugin tag, following each
// plugin's Next hint until records are produced, a plugin signals Stop, or
// MaxHops is exceeded. It never mutates plugin state and never runs two
// plugins concurrently for the same query.
func Execute(ctx context.Context, app *plugin.App, entry string, q plugin.Query) ([]dns.RR, error) {
	current := entry
	chain := make([]string, 0, 4)

	for hop := 0; hop < MaxHops; hop++ {
		chain = append(chain, current)

		h, ok := app.Get(current)
		if !ok {
			return nil, fmt.Errorf("executor: %q is not a registered plugin tag", current)
		}

		result, err := h.Exec(ctx, app, q)
		if err != nil {
			log.NewWithPlugin(current).Warn("plugin exec failed, treating as empty result",
				zap.Error(err), zap.String("query", q.String()))
			result = plugin.Empty()
		}

		if len(result.Records) > 0 {
			return result.Records, nil
		}
		if result.Stop || result.Next == "" {
			return nil, nil
		}
		current = result.Next
	}

	log.Named("executor").Warn("max hop count exceeded, failing open",
		zap.Strings("chain", chain), zap.String("query", q.String()))
	return nil, nil
}
