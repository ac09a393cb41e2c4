// Package cache implements the bounded, LRU-evicted fingerprint->records
// store that cooperates with its declared sibling plugin via the wrap
// pattern: on a miss or stale hit it defers to the sibling, then stores
// whatever the sibling produces under the original fingerprint.
package cache

import (
	"container/list"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ahdark-oss/vdns/plugin"
	"github.com/ahdark-oss/vdns/plugin/pkg/executor"
	vlog "github.com/ahdark-oss/vdns/plugin/pkg/log"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

func init() {
	plugin.RegisterBuilder("cache", build)
}

// Args are the cache plugin's configuration options, decoded from a
// plugin stanza's options map. Sibling names the plugin tag the cache
// wraps: configured directly on the cache stanza rather than inferred
// from its position in another plugin's children list, which keeps the
// wrap pattern's cooperation explicit in configuration instead of
// positional and implicit.
type Args struct {
	Size         int    `mapstructure:"size"`
	LazyCacheTTL *int   `mapstructure:"lazy_cache_ttl"`
	DumpFile     string `mapstructure:"dump_file"`
	DumpInterval *int   `mapstructure:"dump_interval"`
	Sibling      string `mapstructure:"sibling"`
}

const defaultSize = 1024

func build(tag string, opts map[string]any) (plugin.Handler, error) {
	var args Args
	if err := decode(opts, &args); err != nil {
		return nil, fmt.Errorf("cache %q: %w", tag, err)
	}
	if args.Size <= 0 {
		args.Size = defaultSize
	}
	c := New(tag, args)
	if args.DumpFile != "" {
		c.restore()
		go c.RunDumpLoop(context.Background())
	}
	return c, nil
}

type entry struct {
	key      plugin.Query
	records  []dns.RR
	storedAt time.Time
}

// Cache is the LRU-bounded, optionally lazy-TTL'd record store.
type Cache struct {
	tag          string
	sibling      string
	size         int
	lazyTTL      *time.Duration
	dumpFile     string
	dumpInterval time.Duration

	now func() time.Time

	mu    sync.Mutex
	ll    *list.List // front = most recently used
	index map[plugin.Query]*list.Element

	log *zap.Logger
}

// New builds a Cache plugin from its tag and decoded arguments.
func New(tag string, args Args) *Cache {
	c := &Cache{
		tag:      tag,
		sibling:  args.Sibling,
		size:     args.Size,
		dumpFile: args.DumpFile,
		now:      time.Now,
		ll:       list.New(),
		index:    make(map[plugin.Query]*list.Element),
		log:      vlog.NewWithPlugin(tag),
	}
	if args.LazyCacheTTL != nil {
		d := time.Duration(*args.LazyCacheTTL) * time.Second
		c.lazyTTL = &d
	}
	if args.DumpInterval != nil && *args.DumpInterval > 0 {
		c.dumpInterval = time.Duration(*args.DumpInterval) * time.Second
	}
	return c
}

// SetNowFunc overrides the clock used for lazy-TTL freshness checks.
// Exported for tests; production callers rely on the time.Now default.
func (c *Cache) SetNowFunc(now func() time.Time) { c.now = now }

func (c *Cache) Tag() string { return c.tag }
func (c *Cache) Children() []string {
	if c.sibling == "" {
		return nil
	}
	return []string{c.sibling}
}

// Exec implements the cache wrap pattern: a fresh hit
// returns immediately. On a miss (or a stale lazy-TTL hit) the cache is
// the only plugin that knows the shape of its own sibling cooperation, so
// rather than handing control back to the top-level executor it drives the
// sibling's sub-chain itself via the shared executor, stores whatever the
// sibling eventually produces, and returns that as its own result. From
// the top-level executor's point of view the cache plugin simply answered
// the query directly.
func (c *Cache) Exec(ctx context.Context, app *plugin.App, q plugin.Query) (plugin.Result, error) {
	if recs, ok := c.lookup(q); ok {
		return plugin.Records(recs), nil
	}

	if c.sibling == "" {
		return plugin.Empty(), nil
	}

	recs, err := executor.Execute(ctx, app, c.sibling, q)
	if err != nil {
		return plugin.Empty(), err
	}
	if len(recs) > 0 {
		c.Store(q, recs)
	}
	return plugin.Records(recs), nil
}

// Store records the sibling's answer for q under the original
// fingerprint. Exported so tests can seed the cache directly. It
// LRU-promotes on write.
func (c *Cache) Store(q plugin.Query, records []dns.RR) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{key: q, records: records, storedAt: c.now()}
	if el, ok := c.index[q]; ok {
		el.Value = e
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(e)
	c.index[q] = el

	if c.ll.Len() > c.size {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(entry).key)
		}
	}
}

func (c *Cache) lookup(q plugin.Query) ([]dns.RR, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[q]
	if !ok {
		return nil, false
	}
	e := el.Value.(entry)

	if c.lazyTTL != nil && c.now().Sub(e.storedAt) > *c.lazyTTL {
		return nil, false
	}

	c.ll.MoveToFront(el)
	return e.records, true
}

// Dump persists the current cache contents to DumpFile, if configured.
func (c *Cache) Dump() error {
	if c.dumpFile == "" {
		return nil
	}

	c.mu.Lock()
	records := make([]dumpRecord, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		e := el.Value.(entry)
		wire := make([][]byte, 0, len(e.records))
		for _, rr := range e.records {
			buf := make([]byte, dns.MaxMsgSize)
			n, err := dns.PackRR(rr, buf, 0, nil, false)
			if err != nil {
				continue
			}
			wire = append(wire, buf[:n])
		}
		records = append(records, dumpRecord{
			Name: e.key.Name, Qtype: e.key.Qtype,
			Wire: wire, StoredAtUnix: e.storedAt.Unix(),
		})
	}
	c.mu.Unlock()

	f, err := os.Create(c.dumpFile)
	if err != nil {
		return fmt.Errorf("cache %q: create dump file: %w", c.tag, err)
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(records)
}

type dumpRecord struct {
	Name         string
	Qtype        uint16
	Wire         [][]byte
	StoredAtUnix int64
}

// restore reads DumpFile back in, discarding entries whose lazy TTL has
// already expired.
func (c *Cache) restore() {
	f, err := os.Open(c.dumpFile)
	if err != nil {
		return // no prior dump; not an error
	}
	defer f.Close()

	var records []dumpRecord
	if err := gob.NewDecoder(f).Decode(&records); err != nil {
		c.log.Warn("failed to decode cache dump file, starting cold", zap.Error(err))
		return
	}

	now := c.now()
	for _, r := range records {
		storedAt := time.Unix(r.StoredAtUnix, 0)
		if c.lazyTTL != nil && now.Sub(storedAt) > *c.lazyTTL {
			continue
		}
		var rrs []dns.RR
		for _, w := range r.Wire {
			rr, _, err := dns.UnpackRR(w, 0)
			if err != nil {
				continue
			}
			rrs = append(rrs, rr)
		}
		if len(rrs) == 0 {
			continue
		}
		q := plugin.Query{Name: r.Name, Qtype: r.Qtype}
		el := c.ll.PushFront(entry{key: q, records: rrs, storedAt: storedAt})
		c.index[q] = el
	}
}

// RunDumpLoop periodically persists the cache to DumpFile until ctx is
// canceled. No-op if DumpFile/DumpInterval were not configured.
func (c *Cache) RunDumpLoop(ctx context.Context) {
	if c.dumpFile == "" || c.dumpInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.dumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = c.Dump()
			return
		case <-ticker.C:
			if err := c.Dump(); err != nil {
				c.log.Warn("periodic cache dump failed", zap.Error(err))
			}
		}
	}
}

func decode(opts map[string]any, out *Args) error {
	return plugin.DecodeOptions(opts, out)
}
