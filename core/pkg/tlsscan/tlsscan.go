// Package tlsscan implements the TLS cipher probe of §4.7: cache the
// nmap-derived enabled-protocol list per (ip, port), flag obsolete
// protocols, and enforce the global 20s post-scan cooldown that rate
// limits concurrent scans across all validations in the process.
package tlsscan

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/poplexity/bpvalidate/core/pkg/extprobe"
	"github.com/poplexity/bpvalidate/core/pkg/probecache"
)

// modernProtocols is the set of TLS versions that do not trigger a warn.
var modernProtocols = map[string]bool{
	"TLSv1.2": true,
	"TLSv1.3": true,
}

// cooldown enforces the §4.7 "sleep 20s after any external invocation"
// rule as a single process-wide gate — this is explicitly a cross-BP,
// global concern per the spec, not scoped to one validation.
type cooldown struct {
	mu   sync.Mutex
	last time.Time
	wait time.Duration
	now  func() time.Time
	// sleep is overridable so tests don't pay the real 20s cost.
	sleep func(time.Duration)
}

var globalCooldown = &cooldown{
	wait:  20 * time.Second,
	now:   time.Now,
	sleep: time.Sleep,
}

// arm blocks until 20s have elapsed since the previous external scan
// invocation completed, then immediately reserves the next window.
func (c *cooldown) arm() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.last.IsZero() {
		elapsed := c.now().Sub(c.last)
		if elapsed < c.wait {
			c.sleep(c.wait - elapsed)
		}
	}
	c.last = c.now()
}

// finished records the end of an external scan invocation, so the next
// arm waits out the full window measured from completion.
func (c *cooldown) finished() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = c.now()
}

// Result is the outcome of one TLS scan for a single (ip, port).
type Result struct {
	Versions  []string
	Obsolete  []string // versions outside {TLSv1.2, TLSv1.3}
	FromCache bool
}

// Prober runs the TLS cipher probe described in §4.7.
type Prober struct {
	Scanner extprobe.TLSScanner
	Cache   *probecache.Store
	Now     func() time.Time
}

// New creates a Prober backed by the real nmap adapter.
func New(cache *probecache.Store) *Prober {
	return &Prober{Scanner: extprobe.NewTLSScanner(), Cache: cache, Now: time.Now}
}

// Scan returns the enabled TLS versions for (url, ip, port), reusing a
// cached result within the 24h TTL of §4.3 and otherwise invoking the
// external scanner (subject to the global cooldown).
func (p *Prober) Scan(ctx context.Context, url, ip, port string) (Result, error) {
	key := probecache.TLSKey(url, ip, port)

	if p.Cache != nil {
		if rec, err := p.Cache.Get(ctx, probecache.TableTLS, key); err == nil {
			if probecache.Fresh(rec, probecache.TTLTLS, p.Now()) {
				var versions []string
				if err := json.Unmarshal([]byte(rec.Content), &versions); err == nil {
					return classify(versions, true), nil
				}
			}
		}
	}

	globalCooldown.arm()
	versions, err := p.Scanner.Scan(ctx, ip, port)
	globalCooldown.finished()
	if err != nil {
		return Result{}, fmt.Errorf("tlsscan: %w", err)
	}

	if p.Cache != nil {
		if encoded, err := json.Marshal(versions); err == nil {
			_ = p.Cache.Put(ctx, probecache.TableTLS, key, string(encoded), p.Now(), false)
		}
	}
	return classify(versions, false), nil
}

func classify(versions []string, fromCache bool) Result {
	r := Result{Versions: versions, FromCache: fromCache}
	for _, v := range versions {
		if !modernProtocols[v] {
			r.Obsolete = append(r.Obsolete, v)
		}
	}
	return r
}
