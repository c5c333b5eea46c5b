// Package dedupe implements the per-class duplicate-URL registry of §4.2.
// It is not opinionated about what a duplicate means for the caller —
// callers decide whether to emit a warn, err, crit, info, or skip finding
// via their own DupeKind option.
package dedupe

import (
	"sync"

	"github.com/poplexity/bpvalidate/core/pkg/findings"
)

// Registry tracks which (class, url) pairs have already been validated
// in the current run. It is owned by one validation and requires no
// locking in principle (§5), but the mutex keeps it safe if a caller
// chooses to fan probes out across goroutines within a run.
type Registry struct {
	mu   sync.Mutex
	seen map[findings.Class]map[string]struct{}
}

// New creates an empty duplicate registry.
func New() *Registry {
	return &Registry{seen: make(map[findings.Class]map[string]struct{})}
}

// Check returns true the first time (class, url) is seen in this run's
// lifetime, and false on every subsequent call for the same pair.
func (r *Registry) Check(class findings.Class, url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	urls, ok := r.seen[class]
	if !ok {
		urls = make(map[string]struct{})
		r.seen[class] = urls
	}
	if _, dupe := urls[url]; dupe {
		return false
	}
	urls[url] = struct{}{}
	return true
}

// Seen reports whether (class, url) has already been recorded, without
// marking it seen — useful for read-only diagnostics.
func (r *Registry) Seen(class findings.Class, url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[class][url]
	return ok
}
