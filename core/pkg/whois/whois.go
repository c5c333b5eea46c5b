// Package whois implements the WHOIS side-channel probe: it shells out
// to the host "whois" binary (per §6's external tools) and caches the
// parsed organization/country fields through the shared cache store,
// with a 14-day TTL per §4.3.
package whois

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/poplexity/bpvalidate/core/pkg/probecache"
)

// Info is the parsed WHOIS field map the resolver needs.
type Info struct {
	Organization string
	Country      string
}

// Runner abstracts invocation of the whois binary so tests can stub it
// without shelling out, following the teacher's port-interface pattern
// (core/pkg/executor.ToolDriver) for external-tool adapters.
type Runner interface {
	Run(ctx context.Context, ip string) (string, error)
}

// execRunner shells out to the real whois(1) binary.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, ip string) (string, error) {
	out, err := exec.CommandContext(ctx, "whois", ip).Output()
	if err != nil {
		return "", fmt.Errorf("whois: exec: %w", err)
	}
	return string(out), nil
}

// Client looks up WHOIS records, writing through the cache store.
type Client struct {
	Runner Runner
	Cache  *probecache.Store
	Now    func() time.Time
}

// New creates a whois Client backed by the real whois(1) binary.
func New(cache *probecache.Store) *Client {
	return &Client{Runner: execRunner{}, Cache: cache, Now: time.Now}
}

// Lookup resolves org/country for ip, consulting the cache first.
func (c *Client) Lookup(ctx context.Context, ip string) (Info, error) {
	if c.Cache != nil {
		if rec, err := c.Cache.Get(ctx, probecache.TableWhois, ip); err == nil {
			if probecache.Fresh(rec, probecache.TTLWhois, c.Now()) {
				return parse(rec.Content), nil
			}
		}
	}

	raw, err := c.Runner.Run(ctx, ip)
	if err != nil {
		return Info{}, err
	}

	if c.Cache != nil {
		_ = c.Cache.Put(ctx, probecache.TableWhois, ip, raw, c.Now(), false)
	}
	return parse(raw), nil
}

// parse extracts organization/country fields from free-text WHOIS
// output. WHOIS records vary by registry; this recognizes the common
// "OrgName:"/"org-name:"/"country:" label families.
func parse(raw string) Info {
	var info Info
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		switch key {
		case "orgname", "org-name", "organization", "org":
			if info.Organization == "" {
				info.Organization = val
			}
		case "country":
			if info.Country == "" {
				info.Country = val
			}
		}
	}
	return info
}
