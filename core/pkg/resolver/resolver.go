// Package resolver implements the DNS/IP resolver of §4.5: resolves a
// host to public IPv4 addresses, rejects private/loopback ranges, and
// annotates each address with WHOIS-derived organization and country.
package resolver

import (
	"context"
	"fmt"
	"net"

	"github.com/poplexity/bpvalidate/core/pkg/whois"
)

// Address is one resolved, annotated IP per §4.5's signature
// resolve(host) → [{ip_address, organization, country}].
type Address struct {
	IPAddress    string
	Organization string
	Country      string
}

// Outcome carries the resolved addresses plus the findings the caller
// should record — a literal-IP warning, private/loopback rejections,
// or an empty-result criticality, per §4.5.
type Outcome struct {
	Addresses    []Address
	LiteralIP    bool
	RejectedCIDR []string // IPs dropped for being private/loopback
	Empty        bool
}

// WhoisLookup resolves organization/country for an IP, with caching
// left to the implementation (core/pkg/whois.Client satisfies this).
type WhoisLookup interface {
	Lookup(ctx context.Context, ip string) (whois.Info, error)
}

// Resolver performs host resolution for the URL validator.
type Resolver struct {
	Whois    WhoisLookup
	LookupIP func(ctx context.Context, host string) ([]net.IP, error)
}

// New creates a Resolver backed by net.DefaultResolver and w for WHOIS.
func New(w WhoisLookup) *Resolver {
	return &Resolver{
		Whois: w,
		LookupIP: func(ctx context.Context, host string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip4", host)
		},
	}
}

// Resolve implements §4.5. A host that is itself a literal IPv4/IPv6
// address is accepted but flagged (LiteralIP); IPv6-only hosts
// currently produce no usable addresses, per the design note in §4.5
// that IPv6 support is dormant — callers see Outcome.Empty in that case.
func (r *Resolver) Resolve(ctx context.Context, host string) (Outcome, error) {
	if ip := net.ParseIP(host); ip != nil {
		if ip.To4() == nil {
			return Outcome{LiteralIP: true, Empty: true}, nil
		}
		addr, rejected := r.classify(ctx, ip)
		out := Outcome{LiteralIP: true}
		if rejected != "" {
			out.RejectedCIDR = []string{rejected}
			out.Empty = true
			return out, nil
		}
		out.Addresses = []Address{addr}
		return out, nil
	}

	ips, err := r.LookupIP(ctx, host)
	if err != nil {
		return Outcome{Empty: true}, fmt.Errorf("resolver: lookup %s: %w", host, err)
	}

	var out Outcome
	for _, ip := range ips {
		addr, rejected := r.classify(ctx, ip)
		if rejected != "" {
			out.RejectedCIDR = append(out.RejectedCIDR, rejected)
			continue
		}
		out.Addresses = append(out.Addresses, addr)
	}
	out.Empty = len(out.Addresses) == 0
	return out, nil
}

// classify annotates ip with WHOIS data, or returns a non-empty reason
// string if the IP must be rejected as private/loopback per §4.5.
func (r *Resolver) classify(ctx context.Context, ip net.IP) (Address, string) {
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return Address{}, ip.String() + " is private/loopback"
	}

	addr := Address{IPAddress: ip.String()}
	if r.Whois != nil {
		if info, err := r.Whois.Lookup(ctx, ip.String()); err == nil {
			addr.Organization = info.Organization
			addr.Country = info.Country
		}
	}
	return addr, ""
}
