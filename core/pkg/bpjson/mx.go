package bpjson

import (
	"context"
	"fmt"

	"github.com/miekg/dns"
)

// dnsMXResolver resolves MX records directly against a recursive
// resolver, rather than relying on the OS resolver (which on some
// hosts silently fails to forward MX queries).
type dnsMXResolver struct {
	server string
	client *dns.Client
}

// NewMXResolver creates an MXResolver querying server (host:port, e.g.
// "8.8.8.8:53").
func NewMXResolver(server string) MXResolver {
	return &dnsMXResolver{server: server, client: new(dns.Client)}
}

func (r *dnsMXResolver) LookupMX(ctx context.Context, domain string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)

	in, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("bpjson: MX query for %s: %w", domain, err)
	}

	var records []string
	for _, ans := range in.Answer {
		if mx, ok := ans.(*dns.MX); ok {
			records = append(records, mx.Mx)
		}
	}
	return records, nil
}
