package resolver

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/poplexity/bpvalidate/core/pkg/whois"
)

type fakeWhois struct {
	info whois.Info
}

func (f fakeWhois) Lookup(ctx context.Context, ip string) (whois.Info, error) {
	return f.info, nil
}

func TestResolveAnnotatesPublicAddresses(t *testing.T) {
	r := New(fakeWhois{info: whois.Info{Organization: "Acme", Country: "US"}})
	r.LookupIP = func(ctx context.Context, host string) ([]net.IP, error) {
		return []net.IP{net.ParseIP("203.0.113.5")}, nil
	}

	out, err := r.Resolve(context.Background(), "bp.example.com")
	require.NoError(t, err)
	require.False(t, out.Empty)
	require.Len(t, out.Addresses, 1)
	require.Equal(t, "203.0.113.5", out.Addresses[0].IPAddress)
	require.Equal(t, "Acme", out.Addresses[0].Organization)
}

func TestResolveRejectsPrivateAddresses(t *testing.T) {
	r := New(nil)
	r.LookupIP = func(ctx context.Context, host string) ([]net.IP, error) {
		return []net.IP{net.ParseIP("10.0.0.5")}, nil
	}

	out, err := r.Resolve(context.Background(), "internal.example.com")
	require.NoError(t, err)
	require.True(t, out.Empty)
	require.Len(t, out.RejectedCIDR, 1)
}

func TestResolveEmptyResultIsFlagged(t *testing.T) {
	r := New(nil)
	r.LookupIP = func(ctx context.Context, host string) ([]net.IP, error) {
		return nil, nil
	}
	out, err := r.Resolve(context.Background(), "nowhere.example.com")
	require.NoError(t, err)
	require.True(t, out.Empty)
}

func TestResolveLiteralIPFlagged(t *testing.T) {
	r := New(nil)
	out, err := r.Resolve(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	require.True(t, out.LiteralIP)
	require.Len(t, out.Addresses, 1)
}

func TestResolveIPv6OnlyIsDormant(t *testing.T) {
	r := New(nil)
	out, err := r.Resolve(context.Background(), "2001:db8::1")
	require.NoError(t, err)
	require.True(t, out.Empty)
}
