package whois

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseExtractsOrgAndCountry(t *testing.T) {
	raw := "OrgName:    Example Hosting LLC\nCountry:    US\nNetRange:   1.2.3.0 - 1.2.3.255\n"
	info := parse(raw)
	require.Equal(t, "Example Hosting LLC", info.Organization)
	require.Equal(t, "US", info.Country)
}

func TestParseHandlesLowercaseLabels(t *testing.T) {
	raw := "org-name: Example BV\ncountry: NL\n"
	info := parse(raw)
	require.Equal(t, "Example BV", info.Organization)
	require.Equal(t, "NL", info.Country)
}

type stubRunner struct {
	out string
	err error
}

func (s stubRunner) Run(ctx context.Context, ip string) (string, error) {
	return s.out, s.err
}

func TestLookupWithoutCacheCallsRunner(t *testing.T) {
	c := &Client{Runner: stubRunner{out: "OrgName: Acme\nCountry: DE\n"}}
	info, err := c.Lookup(context.Background(), "9.9.9.9")
	require.NoError(t, err)
	require.Equal(t, "Acme", info.Organization)
	require.Equal(t, "DE", info.Country)
}
