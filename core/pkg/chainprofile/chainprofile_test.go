package chainprofile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyKnownVersion(t *testing.T) {
	catalog := VersionCatalog{Releases: []VersionInfo{
		{Version: "v3.1.2"},
		{Version: "v2.1.0", Deprecated: true},
	}}

	known, deprecated := catalog.Classify("v2.1.0")
	require.True(t, known)
	require.True(t, deprecated)

	known, deprecated = catalog.Classify("v3.1.2")
	require.True(t, known)
	require.False(t, deprecated)
}

func TestClassifyUnknownVersion(t *testing.T) {
	catalog := VersionCatalog{Releases: []VersionInfo{{Version: "v3.1.2"}}}
	known, _ := catalog.Classify("v9.9.9")
	require.False(t, known)
}

func TestLatestReturnsFirstEntry(t *testing.T) {
	catalog := VersionCatalog{Releases: []VersionInfo{{Version: "v3.1.2"}, {Version: "v2.1.0"}}}
	require.Equal(t, "v3.1.2", catalog.Latest())
}

func TestLoadProfilesParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	doc := `
profiles:
  - name: eos-mainnet
    chain_id: aca376f206b8fc25a6ed44dbdc66547c36c6c33e3a119ffbeaef943642f0e906
    system_account: eosio
    token_contract: eosio.token
    token_symbol: EOS
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	profiles, err := LoadProfiles(path)
	require.NoError(t, err)
	require.Contains(t, profiles, "eos-mainnet")
	require.Equal(t, "eosio", profiles["eos-mainnet"].SystemAccount)
}

func TestDefaultProfileIsEOSMainnet(t *testing.T) {
	require.Equal(t, ChainEOS, Default().ChainID)
}
