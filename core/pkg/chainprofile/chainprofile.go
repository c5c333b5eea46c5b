// Package chainprofile describes the chains a validation run can target:
// the chain ID, its expected system contract account names, and the
// nodeos release catalog used to flag outdated or unreleased versions.
package chainprofile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChainID identifies a chain by its genesis chain ID, per §2's "the
// engine is chain-agnostic but configured per-chain" design note.
type ChainID string

const (
	ChainEOS  ChainID = "aca376f206b8fc25a6ed44dbdc66547c36c6c33e3a119ffbeaef943642f0e906"
	ChainWAX  ChainID = "1064483dd608fe471bf1fd37f1a50fbee51e6b9e4cbecad3c9fa87e78a1d39ce"
	ChainTelos ChainID = "4667b205c6838ef70ff7988f6e8257e8be0e1284a2f59699054a018f743b1d0"
)

// VersionInfo describes one nodeos release.
type VersionInfo struct {
	Version    string `yaml:"version"`
	ReleasedAt string `yaml:"released_at"`
	Deprecated bool   `yaml:"deprecated"`
}

// VersionCatalog is the ordered list of known nodeos releases for a
// chain, newest first, used to classify a reported server_version as
// current, outdated, or unrecognized.
type VersionCatalog struct {
	Releases []VersionInfo `yaml:"releases"`
}

// Classify reports where version sits in the catalog.
func (c VersionCatalog) Classify(version string) (known bool, deprecated bool) {
	for _, r := range c.Releases {
		if r.Version == version {
			return true, r.Deprecated
		}
	}
	return false, false
}

// Latest returns the newest release's version string, or "" if the
// catalog is empty.
func (c VersionCatalog) Latest() string {
	if len(c.Releases) == 0 {
		return ""
	}
	return c.Releases[0].Version
}

// Profile is the full per-chain configuration a validation run is
// parameterized by.
type Profile struct {
	Name          string         `yaml:"name"`
	ChainID       ChainID        `yaml:"chain_id"`
	SystemAccount string         `yaml:"system_account"`
	TokenContract string         `yaml:"token_contract"`
	TokenSymbol   string         `yaml:"token_symbol"`
	Versions      VersionCatalog `yaml:"versions"`

	// EnableHistory/EnableHyperion/EnableWallet gate the API sub-test
	// catalog's optional plugin sub-suites, per §4.12.
	EnableHistory  bool `yaml:"enable_history"`
	EnableHyperion bool `yaml:"enable_hyperion"`
	EnableWallet   bool `yaml:"enable_wallet"`

	// Test fixtures the API sub-test catalog probes against — every
	// chain has different accounts, transactions, and keys available
	// to exercise these endpoints against.
	TestAccount     string `yaml:"test_account"`
	TestTransaction string `yaml:"test_transaction"`
	TestPublicKey   string `yaml:"test_public_key"`
	BigBlockID      string `yaml:"big_block_id"`
	BigBlockTxCount int    `yaml:"big_block_tx_count"`

	// LocationCheck selects which of §4.10's numeric location-code range
	// rules applies to this chain's regproducer row.
	LocationCheck LocationCheckMode `yaml:"location_check"`

	// KeyAccountsURL is the chain's key-accounts RPC, queried by
	// core/pkg/regproducer.CheckKeyReuse to find every account a
	// producer signing key is registered to.
	KeyAccountsURL string `yaml:"key_accounts_url"`

	// BPJSONContract/BPJSONTable/TestBPJSONScope locate the on-chain
	// copy of a producer's bp.json for §4.13's reconciliation check.
	BPJSONContract  string `yaml:"bpjson_contract"`
	BPJSONTable     string `yaml:"bpjson_table"`
	TestBPJSONScope string `yaml:"test_bpjson_scope"`
}

// LocationCheckMode selects a chain's numeric location-code convention,
// per §4.10's second paragraph.
type LocationCheckMode string

const (
	LocationCountry     LocationCheckMode = "country"
	LocationTimezone     LocationCheckMode = "timezone"
	LocationTimezone100 LocationCheckMode = "timezone100"
)

// LoadProfiles reads a set of chain profiles from a YAML document at
// path, keyed by Profile.Name.
func LoadProfiles(path string) (map[string]*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chainprofile: reading %s: %w", path, err)
	}

	var doc struct {
		Profiles []*Profile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("chainprofile: parsing %s: %w", path, err)
	}

	byName := make(map[string]*Profile, len(doc.Profiles))
	for _, p := range doc.Profiles {
		if p.Name == "" {
			return nil, fmt.Errorf("chainprofile: %s: profile missing a name", path)
		}
		byName[p.Name] = p
	}
	return byName, nil
}

// Default returns a minimal built-in profile, for use when no
// profile file is configured — the EOS mainnet profile is the only one
// wired by default, matching the system the engine was originally built
// to validate.
func Default() *Profile {
	return &Profile{
		Name:          "eos-mainnet",
		ChainID:       ChainEOS,
		SystemAccount: "eosio",
		TokenContract: "eosio.token",
		TokenSymbol:   "EOS",
		Versions: VersionCatalog{Releases: []VersionInfo{
			{Version: "v3.1.2", ReleasedAt: "2023-01-18"},
			{Version: "v2.1.0", ReleasedAt: "2021-11-30", Deprecated: true},
		}},
		EnableHistory:   false,
		EnableHyperion:  false,
		EnableWallet:    false,
		TestAccount:     "eosio.token",
		TestTransaction: "",
		TestPublicKey:   "",
		BigBlockID:      "",
		BigBlockTxCount: 0,
		LocationCheck:   LocationCountry,
		BPJSONContract:  "eosio",
		BPJSONTable:     "bpjson",
	}
}
