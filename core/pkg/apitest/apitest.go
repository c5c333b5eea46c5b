// Package apitest implements the API sub-test catalog of §4.12: a suite
// of small, independent probes run against a node's api_endpoint,
// covering the EOSIO chain RPC surface, the history/hyperion plugin
// APIs, and the wallet endpoint's access posture.
package apitest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/poplexity/bpvalidate/core/pkg/chainprofile"
	"github.com/poplexity/bpvalidate/core/pkg/extprobe"
	"github.com/poplexity/bpvalidate/core/pkg/findings"
	"github.com/poplexity/bpvalidate/core/pkg/httpprobe"
)

// clockSkewTolerance is §4.12's head_block_time freshness window.
const clockSkewTolerance = 10 * time.Second

// subTestTimeout and subTestCacheTTL are the standard envelope every
// sub-test shares, per §4.12.
const (
	subTestTimeout  = 10 * time.Second
	subTestCacheTTL = 300 * time.Second
)

// Suite runs the API sub-test catalog against one node's api_endpoint.
type Suite struct {
	HTTP    *httpprobe.Client
	HTTP2   extprobe.HTTP2Detector
	Profile *chainprofile.Profile
}

// New creates a Suite. http2 may be nil to skip HTTP/2 detection.
func New(client *httpprobe.Client, http2 extprobe.HTTP2Detector, profile *chainprofile.Profile) *Suite {
	return &Suite{HTTP: client, HTTP2: http2, Profile: profile}
}

func (s *Suite) post(ctx context.Context, baseURL, action, body string) (httpprobe.Response, error) {
	resp, _, err := s.HTTP.Request(ctx, httpprobe.Request{
		Method: "POST",
		URL:    strings.TrimRight(baseURL, "/") + "/v1/chain/" + action,
		Body:   body,
	}, httpprobe.Options{RequestTimeout: subTestTimeout, CacheTimeout: subTestCacheTTL})
	return resp, err
}

var (
	versionSuffixDD    = regexp.MustCompile(`-dd-[0-9a-fA-F]+$`)
	versionSuffixDirty = regexp.MustCompile(`-dirty$`)
	versionSuffixWord  = regexp.MustCompile(`-[A-Za-z0-9]+$`)
)

// normalizeServerVersion strips the build-metadata suffixes §4.12 names
// (a docker digest tag, a dirty-worktree marker, and a trailing git
// describe qualifier) before the version is looked up in the catalog.
func normalizeServerVersion(v string) string {
	v = versionSuffixDD.ReplaceAllString(v, "")
	v = versionSuffixDirty.ReplaceAllString(v, "")
	v = versionSuffixWord.ReplaceAllString(v, "")
	return v
}

// chainTimeLayouts are the timestamp formats nodeos emits for
// head_block_time, depending on fractional-second precision.
var chainTimeLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

func parseChainTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range chainTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

// responseClock reports the wall-clock time a response was received, per
// its Date header when present, falling back to the client's injected
// clock.
func (s *Suite) responseClock(resp httpprobe.Response) time.Time {
	if resp.Header != nil {
		if raw := resp.Header.Get("Date"); raw != "" {
			if t, err := http.ParseTime(raw); err == nil {
				return t
			}
		}
	}
	if s.HTTP != nil && s.HTTP.Now != nil {
		return s.HTTP.Now()
	}
	return time.Now()
}

// GetInfo calls get_info and checks chain_id matches the configured
// profile, head_block_time is fresh, and server_version_string is a
// recognized, non-deprecated release, per §4.12.
func (s *Suite) GetInfo(ctx context.Context, class findings.Class, baseURL string, stream *findings.Stream) {
	resp, err := s.post(ctx, baseURL, "get_info", "")
	if err != nil || !resp.Success {
		stream.Add(findings.Crit, fmt.Sprintf("%s: get_info failed", baseURL), class, nil)
		return
	}

	var info struct {
		ChainID       string `json:"chain_id"`
		HeadBlockTime string `json:"head_block_time"`
		ServerVersion string `json:"server_version_string"`
	}
	if err := json.Unmarshal(resp.Body, &info); err != nil {
		stream.Add(findings.Crit, fmt.Sprintf("%s: get_info response is not valid JSON", baseURL), class, nil)
		return
	}

	if s.Profile != nil && info.ChainID != "" && info.ChainID != string(s.Profile.ChainID) {
		stream.Add(findings.Crit, fmt.Sprintf("%s: chain_id %s does not match the expected chain", baseURL, info.ChainID), class, nil)
	}

	if info.HeadBlockTime != "" {
		headTime, parseErr := parseChainTime(info.HeadBlockTime)
		if parseErr != nil {
			stream.Add(findings.Err, fmt.Sprintf("%s: head_block_time %q is not parseable", baseURL, info.HeadBlockTime), class, nil)
		} else {
			now := s.responseClock(resp)
			delta := now.Sub(headTime)
			if delta > clockSkewTolerance {
				stream.Add(findings.Crit, fmt.Sprintf("%s: last block is not up-to-date", baseURL), class, map[string]any{
					"delta_time": delta.Seconds(),
				})
			}
		}
	}

	if s.Profile != nil && info.ServerVersion != "" {
		normalized := normalizeServerVersion(info.ServerVersion)
		known, deprecated := s.Profile.Versions.Classify(normalized)
		switch {
		case !known:
			stream.Add(findings.Info, fmt.Sprintf("%s: server_version_string %q is not in the known release catalog", baseURL, info.ServerVersion), class, nil)
		case deprecated:
			stream.Add(findings.Warn, fmt.Sprintf("%s: running deprecated release %s", baseURL, normalized), class, nil)
		}
	}
}

// BlockOne requests block number 1 via get_block, per §4.12's catalog —
// any failure is an err, since a node that cannot serve genesis history
// cannot be chain-id-verified by third parties.
func (s *Suite) BlockOne(ctx context.Context, class findings.Class, baseURL string, stream *findings.Stream) {
	resp, err := s.post(ctx, baseURL, "get_block", `{"block_num_or_id":"1"}`)
	if err != nil || !resp.Success || resp.Code/100 != 2 {
		stream.Add(findings.Err, fmt.Sprintf("%s: get_block for block 1 did not return success", baseURL), class, nil)
	}
}

// Patreonous checks that get_table_rows against the system contract's
// global table succeeds, per §4.12 — named for the patreonous-style
// RPC firewalls that this sub-test would trip if they blocked reads of
// a routinely-queried table.
func (s *Suite) Patreonous(ctx context.Context, class findings.Class, baseURL string, stream *findings.Stream) {
	account := "eosio"
	if s.Profile != nil && s.Profile.SystemAccount != "" {
		account = s.Profile.SystemAccount
	}
	body := fmt.Sprintf(`{"json":true,"code":%q,"scope":%q,"table":"global"}`, account, account)
	resp, err := s.post(ctx, baseURL, "get_table_rows", body)
	if err != nil || !resp.Success || resp.Code/100 != 2 {
		stream.Add(findings.Err, fmt.Sprintf("%s: get_table_rows for %s.global did not return success", baseURL, account), class, nil)
	}
}

// ErrorMessage checks that validate_error_message returns a non-empty
// error.details array, per §4.12; a 2xx response with an empty or
// missing details array means verbose HTTP errors are disabled.
func (s *Suite) ErrorMessage(ctx context.Context, class findings.Class, baseURL string, stream *findings.Stream) {
	resp, err := s.post(ctx, baseURL, "validate_error_message", "{}")
	if err != nil || !resp.Success {
		stream.Add(findings.Err, fmt.Sprintf("%s: validate_error_message did not return a response (hint: enable verbose-http-errors)", baseURL), class, nil)
		return
	}

	var envelope struct {
		Error struct {
			Details []any `json:"details"`
		} `json:"error"`
	}
	if jsonErr := json.Unmarshal(resp.Body, &envelope); jsonErr != nil || len(envelope.Error.Details) == 0 {
		stream.Add(findings.Err, fmt.Sprintf("%s: error.details is empty (hint: enable verbose-http-errors)", baseURL), class, nil)
	}
}

// ABISerializer checks that get_block on a pre-known big block returns
// the expected transaction count, per §4.12; a mismatch means the
// abi_serializer plugin is truncating deserialization under load.
func (s *Suite) ABISerializer(ctx context.Context, class findings.Class, baseURL string, stream *findings.Stream) {
	if s.Profile == nil || s.Profile.BigBlockID == "" {
		return
	}
	body := fmt.Sprintf(`{"block_num_or_id":%q}`, s.Profile.BigBlockID)
	resp, err := s.post(ctx, baseURL, "get_block", body)
	if err != nil || !resp.Success {
		stream.Add(findings.Err, fmt.Sprintf("%s: get_block for %s failed (hint: raise abi-serializer-max-time-ms)", baseURL, s.Profile.BigBlockID), class, nil)
		return
	}

	var parsed struct {
		Transactions []any `json:"transactions"`
	}
	if jsonErr := json.Unmarshal(resp.Body, &parsed); jsonErr != nil || len(parsed.Transactions) != s.Profile.BigBlockTxCount {
		stream.Add(findings.Err, fmt.Sprintf("%s: block %s has %d transactions, expected %d (hint: raise abi-serializer-max-time-ms)", baseURL, s.Profile.BigBlockID, len(parsed.Transactions), s.Profile.BigBlockTxCount), class, nil)
	}
}

// SystemSymbol checks that get_currency_balance for the chain profile's
// test account and core symbol returns a non-empty balance array.
func (s *Suite) SystemSymbol(ctx context.Context, class findings.Class, baseURL string, stream *findings.Stream) {
	if s.Profile == nil {
		return
	}
	body := fmt.Sprintf(`{"code":%q,"account":%q,"symbol":%q}`, s.Profile.TokenContract, s.Profile.TestAccount, s.Profile.TokenSymbol)
	resp, err := s.post(ctx, baseURL, "get_currency_balance", body)
	if err != nil || !resp.Success {
		stream.Add(findings.Err, fmt.Sprintf("%s: get_currency_balance failed", baseURL), class, nil)
		return
	}

	var balances []string
	if jsonErr := json.Unmarshal(resp.Body, &balances); jsonErr != nil || len(balances) == 0 {
		stream.Add(findings.Err, fmt.Sprintf("%s: get_currency_balance returned no balances for %s", baseURL, s.Profile.TestAccount), class, nil)
	}
}

// HTTP2Supported reports whether baseURL negotiates HTTP/2, per §4.12's
// ssl=on sub-test. It does not change any add_to_list entry; an
// api_https record keeps its api_https suffix whatever the result.
func (s *Suite) HTTP2Supported(ctx context.Context, class findings.Class, baseURL string, stream *findings.Stream) bool {
	if s.HTTP2 == nil {
		return false
	}
	ok, err := s.HTTP2.Detect(ctx, baseURL)
	if err != nil || !ok {
		stream.Add(findings.Warn, fmt.Sprintf("%s: does not negotiate HTTP/2", baseURL), class, nil)
		return false
	}
	return true
}

// sideEffectPaths is the catalog of §4.12's disabled-by-default
// management plugins: producer_api, net_api, and db_size_api must never
// answer 2xx on a public api_endpoint.
var sideEffectPaths = []string{
	"/v1/producer/get_integrity_hash",
	"/v1/net/connections",
	"/v1/db_size/get",
}

// DisabledSideEffectActions verifies that producer_api, net_api, and
// db_size_api are NOT exposed publicly, per §4.12 — a 2xx at the
// original URL is fatal; a redirect away from the node is tolerated,
// since it means the plugin isn't actually being served there.
func (s *Suite) DisabledSideEffectActions(ctx context.Context, class findings.Class, baseURL string, stream *findings.Stream) {
	for _, path := range sideEffectPaths {
		url := strings.TrimRight(baseURL, "/") + path
		resp, _, err := s.HTTP.Request(ctx, httpprobe.Request{Method: "GET", URL: url}, httpprobe.Options{RequestTimeout: subTestTimeout})
		if err != nil {
			continue
		}
		if resp.FinalURL != "" && resp.FinalURL != url {
			continue // redirected away from the node; tolerated
		}
		if resp.Success && resp.Code/100 == 2 {
			stream.Add(findings.Crit, fmt.Sprintf("%s: management endpoint %s is publicly exposed", baseURL, path), class, nil)
		}
	}
}
