package apitest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/poplexity/bpvalidate/core/pkg/findings"
	"github.com/poplexity/bpvalidate/core/pkg/httpprobe"
)

// historyActionsWindow is §4.12's "most recent block_time within 2h of
// wall clock" freshness bound for the v1 history get_actions sub-test.
const historyActionsWindow = 2 * time.Hour

// hyperionActionsWindow is the analogous 5-minute bound for Hyperion's
// get_actions @timestamp.
const hyperionActionsWindow = 5 * time.Minute

// HistoryV1 runs the legacy history_api plugin sub-suite of §4.12:
// get_transaction, get_actions (which, on success, also yields the
// "traditional" history_type), and get_key_accounts. It returns the
// history_type string, or "" if get_actions failed; it does not rename
// any add_to_list entry itself.
func (s *Suite) HistoryV1(ctx context.Context, class findings.Class, baseURL string, stream *findings.Stream) (historyType string) {
	if s.Profile == nil {
		return ""
	}

	if s.Profile.TestTransaction != "" {
		resp, _, err := s.HTTP.Request(ctx, httpprobe.Request{
			Method: "POST",
			URL:    strings.TrimRight(baseURL, "/") + "/v1/history/get_transaction",
			Body:   fmt.Sprintf(`{"id":%q}`, s.Profile.TestTransaction),
		}, httpprobe.Options{RequestTimeout: subTestTimeout, CacheTimeout: subTestCacheTTL})
		if err != nil || !resp.Success || resp.Code/100 != 2 {
			stream.Add(findings.Err, fmt.Sprintf("%s: history v1 get_transaction failed", baseURL), class, nil)
		}
	}

	actionsResp, _, err := s.HTTP.Request(ctx, httpprobe.Request{
		Method: "POST",
		URL:    strings.TrimRight(baseURL, "/") + "/v1/history/get_actions",
		Body:   `{"pos":-1,"offset":-100,"account_name":"eosio.token"}`,
	}, httpprobe.Options{RequestTimeout: subTestTimeout, CacheTimeout: subTestCacheTTL})
	if err != nil || !actionsResp.Success || actionsResp.Code/100 != 2 {
		stream.Add(findings.Err, fmt.Sprintf("%s: history v1 get_actions failed", baseURL), class, nil)
	} else {
		var parsed struct {
			Actions               []struct {
				BlockTime string `json:"block_time"`
			} `json:"actions"`
			LastIrreversibleBlock int64 `json:"last_irreversible_block"`
		}
		if jsonErr := json.Unmarshal(actionsResp.Body, &parsed); jsonErr != nil {
			stream.Add(findings.Err, fmt.Sprintf("%s: history v1 get_actions response is not valid JSON", baseURL), class, nil)
		} else {
			if len(parsed.Actions) != 100 {
				stream.Add(findings.Err, fmt.Sprintf("%s: history v1 get_actions returned %d actions, expected 100", baseURL, len(parsed.Actions)), class, nil)
			}
			if parsed.LastIrreversibleBlock == 0 {
				stream.Add(findings.Err, fmt.Sprintf("%s: history v1 get_actions response is missing last_irreversible_block", baseURL), class, nil)
			}
			if len(parsed.Actions) > 0 {
				latest := parsed.Actions[0].BlockTime
				for _, a := range parsed.Actions[1:] {
					if a.BlockTime > latest {
						latest = a.BlockTime
					}
				}
				if t, parseErr := parseChainTime(latest); parseErr == nil {
					if s.responseClock(actionsResp).Sub(t) > historyActionsWindow {
						stream.Add(findings.Err, fmt.Sprintf("%s: history v1 most recent action is stale", baseURL), class, nil)
					}
				}
			}
			stream.Add(findings.Info, fmt.Sprintf("%s: history v1 plugin present", baseURL), class, map[string]any{"history_type": "traditional"})
			historyType = "traditional"
		}
	}

	if s.Profile.TestPublicKey != "" {
		resp, _, err := s.HTTP.Request(ctx, httpprobe.Request{
			Method: "POST",
			URL:    strings.TrimRight(baseURL, "/") + "/v1/history/get_key_accounts",
			Body:   fmt.Sprintf(`{"public_key":%q}`, s.Profile.TestPublicKey),
		}, httpprobe.Options{RequestTimeout: subTestTimeout, CacheTimeout: subTestCacheTTL})
		if err != nil || !resp.Success {
			stream.Add(findings.Err, fmt.Sprintf("%s: history v1 get_key_accounts failed", baseURL), class, nil)
		} else {
			var parsed struct {
				AccountNames []string `json:"account_names"`
			}
			if jsonErr := json.Unmarshal(resp.Body, &parsed); jsonErr != nil || len(parsed.AccountNames) == 0 {
				stream.Add(findings.Err, fmt.Sprintf("%s: history v1 get_key_accounts returned no accounts", baseURL), class, nil)
			}
		}
	}

	return historyType
}

// hyperionFeatures is the subset of a Hyperion /v2/health response's
// `features` object §4.12 requires specific values for.
type hyperionFeatures struct {
	Tables struct {
		Proposals bool `json:"proposals"`
		Accounts  bool `json:"accounts"`
		Voters    bool `json:"voters"`
	} `json:"tables"`
	IndexDeltas       bool `json:"index_deltas"`
	IndexTransferMemo bool `json:"index_transfer_memo"`
	IndexAllDeltas    bool `json:"index_all_deltas"`
	FailedTrx         bool `json:"failed_trx"`
	DeferredTrx       bool `json:"deferred_trx"`
	ResourceLimits    bool `json:"resource_limits"`
	ResourceUsage     bool `json:"resource_usage"`
}

type hyperionHealthEntry struct {
	Service string `json:"service"`
	Status  string `json:"status"`
	Data    struct {
		ActiveShards       string  `json:"active_shards"`
		LastIndexedBlock   int64   `json:"last_indexed_block"`
		TotalIndexedBlocks int64   `json:"total_indexed_blocks"`
		TimeOffset         float64 `json:"time_offset"`
	} `json:"data"`
}

// HyperionV2 runs the Hyperion v2 history API sub-suite of §4.12: the
// /v2/health feature-flag and per-service status checks, then
// get_transaction, get_actions, and state/get_key_accounts.
func (s *Suite) HyperionV2(ctx context.Context, class findings.Class, baseURL string, stream *findings.Stream) {
	if s.Profile == nil {
		return
	}
	s.hyperionHealth(ctx, class, baseURL, stream)

	if s.Profile.TestTransaction != "" {
		resp, _, err := s.HTTP.Request(ctx, httpprobe.Request{
			Method: "GET",
			URL:    strings.TrimRight(baseURL, "/") + "/v2/history/get_transaction?id=" + url.QueryEscape(s.Profile.TestTransaction),
		}, httpprobe.Options{RequestTimeout: subTestTimeout, CacheTimeout: subTestCacheTTL})
		if err != nil || !resp.Success || resp.Code/100 != 2 {
			stream.Add(findings.Err, fmt.Sprintf("%s: hyperion get_transaction failed", baseURL), class, nil)
		}
	}

	actionsResp, _, err := s.HTTP.Request(ctx, httpprobe.Request{
		Method: "GET",
		URL:    strings.TrimRight(baseURL, "/") + "/v2/history/get_actions?limit=1",
	}, httpprobe.Options{RequestTimeout: subTestTimeout, CacheTimeout: subTestCacheTTL})
	if err != nil || !actionsResp.Success || actionsResp.Code/100 != 2 {
		stream.Add(findings.Err, fmt.Sprintf("%s: hyperion get_actions failed", baseURL), class, nil)
	} else {
		var parsed struct {
			Actions []struct {
				Timestamp string `json:"@timestamp"`
			} `json:"actions"`
		}
		if jsonErr := json.Unmarshal(actionsResp.Body, &parsed); jsonErr != nil || len(parsed.Actions) == 0 {
			stream.Add(findings.Err, fmt.Sprintf("%s: hyperion get_actions returned no actions", baseURL), class, nil)
		} else if t, parseErr := time.Parse(time.RFC3339, parsed.Actions[0].Timestamp); parseErr == nil {
			if s.responseClock(actionsResp).Sub(t) > hyperionActionsWindow {
				stream.Add(findings.Err, fmt.Sprintf("%s: hyperion's most recent action is stale", baseURL), class, nil)
			}
		}
	}

	if s.Profile.TestPublicKey != "" {
		resp, _, err := s.HTTP.Request(ctx, httpprobe.Request{
			Method: "POST",
			URL:    strings.TrimRight(baseURL, "/") + "/v2/state/get_key_accounts",
			Body:   fmt.Sprintf(`{"public_key":%q}`, s.Profile.TestPublicKey),
		}, httpprobe.Options{RequestTimeout: subTestTimeout, CacheTimeout: subTestCacheTTL})
		if err != nil || !resp.Success {
			stream.Add(findings.Err, fmt.Sprintf("%s: hyperion state/get_key_accounts failed", baseURL), class, nil)
		} else {
			var parsed struct {
				AccountNames []string `json:"account_names"`
			}
			if jsonErr := json.Unmarshal(resp.Body, &parsed); jsonErr != nil || len(parsed.AccountNames) == 0 {
				stream.Add(findings.Err, fmt.Sprintf("%s: hyperion state/get_key_accounts returned no accounts", baseURL), class, nil)
			}
		}
	}
}

func (s *Suite) hyperionHealth(ctx context.Context, class findings.Class, baseURL string, stream *findings.Stream) {
	resp, _, err := s.HTTP.Request(ctx, httpprobe.Request{
		Method: "GET",
		URL:    strings.TrimRight(baseURL, "/") + "/v2/health",
	}, httpprobe.Options{RequestTimeout: subTestTimeout, CacheTimeout: subTestCacheTTL})
	if err != nil || !resp.Success || resp.Code/100 != 2 {
		stream.Add(findings.Err, fmt.Sprintf("%s: hyperion /v2/health failed", baseURL), class, nil)
		return
	}

	var health struct {
		Version     string              `json:"version"`
		Host        string              `json:"host"`
		QueryTimeMs float64             `json:"query_time_ms"`
		Features    hyperionFeatures    `json:"features"`
		Health      []hyperionHealthEntry `json:"health"`
	}
	if jsonErr := json.Unmarshal(resp.Body, &health); jsonErr != nil {
		stream.Add(findings.Err, fmt.Sprintf("%s: hyperion /v2/health response is not valid JSON", baseURL), class, nil)
		return
	}

	if health.Version == "" {
		stream.Add(findings.Err, fmt.Sprintf("%s: hyperion /v2/health is missing version", baseURL), class, nil)
	}
	if health.Host == "" || !strings.Contains(baseURL, health.Host) {
		stream.Add(findings.Err, fmt.Sprintf("%s: hyperion /v2/health host %q does not appear in the endpoint URL", baseURL, health.Host), class, nil)
	}
	if health.QueryTimeMs >= 400 {
		stream.Add(findings.Err, fmt.Sprintf("%s: hyperion /v2/health query_time_ms %.0f is too slow", baseURL, health.QueryTimeMs), class, nil)
	}

	requireOn := map[string]bool{
		"tables/proposals":    health.Features.Tables.Proposals,
		"tables/accounts":     health.Features.Tables.Accounts,
		"tables/voters":       health.Features.Tables.Voters,
		"index_deltas":        health.Features.IndexDeltas,
		"index_transfer_memo": health.Features.IndexTransferMemo,
		"index_all_deltas":    health.Features.IndexAllDeltas,
	}
	for feature, on := range requireOn {
		if !on {
			stream.Add(findings.Err, fmt.Sprintf("%s: hyperion feature %s must be enabled", baseURL, feature), class, nil)
		}
	}
	requireOff := map[string]bool{
		"failed_trx":      health.Features.FailedTrx,
		"deferred_trx":    health.Features.DeferredTrx,
		"resource_limits": health.Features.ResourceLimits,
		"resource_usage":  health.Features.ResourceUsage,
	}
	for feature, on := range requireOff {
		if on {
			stream.Add(findings.Err, fmt.Sprintf("%s: hyperion feature %s must be disabled", baseURL, feature), class, nil)
		}
	}

	for _, svc := range health.Health {
		if svc.Status != "OK" {
			stream.Add(findings.Err, fmt.Sprintf("%s: hyperion service %s reports status %s", baseURL, svc.Service, svc.Status), class, nil)
			continue
		}
		switch svc.Service {
		case "Elasticsearch":
			if svc.Data.ActiveShards != "100.0%" {
				stream.Add(findings.Err, fmt.Sprintf("%s: hyperion elasticsearch active_shards is %s, expected 100.0%%", baseURL, svc.Data.ActiveShards), class, nil)
			}
			if svc.Data.LastIndexedBlock != svc.Data.TotalIndexedBlocks {
				stream.Add(findings.Err, fmt.Sprintf("%s: hyperion elasticsearch last_indexed_block %d does not match total_indexed_blocks %d", baseURL, svc.Data.LastIndexedBlock, svc.Data.TotalIndexedBlocks), class, nil)
			}
		case "NodeosRPC":
			if svc.Data.TimeOffset < -500 || svc.Data.TimeOffset > 2000 {
				stream.Add(findings.Err, fmt.Sprintf("%s: hyperion nodeos time_offset %.0fms is out of range", baseURL, svc.Data.TimeOffset), class, nil)
			}
		}
	}
}

// Wallet runs the wallet_api sub-suite of §4.12 against
// get_accounts_by_authorizers — both by account name and by public key —
// per the chain profile's test fixtures.
func (s *Suite) Wallet(ctx context.Context, class findings.Class, baseURL string, stream *findings.Stream) {
	if s.Profile == nil {
		return
	}

	if s.Profile.TestAccount != "" {
		s.checkAccountsByAuthorizers(ctx, class, baseURL, fmt.Sprintf(`{"accounts":[%q]}`, s.Profile.TestAccount), stream)
	}
	if s.Profile.TestPublicKey != "" {
		s.checkAccountsByAuthorizers(ctx, class, baseURL, fmt.Sprintf(`{"keys":[%q]}`, s.Profile.TestPublicKey), stream)
	}
}

func (s *Suite) checkAccountsByAuthorizers(ctx context.Context, class findings.Class, baseURL, body string, stream *findings.Stream) {
	resp, err := s.post(ctx, baseURL, "get_accounts_by_authorizers", body)
	if err != nil || !resp.Success {
		stream.Add(findings.Err, fmt.Sprintf("%s: get_accounts_by_authorizers failed", baseURL), class, nil)
		return
	}
	var parsed struct {
		Accounts []any `json:"accounts"`
	}
	if jsonErr := json.Unmarshal(resp.Body, &parsed); jsonErr != nil || len(parsed.Accounts) == 0 {
		stream.Add(findings.Err, fmt.Sprintf("%s: get_accounts_by_authorizers returned no accounts", baseURL), class, nil)
	}
}
