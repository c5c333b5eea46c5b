// Package chainrpc implements the two read-only chain-RPC adapters the
// validation engine needs against a live node: the bpjson table lookup
// §4.13's reconciliation check reads from, and the key-accounts lookup
// §4.15's key-reuse check reads from. Both are thin wrappers around
// get_table_rows and get_key_accounts against the chain profile's
// configured endpoint — the same RPC surface core/pkg/apitest already
// exercises as part of the sub-test catalog.
package chainrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/poplexity/bpvalidate/core/pkg/chainprofile"
	"github.com/poplexity/bpvalidate/core/pkg/httpprobe"
)

const requestTimeout = 10 * time.Second

// Client reads a chain's bpjson table and key-accounts index over HTTP,
// satisfying both core/pkg/reconcile.ChainReader and
// core/pkg/regproducer.ChainReader.
type Client struct {
	HTTP     *httpprobe.Client
	ChainURL string // base URL of a chain_api_plugin node, e.g. https://eos.greymass.com
	Profile  *chainprofile.Profile
}

// New creates a Client targeting chainURL under profile's table/scope
// configuration.
func New(client *httpprobe.Client, chainURL string, profile *chainprofile.Profile) *Client {
	return &Client{HTTP: client, ChainURL: chainURL, Profile: profile}
}

// OnChainBPJSON implements reconcile.ChainReader by reading the row
// account has in the chain's bpjson table (or equivalent, per the
// chain profile), per §4.13.
func (c *Client) OnChainBPJSON(ctx context.Context, account string) ([]byte, error) {
	contract, table, scope := "eosio", "bpjson", account
	if c.Profile != nil {
		if c.Profile.BPJSONContract != "" {
			contract = c.Profile.BPJSONContract
		}
		if c.Profile.BPJSONTable != "" {
			table = c.Profile.BPJSONTable
		}
		if c.Profile.TestBPJSONScope != "" {
			scope = c.Profile.TestBPJSONScope
		}
	}

	body := fmt.Sprintf(`{"json":true,"code":%q,"scope":%q,"table":%q,"lower_bound":%q,"upper_bound":%q,"limit":1}`,
		contract, scope, table, account, account)
	resp, _, err := c.HTTP.Request(ctx, httpprobe.Request{
		Method: "POST",
		URL:    strings.TrimRight(c.ChainURL, "/") + "/v1/chain/get_table_rows",
		Body:   body,
	}, httpprobe.Options{RequestTimeout: requestTimeout})
	if err != nil {
		return nil, fmt.Errorf("chainrpc: get_table_rows %s.%s: %w", contract, table, err)
	}
	if !resp.Success || resp.Code/100 != 2 {
		return nil, fmt.Errorf("chainrpc: get_table_rows %s.%s returned status %d", contract, table, resp.Code)
	}

	var parsed struct {
		Rows []json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("chainrpc: get_table_rows %s.%s response is not valid JSON: %w", contract, table, err)
	}
	if len(parsed.Rows) == 0 {
		return nil, fmt.Errorf("chainrpc: %s has no row in %s.%s", account, contract, table)
	}

	var row struct {
		JSON string `json:"json"`
	}
	if err := json.Unmarshal(parsed.Rows[0], &row); err == nil && row.JSON != "" {
		return []byte(row.JSON), nil
	}
	return parsed.Rows[0], nil
}

// ProducerKeyOwners implements regproducer.ChainReader by asking the
// chain's history get_key_accounts endpoint which accounts a signing
// key is registered to, per §4.15.
func (c *Client) ProducerKeyOwners(ctx context.Context, key string) ([]string, error) {
	url := c.ChainURL
	if c.Profile != nil && c.Profile.KeyAccountsURL != "" {
		url = c.Profile.KeyAccountsURL
	}
	body := fmt.Sprintf(`{"public_key":%q}`, key)
	resp, _, err := c.HTTP.Request(ctx, httpprobe.Request{
		Method: "POST",
		URL:    strings.TrimRight(url, "/") + "/v1/history/get_key_accounts",
		Body:   body,
	}, httpprobe.Options{RequestTimeout: requestTimeout})
	if err != nil {
		return nil, fmt.Errorf("chainrpc: get_key_accounts: %w", err)
	}
	if !resp.Success || resp.Code/100 != 2 {
		return nil, fmt.Errorf("chainrpc: get_key_accounts returned status %d", resp.Code)
	}

	var parsed struct {
		AccountNames []string `json:"account_names"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("chainrpc: get_key_accounts response is not valid JSON: %w", err)
	}
	return parsed.AccountNames, nil
}
