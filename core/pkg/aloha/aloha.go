// Package aloha implements the reliability probe of §4.14: a single
// check against a fixed external reliability-scoring endpoint, gated on
// a BP having opted in with an aloha_id.
package aloha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/poplexity/bpvalidate/core/pkg/findings"
	"github.com/poplexity/bpvalidate/core/pkg/httpprobe"
)

// Endpoint is the fixed external reliability-scoring service §4.14 posts
// the producer's aloha_id to.
const Endpoint = "https://alohaeos.com/api/producers/score"

// staleAfter is §4.14's 30-day window: a last_missed_round inside it is
// a warn, outside it (or absent) is ok.
const staleAfter = 30 * 24 * time.Hour

const probeTimeout = 10 * time.Second

// Now is overridable so tests can pin the reference time a missed round
// is compared against.
var Now = time.Now

// Result summarizes one reliability check.
type Result struct {
	LastMissedRound string // RFC3339 timestamp, or "never"
	Stale           bool   // true when the missed round falls inside staleAfter
}

// Probe posts alohaID to Endpoint and records a finding against
// §4.14's thresholds. It is a no-op, returning a zero Result, when
// alohaID is empty — the probe only runs for BPs that opted in.
func Probe(ctx context.Context, class findings.Class, alohaID string, client *httpprobe.Client, stream *findings.Stream) Result {
	if alohaID == "" {
		return Result{}
	}

	form := url.Values{"producer": {alohaID}}.Encode()
	resp, _, err := client.Request(ctx, httpprobe.Request{
		Method:  "POST",
		URL:     Endpoint,
		Body:    form,
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
	}, httpprobe.Options{RequestTimeout: probeTimeout})
	if err != nil || !resp.Success {
		stream.Add(findings.Err, fmt.Sprintf("%s: aloha reliability probe failed", alohaID), class, nil)
		return Result{}
	}

	var body struct {
		Producer struct {
			LastMissedRound string `json:"last_missed_round"`
		} `json:"producer"`
	}
	if jsonErr := json.Unmarshal(resp.Body, &body); jsonErr != nil {
		stream.Add(findings.Err, fmt.Sprintf("%s: aloha response is not valid JSON", alohaID), class, nil)
		return Result{}
	}

	if body.Producer.LastMissedRound == "" {
		stream.Add(findings.Ok, fmt.Sprintf("%s: no missed rounds on record", alohaID), class, map[string]any{
			"last_missed_round": "never",
		})
		return Result{LastMissedRound: "never"}
	}

	missed, parseErr := time.Parse(time.RFC3339, body.Producer.LastMissedRound)
	if parseErr != nil {
		stream.Add(findings.Err, fmt.Sprintf("%s: last_missed_round %q is not parseable", alohaID, body.Producer.LastMissedRound), class, nil)
		return Result{LastMissedRound: body.Producer.LastMissedRound}
	}

	info := map[string]any{"last_missed_round": body.Producer.LastMissedRound}
	if Now().Sub(missed) <= staleAfter {
		stream.Add(findings.Warn, fmt.Sprintf("%s: missed a round %s ago", alohaID, Now().Sub(missed).Round(time.Hour)), class, info)
		return Result{LastMissedRound: body.Producer.LastMissedRound, Stale: true}
	}

	stream.Add(findings.Ok, fmt.Sprintf("%s: last missed round was more than 30 days ago", alohaID), class, info)
	return Result{LastMissedRound: body.Producer.LastMissedRound}
}
