// Package reconcile implements the on-chain reconciliation check of
// §4.13: a BP's declared bp.json must match what the chain itself
// reports (read through a ChainReader, e.g. the chain profile's bpjson
// contract table), and the global blacklist
// served by the protocol is checked by content hash.
package reconcile

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/poplexity/bpvalidate/core/pkg/findings"
)

// ChainReader reads the on-chain copy of a producer's bp.json.
type ChainReader interface {
	OnChainBPJSON(ctx context.Context, account string) ([]byte, error)
}

// Diff reports a byte-for-byte canonical mismatch between a BP's
// declared bp.json and the chain's copy.
type Diff struct {
	Equal bool
	Unified string
}

// Reconcile canonicalizes both documents per RFC 8785 (so field
// ordering and whitespace differences never produce false positives)
// and unified-diffs them when they disagree, per §4.13.
func Reconcile(ctx context.Context, class findings.Class, account string, declared []byte, chain ChainReader, stream *findings.Stream) Diff {
	onChain, err := chain.OnChainBPJSON(ctx, account)
	if err != nil {
		stream.Add(findings.Err, fmt.Sprintf("%s: could not read on-chain bp.json: %v", account, err), class, nil)
		return Diff{}
	}

	declaredCanon, err := canonicalize(declared)
	if err != nil {
		stream.Add(findings.Crit, fmt.Sprintf("%s: declared bp.json failed canonicalization: %v", account, err), class, nil)
		return Diff{}
	}
	chainCanon, err := canonicalize(onChain)
	if err != nil {
		stream.Add(findings.Crit, fmt.Sprintf("%s: on-chain bp.json failed canonicalization: %v", account, err), class, nil)
		return Diff{}
	}

	if bytes.Equal(declaredCanon, chainCanon) {
		return Diff{Equal: true}
	}

	unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(prettyPrint(chainCanon))),
		B:        difflib.SplitLines(string(prettyPrint(declaredCanon))),
		FromFile: "on_chain",
		ToFile:   "declared",
		Context:  2,
	})
	if err != nil {
		unified = "(diff unavailable)"
	}

	stream.Add(findings.Err, fmt.Sprintf("%s: declared bp.json does not match the on-chain copy", account), class, map[string]any{
		"diff": unified,
	})
	return Diff{Unified: unified}
}

// canonicalize applies RFC 8785 JSON Canonicalization to doc.
func canonicalize(doc []byte) ([]byte, error) {
	return jcs.Transform(doc)
}

// prettyPrint re-indents canonical (single-line) JSON for a more
// readable unified diff; canonicalized bytes are re-parsed since jcs's
// output has no whitespace to preserve.
func prettyPrint(canon []byte) []byte {
	var v any
	if err := json.Unmarshal(canon, &v); err != nil {
		return canon
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return canon
	}
	return out
}

// BlacklistHash computes the content hash of the raw blacklist document
// the protocol serves, for comparison against a previously cached hash
// (§4.13's "re-check the blacklist only when it changes" optimization).
func BlacklistHash(doc []byte) string {
	sum := sha256.Sum256(doc)
	return hex.EncodeToString(sum[:])
}

// CheckBlacklistChanged reports whether doc's hash differs from
// previousHash, recording an info finding either way so a run's history
// always shows whether the blacklist was actually re-parsed.
func CheckBlacklistChanged(class findings.Class, doc []byte, previousHash string, stream *findings.Stream) (newHash string, changed bool) {
	newHash = BlacklistHash(doc)
	changed = newHash != previousHash
	if changed {
		stream.Add(findings.Info, "blacklist content changed since the last cached check", class, nil)
	}
	return newHash, changed
}
