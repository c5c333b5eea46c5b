// Package regproducer implements the on-chain producer registration
// checks of §4.15: producer key reuse across accounts, and whether a BP
// has claimed rewards recently enough to be considered active.
package regproducer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poplexity/bpvalidate/core/pkg/findings"
)

// Registration is the subset of a chain's regproducer table row this
// package inspects.
type Registration struct {
	Owner        string
	ProducerKey  string
	IsActive     bool
	UnpaidBlocks uint32
	LastClaimed  time.Time
	TotalVotes   float64
	URL          string
}

// ChainReader is the read-only chain access this package needs — the
// concrete chain RPC reader lives in core/pkg/chainrpc, this
// interface only asks for what §4.15 itself requires.
type ChainReader interface {
	ProducerKeyOwners(ctx context.Context, key string) ([]string, error)
}

// claimRewardsGrace is §4.15's 24h30s grace period past the last
// claimrewards action before a nonzero unpaid_blocks balance is flagged.
const claimRewardsGrace = 24*time.Hour + 30*time.Second

// CheckKeyReuse flags owner for reusing a producer signing key already
// registered to a different account, per §4.15: a reused key is a
// recommendation to switch to a dedicated signing key, reported as err.
// When the chain's key-accounts endpoint itself is unavailable, the
// check silently passes (logged) rather than failing the BP for an
// infrastructure problem unrelated to its own registration.
func CheckKeyReuse(ctx context.Context, class findings.Class, reg Registration, chain ChainReader, stream *findings.Stream, logger *slog.Logger) {
	owners, err := chain.ProducerKeyOwners(ctx, reg.ProducerKey)
	if err != nil {
		if logger != nil {
			logger.Warn("regproducer: key-accounts endpoint unavailable, skipping key reuse check", "owner", reg.Owner, "error", err)
		}
		return
	}

	others := 0
	for _, owner := range owners {
		if owner != reg.Owner {
			others++
		}
	}
	if others > 0 {
		stream.Add(findings.Err, fmt.Sprintf("%s: producer signing key is also registered to %d other account(s); use a dedicated signing key", reg.Owner, others), class, nil)
	}
}

// CheckClaimRewards flags a registered producer with unpaid blocks whose
// last claimrewards action is older than claimRewardsGrace, per §4.15.
func CheckClaimRewards(class findings.Class, reg Registration, now time.Time, stream *findings.Stream) {
	if reg.UnpaidBlocks == 0 {
		return
	}

	if now.Sub(reg.LastClaimed) < claimRewardsGrace {
		return
	}

	stream.Add(findings.Err, fmt.Sprintf("%s: %d unpaid blocks, last claimed rewards %s ago", reg.Owner, reg.UnpaidBlocks, now.Sub(reg.LastClaimed).Round(time.Second)), class, nil)
}
