// Package nodeprobe composes the per-node endpoint checks of §4.11: a
// bp.json node entry declares a node_type list and zero or more
// endpoints (p2p, api, ssl); this package fans each declared endpoint
// out to the right probe and aggregates node-type coverage across the
// whole nodes array.
package nodeprobe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/poplexity/bpvalidate/core/pkg/extprobe"
	"github.com/poplexity/bpvalidate/core/pkg/findings"
	"github.com/poplexity/bpvalidate/core/pkg/location"
	"github.com/poplexity/bpvalidate/core/pkg/urlvalidate"
)

// p2pConnectTimeout bounds the raw-socket reachability peek that runs
// before the external block-sync speed test, per §4.8's 5s connect
// timeout.
const p2pConnectTimeout = 5 * time.Second

// NodeType is one of bp.json's declared node roles, per §4.11.
type NodeType string

const (
	NodeProducer NodeType = "producer"
	NodeFull     NodeType = "full"
	NodeQuery    NodeType = "query"
	NodeSeed     NodeType = "seed"
	NodeBridge   NodeType = "bridge"
)

var validNodeTypes = map[NodeType]bool{
	NodeProducer: true, NodeFull: true, NodeQuery: true, NodeSeed: true, NodeBridge: true,
}

// Node is one entry from bp.json's nodes array.
type Node struct {
	Types       []NodeType
	P2PEndpoint string
	APIEndpoint string
	SSLEndpoint string
	Location    *location.Declared // per-node location, when the entry declares one
}

// Coverage tracks which node types were declared across an entire
// nodes array, so the caller can flag a BP with no producer node, no
// seed node, etc. HasAPI/HasHTTPS/HasP2P additionally track which
// transports were reachable at all, for Summarize's aggregate rules.
type Coverage struct {
	Types    map[NodeType]int
	HasAPI   bool
	HasHTTPS bool
	HasP2P   bool
}

func newCoverage() Coverage {
	return Coverage{Types: make(map[NodeType]int)}
}

// State tracks the "on the first such node" warnings of §4.11 step 5
// across one validation's nodes array. A fresh State must be used per
// validation — it is not safe to share across concurrent BPs.
type State struct {
	seedMissingP2PWarned   bool
	fullMissingAPIWarned   bool
}

// Composer wires the URL validator and the P2P speed tester needed to
// probe every endpoint a node declares.
type Composer struct {
	URLs     *urlvalidate.Validator
	P2P      extprobe.P2PSpeedTester
	ChainURL string // passed to p2ptest's -a flag, identifying the chain to sync against

	// peek checks raw TCP reachability before handing off to P2P.Test.
	// Overridable so tests can exercise the speed-test path without a
	// real listener.
	peek func(host string, port int, timeout time.Duration) error
}

// New creates a Composer. chainURL identifies the chain p2ptest should
// attempt to sync blocks from when exercising a node's p2p_endpoint.
func New(urls *urlvalidate.Validator, p2p extprobe.P2PSpeedTester, chainURL string) *Composer {
	return &Composer{URLs: urls, P2P: p2p, ChainURL: chainURL, peek: peekReachable}
}

// ProbeNode validates every endpoint node declares and records
// type-specific findings (e.g. a seed node missing its p2p_endpoint),
// per §4.11's per-node flow. state carries the "first such node" warn
// dedup across the whole nodes array — callers loop ProbeNode once per
// node sharing the same *State.
func (c *Composer) ProbeNode(ctx context.Context, class findings.Class, account string, node Node, state *State, stream *findings.Stream) Coverage {
	coverage := newCoverage()
	for _, t := range node.Types {
		if !validNodeTypes[t] {
			stream.Add(findings.Err, fmt.Sprintf("unrecognized node_type %q", t), class, nil)
			continue
		}
		coverage.Types[t]++
	}

	if node.Location != nil {
		location.Apply(stream, location.Check(class, account, *node.Location))
	}

	isProducer := coverage.Types[NodeProducer] > 0
	isSeed := coverage.Types[NodeSeed] > 0
	isFull := coverage.Types[NodeFull] > 0 || coverage.Types[NodeQuery] > 0
	exposesEndpoint := node.APIEndpoint != "" || node.SSLEndpoint != "" || node.P2PEndpoint != ""

	if isSeed && node.P2PEndpoint == "" {
		if !state.seedMissingP2PWarned {
			stream.Add(findings.Warn, "seed node declared without a p2p_endpoint", class, nil)
			state.seedMissingP2PWarned = true
		}
	}
	if isSeed && (node.APIEndpoint != "" || node.SSLEndpoint != "") {
		stream.Add(findings.Warn, "seed node should not expose an API endpoint", class, nil)
	}
	if isFull && node.APIEndpoint == "" && node.SSLEndpoint == "" {
		if !state.fullMissingAPIWarned {
			stream.Add(findings.Warn, "full/query node declared without api_endpoint or ssl_endpoint", class, nil)
			state.fullMissingAPIWarned = true
		}
	}
	if isFull && node.P2PEndpoint != "" {
		stream.Add(findings.Warn, "full/query node should not expose a p2p_endpoint", class, nil)
	}
	if isProducer && exposesEndpoint {
		stream.Add(findings.Warn, "producer node should not expose any public endpoint", class, nil)
	}

	if node.APIEndpoint != "" && c.URLs != nil {
		result := c.URLs.Validate(ctx, findings.ClassAPIEndpoint, node.APIEndpoint, urlvalidate.Options{
			SSL: urlvalidate.SSLOff, AddToList: "nodes/api_http",
		}, stream)
		if result.OK {
			coverage.HasAPI = true
		}
	}
	if node.SSLEndpoint != "" && c.URLs != nil {
		result := c.URLs.Validate(ctx, findings.ClassAPIEndpoint, node.SSLEndpoint, urlvalidate.Options{
			SSL: urlvalidate.SSLOn, ModernTLSVersion: true, AddToList: "nodes/api_https",
		}, stream)
		if result.OK {
			coverage.HasAPI = true
			coverage.HasHTTPS = true
		}
	}
	if node.P2PEndpoint != "" {
		if c.probeP2P(ctx, class, node.P2PEndpoint, stream) {
			coverage.HasP2P = true
		}
	}

	return coverage
}

// probeP2P peeks at a p2p_endpoint's raw socket connectivity and, when
// the external speed tester is wired, records its measured block-relay
// speed, per §4.11. It reports whether the endpoint was at least
// reachable, for Summarize's aggregate coverage rules.
func (c *Composer) probeP2P(ctx context.Context, class findings.Class, endpoint string, stream *findings.Stream) bool {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		stream.Add(findings.Err, fmt.Sprintf("%s: p2p_endpoint must be host:port", endpoint), class, nil)
		return false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		stream.Add(findings.Err, fmt.Sprintf("%s: p2p_endpoint port %q is not numeric", endpoint, portStr), class, nil)
		return false
	}

	peek := c.peek
	if peek == nil {
		peek = peekReachable
	}
	if err := peek(host, port, p2pConnectTimeout); err != nil {
		stream.Add(findings.Err, fmt.Sprintf("%s: p2p_endpoint is not reachable: %v", endpoint, err), class, nil)
		return false
	}

	if c.P2P == nil {
		return true
	}
	result, err := c.P2P.Test(ctx, c.ChainURL, host, port)
	if err != nil {
		stream.Add(findings.Err, fmt.Sprintf("%s: p2p speed test failed: %v", endpoint, err), class, nil)
		return true
	}
	if result.Status != "ok" {
		stream.Add(findings.Crit, fmt.Sprintf("%s: p2p speed test reported %s: %s", endpoint, result.Status, result.ErrorDetail), class, nil)
		return true
	}
	stream.Add(findings.Info, fmt.Sprintf("%s: measured block sync speed %.2f blocks/s", endpoint, result.Speed), class, map[string]any{
		"speed": result.Speed,
	})
	return true
}

// Summarize appends coverage findings for an entire nodes array, per
// §4.11 step 6: a BP missing any of the producer/full/seed roles is an
// err; missing an HTTP or HTTPS API across every node is crit, having
// only HTTP (no HTTPS anywhere) is a warn; missing P2P across every
// node is crit.
func Summarize(class findings.Class, all []Coverage, stream *findings.Stream) {
	total := newCoverage()
	for _, c := range all {
		for t, n := range c.Types {
			total.Types[t] += n
		}
		total.HasAPI = total.HasAPI || c.HasAPI
		total.HasHTTPS = total.HasHTTPS || c.HasHTTPS
		total.HasP2P = total.HasP2P || c.HasP2P
	}

	var missing []string
	if total.Types[NodeProducer] == 0 {
		missing = append(missing, string(NodeProducer))
	}
	if total.Types[NodeFull] == 0 && total.Types[NodeQuery] == 0 {
		missing = append(missing, string(NodeFull))
	}
	if total.Types[NodeSeed] == 0 {
		missing = append(missing, string(NodeSeed))
	}
	if len(missing) > 0 {
		stream.Add(findings.Err, fmt.Sprintf("no node declares node_type %v", missing), class, nil)
	}

	switch {
	case !total.HasAPI:
		stream.Add(findings.Crit, "no node exposes a reachable HTTP or HTTPS API endpoint", class, nil)
	case !total.HasHTTPS:
		stream.Add(findings.Warn, "no node exposes an HTTPS API endpoint, only HTTP", class, nil)
	}

	if !total.HasP2P {
		stream.Add(findings.Crit, "no node exposes a reachable p2p_endpoint", class, nil)
	}
}
