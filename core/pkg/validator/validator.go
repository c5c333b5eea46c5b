// Package validator is the entry point of the validation engine: given
// one BP's declared submission, it runs every applicable check from
// §4's modules in order and assembles the finding stream and output
// document into a single Report, per §2's top-level flow.
package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/poplexity/bpvalidate/core/pkg/aloha"
	"github.com/poplexity/bpvalidate/core/pkg/apitest"
	"github.com/poplexity/bpvalidate/core/pkg/bpjson"
	"github.com/poplexity/bpvalidate/core/pkg/chainprofile"
	"github.com/poplexity/bpvalidate/core/pkg/findings"
	"github.com/poplexity/bpvalidate/core/pkg/httpprobe"
	"github.com/poplexity/bpvalidate/core/pkg/location"
	"github.com/poplexity/bpvalidate/core/pkg/nodeprobe"
	"github.com/poplexity/bpvalidate/core/pkg/outputdoc"
	"github.com/poplexity/bpvalidate/core/pkg/reconcile"
	"github.com/poplexity/bpvalidate/core/pkg/regproducer"
	"github.com/poplexity/bpvalidate/core/pkg/urlvalidate"
)

// BP is one producer's declared submission: its regproducer row plus
// the chains.json index it publishes.
type BP struct {
	Account       string
	ProducerKey   string
	Homepage      string
	ChainsJSON    string // URL to the bp.json index for multiple chains
	BPJSONURL     string // resolved URL for this run's configured chain
	IsActive      bool
	UnpaidBlocks  uint32
	LastClaimTime time.Time
	Location      int    // regproducer's numeric location code, per §4.10
	AlohaID       string // opts this BP into the reliability probe of §4.14
}

// RunMeta is the run-metadata finding prepended to every report, per
// §2's "entry point installs a run-metadata finding" step — computed
// only once the run has actually finished, hence Prefix rather than Add.
type RunMeta struct {
	Account  string
	RunID    string
	Started  time.Time
	Duration time.Duration
}

// Report is what one Validate call returns.
type Report struct {
	Meta     RunMeta
	Findings []findings.Finding
	Summary  map[findings.Class]findings.Kind
	Output   *outputdoc.Document
}

// Engine bundles every collaborator a validation run needs. Some fields
// may be nil to skip the step they serve: ChainReconcile (on-chain
// reconciliation, useful when only auditing the declared bp.json itself,
// e.g. in CI before registering on-chain), RegproducerChain (key-reuse
// check), MXResolver (email MX check), API (API sub-test catalog) and
// AlohaHTTP (reliability probe).
type Engine struct {
	URLs             *urlvalidate.Validator
	Schema           *bpjson.Schema
	MXResolver       bpjson.MXResolver
	Nodes            *nodeprobe.Composer
	API              *apitest.Suite
	Profile          *chainprofile.Profile
	ChainReconcile   reconcile.ChainReader
	RegproducerChain regproducer.ChainReader
	AlohaHTTP        *httpprobe.Client
	Logger           *slog.Logger
	Clock            func() time.Time
}

// New wires an Engine. profile configures the chain this run targets.
func New(urls *urlvalidate.Validator, schema *bpjson.Schema, mx bpjson.MXResolver, nodes *nodeprobe.Composer, api *apitest.Suite, profile *chainprofile.Profile) *Engine {
	var alohaHTTP *httpprobe.Client
	if api != nil {
		alohaHTTP = api.HTTP
	}
	return &Engine{
		URLs:       urls,
		Schema:     schema,
		MXResolver: mx,
		Nodes:      nodes,
		API:        api,
		Profile:    profile,
		AlohaHTTP:  alohaHTTP,
		Logger:     slog.Default(),
		Clock:      time.Now,
	}
}

// Validate runs the full check suite against bp and returns the
// resulting Report. A panic anywhere in the check suite — a bug, not a
// validation failure — is recovered and surfaced as a single crit
// finding rather than crashing the run of every other BP in a batch.
func (e *Engine) Validate(ctx context.Context, bp BP) (report *Report) {
	stream := findings.New()
	out := outputdoc.New()
	started := e.Clock()
	runID := uuid.NewString()

	defer func() {
		if r := recover(); r != nil {
			stream.Add(findings.Crit, fmt.Sprintf("%s: validation run panicked: %v", bp.Account, r), findings.ClassGeneral, nil)
			report = e.finish(bp, runID, started, stream, out)
		}
	}()

	e.run(ctx, bp, stream, out)
	return e.finish(bp, runID, started, stream, out)
}

func (e *Engine) finish(bp BP, runID string, started time.Time, stream *findings.Stream, out *outputdoc.Document) *Report {
	finished := e.Clock()
	stream.Prefix(findings.Ok, fmt.Sprintf("%s: validation run completed in %s", bp.Account, finished.Sub(started)), findings.ClassGeneral, map[string]any{
		"run_id":   runID,
		"duration": finished.Sub(started).Seconds(),
	})

	return &Report{
		Meta: RunMeta{
			Account:  bp.Account,
			RunID:    runID,
			Started:  started,
			Duration: finished.Sub(started),
		},
		Findings: stream.All(),
		Summary:  stream.Summarize(),
		Output:   out,
	}
}

// run is the step-by-step flow: regproducer checks, homepage probe,
// chains.json, bp.json fetch and schema validation, then — only once
// the declared document is structurally sound — aloha, nodes, and
// on-chain reconciliation. An inactive BP is skipped entirely after a
// single regproducer-class skip finding, per §8's invariant.
func (e *Engine) run(ctx context.Context, bp BP, stream *findings.Stream, out *outputdoc.Document) {
	if !bp.IsActive {
		stream.Add(findings.Skip, fmt.Sprintf("%s: producer is not active, skipping validation", bp.Account), findings.ClassRegproducer, nil)
		return
	}

	reg := regproducer.Registration{
		Owner: bp.Account, ProducerKey: bp.ProducerKey, IsActive: bp.IsActive,
		UnpaidBlocks: bp.UnpaidBlocks, LastClaimed: bp.LastClaimTime,
	}
	if bp.ProducerKey != "" && e.RegproducerChain != nil {
		regproducer.CheckKeyReuse(ctx, findings.ClassRegproducer, reg, e.RegproducerChain, stream, e.Logger)
	}
	regproducer.CheckClaimRewards(findings.ClassRegproducer, reg, e.Clock(), stream)

	if e.Profile != nil {
		if f := location.CheckCode(findings.ClassRegproducer, bp.Account, string(e.Profile.LocationCheck), bp.Location); f != nil {
			stream.Add(f.Kind, f.Detail, f.Class, f.Context)
		}
	}

	if bp.Homepage != "" {
		e.URLs.Validate(ctx, findings.ClassOrg, bp.Homepage, urlvalidate.Options{
			SSL: urlvalidate.SSLEither, Dupe: urlvalidate.DupeKind(findings.Warn),
		}, stream)
	}

	bpJSONURL := bp.BPJSONURL
	if bpJSONURL == "" && bp.ChainsJSON != "" {
		result := e.URLs.Validate(ctx, findings.ClassChains, bp.ChainsJSON, urlvalidate.Options{
			ContentType: urlvalidate.ContentJSON,
		}, stream)
		if !result.OK {
			return
		}
		bpJSONURL = extractBPJSONURL(result.Response.Body, e.Profile)
	}
	if bpJSONURL == "" {
		stream.Add(findings.Crit, fmt.Sprintf("%s: no bp.json URL could be resolved for this chain", bp.Account), findings.ClassBPJSON, nil)
		return
	}

	docResult := e.URLs.Validate(ctx, findings.ClassBPJSON, bpJSONURL, urlvalidate.Options{
		ContentType: urlvalidate.ContentJSON, AddToList: "general/bpjson",
	}, stream)
	if !docResult.OK {
		return
	}

	var doc struct {
		ProducerAccountName string `json:"producer_account_name"`
		Org                 struct {
			CandidateName string            `json:"candidate_name"`
			Email         string            `json:"email"`
			Social        map[string]string `json:"social"`
			Location      struct {
				Name      string  `json:"name"`
				Country   string  `json:"country"`
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"location"`
		} `json:"org"`
		Nodes []struct {
			NodeType    []string `json:"node_type"`
			P2PEndpoint string   `json:"p2p_endpoint"`
			APIEndpoint string   `json:"api_endpoint"`
			SSLEndpoint string   `json:"ssl_endpoint"`
			Location    *struct {
				Name      string  `json:"name"`
				Country   string  `json:"country"`
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"location"`
		} `json:"nodes"`
	}
	var generic any
	if err := json.Unmarshal(docResult.Response.Body, &generic); err != nil {
		stream.Add(findings.Crit, fmt.Sprintf("%s: bp.json is not valid JSON", bp.Account), findings.ClassBPJSON, nil)
		return
	}
	_ = json.Unmarshal(docResult.Response.Body, &doc)

	if !e.Schema.Validate(findings.ClassBPJSON, generic, stream) {
		return
	}

	bpjson.CheckSocials(ctx, findings.ClassBPJSON, doc.Org.Social, stream)
	if doc.Org.Email != "" && e.MXResolver != nil {
		bpjson.CheckEmailDomain(ctx, findings.ClassBPJSON, doc.Org.Email, e.MXResolver, stream)
	}
	location.Apply(stream, location.Check(findings.ClassOrg, doc.Org.CandidateName, location.Declared{
		Name: doc.Org.Location.Name, Country: doc.Org.Location.Country,
		Latitude: doc.Org.Location.Latitude, Longitude: doc.Org.Location.Longitude,
	}))

	if doc.ProducerAccountName != bp.Account {
		return
	}

	if bp.AlohaID != "" && e.AlohaHTTP != nil {
		aloha.Probe(ctx, findings.ClassGeneral, bp.AlohaID, e.AlohaHTTP, stream)
	}

	state := &nodeprobe.State{}
	var coverage []nodeprobe.Coverage
	for _, n := range doc.Nodes {
		types := make([]nodeprobe.NodeType, 0, len(n.NodeType))
		for _, t := range n.NodeType {
			types = append(types, nodeprobe.NodeType(t))
		}
		var declaredLoc *location.Declared
		if n.Location != nil {
			declaredLoc = &location.Declared{
				Name: n.Location.Name, Country: n.Location.Country,
				Latitude: n.Location.Latitude, Longitude: n.Location.Longitude,
			}
		}
		c := e.Nodes.ProbeNode(ctx, findings.ClassP2PEndpoint, bp.Account, nodeprobe.Node{
			Types: types, P2PEndpoint: n.P2PEndpoint, APIEndpoint: n.APIEndpoint, SSLEndpoint: n.SSLEndpoint,
			Location: declaredLoc,
		}, state, stream)
		coverage = append(coverage, c)

		if n.APIEndpoint != "" {
			e.runAPICatalog(ctx, n.APIEndpoint, stream)
		}
		if n.SSLEndpoint != "" {
			e.runAPICatalog(ctx, n.SSLEndpoint, stream)
			if e.API != nil {
				e.API.HTTP2Supported(ctx, findings.ClassAPIEndpoint, n.SSLEndpoint, stream)
			}
		}
	}
	nodeprobe.Summarize(findings.ClassGeneral, coverage, stream)

	if e.ChainReconcile != nil {
		reconcile.Reconcile(ctx, findings.ClassGeneral, bp.Account, docResult.Response.Body, e.ChainReconcile, stream)
	}
}

// runAPICatalog runs the base API sub-test catalog of §4.12 against one
// endpoint and, only if it passes cleanly, the history/hyperion/wallet
// sub-suites gated by the chain profile's feature flags, per §4.11 step
// 2. "Passes" is judged by whether the base catalog added any err/crit
// finding — a clean get_info plus side-effect-endpoint sweep is the bar
// the plugin sub-suites are gated on.
func (e *Engine) runAPICatalog(ctx context.Context, baseURL string, stream *findings.Stream) {
	if e.API == nil {
		return
	}

	before := len(stream.All())
	e.API.GetInfo(ctx, findings.ClassAPIEndpoint, baseURL, stream)
	e.API.BlockOne(ctx, findings.ClassAPIEndpoint, baseURL, stream)
	e.API.Patreonous(ctx, findings.ClassAPIEndpoint, baseURL, stream)
	e.API.ErrorMessage(ctx, findings.ClassAPIEndpoint, baseURL, stream)
	e.API.ABISerializer(ctx, findings.ClassAPIEndpoint, baseURL, stream)
	e.API.SystemSymbol(ctx, findings.ClassAPIEndpoint, baseURL, stream)
	e.API.DisabledSideEffectActions(ctx, findings.ClassAPIEndpoint, baseURL, stream)

	if !cleanSince(stream, before) {
		return
	}

	if e.Profile == nil {
		return
	}
	if e.Profile.EnableHistory {
		e.API.HistoryV1(ctx, findings.ClassHistory, baseURL, stream)
	}
	if e.Profile.EnableHyperion {
		e.API.HyperionV2(ctx, findings.ClassHyperion, baseURL, stream)
	}
	if e.Profile.EnableWallet {
		e.API.Wallet(ctx, findings.ClassWallet, baseURL, stream)
	}
}

// cleanSince reports whether no err-or-worse finding was appended to
// stream after index from.
func cleanSince(stream *findings.Stream, from int) bool {
	for _, f := range stream.All()[from:] {
		if f.Kind.Outranks(findings.Warn) {
			return false
		}
	}
	return true
}

// extractBPJSONURL picks the chains.json entry matching profile's chain
// ID, falling back to the first entry when no profile is configured.
func extractBPJSONURL(chainsJSON []byte, profile *chainprofile.Profile) string {
	var entries []struct {
		ChainID   string `json:"chainId"`
		BPJSONURL string `json:"bpjsonUrl"`
	}
	if err := json.Unmarshal(chainsJSON, &entries); err != nil {
		return ""
	}
	for _, e := range entries {
		if profile != nil && e.ChainID == string(profile.ChainID) {
			return e.BPJSONURL
		}
	}
	if profile == nil && len(entries) > 0 {
		return entries[0].BPJSONURL
	}
	return ""
}
