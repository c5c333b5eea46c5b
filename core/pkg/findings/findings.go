// Package findings implements the append-only finding stream every probe
// in the validation engine reports into, and the per-class severity
// summary computed from it.
package findings

import "fmt"

// Kind is a finding's severity label. Ordering is ascending by
// disqualifying-ness: Ok is the best outcome, Skip is the most severe
// (not applicable supersedes a verdict entirely) per §3's severity table.
type Kind string

const (
	Ok   Kind = "ok"
	Info Kind = "info"
	Warn Kind = "warn"
	Err  Kind = "err"
	Crit Kind = "crit"
	Skip Kind = "skip"
)

// rank gives each Kind its position in the ascending severity order
// ok < info < warn < err < crit < skip.
var rank = map[Kind]int{
	Ok:   0,
	Info: 1,
	Warn: 2,
	Err:  3,
	Crit: 4,
	Skip: 5,
}

// Outranks reports whether k is strictly more severe than other.
func (k Kind) Outranks(other Kind) bool {
	return rank[k] > rank[other]
}

// Valid reports whether k is one of the six defined kinds.
func (k Kind) Valid() bool {
	_, ok := rank[k]
	return ok
}

// Class is a finding's topical category, drawn from the closed set in §3.
type Class string

const (
	ClassGeneral     Class = "general"
	ClassRegproducer Class = "regproducer"
	ClassChains      Class = "chains"
	ClassOrg         Class = "org"
	ClassBPJSON      Class = "bpjson"
	ClassBlacklist   Class = "blacklist"
	ClassAPIEndpoint Class = "api_endpoint"
	ClassP2PEndpoint Class = "p2p_endpoint"
	ClassHistory     Class = "history"
	ClassHyperion    Class = "hyperion"
	ClassWallet      Class = "wallet"
	ClassIPv6        Class = "ipv6"
)

var validClasses = map[Class]bool{
	ClassGeneral: true, ClassRegproducer: true, ClassChains: true,
	ClassOrg: true, ClassBPJSON: true, ClassBlacklist: true,
	ClassAPIEndpoint: true, ClassP2PEndpoint: true, ClassHistory: true,
	ClassHyperion: true, ClassWallet: true, ClassIPv6: true,
}

// Finding is one entry in the stream, per §3's data model. Context holds
// arbitrary contextual fields callers attach (e.g. delta_time, diff).
type Finding struct {
	Kind    Kind
	Detail  string
	Class   Class
	Context map[string]any
}

// Stream is the append-only, order-preserving finding recorder of §4.1.
// It is owned by exactly one validation run and requires no locking,
// per §5's shared-resource policy.
type Stream struct {
	entries []Finding
}

// New creates an empty finding stream.
func New() *Stream {
	return &Stream{entries: make([]Finding, 0, 64)}
}

// Add appends a finding to the end of the stream. kind, detail, and class
// are mandatory; an absent one is a programming error, not a probe
// failure, and panics rather than silently degrading the record — per
// §4.1 "absent ⇒ programming error".
func (s *Stream) Add(kind Kind, detail string, class Class, context map[string]any) {
	s.entries = append(s.entries, mustFinding(kind, detail, class, context))
}

// Prefix prepends a finding to the start of the stream (used for the
// run-metadata finding the entry point installs per §2 step 12).
func (s *Stream) Prefix(kind Kind, detail string, class Class, context map[string]any) {
	f := mustFinding(kind, detail, class, context)
	s.entries = append([]Finding{f}, s.entries...)
}

func mustFinding(kind Kind, detail string, class Class, context map[string]any) Finding {
	if !kind.Valid() {
		panic(fmt.Sprintf("findings: invalid kind %q", kind))
	}
	if detail == "" {
		panic("findings: detail is required")
	}
	if !validClasses[class] {
		panic(fmt.Sprintf("findings: invalid class %q", class))
	}
	return Finding{Kind: kind, Detail: detail, Class: class, Context: context}
}

// All returns the findings in insertion order. The returned slice must
// not be mutated by callers.
func (s *Stream) All() []Finding {
	return s.entries
}

// HasKind reports whether any finding in the stream carries the given
// kind, regardless of class.
func (s *Stream) HasKind(k Kind) bool {
	for _, f := range s.entries {
		if f.Kind == k {
			return true
		}
	}
	return false
}

// Summarize computes, for each class that appears at least once, the
// maximum-severity kind seen for that class — the message_summary of §6.
func (s *Stream) Summarize() map[Class]Kind {
	summary := make(map[Class]Kind)
	for _, f := range s.entries {
		current, seen := summary[f.Class]
		if !seen || f.Kind.Outranks(current) {
			summary[f.Class] = f.Kind
		}
	}
	return summary
}
