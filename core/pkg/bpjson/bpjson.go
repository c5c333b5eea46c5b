// Package bpjson implements the bp.json schema and content checks of
// §4.9: structural validation against a JSON Schema, social-handle
// whitelist/prefix enforcement, and MX-record verification for any
// declared org email.
package bpjson

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/poplexity/bpvalidate/core/pkg/findings"
)

// socialPrefixes maps each social network bp.json permits under
// org.social — the exact closed set of §4.9 — to the URL prefix a
// valid handle resolves to once qualified. An empty prefix means the
// handle has no canonical URL form and is accepted as-is (wechat,
// reddit).
var socialPrefixes = map[string]string{
	"medium":   "medium.com/@",
	"steemit":  "steemit.com/@",
	"twitter":  "twitter.com/",
	"youtube":  "youtube.com/",
	"facebook": "facebook.com/",
	"github":   "github.com/",
	"keybase":  "keybase.io/",
	"telegram": "t.me/",
	"wechat":   "",
	"reddit":   "",
}

// minValidSocials is the number of recognized, well-formed social entries
// required before a bp.json's social presence is accepted (§4.9: "fewer
// than 4 valid socials is an err").
const minValidSocials = 4

// Schema compiles and validates bp.json documents against the structural
// schema of §4.9.
type Schema struct {
	compiled *jsonschema.Schema
}

// NewSchema compiles the embedded bp.json schema. It panics if the
// embedded schema itself fails to compile — a build-time invariant, not
// a runtime condition callers need to handle.
func NewSchema() *Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("bp.json.schema", bytes.NewReader([]byte(schemaDoc))); err != nil {
		panic(fmt.Sprintf("bpjson: embedded schema is invalid: %v", err))
	}
	compiled, err := compiler.Compile("bp.json.schema")
	if err != nil {
		panic(fmt.Sprintf("bpjson: embedded schema failed to compile: %v", err))
	}
	return &Schema{compiled: compiled}
}

// Validate checks doc (already json.Unmarshal'd into a generic any, e.g.
// map[string]any) against the schema, appending one err finding per
// structural violation, in the order jsonschema reports them.
func (s *Schema) Validate(class findings.Class, doc any, stream *findings.Stream) bool {
	err := s.compiled.Validate(doc)
	if err == nil {
		return true
	}

	valErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		stream.Add(findings.Crit, fmt.Sprintf("bp.json: %v", err), class, nil)
		return false
	}

	for _, cause := range flattenCauses(valErr) {
		stream.Add(findings.Err, fmt.Sprintf("bp.json: %s: %s", cause.InstanceLocation, cause.Message), class, nil)
	}
	return false
}

// flattenCauses walks a ValidationError's cause tree to its leaves —
// jsonschema nests one ValidationError per failed schema branch, and the
// leaves are the actionable, field-specific complaints.
func flattenCauses(err *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(err.Causes) == 0 {
		return []*jsonschema.ValidationError{err}
	}
	var leaves []*jsonschema.ValidationError
	for _, cause := range err.Causes {
		leaves = append(leaves, flattenCauses(cause)...)
	}
	return leaves
}

// MXResolver looks up a domain's MX records — the miekg/dns-backed
// resolver in mx.go satisfies this; kept as an interface so
// tests can stub it without a live DNS query.
type MXResolver interface {
	LookupMX(ctx context.Context, domain string) ([]string, error)
}

// CheckSocials validates an org.social map against the closed whitelist
// of §4.9: unknown keys, absolute URLs, and "@"-prefixed handles are
// each an err, keybase handles additionally require a trailing slash,
// and fewer than minValidSocials well-formed entries is a summary err.
func CheckSocials(ctx context.Context, class findings.Class, social map[string]string, stream *findings.Stream) {
	valid := 0
	for network, handle := range social {
		if _, known := socialPrefixes[network]; !known {
			stream.Add(findings.Err, fmt.Sprintf("bp.json: unrecognized social network %q", network), class, nil)
			continue
		}

		trimmed := strings.TrimSpace(handle)
		switch {
		case trimmed == "":
			stream.Add(findings.Err, fmt.Sprintf("bp.json: social.%s has an empty handle", network), class, nil)
			continue
		case strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://"):
			stream.Add(findings.Err, fmt.Sprintf("bp.json: social.%s handle %q must be relative, not an absolute URL", network, trimmed), class, nil)
			continue
		case strings.HasPrefix(trimmed, "@"):
			stream.Add(findings.Err, fmt.Sprintf("bp.json: social.%s handle %q must not begin with \"@\"", network, trimmed), class, nil)
			continue
		case network == "keybase" && !strings.HasSuffix(trimmed, "/"):
			stream.Add(findings.Err, fmt.Sprintf("bp.json: social.keybase handle %q must end with a trailing slash", trimmed), class, nil)
			continue
		}

		valid++
	}

	if valid < minValidSocials {
		stream.Add(findings.Err, fmt.Sprintf("bp.json: only %d of %d required social entries are valid", valid, minValidSocials), class, nil)
	}
}

// CheckEmailDomain verifies that the domain of a declared org email has
// at least one MX record, per §4.9. A malformed email address (no "@")
// is reported directly without attempting a lookup.
func CheckEmailDomain(ctx context.Context, class findings.Class, email string, resolver MXResolver, stream *findings.Stream) {
	if email == "" {
		return
	}
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		stream.Add(findings.Err, fmt.Sprintf("bp.json: email %q is not a valid address", email), class, nil)
		return
	}

	records, err := resolver.LookupMX(ctx, domain)
	if err != nil || len(records) == 0 {
		stream.Add(findings.Err, fmt.Sprintf("bp.json: email domain %s has no MX record", domain), class, nil)
	}
}
