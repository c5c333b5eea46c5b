// Package urlvalidate implements the URL validator of §4.6 — the
// workhorse of the validation engine: syntactic URL checks, port/DNS
// validation, HTTPS/CORS/content-type/TLS policy, optional body
// parsing, and an optional extra-check hook for body-level sub-tests.
//
// Per the design note in §9, the source's free-form keyword-argument
// bag becomes a typed Options record here; every enumerable option in
// §4.6's table is a closed Go type rather than a string constant.
package urlvalidate

import "github.com/poplexity/bpvalidate/core/pkg/findings"

// SSLPolicy controls the `ssl` option of §4.6.
type SSLPolicy string

const (
	SSLEither SSLPolicy = "either"
	SSLOn     SSLPolicy = "on"
	SSLOff    SSLPolicy = "off"
)

// CORSPolicy controls both `cors_origin` and `cors_headers`.
type CORSPolicy string

const (
	CORSEither CORSPolicy = "either"
	CORSOn     CORSPolicy = "on"
	CORSOff    CORSPolicy = "off"
	CORSShould CORSPolicy = "should"
)

// ContentTypeLabel controls the `content_type` option.
type ContentTypeLabel string

const (
	ContentJSON   ContentTypeLabel = "json"
	ContentPNGJPG ContentTypeLabel = "png_jpg"
	ContentSVG    ContentTypeLabel = "svg"
	ContentHTML   ContentTypeLabel = "html"
)

// DupeKind is the finding kind to use when a (class, url) pair repeats,
// per §4.2 — the duplicate registry itself has no opinion on this.
type DupeKind findings.Kind

// ExtraCheck is the body-level validation hook of §4.6. It receives the
// raw response body bytes (not decoded, and with any BOM left in place)
// and the probe response context, and returns context that is merged
// into the Result's ExtraInfo and the add_to_list record's info, plus
// whether the overall probe should be considered to have passed.
type ExtraCheck func(body []byte, resp ProbeContext) (info map[string]any, ok bool)

// ProbeContext is the subset of the HTTP response an ExtraCheck needs.
type ProbeContext struct {
	Code        int
	ContentType string
	Header      map[string][]string
	FinalURL    string
	Elapsed     float64 // seconds
}

// Options configures a single URL probe, mirroring §4.6's option table.
type Options struct {
	SSL              SSLPolicy
	CORSOrigin       CORSPolicy
	CORSHeaders      CORSPolicy
	ContentType      ContentTypeLabel // empty ⇒ no content-type check
	NonStandardPort  bool
	ModernTLSVersion bool
	Dupe             DupeKind
	FailureCode      findings.Kind // defaults to Crit if unset
	AddToList        string        // "section/list"
	ExtraCheck       ExtraCheck
	URLExt           string
	Method           string // defaults to GET
	Body             string // request body, for POST probes
	RequestTimeout   float64
	CacheTimeoutSecs float64
}
