package urlvalidate

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/poplexity/bpvalidate/core/pkg/dedupe"
	"github.com/poplexity/bpvalidate/core/pkg/findings"
	"github.com/poplexity/bpvalidate/core/pkg/httpprobe"
	"github.com/poplexity/bpvalidate/core/pkg/outputdoc"
	"github.com/poplexity/bpvalidate/core/pkg/resolver"
	"github.com/poplexity/bpvalidate/core/pkg/tlsscan"
)

// urlShape matches a bare http(s) URL with a non-empty host.
var urlShape = regexp.MustCompile(`^https?://[^\s/]+`)

// collapseSlashes squeezes any run of 2+ slashes in a path to one.
var collapseSlashes = regexp.MustCompile(`/{2,}`)

// Validator runs the URL probe of §4.6, wiring together host resolution,
// the HTTP probe, the TLS scanner, and the duplicate-URL registry.
type Validator struct {
	HTTP     *httpprobe.Client
	Resolver *resolver.Resolver
	TLS      *tlsscan.Prober
	Dedupe   *dedupe.Registry
	Output   *outputdoc.Document
}

// New wires a Validator from its collaborators. TLS, Dedupe, and Output
// may all be nil — a nil TLS prober skips modern-TLS checks, a nil Dedupe
// disables duplicate detection, and a nil Output skips add_to_list.
func New(http *httpprobe.Client, res *resolver.Resolver, tls *tlsscan.Prober, dd *dedupe.Registry, out *outputdoc.Document) *Validator {
	return &Validator{HTTP: http, Resolver: res, TLS: tls, Dedupe: dd, Output: out}
}

// Result is what a single Validate call hands back to its caller —
// notably the raw response body, for callers that run further checks
// against it (bp.json schema validation chains off this).
type Result struct {
	OK        bool
	Response  httpprobe.Response
	Addresses []resolver.Address
	ExtraInfo map[string]any
}

// Validate runs every hard and option-driven check of §4.6 against
// rawURL, recording findings into stream under class, and returns the
// probe outcome for any caller-side chaining.
func (v *Validator) Validate(ctx context.Context, class findings.Class, rawURL string, opts Options, stream *findings.Stream) Result {
	cleaned, ok := hardChecks(rawURL, class, stream)
	if !ok {
		return Result{}
	}

	if v.Dedupe != nil {
		if first := v.Dedupe.Check(class, cleaned); !first {
			if dk := findings.Kind(opts.Dupe); dk.Valid() {
				stream.Add(dk, fmt.Sprintf("duplicate URL %s already validated this run", cleaned), class, nil)
			}
			return Result{}
		}
	}

	parsed, err := url.Parse(cleaned)
	if err != nil {
		stream.Add(findings.Crit, fmt.Sprintf("%s: unparseable after normalization: %v", cleaned, err), class, nil)
		return Result{}
	}

	port := parsed.Port()
	defaultPort := "80"
	if parsed.Scheme == "https" {
		defaultPort = "443"
	}
	if port == "" {
		port = defaultPort
	} else if port != defaultPort && !opts.NonStandardPort {
		stream.Add(findings.Warn, fmt.Sprintf("%s uses non-standard port %s", cleaned, port), class, nil)
	}

	outcome, err := v.Resolver.Resolve(ctx, parsed.Hostname())
	if err != nil {
		stream.Add(findings.Err, fmt.Sprintf("%s: resolution error: %v", cleaned, err), class, nil)
	}
	if outcome.Empty {
		stream.Add(findings.Crit, fmt.Sprintf("%s did not resolve to any usable address", cleaned), class, nil)
		return Result{}
	}
	if outcome.LiteralIP {
		stream.Add(findings.Warn, fmt.Sprintf("%s is a literal IP address rather than a hostname", cleaned), class, nil)
	}
	for _, rejected := range outcome.RejectedCIDR {
		stream.Add(findings.Warn, fmt.Sprintf("%s: rejected address %s", cleaned, rejected), class, nil)
	}

	method := opts.Method
	if method == "" {
		method = "GET"
	}
	resp, hpFinding, err := v.HTTP.Request(ctx, httpprobe.Request{
		Method: method,
		URL:    cleaned,
		Body:   opts.Body,
	}, httpprobe.Options{
		RequestTimeout: secondsToDuration(opts.RequestTimeout),
		CacheTimeout:   secondsToDuration(opts.CacheTimeoutSecs),
	})
	if err != nil {
		stream.Add(findings.Crit, fmt.Sprintf("%s: %v", cleaned, err), class, nil)
		return Result{}
	}
	if hpFinding.Present {
		stream.Add(findings.Warn, fmt.Sprintf("%s: %s", cleaned, hpFinding.Detail), class, nil)
	}

	failureKind := opts.FailureCode
	if !failureKind.Valid() {
		failureKind = findings.Crit
	}
	if !resp.Success {
		stream.Add(failureKind, fmt.Sprintf("%s: probe failed: %s", cleaned, resp.TransportErr), class, nil)
		return Result{Response: resp, Addresses: outcome.Addresses}
	}

	checkSSLPolicy(opts.SSL, parsed.Scheme, resp.FinalURL, cleaned, class, stream)
	suppressOrigin := checkCORSPolicy(opts.CORSOrigin, resp.Header.Get("Access-Control-Allow-Origin"), acceptsCORSOrigin, "CORS origin", cleaned, class, stream)
	suppressHeaders := checkCORSPolicy(opts.CORSHeaders, resp.Header.Get("Access-Control-Allow-Headers"), acceptsCORSHeaders, "CORS headers", cleaned, class, stream)
	suppressAddToList := suppressOrigin || suppressHeaders

	if opts.ContentType != "" && !matchesContentType(opts.ContentType, resp.ContentType) {
		stream.Add(findings.Err, fmt.Sprintf("%s: unexpected content-type %q", cleaned, resp.ContentType), class, nil)
	}

	tlsResults := v.scanAddresses(ctx, opts, cleaned, outcome.Addresses, port, parsed.Scheme, class, stream)

	switch opts.ContentType {
	case ContentJSON:
		hadBOM, _, jsonErr := parseJSON(resp.Body)
		if hadBOM {
			stream.Add(findings.Err, fmt.Sprintf("%s: response has a leading byte-order mark", cleaned), class, nil)
		}
		if jsonErr != nil {
			stream.Add(findings.Crit, fmt.Sprintf("%s: %v", cleaned, jsonErr), class, nil)
			return Result{Response: resp, Addresses: outcome.Addresses}
		}
	case ContentHTML:
		if !looksLikeHTML(resp.Body) {
			stream.Add(findings.Err, fmt.Sprintf("%s: response body does not parse as HTML", cleaned), class, nil)
		}
	case ContentSVG:
		if !looksLikeSVG(resp.Body) {
			stream.Add(findings.Err, fmt.Sprintf("%s: response body does not contain an <svg> element", cleaned), class, nil)
		}
	case ContentPNGJPG:
		if kind, ok := sniffImageKind(resp.Body); !ok || kind == "svg" {
			stream.Add(findings.Err, fmt.Sprintf("%s: response body is not a recognizable PNG or JPEG image", cleaned), class, nil)
		}
	}

	passed := true
	extraInfo := map[string]any{}
	if opts.ExtraCheck != nil {
		info, ok := opts.ExtraCheck(resp.Body, ProbeContext{
			Code:        resp.Code,
			ContentType: resp.ContentType,
			Header:      map[string][]string(resp.Header),
			FinalURL:    resp.FinalURL,
			Elapsed:     resp.ElapsedTime.Seconds(),
		})
		passed = ok
		for k, val := range info {
			extraInfo[k] = val
		}
		if !passed {
			stream.Add(findings.Err, fmt.Sprintf("%s: failed its content check", cleaned), class, nil)
		}
	}

	if opts.AddToList != "" && v.Output != nil && !suppressAddToList {
		resource := outputdoc.Resource{Address: cleaned}
		for _, addr := range outcome.Addresses {
			host := outputdoc.Host{IPAddress: addr.IPAddress, Organization: addr.Organization, Country: addr.Country}
			if r, ok := tlsResults[addr.IPAddress]; ok {
				host.TLSVersions = r.Versions
			}
			resource.Hosts = append(resource.Hosts, host)
		}
		if len(extraInfo) > 0 {
			resource.Info = extraInfo
		}
		_ = v.Output.Add(opts.AddToList, resource)
	}

	return Result{OK: passed, Response: resp, Addresses: outcome.Addresses, ExtraInfo: extraInfo}
}

// scanAddresses runs the TLS cipher probe for every resolved address when
// opts.ModernTLSVersion is set and the URL is https, recording an obsolete
// protocol warning per address. The per-address results are returned so
// the add_to_list resource can reuse them without re-scanning.
func (v *Validator) scanAddresses(ctx context.Context, opts Options, cleanedURL string, addrs []resolver.Address, port, scheme string, class findings.Class, stream *findings.Stream) map[string]tlsscan.Result {
	results := make(map[string]tlsscan.Result)
	if !opts.ModernTLSVersion || scheme != "https" || v.TLS == nil {
		return results
	}
	for _, addr := range addrs {
		result, err := v.TLS.Scan(ctx, cleanedURL, addr.IPAddress, port)
		if err != nil {
			continue
		}
		results[addr.IPAddress] = result
		if len(result.Obsolete) > 0 {
			stream.Add(findings.Warn, fmt.Sprintf("%s (%s) serves obsolete TLS protocol(s) %v", cleanedURL, addr.IPAddress, result.Obsolete), class, nil)
		}
	}
	return results
}

// hardChecks applies the checks of §4.6 that run before any network call:
// shape validation, loopback/localhost rejection, the fixed blacklist,
// duplicate-slash collapsing, and trailing-slash stripping. It returns
// the normalized URL and whether validation may continue.
func hardChecks(rawURL string, class findings.Class, stream *findings.Stream) (string, bool) {
	trimmed := strings.TrimSpace(rawURL)
	if !urlShape.MatchString(trimmed) {
		stream.Add(findings.Crit, fmt.Sprintf("%q is not a valid http(s) URL", rawURL), class, nil)
		return "", false
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		stream.Add(findings.Crit, fmt.Sprintf("%q: %v", rawURL, err), class, nil)
		return "", false
	}

	host := parsed.Hostname()
	if host == "localhost" || strings.HasPrefix(host, "127.") {
		stream.Add(findings.Crit, fmt.Sprintf("%s: loopback/localhost URLs are not allowed", trimmed), class, nil)
		return "", false
	}

	if reason, bad := badURLs[trimmed]; bad {
		stream.Add(findings.Crit, fmt.Sprintf("%s: %s", trimmed, reason), class, nil)
		return "", false
	}

	if collapseSlashes.MatchString(parsed.Path) {
		parsed.Path = collapseSlashes.ReplaceAllString(parsed.Path, "/")
		stream.Add(findings.Warn, fmt.Sprintf("%s: collapsed duplicate slashes in URL path", trimmed), class, nil)
	}

	if parsed.Path != "/" && strings.HasSuffix(parsed.Path, "/") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
		stream.Add(findings.Warn, fmt.Sprintf("%s: removed trailing slash", trimmed), class, nil)
	}

	return parsed.String(), true
}

// checkSSLPolicy enforces opts.SSL against the URL's declared scheme and
// the scheme actually served after following redirects.
func checkSSLPolicy(policy SSLPolicy, declaredScheme, finalURL, cleanedURL string, class findings.Class, stream *findings.Stream) {
	finalScheme := declaredScheme
	if fu, err := url.Parse(finalURL); err == nil && fu.Scheme != "" {
		finalScheme = fu.Scheme
	}

	switch policy {
	case SSLOn:
		if declaredScheme != "https" || finalScheme != "https" {
			stream.Add(findings.Err, fmt.Sprintf("%s: HTTPS is required but %s was served", cleanedURL, finalScheme), class, nil)
		}
	case SSLOff:
		if declaredScheme == "https" || finalScheme == "https" {
			stream.Add(findings.Warn, fmt.Sprintf("%s: HTTPS was served where plain HTTP was expected", cleanedURL), class, nil)
		}
	case SSLEither, "":
		// no constraint
	}
}

// acceptsCORSOrigin reports whether an Access-Control-Allow-Origin value
// satisfies §4.6: exactly the single wildcard origin.
func acceptsCORSOrigin(value string) bool {
	return strings.TrimSpace(value) == "*"
}

// acceptsCORSHeaders reports whether an Access-Control-Allow-Headers value
// satisfies §4.6: the wildcard, or a comma list covering Content-Type,
// Origin, and Accept.
func acceptsCORSHeaders(value string) bool {
	if strings.TrimSpace(value) == "*" {
		return true
	}
	want := map[string]bool{"content-type": false, "origin": false, "accept": false}
	for _, part := range strings.Split(value, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for _, seen := range want {
		if !seen {
			return false
		}
	}
	return true
}

// checkCORSPolicy enforces a CORSPolicy against the relevant header's
// actual value, per §4.6. CORSOn failure is fatal (crit); CORSShould
// failure demotes to err but also reports that add_to_list must be
// suppressed, since the resource didn't fully meet policy.
func checkCORSPolicy(policy CORSPolicy, headerValue string, accepts func(string) bool, label, cleanedURL string, class findings.Class, stream *findings.Stream) (suppressAddToList bool) {
	present := headerValue != ""
	switch policy {
	case CORSOn:
		if !present || !accepts(headerValue) {
			stream.Add(findings.Crit, fmt.Sprintf("%s: %s is %q, which does not satisfy policy", cleanedURL, label, headerValue), class, nil)
		}
	case CORSOff:
		if present {
			stream.Add(findings.Warn, fmt.Sprintf("%s: %s header present but not expected", cleanedURL, label), class, nil)
		}
	case CORSShould:
		if !present || !accepts(headerValue) {
			stream.Add(findings.Err, fmt.Sprintf("%s: %s is %q, which does not satisfy policy", cleanedURL, label, headerValue), class, nil)
			suppressAddToList = true
		}
	case CORSEither, "":
		// no constraint
	}
	return suppressAddToList
}

func secondsToDuration(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
