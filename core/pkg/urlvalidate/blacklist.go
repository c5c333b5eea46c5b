package urlvalidate

// badURLs carries a fixed, immutable table of URLs known in advance to be
// unusable (placeholder domains, expired registrar parking pages, and
// similar dead ends BPs have submitted historically). A match always
// produces the same fixed reason, regardless of caller options.
var badURLs = map[string]string{
	"http://example.com":        "placeholder domain, not a real endpoint",
	"https://example.com":       "placeholder domain, not a real endpoint",
	"http://localhost":          "loopback address, not publicly reachable",
	"https://your-domain-here":  "template value left unfilled",
	"http://todo.example.org":   "template value left unfilled",
}

// contentTypeWhitelist maps a ContentTypeLabel to the set of acceptable
// MIME type prefixes (matched case-insensitively against the response's
// Content-Type header, ignoring any ";charset=..." suffix).
var contentTypeWhitelist = map[ContentTypeLabel][]string{
	ContentJSON:   {"application/json", "text/json"},
	ContentPNGJPG: {"image/png", "image/jpeg", "image/jpg"},
	ContentSVG:    {"image/svg+xml"},
	ContentHTML:   {"text/html", "application/xhtml+xml"},
}
