package urlvalidate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// utf8BOM is the three-byte UTF-8 byte order mark some bp.json submitters
// leave at the front of otherwise-valid JSON files.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// stripBOM removes a leading UTF-8 BOM, reporting whether one was present.
func stripBOM(body []byte) ([]byte, bool) {
	if bytes.HasPrefix(body, utf8BOM) {
		return bytes.TrimPrefix(body, utf8BOM), true
	}
	return body, false
}

// parseJSON validates that body decodes as a single JSON value after BOM
// stripping. A BOM present is reported separately since it is itself a
// finding (err, not crit) distinct from a genuine parse failure.
func parseJSON(body []byte) (stripped bool, decoded any, err error) {
	clean, hadBOM := stripBOM(body)
	var v any
	if decodeErr := json.Unmarshal(clean, &v); decodeErr != nil {
		return hadBOM, nil, fmt.Errorf("urlvalidate: invalid JSON: %w", decodeErr)
	}
	return hadBOM, v, nil
}

// matchesContentType reports whether header (a raw Content-Type value,
// possibly with a ";charset=..." parameter) satisfies label.
func matchesContentType(label ContentTypeLabel, header string) bool {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(header, ";", 2)[0]))
	for _, accepted := range contentTypeWhitelist[label] {
		if base == accepted {
			return true
		}
	}
	return false
}

// sniffImageKind inspects the leading bytes of body and reports whether
// it looks like a PNG, JPEG, or SVG image, independent of the declared
// Content-Type header — used when a node's server mislabels static assets.
func sniffImageKind(body []byte) (kind string, ok bool) {
	switch {
	case bytes.HasPrefix(body, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "png", true
	case bytes.HasPrefix(body, []byte{0xFF, 0xD8, 0xFF}):
		return "jpeg", true
	case bytes.Contains(body[:min(len(body), 256)], []byte("<svg")):
		return "svg", true
	default:
		return "", false
	}
}

// looksLikeHTML parses body with golang.org/x/net/html and reports
// whether it found at least one element other than html, head and body —
// html.Parse never errors on malformed input (it follows the HTML5
// parsing algorithm's error-recovery rules) and inserts those three for
// any input, so an absence of any other element is the only reliable
// signal that body isn't HTML at all.
func looksLikeHTML(body []byte) bool {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return containsElement(doc)
}

// looksLikeSVG parses body the same way and additionally requires an
// <svg> root element somewhere in the tree, since html.Parse treats an
// unrecognized tag like svg as an ordinary (if foreign) element rather
// than rejecting it.
func looksLikeSVG(body []byte) bool {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return findElement(doc, "svg") != nil
}

func containsElement(n *html.Node) bool {
	if n.Type == html.ElementNode && n.Data != "html" && n.Data != "head" && n.Data != "body" {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if containsElement(c) {
			return true
		}
	}
	return false
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
