// Package extprobe adapts the three scripted external-tool probes of
// §6: the nmap TLS cipher scan, the p2ptest block-sync speed test, and
// the curl HTTP/2 detector. Per the design note in spec §9, these are
// treated as ports (interfaces) — the contract is fixed, the concrete
// invocation can be substituted for an in-process equivalent in tests.
package extprobe

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// TLSScanner runs the nmap ssl-enum-ciphers script against (ip, port)
// and returns the enabled TLS version labels.
type TLSScanner interface {
	Scan(ctx context.Context, ip, port string) ([]string, error)
}

// nmapXML mirrors the subset of `nmap -oX -` output this adapter reads:
// one <port> per scanned port, with <script id="ssl-enum-ciphers">
// whose output lists one <table key="TLSv1.x"> per enabled protocol.
type nmapXML struct {
	Ports struct {
		Port struct {
			Script struct {
				Tables []struct {
					Key string `xml:"key,attr"`
				} `xml:"table"`
			} `xml:"script"`
		} `xml:"port"`
	} `xml:"host>ports"`
}

// nmapScanner shells out to nmap(1).
type nmapScanner struct{}

// NewTLSScanner creates the real nmap-backed TLSScanner.
func NewTLSScanner() TLSScanner { return nmapScanner{} }

func (nmapScanner) Scan(ctx context.Context, ip, port string) ([]string, error) {
	out, err := exec.CommandContext(ctx, "nmap", "-oX", "-", "--script", "ssl-enum-ciphers", "-p", port, ip).Output()
	if err != nil {
		return nil, fmt.Errorf("extprobe: nmap: %w", err)
	}
	return ParseNmapTLSVersions(out)
}

// ParseNmapTLSVersions parses nmap's XML output into a list of enabled
// TLS version labels (e.g. "TLSv1.0", "TLSv1.2", "TLSv1.3").
func ParseNmapTLSVersions(doc []byte) ([]string, error) {
	var parsed nmapXML
	if err := xml.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("extprobe: parse nmap xml: %w", err)
	}
	versions := make([]string, 0, len(parsed.Ports.Port.Script.Tables))
	for _, t := range parsed.Ports.Port.Script.Tables {
		if t.Key != "" {
			versions = append(versions, t.Key)
		}
	}
	return versions, nil
}

// P2PSpeedResult is the parsed JSON result of the p2ptest tool, per §6.
type P2PSpeedResult struct {
	Status      string  `json:"status"`
	Speed       float64 `json:"speed"`
	ErrorDetail string  `json:"error_detail"`
}

// P2PSpeedTester runs the external block-sync speed test.
type P2PSpeedTester interface {
	Test(ctx context.Context, chainURL, host string, port int) (P2PSpeedResult, error)
}

type p2ptestRunner struct{}

// NewP2PSpeedTester creates the real p2ptest-backed P2PSpeedTester.
func NewP2PSpeedTester() P2PSpeedTester { return p2ptestRunner{} }

func (p2ptestRunner) Test(ctx context.Context, chainURL, host string, port int) (P2PSpeedResult, error) {
	out, err := exec.CommandContext(ctx, "p2ptest",
		"-a", chainURL, "-h", host, "-p", strconv.Itoa(port), "-b", "10",
	).Output()
	if err != nil {
		return P2PSpeedResult{}, fmt.Errorf("extprobe: p2ptest: %w", err)
	}
	var result P2PSpeedResult
	if err := json.Unmarshal(out, &result); err != nil {
		return P2PSpeedResult{}, fmt.Errorf("extprobe: parse p2ptest json: %w", err)
	}
	return result, nil
}

// HTTP2Detector checks whether a server negotiates HTTP/2.
type HTTP2Detector interface {
	Detect(ctx context.Context, url string) (bool, error)
}

type curlHTTP2Detector struct{}

// NewHTTP2Detector creates the real curl-backed HTTP2Detector.
func NewHTTP2Detector() HTTP2Detector { return curlHTTP2Detector{} }

func (curlHTTP2Detector) Detect(ctx context.Context, url string) (bool, error) {
	withTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(withTimeout, "curl", "--http2", "--max-time", "3", "--verbose", "-o", "/dev/null", "-s", url).CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("extprobe: curl: %w", err)
	}
	return ParseCurlHTTP2(string(out)), nil
}

// ParseCurlHTTP2 inspects curl --verbose output for the ALPN/protocol
// negotiation line indicating HTTP/2 was used.
func ParseCurlHTTP2(verbose string) bool {
	return strings.Contains(verbose, "HTTP/2") || strings.Contains(verbose, "ALPN, server accepted to use h2")
}
