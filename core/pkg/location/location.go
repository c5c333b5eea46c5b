// Package location implements the location sanity check of §4.10: a
// bp.json's declared latitude/longitude/country/timezone fields are
// checked for plausibility, not geographic accuracy.
package location

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"

	"github.com/poplexity/bpvalidate/core/pkg/findings"
)

// Declared is the subset of bp.json's org.location object this package
// inspects.
type Declared struct {
	Name      string
	Country   string
	Latitude  float64
	Longitude float64
}

// Result is the outcome of checking one Declared location.
type Result struct {
	NullIsland bool // (0, 0) was declared — the classic "field left blank" tell
	OutOfRange bool
	Findings   []findings.Finding
}

const epsilon = 1e-9

// Check validates one declared location under class against the
// candidate's own name, returning the findings a caller should append
// to its stream. A lowercase country code is accepted but warned on; an
// out-of-range latitude or longitude clears both coordinates for the
// purposes of the aggregate ok. producerName identical to loc.Name is
// an err — a BP that copy-pasted its own account name into the location
// label rather than naming an actual place.
func Check(class findings.Class, producerName string, loc Declared) Result {
	var result Result

	if math.Abs(loc.Latitude) < epsilon && math.Abs(loc.Longitude) < epsilon {
		result.NullIsland = true
		result.Findings = append(result.Findings, findings.Finding{
			Kind: findings.Err, Class: class,
			Detail: fmt.Sprintf("%s: location (0, 0) looks like an unset placeholder", loc.Name),
		})
	}

	if loc.Latitude < -90 || loc.Latitude > 90 {
		result.OutOfRange = true
		result.Findings = append(result.Findings, findings.Finding{
			Kind: findings.Crit, Class: class,
			Detail: fmt.Sprintf("%s: latitude %.4f is out of range", loc.Name, loc.Latitude),
		})
	}
	if loc.Longitude < -180 || loc.Longitude > 180 {
		result.OutOfRange = true
		result.Findings = append(result.Findings, findings.Finding{
			Kind: findings.Crit, Class: class,
			Detail: fmt.Sprintf("%s: longitude %.4f is out of range", loc.Name, loc.Longitude),
		})
	}
	if result.OutOfRange {
		loc.Latitude, loc.Longitude = 0, 0
	}

	countryValid := false
	if loc.Country == "" {
		result.Findings = append(result.Findings, findings.Finding{
			Kind: findings.Warn, Class: class,
			Detail: fmt.Sprintf("%s: country is not declared", loc.Name),
		})
	} else {
		country := loc.Country
		if country != strings.ToUpper(country) {
			result.Findings = append(result.Findings, findings.Finding{
				Kind: findings.Warn, Class: class,
				Detail: fmt.Sprintf("%s: country %q should be uppercase (%s)", loc.Name, country, strings.ToUpper(country)),
			})
			country = strings.ToUpper(country)
		}
		if region, err := language.ParseRegion(country); err != nil || region.String() != country {
			result.Findings = append(result.Findings, findings.Finding{
				Kind: findings.Err, Class: class,
				Detail: fmt.Sprintf("%s: country %q is not a valid ISO-3166 alpha-2 code", loc.Name, loc.Country),
			})
		} else {
			countryValid = true
		}
	}

	if producerName != "" && strings.EqualFold(loc.Name, producerName) {
		result.Findings = append(result.Findings, findings.Finding{
			Kind: findings.Err, Class: class,
			Detail: fmt.Sprintf("%s: location name must not be the producer's own account name", loc.Name),
		})
	}

	if !result.NullIsland && !result.OutOfRange && countryValid && (producerName == "" || !strings.EqualFold(loc.Name, producerName)) {
		result.Findings = append(result.Findings, findings.Finding{
			Kind: findings.Ok, Class: class,
			Detail: fmt.Sprintf("%s: location is well-formed", loc.Name),
		})
	}

	return result
}

// CodeRange is the valid [min, max] span for a chain's numeric
// regproducer location code, per §4.10's second paragraph.
type CodeRange struct {
	Min, Max int
}

var codeRanges = map[chainLocationMode]CodeRange{
	modeCountry:     {Min: 0, Max: 999},
	modeTimezone:    {Min: 0, Max: 23},
	modeTimezone100: {Min: 0, Max: 2399},
}

// chainLocationMode mirrors chainprofile.LocationCheckMode without an
// import cycle — chainprofile doesn't (and shouldn't) depend on this
// package, so the three string values are duplicated here as an
// unexported type the caller converts into.
type chainLocationMode string

const (
	modeCountry     chainLocationMode = "country"
	modeTimezone    chainLocationMode = "timezone"
	modeTimezone100 chainLocationMode = "timezone100"
)

// CheckCode validates a regproducer row's numeric location code against
// the chain's configured convention (mode is the string form of
// chainprofile.Profile.LocationCheck). An unrecognized mode is treated
// as "country" — the most common convention — rather than rejecting the
// check outright.
func CheckCode(class findings.Class, account string, mode string, code int) *findings.Finding {
	r, ok := codeRanges[chainLocationMode(mode)]
	if !ok {
		r = codeRanges[modeCountry]
	}
	if code < r.Min || code > r.Max {
		return &findings.Finding{
			Kind: findings.Crit, Class: class,
			Detail: fmt.Sprintf("%s: regproducer location code %d is out of range [%d, %d] for %s mode", account, code, r.Min, r.Max, mode),
		}
	}
	return nil
}

// Apply appends result's findings to stream, preserving Stream's
// mandatory-field invariant (context is always nil here).
func Apply(stream *findings.Stream, result Result) {
	for _, f := range result.Findings {
		stream.Add(f.Kind, f.Detail, f.Class, nil)
	}
}
