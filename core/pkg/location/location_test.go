package location

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/poplexity/bpvalidate/core/pkg/findings"
)

func TestCheckFlagsNullIsland(t *testing.T) {
	result := Check(findings.ClassOrg, "bpone", Declared{Name: "example", Country: "US"})
	require.True(t, result.NullIsland)
}

func TestCheckAcceptsPlausibleLocation(t *testing.T) {
	result := Check(findings.ClassOrg, "bpone", Declared{Name: "example", Country: "US", Latitude: 37.7, Longitude: -122.4})
	require.False(t, result.NullIsland)
	require.False(t, result.OutOfRange)
	found := false
	for _, f := range result.Findings {
		if f.Kind == findings.Ok {
			found = true
		}
		require.NotEqual(t, findings.Err, f.Kind)
		require.NotEqual(t, findings.Crit, f.Kind)
	}
	require.True(t, found)
}

func TestCheckFlagsOutOfRangeCoordinatesAndClearsThem(t *testing.T) {
	result := Check(findings.ClassOrg, "bpone", Declared{Name: "example", Country: "US", Latitude: 200, Longitude: -122.4})
	require.True(t, result.OutOfRange)
	found := false
	for _, f := range result.Findings {
		if f.Kind == findings.Ok {
			found = true
		}
	}
	require.False(t, found, "an out-of-range coordinate must not also produce an aggregate ok")
}

func TestCheckFlagsMalformedCountryCode(t *testing.T) {
	result := Check(findings.ClassOrg, "bpone", Declared{Name: "example", Country: "USA", Latitude: 1, Longitude: 1})
	found := false
	for _, f := range result.Findings {
		if f.Kind == findings.Err {
			found = true
		}
	}
	require.True(t, found)
}

func TestCheckWarnsOnLowercaseCountryButStillValidates(t *testing.T) {
	result := Check(findings.ClassOrg, "bpone", Declared{Name: "example", Country: "us", Latitude: 1, Longitude: 1})
	var warnFound, errFound bool
	for _, f := range result.Findings {
		if f.Kind == findings.Warn {
			warnFound = true
		}
		if f.Kind == findings.Err {
			errFound = true
		}
	}
	require.True(t, warnFound)
	require.False(t, errFound)
}

func TestCheckFlagsLocationNameMatchingProducerAccount(t *testing.T) {
	result := Check(findings.ClassOrg, "bpone", Declared{Name: "bpone", Country: "US", Latitude: 1, Longitude: 1})
	found := false
	for _, f := range result.Findings {
		if f.Kind == findings.Err {
			found = true
		}
	}
	require.True(t, found)
}

func TestCheckCodeAcceptsInRangeCountryCode(t *testing.T) {
	require.Nil(t, CheckCode(findings.ClassRegproducer, "bpone", "country", 840))
}

func TestCheckCodeFlagsOutOfRangeCountryCode(t *testing.T) {
	f := CheckCode(findings.ClassRegproducer, "bpone", "country", 1000)
	require.NotNil(t, f)
	require.Equal(t, findings.Crit, f.Kind)
}

func TestCheckCodeFlagsOutOfRangeTimezoneCode(t *testing.T) {
	f := CheckCode(findings.ClassRegproducer, "bpone", "timezone", 24)
	require.NotNil(t, f)
	require.Equal(t, findings.Crit, f.Kind)
}

func TestCheckCodeAcceptsInRangeTimezone100Code(t *testing.T) {
	require.Nil(t, CheckCode(findings.ClassRegproducer, "bpone", "timezone100", 2399))
}

func TestCheckCodeDefaultsUnrecognizedModeToCountry(t *testing.T) {
	require.Nil(t, CheckCode(findings.ClassRegproducer, "bpone", "bogus", 500))
	require.NotNil(t, CheckCode(findings.ClassRegproducer, "bpone", "bogus", 1500))
}
