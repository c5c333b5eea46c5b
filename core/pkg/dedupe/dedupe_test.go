package dedupe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/poplexity/bpvalidate/core/pkg/findings"
)

func TestCheckFirstTimeTrueThenFalse(t *testing.T) {
	r := New()
	require.True(t, r.Check(findings.ClassAPIEndpoint, "https://bp.example/api"))
	require.False(t, r.Check(findings.ClassAPIEndpoint, "https://bp.example/api"))
}

func TestCheckIsPerClass(t *testing.T) {
	r := New()
	require.True(t, r.Check(findings.ClassAPIEndpoint, "https://bp.example/api"))
	require.True(t, r.Check(findings.ClassP2PEndpoint, "https://bp.example/api"))
}

func TestSeenDoesNotMark(t *testing.T) {
	r := New()
	require.False(t, r.Seen(findings.ClassOrg, "https://bp.example"))
	require.True(t, r.Check(findings.ClassOrg, "https://bp.example"))
	require.True(t, r.Seen(findings.ClassOrg, "https://bp.example"))
}
