package tlsscan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubScanner struct {
	versions []string
	calls    int
}

func (s *stubScanner) Scan(ctx context.Context, ip, port string) ([]string, error) {
	s.calls++
	return s.versions, nil
}

func TestScanFlagsObsoleteProtocols(t *testing.T) {
	scanner := &stubScanner{versions: []string{"TLSv1.0", "TLSv1.2", "TLSv1.3"}}
	p := &Prober{Scanner: scanner}

	result, err := p.Scan(context.Background(), "https://bp.example", "1.2.3.4", "443")
	require.NoError(t, err)
	require.Equal(t, []string{"TLSv1.0"}, result.Obsolete)
}

func TestScanAllModernHasNoObsolete(t *testing.T) {
	scanner := &stubScanner{versions: []string{"TLSv1.2", "TLSv1.3"}}
	p := &Prober{Scanner: scanner}

	result, err := p.Scan(context.Background(), "https://bp.example", "1.2.3.4", "443")
	require.NoError(t, err)
	require.Empty(t, result.Obsolete)
}

func TestCooldownWaitsOutRemainingWindow(t *testing.T) {
	clock := time.Unix(0, 0)
	var slept time.Duration
	c := &cooldown{
		wait:  20 * time.Second,
		now:   func() time.Time { return clock },
		sleep: func(d time.Duration) { slept = d },
	}

	c.arm()
	require.Zero(t, slept, "first arm should not sleep")

	clock = clock.Add(5 * time.Second)
	c.arm()
	require.Equal(t, 15*time.Second, slept)
}

func TestCooldownSkipsSleepWhenWindowElapsed(t *testing.T) {
	clock := time.Unix(0, 0)
	slept := -1 * time.Second
	c := &cooldown{
		wait:  20 * time.Second,
		now:   func() time.Time { return clock },
		sleep: func(d time.Duration) { slept = d },
	}

	c.arm()
	clock = clock.Add(30 * time.Second)
	c.arm()
	require.Equal(t, -1*time.Second, slept, "sleep should not be called once the window has elapsed")
}
