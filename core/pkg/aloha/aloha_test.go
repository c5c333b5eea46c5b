package aloha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/poplexity/bpvalidate/core/pkg/findings"
	"github.com/poplexity/bpvalidate/core/pkg/httpprobe"
)

func withFixedNow(t *testing.T, when time.Time) {
	t.Helper()
	original := Now
	Now = func() time.Time { return when }
	t.Cleanup(func() { Now = original })
}

// redirectAllTo builds a transport that dials srv regardless of the
// request's actual host, standing in for the fixed external endpoint.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func redirectAllTo(srv *httptest.Server) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		clone := req.Clone(req.Context())
		clone.URL.Scheme = "http"
		clone.URL.Host = srv.Listener.Addr().String()
		return http.DefaultTransport.RoundTrip(clone)
	})
}

func newClient(srv *httptest.Server) *httpprobe.Client {
	client := httpprobe.New(nil)
	client.HTTP = &http.Client{Transport: redirectAllTo(srv)}
	return client
}

func TestProbeSkipsWithoutAlohaID(t *testing.T) {
	stream := findings.New()
	result := Probe(context.Background(), findings.ClassGeneral, "", httpprobe.New(nil), stream)

	require.Empty(t, stream.All())
	require.Empty(t, result.LastMissedRound)
}

func TestProbeReportsNeverWhenRoundAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"producer":{}}`))
	}))
	defer srv.Close()

	stream := findings.New()
	result := Probe(context.Background(), findings.ClassGeneral, "bpone", newClient(srv), stream)

	require.Equal(t, "never", result.LastMissedRound)
	require.True(t, stream.HasKind(findings.Ok))
	require.False(t, stream.HasKind(findings.Warn))
}

func TestProbeFlagsRecentMissedRoundAsWarn(t *testing.T) {
	withFixedNow(t, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"producer":{"last_missed_round":"2026-07-20T00:00:00Z"}}`))
	}))
	defer srv.Close()

	stream := findings.New()
	result := Probe(context.Background(), findings.ClassGeneral, "bpone", newClient(srv), stream)

	require.True(t, result.Stale)
	require.True(t, stream.HasKind(findings.Warn))
}

func TestProbeAcceptsMissedRoundOlderThanThirtyDays(t *testing.T) {
	withFixedNow(t, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"producer":{"last_missed_round":"2026-01-01T00:00:00Z"}}`))
	}))
	defer srv.Close()

	stream := findings.New()
	result := Probe(context.Background(), findings.ClassGeneral, "bpone", newClient(srv), stream)

	require.False(t, result.Stale)
	require.False(t, stream.HasKind(findings.Warn))
	require.True(t, stream.HasKind(findings.Ok))
}

func TestProbeFlagsUnparseableMissedRound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"producer":{"last_missed_round":"not-a-timestamp"}}`))
	}))
	defer srv.Close()

	stream := findings.New()
	Probe(context.Background(), findings.ClassGeneral, "bpone", newClient(srv), stream)

	require.True(t, stream.HasKind(findings.Err))
}

func TestProbeFlagsEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	stream := findings.New()
	result := Probe(context.Background(), findings.ClassGeneral, "bpone", newClient(srv), stream)

	require.True(t, stream.HasKind(findings.Err))
	require.Empty(t, result.LastMissedRound)
}
