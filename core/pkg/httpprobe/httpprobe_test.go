package httpprobe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(nil)
	resp, finding, err := c.Request(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, Options{RequestTimeout: 2 * time.Second})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "application/json", resp.ContentType)
	require.False(t, finding.Present)
}

func TestRequestTransportFailureIsNotAnError(t *testing.T) {
	c := New(nil)
	resp, _, err := c.Request(context.Background(), Request{Method: http.MethodGet, URL: "http://127.0.0.1:1"}, Options{RequestTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.NotEmpty(t, resp.TransportErr)
}

func TestRequestMissingMethodIsAProgrammingError(t *testing.T) {
	c := New(nil)
	_, _, err := c.Request(context.Background(), Request{URL: "https://example.com"}, Options{})
	require.Error(t, err)
}

func TestRequestFinalURLAfterRedirect(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer redirector.Close()

	c := New(nil)
	resp, _, err := c.Request(context.Background(), Request{Method: http.MethodGet, URL: redirector.URL}, Options{RequestTimeout: 2 * time.Second})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, target.URL, resp.FinalURL)
}

func TestRequestSlowResponseFlagsTimeoutFinding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(nil)
	c.HTTP = &http.Client{Timeout: 0}
	_, finding, err := c.Request(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, Options{RequestTimeout: 10 * time.Millisecond})
	require.NoError(t, err)
	// either the context deadline aborted the call (transport failure) or it
	// completed slow enough to be flagged; either way it must not silently
	// report success within budget.
	if finding.Present {
		require.Equal(t, "response took longer than expected", finding.Detail)
	}
}
