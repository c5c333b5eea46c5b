// Package httpprobe implements the HTTP probe of §4.4: a single
// GET/POST with a per-call timeout, writing through the cache store,
// recording elapsed time, and exposing a response envelope that never
// surfaces a transport error as a Go error — failures are represented
// as a non-success Response, per §4.4's contract.
package httpprobe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/poplexity/bpvalidate/core/pkg/probecache"
)

// Request describes one HTTP call to make.
type Request struct {
	Method  string
	URL     string
	Body    string
	Headers map[string]string
}

// Options configures a single probe call, per §4.4's signature
// request(req, {request_timeout, cache_timeout, cache_fast_fail, ...}).
type Options struct {
	RequestTimeout         time.Duration
	CacheTimeout           time.Duration // 0 disables caching
	CacheFastFail          bool
	SuppressTimeoutMessage bool
}

// Response is the envelope every probe call returns, success or not.
type Response struct {
	Success      bool
	Code         int
	StatusLine   string
	FinalURL     string
	ContentType  string
	Header       http.Header
	Body         []byte
	ElapsedTime  time.Duration
	TimedOut     bool
	TransportErr string
	FromCache    bool
}

// Client issues HTTP probes and writes through the shared cache store.
type Client struct {
	HTTP  *http.Client
	Cache *probecache.Store
	Now   func() time.Time
}

// New creates an httpprobe.Client. cache may be nil to disable caching
// entirely (useful in tests); redirects are followed, matching the
// spec's "final_url (after redirect)" contract.
func New(cache *probecache.Store) *Client {
	return &Client{
		HTTP:  &http.Client{},
		Cache: cache,
		Now:   time.Now,
	}
}

// Request issues req honoring opts, consulting and updating the cache
// store's http table when CacheTimeout > 0. It never returns a non-nil
// error for a failed HTTP transaction — transport failures surface as
// Response{Success: false}; the returned error is reserved for
// programming mistakes, and is returned only when req.Method is empty.
func (c *Client) Request(ctx context.Context, req Request, opts Options) (Response, Finding, error) {
	if req.Method == "" {
		return Response{}, Finding{}, fmt.Errorf("httpprobe: method is required")
	}

	key := probecache.Fingerprint(req.Method, req.URL, req.Body, req.Headers)
	if c.Cache != nil && opts.CacheTimeout > 0 {
		if rec, err := c.Cache.Get(ctx, probecache.TableHTTP, key); err == nil {
			if probecache.Fresh(rec, opts.CacheTimeout, c.Now()) {
				resp, decodeErr := decodeCached(rec.Content)
				if decodeErr == nil {
					resp.FromCache = true
					return resp, Finding{}, nil
				}
			}
		}
	}

	resp := c.doRequest(ctx, req, opts)

	if c.Cache != nil && opts.CacheTimeout > 0 && (resp.Success || opts.CacheFastFail) {
		if encoded, err := encodeCached(resp); err == nil {
			_ = c.Cache.Put(ctx, probecache.TableHTTP, key, encoded, c.Now(), !resp.Success)
		}
	}

	var finding Finding
	if resp.TimedOut && !opts.SuppressTimeoutMessage {
		finding = Finding{Present: true, Detail: "response took longer than expected"}
	}
	return resp, finding, nil
}

// Finding is the one optional side-channel finding a probe call may
// want the caller to record (the elapsed-time-exceeded warning of §4.4).
// Kept as a plain struct rather than importing the findings package
// directly, so httpprobe has no dependency on finding Kind/Class policy —
// callers decide how to classify it.
type Finding struct {
	Present bool
	Detail  string
}

func (c *Client) doRequest(ctx context.Context, req Request, opts Options) Response {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, req.URL, body)
	if err != nil {
		return Response{Success: false, TransportErr: err.Error()}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	var statusCode int
	start := c.Now()
	httpResp, err := c.HTTP.Do(httpReq)
	elapsed := c.Now().Sub(start)
	if err != nil {
		timedOut := reqCtx.Err() != nil
		return Response{
			Success:      false,
			ElapsedTime:  elapsed,
			TimedOut:     timedOut,
			TransportErr: err.Error(),
		}
	}
	defer httpResp.Body.Close()
	statusCode = httpResp.StatusCode

	bodyBytes, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil {
		return Response{
			Success:      false,
			Code:         statusCode,
			ElapsedTime:  elapsed,
			TransportErr: readErr.Error(),
		}
	}

	finalURL := req.URL
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		finalURL = httpResp.Request.URL.String()
	}

	return Response{
		Success:     true,
		Code:        statusCode,
		StatusLine:  httpResp.Status,
		FinalURL:    finalURL,
		ContentType: httpResp.Header.Get("Content-Type"),
		Header:      httpResp.Header,
		Body:        bodyBytes,
		ElapsedTime: elapsed,
		TimedOut:    elapsed > timeout,
	}
}

// cachedEnvelope is the serialized shape stored in the http cache table.
type cachedEnvelope struct {
	Success     bool                `json:"success"`
	Code        int                 `json:"code"`
	StatusLine  string              `json:"status_line"`
	FinalURL    string              `json:"final_url"`
	ContentType string              `json:"content_type"`
	Header      map[string][]string `json:"header"`
	Body        []byte              `json:"body"`
}
