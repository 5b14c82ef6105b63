package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Fetcher retrieves remote images over http(s) under a byte-size cap and a
// per-call timeout.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
}

// FetcherOptions configures a Fetcher. HTTPClient is overridable for tests;
// the default client follows redirects.
type FetcherOptions struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxBytes   int64
}

// NewFetcher constructs a Fetcher, applying defaults for missing options.
func NewFetcher(opts FetcherOptions) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	return &Fetcher{client: client, timeout: timeout, maxBytes: maxBytes}
}

// Fetch retrieves the image at uri. Failures are reported as *FetchError
// with an HTTP-like status where one applies: the upstream status for
// non-2xx responses, 408 for timeouts, none otherwise.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (*FetchedImage, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, &FetchError{URL: uri, Msg: fmt.Sprintf("invalid imageUri provided: %s", uri), Err: err}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, &FetchError{URL: uri, Msg: fmt.Sprintf("unsupported protocol for imageUri: %s", parsed.Scheme)}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, &FetchError{URL: uri, Msg: fmt.Sprintf("failed to build request for %s", uri), Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &FetchError{
				URL:    uri,
				Status: http.StatusRequestTimeout,
				Msg:    fmt.Sprintf("timed out fetching image: %s", uri),
				Err:    err,
			}
		}
		return nil, &FetchError{URL: uri, Msg: fmt.Sprintf("failed to fetch image: %s (%v)", uri, err), Err: err}
	}
	defer resp.Body.Close()

	finalURL := uri
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{
			URL:    finalURL,
			Status: resp.StatusCode,
			Msg:    fmt.Sprintf("remote server responded with %d for %s", resp.StatusCode, uri),
		}
	}

	contentType := strings.TrimSpace(strings.SplitN(resp.Header.Get("Content-Type"), ";", 2)[0])
	if !strings.HasPrefix(contentType, "image/") {
		return nil, &FetchError{
			URL: finalURL,
			Msg: fmt.Sprintf("unsupported content-type for %s: %s", uri, orUnknown(contentType)),
		}
	}

	// Header-declared size is rejected upfront; the bounded read below
	// still guards against missing or lying Content-Length headers.
	if resp.ContentLength > f.maxBytes {
		return nil, &FetchError{
			URL: finalURL,
			Msg: fmt.Sprintf("image at %s exceeds maximum allowed size (%d > %d)", uri, resp.ContentLength, f.maxBytes),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		if isTimeout(err) {
			return nil, &FetchError{
				URL:    finalURL,
				Status: http.StatusRequestTimeout,
				Msg:    fmt.Sprintf("timed out fetching image: %s", uri),
				Err:    err,
			}
		}
		return nil, &FetchError{URL: finalURL, Msg: fmt.Sprintf("failed to read image body from %s", uri), Err: err}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &FetchError{
			URL: finalURL,
			Msg: fmt.Sprintf("image at %s exceeds maximum allowed size (%d > %d)", uri, len(data), f.maxBytes),
		}
	}

	return &FetchedImage{
		Data:        data,
		Bytes:       int64(len(data)),
		ContentType: contentType,
		URL:         finalURL,
	}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
