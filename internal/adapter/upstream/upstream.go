// Package upstream holds the HTTP plumbing shared by the provider adapters.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/observability"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
)

// StatusError is returned for any non-200 response.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 from upstream.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// IsTransient reports whether err is worth retrying: a timeout, a dropped or
// refused connection, a truncated body, or a 429 or 5xx answer. Decode
// failures, unexpected shapes and other 4xx answers are not.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

// Fetcher issues GET requests for one named source and records the outcome.
type Fetcher struct {
	Source  string
	Client  *http.Client
	Metrics *observability.Metrics
}

// New creates a Fetcher with its own http.Client.
func New(source string, timeout time.Duration, metrics *observability.Metrics) *Fetcher {
	return &Fetcher{
		Source:  source,
		Client:  &http.Client{Timeout: timeout},
		Metrics: metrics,
	}
}

// Get returns the body of a 200 response.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return f.do(req)
}

// Post sends body with the given content type and extra headers and returns
// the body of a 200 response.
func (f *Fetcher) Post(ctx context.Context, url, contentType string, header http.Header, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", contentType)
	return f.do(req)
}

func (f *Fetcher) do(req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", "lake-powell-etl")
	url := req.URL.String()

	resp, err := f.Client.Do(req)
	if err != nil {
		f.Record("error")
		return nil, fmt.Errorf("%s request: %w", f.Source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.Record("error")
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Method: req.Method, URL: url, Status: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.Record("error")
		return nil, fmt.Errorf("read %s response: %w", f.Source, err)
	}
	return body, nil
}

// Record counts one request outcome: success, empty or error.
func (f *Fetcher) Record(outcome string) {
	if f.Metrics != nil {
		f.Metrics.SourceRequests.WithLabelValues(f.Source, outcome).Inc()
	}
}

// LooksLikeHTML reports whether body is an HTML page, which several
// endpoints serve in place of a 404.
func LooksLikeHTML(body []byte) bool {
	b := bytes.TrimSpace(body)
	if len(b) > 64 {
		b = b[:64]
	}
	b = bytes.ToLower(b)
	return bytes.HasPrefix(b, []byte("<!doctype")) || bytes.HasPrefix(b, []byte("<html"))
}

// Sleep waits for d and returns ctx's error if it ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	sharedretry.SleepWithContext(ctx, d)
	return ctx.Err()
}
