// Package probe performs a single HTTP health check against an application endpoint.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/systmms/dbops/internal/logging"
)

// Config holds configuration for HTTP health probes.
type Config struct {
	// ExpectedStatusCodes are the HTTP status codes considered healthy.
	ExpectedStatusCodes []int

	// Timeout bounds the whole request. Zero means no timeout.
	Timeout time.Duration

	// Headers are custom headers to include in the request.
	Headers map[string]string
}

// DefaultConfig returns the default probe configuration: only 200 is healthy.
func DefaultConfig() Config {
	return Config{
		ExpectedStatusCodes: []int{http.StatusOK},
		Timeout:             10 * time.Second,
	}
}

// HTTPClient is the interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result represents the outcome of one probe.
type Result struct {
	URL        string
	Healthy    bool
	StatusCode int
	Message    string
	// Err is set when no response was received at all.
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

// Checker performs health checks on HTTP endpoints.
type Checker struct {
	config Config
	client HTTPClient
	logger *logging.Logger
}

// NewChecker creates a new HTTP checker.
// Keep-alives are disabled: a probe makes exactly one request.
func NewChecker(config Config, logger *logging.Logger) *Checker {
	if len(config.ExpectedStatusCodes) == 0 {
		config.ExpectedStatusCodes = DefaultConfig().ExpectedStatusCodes
	}
	return &Checker{
		config: config,
		logger: logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: &http.Transport{DisableKeepAlives: true, Proxy: http.ProxyFromEnvironment},
		},
	}
}

// SetClient sets a custom HTTP client for testing.
func (c *Checker) SetClient(client HTTPClient) {
	c.client = client
}

// Check issues one GET to url and classifies the response.
// It never returns an error: failures are reported through Result.
func (c *Checker) Check(ctx context.Context, url string) Result {
	start := time.Now()
	result := Result{
		URL:       url,
		Timestamp: start,
	}

	fail := func(err error, format string, args ...interface{}) Result {
		result.Healthy = false
		result.Err = err
		result.Message = fmt.Sprintf(format, args...)
		result.Duration = time.Since(start)
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail(err, "failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", "dbops-probe")
	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}

	c.logDebug("GET %s", url)

	resp, err := c.client.Do(req)
	if err != nil {
		return fail(err, "request failed: %v", err)
	}
	defer resp.Body.Close()

	// Drain so the server sees a complete exchange
	_, _ = io.Copy(io.Discard, resp.Body)

	result.Duration = time.Since(start)
	result.StatusCode = resp.StatusCode

	if !c.expected(resp.StatusCode) {
		result.Healthy = false
		result.Message = fmt.Sprintf("unexpected status code %d", resp.StatusCode)
		return result
	}

	result.Healthy = true
	result.Message = fmt.Sprintf("healthy: status %d in %v", resp.StatusCode, result.Duration.Round(time.Millisecond))
	return result
}

func (c *Checker) expected(code int) bool {
	for _, want := range c.config.ExpectedStatusCodes {
		if code == want {
			return true
		}
	}
	return false
}

func (c *Checker) logDebug(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(format, args...)
	}
}

// Report writes the human-readable verdict for r to w.
func Report(w io.Writer, r Result) {
	switch {
	case r.Healthy:
		fmt.Fprintln(w, "Application is healthy.")
	case r.Err != nil:
		fmt.Fprintf(w, "Error performing health check: %v\n", r.Err)
	default:
		fmt.Fprintln(w, "Application is not healthy.")
	}
}
