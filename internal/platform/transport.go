package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/tzervas/embeddenator/internal/taxonomy"
)

// newHTTPClient builds a bounded-backoff HTTP client: three attempts,
// retrying on TransientNetwork-class failures (timeouts, 5xx, connection
// reset, and 429 honoring the server's Retry-After).
func newHTTPClient(timeout time.Duration) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 8 * time.Second
	c.HTTPClient.Timeout = timeout
	c.Logger = nil
	c.CheckRetry = retryablehttp.DefaultRetryPolicy
	return c
}

// doJSON performs req, decoding a JSON success body into out (if non-nil)
// and classifying failures per the §4.1 taxonomy. op names the call for
// error messages.
func doJSON(ctx context.Context, client *retryablehttp.Client, op string, req *retryablehttp.Request, out interface{}) error {
	req = req.WithContext(ctx)
	resp, err := client.Do(req)
	if err != nil {
		return taxonomy.New(taxonomy.TransientNetwork, op, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return taxonomy.NewRetryable(op, fmt.Errorf("rate limited: %s", string(body)), retryAfter)
	}
	if resp.StatusCode >= 500 {
		return taxonomy.New(taxonomy.TransientNetwork, op, fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}
	if resp.StatusCode >= 400 {
		return taxonomy.New(taxonomy.Permanent, op, fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}
	if readErr != nil {
		return taxonomy.New(taxonomy.Permanent, op, fmt.Errorf("read response: %w", readErr))
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := decodeJSON(body, out); err != nil {
		return taxonomy.New(taxonomy.Permanent, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
