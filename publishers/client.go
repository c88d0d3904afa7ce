package publishers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"PostPilotAPI/utils"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
)

// fetchWithRetry performs req, retrying only on transport-level timeouts with
// a fixed delay between attempts. Any HTTP status, including 4xx/5xx, returns
// immediately: application-level failures are final and must never be
// replayed against endpoints with side effects. Exhausting maxRetries without
// a timeout-free attempt returns a MaxRetriesExceededError.
//
// Requests with bodies must have GetBody set (http.NewRequest does this for
// the common reader types) so the body can be rebuilt per attempt.
func fetchWithRetry(client *http.Client, req *http.Request, maxRetries int, delay time.Duration) (*http.Response, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			if req.Body != nil && req.GetBody == nil {
				return nil, fmt.Errorf("cannot retry request with non-rewindable body: %w", lastErr)
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("rebuilding request body for retry: %w", err)
				}
				req.Body = body
			}
		}

		resp, err := client.Do(req)
		if err == nil {
			return resp, nil
		}

		if !isTimeout(err) {
			return nil, err
		}

		lastErr = err
		if attempt < maxRetries {
			utils.Warnf("request timed out, retrying url=%s attempt=%d/%d", req.URL.Redacted(), attempt, maxRetries)
			time.Sleep(delay)
		}
	}

	return nil, &MaxRetriesExceededError{Attempts: maxRetries, Last: lastErr}
}

// isTimeout classifies transport errors: only genuine timeouts (deadline
// exceeded, net.Error timeouts) qualify for a retry.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// newHTTPClient returns the default client used by publishers when none is
// injected.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
