package fetch

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nxank4/go-llct-client/internal/errors"
)

// Rate-limit retry budget. A 429 signals load shedding, not a credential
// problem, so the answer is waiting, not refreshing.
const (
	maxAttempts = 5
	baseDelay   = 5 * time.Second
	maxDelay    = 60 * time.Second
)

const (
	headerRetryAfter         = "Retry-After"
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
)

// DoWithRetry issues an authenticated request under the rate-limit policy,
// on top of the auth-retry policy Do already applies. List and stat
// endpoints that the server throttles should go through here.
//
// On 429, the wait honors a server-supplied Retry-After (seconds) when
// present, otherwise backs off exponentially: min(5s * 2^attempt, 60s).
// Non-429 responses, including other error statuses, surface immediately.
// Transport-level failures are retried on the same schedule within the same
// five-attempt budget. Exhausting the budget returns a RateLimitError
// carrying the last response's quota headers.
func (c *Client) DoWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	rateLimitErr := &errors.RateLimitError{Attempts: maxAttempts}
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		attemptReq, err := cloneRequest(ctx, req)
		if err != nil {
			return nil, err
		}

		resp, err := c.Do(ctx, attemptReq)
		if err != nil {
			// Credential failures are not transient; retrying cannot help.
			if errors.Is(err, errors.ErrCredentialMissing) || errors.Is(err, errors.ErrSessionExpired) || ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			if attempt == maxAttempts-1 {
				break
			}
			delay := backoffDelay(attempt)
			log.Debug().Err(err).Dur("delay", delay).Int("attempt", attempt).Msg("transient request failure, backing off")
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		rateLimitErr.Limit = resp.Header.Get(headerRateLimitLimit)
		rateLimitErr.Remaining = resp.Header.Get(headerRateLimitRemaining)
		delay := retryDelay(resp, attempt)
		drainAndClose(resp)

		if attempt == maxAttempts-1 {
			break
		}
		log.Debug().Dur("delay", delay).Int("attempt", attempt).Str("path", req.URL.Path).Msg("rate limited, backing off")
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
	}

	if lastErr != nil && rateLimitErr.Limit == "" && rateLimitErr.Remaining == "" {
		return nil, errors.Wrapf(lastErr, "[DoWithRetry] exhausted %d attempts", maxAttempts)
	}
	return nil, rateLimitErr
}

// retryDelay prefers the server's Retry-After hint (whole seconds) and falls
// back to the exponential schedule.
func retryDelay(resp *http.Response, attempt int) time.Duration {
	if v := resp.Header.Get(headerRetryAfter); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return backoffDelay(attempt)
}

func backoffDelay(attempt int) time.Duration {
	delay := baseDelay << attempt
	if delay > maxDelay || delay <= 0 {
		return maxDelay
	}
	return delay
}
