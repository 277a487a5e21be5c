package gitproto

import (
	"context"
	"net/http"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// leveledZap adapts a *zap.SugaredLogger to retryablehttp's
// LeveledLogger interface, rewriting the library's ERROR-level
// messages (emitted on every retry attempt, including ones that
// eventually succeed) down to WARN so routine retries don't look like
// fatal application errors in the logs.
type leveledZap struct {
	inner *zap.SugaredLogger
}

func (l leveledZap) Error(msg string, kv ...interface{}) { l.inner.Warnw(msg, kv...) }
func (l leveledZap) Warn(msg string, kv ...interface{})  { l.inner.Warnw(msg, kv...) }
func (l leveledZap) Info(msg string, kv ...interface{})  { l.inner.Infow(msg, kv...) }
func (l leveledZap) Debug(msg string, kv ...interface{}) { l.inner.Debugw(msg, kv...) }

// newHTTPClient builds the *http.Client used for all upstream requests.
//
// Retries at this layer are deliberately shallow: they exist only to
// absorb transient connection-level hiccups (a reset socket, a DNS
// blip) within the lifetime of a single HTTP call. The batch-level
// retry schedule mandated for a whole fetch (1s, 4s, 16s backoff, 3
// attempts) is owned by internal/syncer's retryWithBackoff, which
// retries the entire fetch-decode batch, not just the HTTP round
// trip, and does so without aborting sibling batches still in flight.
func newHTTPClient(logger *zap.Logger, timeout time.Duration) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = cleanhttp.DefaultPooledTransport()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledZap{inner: logger.Sugar()})
	retryClient.CheckRetry = checkRetry
	// Once retries run out, hand back the last response as-is so that a
	// non-2xx status reaches Client.do and becomes an UpstreamError.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := retryClient.StandardClient()
	client.Timeout = timeout
	return client
}

// checkRetry treats 4xx responses (other than 429) as non-retryable
// client errors, matching the orchestrator's own classification of
// AuthError/UpstreamError in §7 of the sync design.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
