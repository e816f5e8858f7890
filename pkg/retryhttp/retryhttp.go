// Package retryhttp builds the retrying HTTP client shared by the outbound API clients.
package retryhttp

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Options configures NewClient. Zero Timeout and RetryWaitMin take defaults;
// RetryMax is used as given.
type Options struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// NewClient returns a retryablehttp client with logging disabled and the
// non-200 retry policy installed.
func NewClient(opts Options) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = opts.RetryMax
	client.Logger = nil
	client.CheckRetry = RetryPolicy()
	client.RetryWaitMin = cmp.Or(opts.RetryWaitMin, time.Second)
	client.RetryWaitMax = cmp.Or(opts.RetryWaitMax, 30*time.Second)
	client.HTTPClient.Timeout = cmp.Or(opts.Timeout, 90*time.Second)
	return client
}

// RetryPolicy retries every non-200 response and stops as soon as the
// request context is done.
func RetryPolicy() retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return false, ctx.Err()
			}
		}

		if resp == nil {
			return true, fmt.Errorf("response is nil")
		}

		if resp.StatusCode != http.StatusOK {
			return true, fmt.Errorf("wrong status code: %d", resp.StatusCode)
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
}
