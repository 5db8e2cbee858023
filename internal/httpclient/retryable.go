// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/opentofu/mapsync/internal/logging"
)

// NewRetryable is a variant of [New] that wraps the pooled client in a
// retryablehttp client.
//
// The retryCount argument specifies how many times requests from the resulting
// client should be automatically retried when certain transient errors occur.
// A retryCount of zero disables retries entirely.
//
// The timeout argument specifies a deadline for the completion of each
// request made using the client. Zero means no deadline.
func NewRetryable(ctx context.Context, retryCount int, timeout time.Duration) *retryablehttp.Client {
	baseClient := New(ctx)
	baseClient.Timeout = timeout

	retryableClient := retryablehttp.NewClient()
	retryableClient.HTTPClient = baseClient
	retryableClient.RetryMax = retryCount
	retryableClient.RequestLogHook = requestLogHook
	retryableClient.ErrorHandler = maxRetryErrorHandler
	retryableClient.Logger = logging.HCLogger().Named("http")

	return retryableClient
}

func requestLogHook(logger retryablehttp.Logger, req *http.Request, i int) {
	if i > 0 {
		logger.Printf("[INFO] Failed request to %s; retrying", req.URL.String())
	}
}

func maxRetryErrorHandler(resp *http.Response, err error, numTries int) (*http.Response, error) {
	// Close the body per library instructions
	if resp != nil {
		resp.Body.Close()
	}

	// We will never have both response and error.
	var errMsg string
	if resp != nil {
		errMsg = fmt.Sprintf(": %s returned from %s", resp.Status, resp.Request.URL)
	} else if err != nil {
		errMsg = fmt.Sprintf(": %s", err)
	}

	// This function is always called with numTries=RetryMax+1.
	if numTries > 1 {
		return resp, fmt.Errorf("request failed after %d attempts%s",
			numTries, errMsg)
	}
	return resp, fmt.Errorf("request failed%s", errMsg)
}
