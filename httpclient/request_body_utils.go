/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/acronis/go-throttlekit/log"
)

// makeRequestBodyRewindable returns a function that restores the request body before every retry.
// req.GetBody is preferred, then seeking back, and the body is buffered in memory as the last resort.
// Throttle requests carry tiny JSON bodies, so buffering is cheap.
func makeRequestBodyRewindable(req *http.Request) (func(*http.Request) error, error) {
	if req.GetBody != nil {
		return func(r *http.Request) error {
			body, err := r.GetBody()
			if err != nil {
				return fmt.Errorf("get request body for retry: %w", err)
			}
			r.Body = body
			return nil
		}, nil
	}

	if seeker, ok := req.Body.(io.ReadSeeker); ok {
		offset, err := seeker.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, fmt.Errorf("seek request body before the first attempt: %w", err)
		}
		req.Body = io.NopCloser(seeker)
		return func(_ *http.Request) error {
			if _, seekErr := seeker.Seek(offset, io.SeekStart); seekErr != nil {
				return fmt.Errorf("seek request body to offset %d for retry: %w", offset, seekErr)
			}
			return nil
		}, nil
	}

	buf, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("read request body before the first attempt: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(buf))
	return func(r *http.Request) error {
		r.Body = io.NopCloser(bytes.NewReader(buf))
		return nil
	}, nil
}

// drainResponseBody reads the rest of the body so the connection may be reused and closes it.
func drainResponseBody(resp *http.Response, logger log.FieldLogger) {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.Warn("failed to discard response body before retry", log.Error(err))
	}
	if err := resp.Body.Close(); err != nil {
		logger.Warn("failed to close response body before retry", log.Error(err))
	}
}
