// Package httpclient builds the outbound HTTP clients used by model providers.
package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	apperrors "opsbot/internal/errors"
	"opsbot/internal/logging"
)

// DefaultBodyLimit caps provider responses read through ReadBody.
const DefaultBodyLimit int64 = 8 << 20

// New returns an HTTP client with the given overall timeout and a transport
// tuned for a handful of long-lived provider connections.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	logger = logging.OrNop(logger)
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	logger.Debug("HTTP client created (timeout=%v)", timeout)
	return &http.Client{Timeout: timeout, Transport: transport}
}

// BodyTooLargeError reports a response body over the read limit.
type BodyTooLargeError struct {
	Limit int64
}

func (e BodyTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeded limit of %d bytes", e.Limit)
}

// IsBodyTooLarge reports whether err came from a ReadBody limit violation.
func IsBodyTooLarge(err error) bool {
	var limitErr BodyTooLargeError
	return errors.As(err, &limitErr)
}

// ReadBody reads r up to limit bytes. A non-positive limit reads everything.
func ReadBody(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(&io.LimitedReader{R: r, N: limit + 1})
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, BodyTooLargeError{Limit: limit}
	}
	return data, nil
}

// StatusError converts a non-2xx response into an *errors.HTTPStatusError
// so retry classification can inspect the status code.
func StatusError(resp *http.Response, body []byte) error {
	return &apperrors.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
}
