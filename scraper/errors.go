package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// ErrNoResponse marks a request that produced no usable response: the retry
// budget ran out or the host name cannot be resolved. The cause is wrapped
// alongside it.
var ErrNoResponse = errors.New("no response")

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnectionClosed indicates the remote end dropped the connection before
// answering.
type ErrConnectionClosed struct {
	Err error
}

func (e ErrConnectionClosed) Error() string {
	return fmt.Errorf("connection_closed: %w", e.Err).Error()
}

func (e ErrConnectionClosed) Unwrap() error {
	return e.Err
}

// ErrNameResolution indicates the host name could not be resolved.
type ErrNameResolution struct {
	Err error
}

func (e ErrNameResolution) Error() string {
	return fmt.Errorf("name_resolution: %w", e.Err).Error()
}

func (e ErrNameResolution) Unwrap() error {
	return e.Err
}

// ErrHTTPStatus indicates a response outside the 2xx range.
type ErrHTTPStatus struct {
	Status int
	URL    string
}

func (e ErrHTTPStatus) Error() string {
	return fmt.Sprintf("http status %d (%s) for %s", e.Status, http.StatusText(e.Status), e.URL)
}

// ErrStructure indicates a page is missing markup the crawler depends on.
type ErrStructure struct {
	Where string
	Err   error
}

func (e ErrStructure) Error() string {
	return fmt.Errorf("structure [%s]: %w", e.Where, e.Err).Error()
}

func (e ErrStructure) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var closed ErrConnectionClosed
	if errors.As(err, &closed) {
		return "connection_closed"
	}
	var resolution ErrNameResolution
	if errors.As(err, &resolution) {
		return "name_resolution"
	}
	var status ErrHTTPStatus
	if errors.As(err, &status) {
		switch status.Status {
		case http.StatusForbidden:
			return "forbidden"
		case http.StatusNotFound:
			return "not_found"
		case http.StatusTooManyRequests:
			return "rate_limited"
		}
		return "http_status"
	}
	var structure ErrStructure
	if errors.As(err, &structure) {
		return "structure"
	}
	return "other"
}

// ErrorTypeLabel exposes the metric label used for err.
func ErrorTypeLabel(err error) string {
	return errorTypeLabel(err)
}

// Messages produced by resolvers and servers that do not surface a typed error.
var (
	closedConnectionMessages = []string{
		"Remote end closed connection",
		"connection reset by peer",
		"server closed idle connection",
	}
	nameResolutionMessages = []string{
		"getaddrinfo failed",
		"Name or service not known",
		"nodename nor servname provided",
		"no such host",
	}
)

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout{Err: err}
		}
		if isNameResolution(err) {
			return ErrNameResolution{Err: err}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrTimeout{Err: err}
		}
		if isConnectionClosed(err) {
			return ErrConnectionClosed{Err: err}
		}
	}

	if statusCode >= http.StatusMultipleChoices {
		return ErrHTTPStatus{Status: statusCode}
	}
	return err
}

func isConnectionClosed(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	return containsAny(err.Error(), closedConnectionMessages)
}

func isNameResolution(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return !dnsErr.IsTimeout
	}
	return containsAny(err.Error(), nameResolutionMessages)
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}
