package capability

import (
	"fmt"
	"net/http"

	"github.com/BaSui01/crewcheck/types"
)

// MapHTTPError maps a backend status code to a capability error.
// Throttling and server-side failures are transient; everything else is
// a permanent failure of the task.
func MapHTTPError(status int, msg string) *types.Error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).WithRetryable(true)
	case status == http.StatusRequestTimeout:
		return types.NewError(types.ErrTimeout, msg).WithRetryable(true)
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return types.NewError(types.ErrUpstreamError, msg).WithRetryable(true)
	case status >= 500:
		return types.Errorf(types.ErrUpstreamError, "backend error %d: %s", status, msg).WithRetryable(true)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return types.Errorf(types.ErrCapabilityFailure, "backend rejected credentials: %s", msg)
	default:
		return types.Errorf(types.ErrCapabilityFailure, "backend returned %d: %s", status, msg)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:n], len(s))
}
