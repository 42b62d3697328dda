package rest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hendrywilliam/sirengate/src/structs"
)

// HTTPError is a non-2xx response that will not be retried. A 429 is only
// returned this way once the retry budget is spent.
type HTTPError struct {
	Method     string
	Path       string
	Status     int
	Reason     string
	Body       structs.ErrorHTTPResponse
	RetryAfter time.Duration
	Global     bool
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Reason)
	if e.Body.Message != "" {
		msg += fmt.Sprintf(": %s (code %d)", e.Body.Message, e.Body.Code)
	}
	return msg
}

func (e *HTTPError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}
