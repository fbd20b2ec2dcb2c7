package httpclient

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
)

// snippetLen bounds how much of the response body ends up in Error().
const snippetLen = 120

// UpstreamError is a non-2xx answer from a remote JSON API such as the release feed.
type UpstreamError struct {
	URL        string
	StatusCode int
	// Body holds at most maxErrorBody bytes of the response.
	Body []byte
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))

	snippet := strings.Join(strings.Fields(string(e.Body)), " ")
	if snippet == "" {
		return msg
	}
	if len(snippet) > snippetLen {
		snippet = snippet[:snippetLen] + "..."
	}
	return msg + ": " + snippet
}

// RateLimited reports whether the upstream throttled the caller. GitHub
// signals an exhausted anonymous quota with 403 rather than 429.
func (e *UpstreamError) RateLimited() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode == http.StatusForbidden &&
		bytes.Contains(bytes.ToLower(e.Body), []byte("rate limit"))
}
