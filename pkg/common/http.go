package common

import (
	_ "embed"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

// Version returns the embedded release version.
func Version() string {
	return strings.TrimSpace(version)
}

type headerTransport struct {
	transport http.RoundTripper
	headers   map[string]string
}

// RoundTrip implements the http.RoundTripper interface
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original request's headers
	// which might be shared or reused
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.transport.RoundTrip(req)
}

// HTTPClient returns a pooled http client that sets the given headers on
// every request. A User-Agent of esplus/<version> is used unless headers
// overrides it.
func HTTPClient(timeout time.Duration, headers map[string]string) *http.Client {
	h := map[string]string{
		"User-Agent": "esplus/" + Version(),
	}
	for k, v := range headers {
		h[http.CanonicalHeaderKey(k)] = v
	}

	return &http.Client{
		Transport: &headerTransport{
			transport: http.DefaultTransport,
			headers:   h,
		},
		Timeout: timeout,
	}
}
