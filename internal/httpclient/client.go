// Package httpclient builds the outbound HTTP clients shared by the WebUI,
// pipeline and n8n integrations.
package httpclient

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTimeout is the total budget of one outbound request, streaming
// bodies included.
const DefaultTimeout = 300 * time.Second

// New returns a traced client with the given total timeout.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
