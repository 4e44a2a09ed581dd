// Package httpclient is the gateway to the Configuration Manager Admin Service.
// It resolves paths relative to https://{site server}/AdminService/, attaches
// the session's Windows credential and TLS policy, and turns non-success
// responses into *APIError values.
package httpclient

import (
	"context"
)

// Invoker is the single operation the rest of cmas needs from the gateway.
// Resolver and resource operations depend on it rather than on HTTPClient so
// tests can count or script calls.
type Invoker interface {
	// Invoke issues method against relativePath with optional query values
	// and body. A nil body sends no payload; []byte and json.RawMessage are
	// sent as-is and anything else is JSON encoded. It returns the response
	// body, which is nil for 204 No Content.
	Invoke(ctx context.Context, method, relativePath string, query map[string]string, body any) ([]byte, error)
}

var _ Invoker = &HTTPClient{}
