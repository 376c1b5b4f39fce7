// Package auth provides the Authenticator contract used by turbo routes to
// gate access to a handler.
package auth

import "net/http"

// Authenticator wraps a handler with an authentication check. Apply returns a
// handler that performs the check and, on success, delegates to next.
type Authenticator interface {
	Apply(next http.Handler) http.Handler
}
