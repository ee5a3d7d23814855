package httpauth

import (
	"context"
	"net/http"
)

// NoAuth fetches manifests anonymously. FromHTTP falls back to it when no
// authenticator is configured.
type NoAuth struct{}

// NewNoAuth returns the anonymous authenticator.
func NewNoAuth() *NoAuth {
	return &NoAuth{}
}

// Authenticate leaves the manifest request as it is.
func (n *NoAuth) Authenticate(*http.Request) error {
	return nil
}

// AuthenticateWithContext only reports a context that is already done.
func (n *NoAuth) AuthenticateWithContext(ctx context.Context, req *http.Request) error {
	return applyAuthWithContext(ctx, req, n.Authenticate)
}

func (n *NoAuth) Name() string {
	return "None"
}

func (n *NoAuth) String() string {
	return n.Name()
}
