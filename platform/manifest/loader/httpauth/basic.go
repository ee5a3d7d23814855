package httpauth

import (
	"context"
	"fmt"
	"net/http"
)

// BasicAuth sends RFC 7617 credentials with each manifest request.
type BasicAuth struct {
	Username string
	Password string
}

// NewBasicAuth creates a BasicAuth. With an empty username the manifest is fetched
// anonymously.
func NewBasicAuth(username, password string) *BasicAuth {
	return &BasicAuth{Username: username, Password: password}
}

// Authenticate sets the Authorization header on req.
func (b *BasicAuth) Authenticate(req *http.Request) error {
	if b.Username == "" {
		return nil
	}
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

func (b *BasicAuth) AuthenticateWithContext(ctx context.Context, req *http.Request) error {
	return applyAuthWithContext(ctx, req, b.Authenticate)
}

func (b *BasicAuth) Name() string {
	return "Basic"
}

// String names the user but never the password, so loaders can log it.
func (b *BasicAuth) String() string {
	if b.Username == "" {
		return b.Name() + "(anonymous)"
	}
	return fmt.Sprintf("%s(%s)", b.Name(), b.Username)
}
