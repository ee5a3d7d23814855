// Package httpauth applies credentials to manifest downloads.
package httpauth

import (
	"context"
	"fmt"
	"net/http"
)

// Authenticator adds credentials to an outgoing request in place.
type Authenticator interface {
	Authenticate(req *http.Request) error

	// AuthenticateWithContext fails without touching req when ctx is already done.
	AuthenticateWithContext(ctx context.Context, req *http.Request) error

	Name() string
}

// Describe returns a loggable form of a. Authenticators that implement fmt.Stringer
// are expected to keep secrets out of it.
func Describe(a Authenticator) string {
	if a == nil {
		return NewNoAuth().Name()
	}
	if s, ok := a.(fmt.Stringer); ok {
		return s.String()
	}
	return a.Name()
}

func applyAuthWithContext(
	ctx context.Context,
	req *http.Request,
	authFn func(*http.Request) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return authFn(req)
}
