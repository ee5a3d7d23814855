package httpauth

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"strings"
)

// HeaderAuth sets fixed headers, an API key or a bearer token, on each manifest request.
type HeaderAuth struct {
	Headers map[string]string
}

// NewHeaderAuth copies headers with their names canonicalized. Entries with an empty
// name are dropped; later changes to the caller's map are not seen.
func NewHeaderAuth(headers map[string]string) *HeaderAuth {
	h := &HeaderAuth{Headers: make(map[string]string, len(headers))}
	for name, value := range headers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		h.Headers[http.CanonicalHeaderKey(name)] = value
	}
	return h
}

// NewBearerAuth sends token in the Authorization header. An empty token sends nothing.
func NewBearerAuth(token string) *HeaderAuth {
	if token == "" {
		return NewHeaderAuth(nil)
	}
	return NewHeaderAuth(map[string]string{"Authorization": "Bearer " + token})
}

func (h *HeaderAuth) Authenticate(req *http.Request) error {
	for name, value := range h.Headers {
		req.Header.Set(name, value)
	}
	return nil
}

func (h *HeaderAuth) AuthenticateWithContext(ctx context.Context, req *http.Request) error {
	return applyAuthWithContext(ctx, req, h.Authenticate)
}

func (h *HeaderAuth) Name() string {
	return "Header"
}

// String lists the header names only; values are secrets.
func (h *HeaderAuth) String() string {
	names := slices.Sorted(maps.Keys(h.Headers))
	return h.Name() + "(" + strings.Join(names, ", ") + ")"
}
