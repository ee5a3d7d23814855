package loader

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/robbyt/go-polyexpr/platform/manifest/loader/httpauth"
)

const userAgent = "go-polyexpr/http-loader"

// HTTPOptions configures FromHTTP. Start from DefaultHTTPOptions and chain the With
// methods:
//
//	opts := loader.DefaultHTTPOptions().WithBearerAuth(token).WithTimeout(10 * time.Second)
type HTTPOptions struct {
	// Timeout bounds the whole request, including reading the body.
	Timeout time.Duration

	TLSConfig *tls.Config

	// InsecureSkipVerify disables certificate checks. Tests only.
	InsecureSkipVerify bool

	// Authenticator adds credentials; nil sends none.
	Authenticator httpauth.Authenticator

	// Headers are sent with every request, after authentication.
	Headers map[string]string
}

func DefaultHTTPOptions() *HTTPOptions {
	return &HTTPOptions{
		Timeout:       30 * time.Second,
		Authenticator: httpauth.NewNoAuth(),
		Headers:       make(map[string]string),
	}
}

func (o *HTTPOptions) WithTimeout(d time.Duration) *HTTPOptions {
	o.Timeout = d
	return o
}

func (o *HTTPOptions) WithBasicAuth(username, password string) *HTTPOptions {
	o.Authenticator = httpauth.NewBasicAuth(username, password)
	return o
}

func (o *HTTPOptions) WithBearerAuth(token string) *HTTPOptions {
	o.Authenticator = httpauth.NewBearerAuth(token)
	return o
}

func (o *HTTPOptions) WithHeaderAuth(headers map[string]string) *HTTPOptions {
	o.Authenticator = httpauth.NewHeaderAuth(headers)
	return o
}

type httpRequester interface {
	Do(req *http.Request) (*http.Response, error)
}

// FromHTTP downloads a manifest over http or https.
type FromHTTP struct {
	url       string
	sourceURL *url.URL
	options   *HTTPOptions
	client    httpRequester
}

func NewFromHTTP(rawURL string) (*FromHTTP, error) {
	return NewFromHTTPWithOptions(rawURL, DefaultHTTPOptions())
}

func NewFromHTTPWithOptions(rawURL string, options *HTTPOptions) (*FromHTTP, error) {
	sourceURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse URL: %w", err)
	}
	if sourceURL.Scheme != "http" && sourceURL.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s", ErrSchemeUnsupported, rawURL)
	}
	if sourceURL.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %s", ErrNotAvailable, rawURL)
	}
	if options == nil {
		options = DefaultHTTPOptions()
	}
	if options.Authenticator == nil {
		options.Authenticator = httpauth.NewNoAuth()
	}

	client := &http.Client{Timeout: options.Timeout}
	if options.InsecureSkipVerify || options.TLSConfig != nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if options.TLSConfig != nil {
			transport.TLSClientConfig = options.TLSConfig
		} else {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		}
		client.Transport = transport
	}

	return &FromHTTP{
		url:       rawURL,
		sourceURL: sourceURL,
		options:   options,
		client:    client,
	}, nil
}

// GetReader issues the request. The caller closes the body.
func (l *FromHTTP) GetReader(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if err := l.options.Authenticator.AuthenticateWithContext(ctx, req); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	for key, value := range l.options.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: HTTP %d - %s", ErrNotAvailable, resp.StatusCode, resp.Status)
	}
	return resp.Body, nil
}

func (l *FromHTTP) GetSourceURL() *url.URL {
	return l.sourceURL
}

// String does not fetch the document.
func (l *FromHTTP) String() string {
	return fmt.Sprintf("loader.FromHTTP{URL: %s, Auth: %s}", l.url, httpauth.Describe(l.options.Authenticator))
}
