// Package loader fetches manifest documents from disk, memory, a reader or HTTP.
// Every Loader satisfies manifest.Source.
package loader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

type Loader interface {
	GetReader(ctx context.Context) (io.ReadCloser, error)
	GetSourceURL() *url.URL
	String() string
}

// New picks a loader by the shape of location: "-" is standard input, http and https
// URLs are fetched, anything else is a file path relative to the working directory.
func New(location string, httpOptions *HTTPOptions) (Loader, error) {
	switch {
	case location == "-":
		return NewFromIoReader(os.Stdin, "stdin")
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		if httpOptions == nil {
			httpOptions = DefaultHTTPOptions()
		}
		return NewFromHTTPWithOptions(location, httpOptions)
	case strings.Contains(location, "://") && !strings.HasPrefix(location, "file://"):
		return nil, fmt.Errorf("%w: %s", ErrSchemeUnsupported, location)
	default:
		path := strings.TrimPrefix(location, "file://")
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotAvailable, err)
		}
		return NewFromDisk(abs)
	}
}
