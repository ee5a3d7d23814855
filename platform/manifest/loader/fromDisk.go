package loader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/robbyt/go-polyexpr/internal/helpers"
)

type FromDisk struct {
	path      string
	sourceURL *url.URL
}

// NewFromDisk accepts an absolute path, with or without a file:// prefix.
func NewFromDisk(path string) (*FromDisk, error) {
	path = strings.TrimPrefix(path, "file://")

	if strings.Contains(path, "://") {
		return nil, fmt.Errorf("%w: %s", ErrSchemeUnsupported, path)
	}
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: relative paths are not supported", ErrNotAvailable)
	}

	path = filepath.Clean(path)
	if path == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: path is empty or invalid", ErrNotAvailable)
	}

	return &FromDisk{
		path:      path,
		sourceURL: &url.URL{Scheme: "file", Path: path},
	}, nil
}

func (l *FromDisk) String() string {
	noChkSum := fmt.Sprintf("loader.FromDisk{Path: %s}", l.path)

	f, err := os.Open(l.path)
	if err != nil {
		return noChkSum
	}
	defer func() { _ = f.Close() }()

	chksum, err := helpers.SHA256Reader(f)
	if err != nil {
		return noChkSum
	}
	return fmt.Sprintf("loader.FromDisk{Path: %s, SHA256: %s}", l.path, chksum[:8])
}

func (l *FromDisk) GetReader(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAvailable, err)
	}
	return f, nil
}

func (l *FromDisk) GetSourceURL() *url.URL {
	return l.sourceURL
}
