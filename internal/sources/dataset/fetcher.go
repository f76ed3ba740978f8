// Package dataset fetches bulk mapping documents and serves external id-mapping lookups.
package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
	"github.com/shirosync/shirosync-server/internal/sources"
)

// Dataset documents are large; downloads get a longer budget than API calls.
const downloadTimeout = 5 * time.Minute

// HTTPFetcher downloads a dataset document.
type HTTPFetcher struct {
	URL    string
	Client *http.Client
}

// NewHTTPFetcher creates a fetcher for url.
func NewHTTPFetcher(url string) *HTTPFetcher {
	return &HTTPFetcher{URL: url, Client: &http.Client{Timeout: downloadTimeout}}
}

// Fetch opens the document. The caller closes the body.
func (f *HTTPFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, domainerrors.FromTransport(err, "download dataset")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, sources.StatusError("dataset", resp.StatusCode, body)
	}
	return resp.Body, nil
}

// FileFetcher reads a dataset document from disk.
type FileFetcher struct {
	Path string
}

// Fetch opens the file.
func (f FileFetcher) Fetch(context.Context) (io.ReadCloser, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domainerrors.NotFoundf("dataset file %s not found", f.Path)
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	return file, nil
}
