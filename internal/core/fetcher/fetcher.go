// Package fetcher retrieves the raw bytes of an uploaded source file, either
// over HTTP(S) or straight from the object store, enforcing a byte cap.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	objectclient "github.com/MayukhDg/BidWinnerAI-prod/internal/core/object-client"
)

const DefaultMaxBytes int64 = 5 << 20

// HTTPFetcher downloads source files from plain or pre-signed URLs.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

var _ core.Fetcher = (*HTTPFetcher)(nil)

func NewHTTPFetcher(client *http.Client, maxBytes int64) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPFetcher{client: client, maxBytes: maxBytes}
}

// Fetch checks the advertised size with HEAD first, then streams the body
// through a limit so an unadvertised oversize file is still rejected.
// A failing HEAD is ignored; some pre-signed URLs only allow GET.
func (f *HTTPFetcher) Fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	if size, ok := f.head(ctx, sourceURL); ok && size > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", core.ErrFileTooLarge, size, f.maxBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", core.ErrFetchFailed, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: GET returned %s", core.ErrFetchFailed, resp.Status)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", core.ErrFileTooLarge, resp.ContentLength, f.maxBytes)
	}

	return readCapped(resp.Body, f.maxBytes)
}

func (f *HTTPFetcher) head(ctx context.Context, sourceURL string) (int64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, sourceURL, nil)
	if err != nil {
		return 0, false
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, false
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.ContentLength < 0 {
		return 0, false
	}
	return resp.ContentLength, true
}

func readCapped(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", core.ErrFetchFailed, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", core.ErrFileTooLarge, maxBytes)
	}
	return data, nil
}

// S3Fetcher reads s3:// and virtual-hosted S3 URLs through the object client.
type S3Fetcher struct {
	objects  core.ObjectClient
	maxBytes int64
}

var _ core.Fetcher = (*S3Fetcher)(nil)

func NewS3Fetcher(objects core.ObjectClient, maxBytes int64) *S3Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &S3Fetcher{objects: objects, maxBytes: maxBytes}
}

func (f *S3Fetcher) Fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	bucket, key, ok := objectclient.ParseS3URL(sourceURL)
	if !ok {
		return nil, fmt.Errorf("%w: not an S3 URL: %q", core.ErrFetchFailed, sourceURL)
	}

	size, err := f.objects.ObjectSize(ctx, bucket, key)
	if err != nil {
		return nil, fetchErr(err)
	}
	if size > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", core.ErrFileTooLarge, size, f.maxBytes)
	}

	data, err := f.objects.GetFile(ctx, bucket, key)
	if err != nil {
		return nil, fetchErr(err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", core.ErrFileTooLarge, len(data), f.maxBytes)
	}
	return data, nil
}

// fetchErr keeps a missing object terminal and everything else retryable.
func fetchErr(err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("source object: %w", err)
	}
	return fmt.Errorf("%w: %w", core.ErrFetchFailed, err)
}

// Router sends S3 URLs to the object store when one is configured and
// everything else over HTTP.
type Router struct {
	s3   core.Fetcher
	http core.Fetcher
}

var _ core.Fetcher = (*Router)(nil)

// NewRouter accepts a nil s3 fetcher, in which case all URLs go over HTTP.
func NewRouter(s3 core.Fetcher, http core.Fetcher) *Router {
	return &Router{s3: s3, http: http}
}

func (r *Router) Fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	if r.s3 != nil {
		if _, _, ok := objectclient.ParseS3URL(sourceURL); ok {
			return r.s3.Fetch(ctx, sourceURL)
		}
	}
	return r.http.Fetch(ctx, sourceURL)
}
