// Package blob downloads stored objects, such as generated exercise code
// archives, by key.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when no object exists for a key.
var ErrNotFound = errors.New("blob not found")

// Fetcher downloads the bytes stored under a key.
type Fetcher interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// DefaultMaxSize bounds a single download.
const DefaultMaxSize = 64 << 20

// HTTPFetcher downloads objects from a public blob store at BaseURL/key.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
	maxSize int64
}

// NewHTTPFetcher returns a fetcher rooted at baseURL. A zero timeout
// defaults to 60s.
func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &HTTPFetcher{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		maxSize: DefaultMaxSize,
	}
}

// WithClient replaces the HTTP client. Used in tests.
func (f *HTTPFetcher) WithClient(c *http.Client) *HTTPFetcher {
	f.client = c
	return f
}

// Download fetches the object stored under key.
func (f *HTTPFetcher) Download(ctx context.Context, key string) ([]byte, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return nil, errors.New("empty blob key")
	}

	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	u := f.baseURL + "/" + strings.Join(segments, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("download %s: %w", key, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("download %s: blob store returned HTTP %d", key, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("download %s: object exceeds %d bytes", key, f.maxSize)
	}
	return data, nil
}

// Memory is an in-memory Fetcher for tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory returns an empty in-memory fetcher.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put stores data under key.
func (m *Memory) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
}

// Download implements Fetcher.
func (m *Memory) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("download %s: %w", key, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}
