package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mohae/deepcopy"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhirerr"
	"golang.org/x/sync/singleflight"
)

// Fragment is a JSON-Schema fragment as decoded from JSON.
type Fragment = map[string]any

// Source returns the base schema of a resource type. Implementations must
// hand out a value the caller is free to mutate.
type Source interface {
	BaseSchema(ctx context.Context, resourceType string) (Fragment, error)
}

// Clone deep-copies a fragment.
func Clone(f Fragment) Fragment {
	if f == nil {
		return nil
	}
	return deepcopy.Copy(f).(Fragment)
}

// SchemaFileName is the file name of a resource type's base schema.
func SchemaFileName(resourceType string) string {
	return resourceType + "-definition.json"
}

// HTTPSource fetches base schemas from a remote directory listing
// {BaseURL}{Type}-definition.json.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSource creates a source with a 30 second client timeout.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// SchemaURL joins a schema base URL and the base schema file name of
// resourceType.
func SchemaURL(baseURL, resourceType string) string {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL + SchemaFileName(resourceType)
}

// URL returns the location of the base schema for resourceType.
func (s *HTTPSource) URL(resourceType string) string {
	return SchemaURL(s.BaseURL, resourceType)
}

func (s *HTTPSource) BaseSchema(ctx context.Context, resourceType string) (Fragment, error) {
	url := s.URL(resourceType)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &fhirerr.FetchError{ResourceType: resourceType, URL: url, Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, &fhirerr.FetchError{ResourceType: resourceType, URL: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &fhirerr.FetchError{ResourceType: resourceType, URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &fhirerr.FetchError{ResourceType: resourceType, URL: url, Cause: err}
	}
	return decodeFragment(resourceType, url, data)
}

// DirSource reads base schemas from a local directory.
type DirSource struct {
	Dir string
}

func (s *DirSource) BaseSchema(_ context.Context, resourceType string) (Fragment, error) {
	path := filepath.Join(s.Dir, SchemaFileName(resourceType))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &fhirerr.FetchError{ResourceType: resourceType, URL: path, Cause: err}
	}
	return decodeFragment(resourceType, path, data)
}

// MapSource serves base schemas from memory.
type MapSource map[string]Fragment

var errNoSchema = errors.New("no base schema registered")

func (m MapSource) BaseSchema(_ context.Context, resourceType string) (Fragment, error) {
	f, ok := m[resourceType]
	if !ok {
		return nil, &fhirerr.FetchError{ResourceType: resourceType, Cause: errNoSchema}
	}
	return Clone(f), nil
}

// CachedSource memoizes another source. Concurrent lookups of the same
// resource type share one upstream request. Failures are not cached.
type CachedSource struct {
	next  Source
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]Fragment
}

func NewCachedSource(next Source) *CachedSource {
	return &CachedSource{next: next, cache: make(map[string]Fragment)}
}

func (s *CachedSource) BaseSchema(ctx context.Context, resourceType string) (Fragment, error) {
	s.mu.RLock()
	f, ok := s.cache[resourceType]
	s.mu.RUnlock()
	if ok {
		return Clone(f), nil
	}

	v, err, _ := s.group.Do(resourceType, func() (any, error) {
		f, err := s.next.BaseSchema(ctx, resourceType)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[resourceType] = f
		s.mu.Unlock()
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return Clone(v.(Fragment)), nil
}

func decodeFragment(resourceType, location string, data []byte) (Fragment, error) {
	var f Fragment
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &fhirerr.FetchError{
			ResourceType: resourceType,
			URL:          location,
			Cause:        fmt.Errorf("decode schema: %w", err),
		}
	}
	if f == nil {
		return nil, &fhirerr.FetchError{ResourceType: resourceType, URL: location, Cause: errors.New("empty schema")}
	}
	return f, nil
}
