// Package parser loads and validates emitted OpenAPI documents.
package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// ParseOptions control loading.
type ParseOptions struct {
	SkipValidation bool
	// Client fetches documents given by URL. Defaults to a 30s timeout client.
	Client *http.Client
}

// Parse loads an OpenAPI document from a file or URL and validates it.
func Parse(ctx context.Context, source string, opts *ParseOptions) (*openapi3.T, error) {
	if opts == nil {
		opts = &ParseOptions{}
	}

	var data []byte
	var err error
	if isURL(source) {
		data, err = fetch(ctx, opts.Client, source)
	} else {
		data, err = readFile(source)
	}
	if err != nil {
		return nil, err
	}
	return ParseData(ctx, data, opts)
}

// ParseData loads a document from JSON or YAML bytes. External references,
// such as base resource schemas, are resolved over the network. Examples
// are not validated against their schemas here.
func ParseData(ctx context.Context, data []byte, opts *ParseOptions) (*openapi3.T, error) {
	if opts == nil {
		opts = &ParseOptions{}
	}

	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document: %w", err)
	}

	if !opts.SkipValidation {
		if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
			return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
		}
	}
	return doc, nil
}

func fetch(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}

func readFile(path string) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported file format: %s (expected .json, .yaml, or .yml)", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Summarize lists the endpoints, tags and security schemes of doc.
// Endpoints are ordered by path, then by method.
func Summarize(doc *openapi3.T) *Summary {
	s := &Summary{}
	if doc.Info != nil {
		s.Title = doc.Info.Title
		s.Version = doc.Info.Version
	}
	if len(doc.Servers) > 0 {
		s.BaseURL = doc.Servers[0].URL
	}
	for _, tag := range doc.Tags {
		s.Tags = append(s.Tags, tag.Name)
	}

	if doc.Paths != nil {
		for path, item := range doc.Paths.Map() {
			for method, op := range item.Operations() {
				if op == nil {
					continue
				}
				s.Endpoints = append(s.Endpoints, convertOperation(path, method, op))
			}
		}
	}
	sort.Slice(s.Endpoints, func(i, j int) bool {
		if s.Endpoints[i].Path == s.Endpoints[j].Path {
			return methodOrder(s.Endpoints[i].Method) < methodOrder(s.Endpoints[j].Method)
		}
		return s.Endpoints[i].Path < s.Endpoints[j].Path
	})

	if doc.Components != nil {
		s.Schemas = len(doc.Components.Schemas)
		s.Examples = len(doc.Components.Examples)
		names := make([]string, 0, len(doc.Components.SecuritySchemes))
		for name := range doc.Components.SecuritySchemes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ref := doc.Components.SecuritySchemes[name]
			if ref == nil || ref.Value == nil {
				continue
			}
			s.SecuritySchemes = append(s.SecuritySchemes, convertSecurityScheme(name, ref.Value))
		}
	}
	return s
}

func methodOrder(method string) int {
	order := map[string]int{"GET": 1, "POST": 2, "PUT": 3, "PATCH": 4, "DELETE": 5}
	if o, ok := order[method]; ok {
		return o
	}
	return 99
}

func convertOperation(path, method string, op *openapi3.Operation) Endpoint {
	endpoint := Endpoint{
		Method:      method,
		Path:        path,
		OperationID: op.OperationID,
		Tags:        op.Tags,
	}
	if op.Security == nil {
		return endpoint
	}

	seen := make(map[string]bool)
	for _, req := range *op.Security {
		for _, scopes := range req {
			for _, scope := range scopes {
				if !seen[scope] {
					seen[scope] = true
					endpoint.Scopes = append(endpoint.Scopes, scope)
				}
			}
		}
	}
	sort.Strings(endpoint.Scopes)
	return endpoint
}

func convertSecurityScheme(name string, scheme *openapi3.SecurityScheme) SecurityScheme {
	ss := SecurityScheme{Name: name, Type: scheme.Type}
	if scheme.Flows == nil {
		return ss
	}
	if scheme.Flows.ClientCredentials != nil {
		ss.Flows = append(ss.Flows, "clientCredentials")
	}
	if scheme.Flows.AuthorizationCode != nil {
		ss.Flows = append(ss.Flows, "authorizationCode")
	}
	return ss
}
