package oas

import (
	"sort"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// PathMap accumulates operations per path template. Adding a method that is
// already present at a template leaves the existing operation in place.
type PathMap struct {
	mu    sync.Mutex
	items map[string]*openapi3.PathItem
}

func NewPathMap() *PathMap {
	return &PathMap{items: make(map[string]*openapi3.PathItem)}
}

// Add inserts op at template under method and reports whether it was added.
func (m *PathMap) Add(template, method string, op *openapi3.Operation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[template]
	if !ok {
		item = &openapi3.PathItem{}
		m.items[template] = item
	}
	if item.GetOperation(method) != nil {
		return false
	}
	item.SetOperation(method, op)
	return true
}

// Operation returns the operation at template and method, or nil.
func (m *PathMap) Operation(template, method string) *openapi3.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[template]; ok {
		return item.GetOperation(method)
	}
	return nil
}

// Templates returns the path templates in sorted order.
func (m *PathMap) Templates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.items))
	for t := range m.items {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Paths converts the map into an OpenAPI paths object.
func (m *PathMap) Paths() *openapi3.Paths {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := openapi3.NewPaths()
	for t, item := range m.items {
		paths.Set(t, item)
	}
	return paths
}
