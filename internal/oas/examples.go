package oas

import (
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhir"
	"github.com/tewhatuora/fhir-openapi-converter/internal/profile"
)

// Examples holds example instances keyed by their first meta.profile.
type Examples map[string][]fhir.ResourceInstance

// ExampleRefPrefix prefixes references into components.examples.
const ExampleRefPrefix = "#/components/examples/"

// exampleSet is the set of examples matching the profiles of one resource.
type exampleSet struct {
	refs      openapi3.Examples
	instances map[string]fhir.ResourceInstance
}

func (e exampleSet) empty() bool {
	return len(e.refs) == 0
}

// matchExamples collects the examples declared against any of schemas.
func matchExamples(examples Examples, schemas []profile.ProfileSchema) exampleSet {
	set := exampleSet{
		refs:      openapi3.Examples{},
		instances: make(map[string]fhir.ResourceInstance),
	}
	for _, ps := range schemas {
		for _, ex := range examples[ps.URL] {
			key := ex.Key()
			set.refs[key] = &openapi3.ExampleRef{Ref: ExampleRefPrefix + key}
			set.instances[key] = ex
		}
	}
	return set
}

// searchsetExample wraps every example of resourceType into one searchset
// Bundle, or returns nil when there are none.
func searchsetExample(examples Examples, resourceType, serverURL string) openapi3.Examples {
	urls := make([]string, 0, len(examples))
	for url := range examples {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	var entries []any
	for _, url := range urls {
		for _, ex := range examples[url] {
			if ex.ResourceType() != resourceType {
				continue
			}
			entries = append(entries, map[string]any{
				"fullUrl":  serverURL + "/" + ex.ResourceType() + "/" + ex.ID(),
				"resource": map[string]any(ex),
				"search":   map[string]any{"mode": "match"},
			})
		}
	}
	if len(entries) == 0 {
		return nil
	}
	return openapi3.Examples{
		"searchset-example": &openapi3.ExampleRef{Value: openapi3.NewExample(map[string]any{
			"resourceType": "Bundle",
			"type":         "searchset",
			"entry":        entries,
		})},
	}
}
