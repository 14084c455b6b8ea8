// Package dedupe hoists structurally identical top-level schema properties
// into shared component schemas.
package dedupe

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/rs/zerolog"
)

const (
	refPrefix = "#/components/schemas/"
	hashLen   = 16
)

// Report summarizes one deduplication pass.
type Report struct {
	// Shared is the number of component schemas introduced.
	Shared int
	// Replaced is the number of properties rewritten to a reference.
	Replaced int
}

type occurrence struct {
	schema   string
	property string
}

// Schemas replaces every top-level property whose schema content occurs
// more than once across schemas with a reference to one shared component
// named {property}-{hash}. Properties that already are references and the
// shared components themselves are left alone, so running it again changes
// nothing.
func Schemas(schemas openapi3.Schemas, log zerolog.Logger) (Report, error) {
	var report Report

	names := make([]string, 0, len(schemas))
	for name, ref := range schemas {
		if ref == nil || ref.Value == nil || isShared(name, ref) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	counts := make(map[string]int)
	first := make(map[string]occurrence)
	hashes := make(map[occurrence]string)
	for _, name := range names {
		schema := schemas[name].Value
		for _, prop := range sortedProperties(schema) {
			propRef := schema.Properties[prop]
			if propRef == nil || propRef.Ref != "" {
				continue
			}
			hash, err := contentHash(propRef)
			if err != nil {
				return report, fmt.Errorf("hash %s.%s: %w", name, prop, err)
			}
			at := occurrence{schema: name, property: prop}
			hashes[at] = hash
			if counts[hash] == 0 {
				first[hash] = at
			}
			counts[hash]++
		}
	}

	shared := make(map[string]string)
	for _, name := range names {
		schema := schemas[name].Value
		for _, prop := range sortedProperties(schema) {
			hash, ok := hashes[occurrence{schema: name, property: prop}]
			if !ok || counts[hash] < 2 {
				continue
			}
			target, ok := shared[hash]
			if !ok {
				origin := first[hash]
				target = origin.property + "-" + hash
				if _, exists := schemas[target]; !exists {
					value := *schemas[origin.schema].Value.Properties[origin.property].Value
					schemas[target] = openapi3.NewSchemaRef("", &value)
					report.Shared++
				}
				shared[hash] = target
			}
			schema.Properties[prop] = openapi3.NewSchemaRef(refPrefix+target, nil)
			report.Replaced++
		}
	}

	log.Debug().
		Int("shared", report.Shared).
		Int("replaced", report.Replaced).
		Msg("deduplicated component schemas")
	return report, nil
}

// isShared reports whether name is a component introduced by Schemas: its
// suffix is the content hash of the schema itself.
func isShared(name string, ref *openapi3.SchemaRef) bool {
	i := strings.LastIndexByte(name, '-')
	if i < 0 || len(name)-i-1 != hashLen {
		return false
	}
	hash, err := contentHash(ref)
	return err == nil && hash == name[i+1:]
}

func sortedProperties(s *openapi3.Schema) []string {
	out := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// contentHash hashes the canonical JSON encoding of a property schema.
func contentHash(ref *openapi3.SchemaRef) (string, error) {
	data, err := json.Marshal(ref)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}
