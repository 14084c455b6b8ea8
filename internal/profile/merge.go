package profile

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhir"
)

// Apply returns a copy of base constrained by the differential of sd. base
// is never modified. A profile without differential elements yields a plain
// copy; otherwise the copy's description is set to the profile URL.
func Apply(base Fragment, sd *fhir.StructureDefinition, log zerolog.Logger) Fragment {
	schema := Clone(base)
	if schema == nil {
		schema = Fragment{}
	}
	if sd == nil || sd.Differential == nil || len(sd.Differential.Element) == 0 {
		return schema
	}

	schema["description"] = sd.URL
	for _, el := range sd.Differential.Element {
		if el.IsSlice() {
			log.Debug().Str("profile", sd.URL).Str("element", el.ID).Msg("ignoring element slice")
			continue
		}
		applyElement(schema, sd.Type, el)
	}
	return schema
}

// elementSegments splits an element path into property segments relative to
// the resource type. The root element yields no segments.
func elementSegments(resourceType, path string) []string {
	rel := path
	if resourceType != "" {
		if path == resourceType {
			return nil
		}
		rel = strings.TrimPrefix(path, resourceType+".")
	} else if i := strings.IndexByte(path, '.'); i >= 0 {
		rel = path[i+1:]
	} else {
		return nil
	}
	return strings.Split(rel, ".")
}

func applyElement(schema Fragment, resourceType string, el fhir.ElementDefinition) {
	segments := elementSegments(resourceType, el.Path)
	if len(segments) == 0 {
		return
	}

	c := newCursor(schema, segments)
	c.walk()
	parent, name := c.parent(), c.leaf()

	if el.Max == "0" {
		if props, ok := parent["properties"].(Fragment); ok {
			delete(props, name)
			delete(props, "_"+name)
		}
		removeRequired(parent, name, "_"+name)
		return
	}

	if el.Min > 0 {
		addRequired(parent, name)
		if prop := property(parent, name); isArray(prop) {
			prop["minItems"] = el.Min
		}
	}
	if el.Max != "" && el.Max != "*" {
		if n, err := strconv.Atoi(el.Max); err == nil {
			if prop := property(parent, name); isArray(prop) {
				prop["maxItems"] = n
			}
		}
	}

	if pattern := patternSchema(el); pattern != nil {
		// repeating elements keep their array bounds; the pattern applies per item
		if prop := property(parent, name); isArray(prop) {
			prop["items"] = pattern
		} else {
			ensureProperties(parent)[name] = pattern
		}
		addRequired(parent, name)
	}
}

// patternSchema returns the fixed-value schema implied by the element's
// pattern[x], or nil when it has none.
func patternSchema(el fhir.ElementDefinition) Fragment {
	switch {
	case el.PatternBoolean != nil:
		return Fragment{"type": "boolean", "enum": []any{*el.PatternBoolean}}
	case el.PatternCode != nil:
		return Fragment{"type": "string", "enum": []any{*el.PatternCode}}
	case el.PatternCodeableConcept != nil && len(el.PatternCodeableConcept.Coding) > 0:
		coding := el.PatternCodeableConcept.Coding[0]
		return Fragment{
			"type": "object",
			"properties": Fragment{
				"coding": Fragment{
					"type": "array",
					"items": Fragment{
						"type": "object",
						"properties": Fragment{
							"system": Fragment{"type": "string", "enum": []any{coding.System}},
							"code":   Fragment{"type": "string", "enum": []any{coding.Code}},
						},
						"required": []any{"system", "code"},
					},
				},
			},
			"required": []any{"coding"},
		}
	}
	return nil
}
