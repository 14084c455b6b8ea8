package oas

import (
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/tewhatuora/fhir-openapi-converter/internal/profile"
)

// content replicates one schema and its examples under every media type.
func (s *Synthesizer) content(schema *openapi3.SchemaRef, examples openapi3.Examples) openapi3.Content {
	c := make(openapi3.Content, len(s.opts.ContentTypes))
	for _, mt := range s.opts.ContentTypes {
		media := &openapi3.MediaType{Schema: schema}
		if len(examples) > 0 {
			media.Examples = examples
		}
		c[mt] = media
	}
	return c
}

// baseSchemaRef references the base schema of resourceType at the
// configured schema location.
func (s *Synthesizer) baseSchemaRef(resourceType string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef(profile.SchemaURL(s.opts.SchemaBaseURL, resourceType), nil)
}

func response(description string, content openapi3.Content) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{Value: openapi3.NewResponse().
		WithDescription(description).
		WithContent(content)}
}

// responses combines the default error responses of interaction with the
// given success responses. A success status overrides a default one.
func (s *Synthesizer) responses(interaction string, success map[int]*openapi3.ResponseRef) *openapi3.Responses {
	out := openapi3.NewResponsesWithCapacity(len(s.opts.DefaultResponseCodes) + len(success))
	outcome := s.baseSchemaRef("OperationOutcome")
	for _, code := range s.opts.DefaultResponseCodes {
		out.Set(strconv.Itoa(code), response(
			"Unsuccessful "+interaction+" operation - "+strconv.Itoa(code),
			s.content(outcome, nil),
		))
	}
	for code, resp := range success {
		out.Set(strconv.Itoa(code), resp)
	}
	return out
}

// resourceResponses builds the responses of a CRUD interaction.
func (s *Synthesizer) resourceResponses(interaction, resourceType string, refs openapi3.SchemaRefs, examples exampleSet) *openapi3.Responses {
	description := "Successful " + interaction + " operation"

	var success map[int]*openapi3.ResponseRef
	switch interaction {
	case "delete":
		success = map[int]*openapi3.ResponseRef{
			200: response(description, s.content(s.baseSchemaRef("OperationOutcome"), nil)),
		}
	case "search":
		var ex openapi3.Examples
		if !examples.empty() {
			ex = searchsetExample(s.examples, resourceType, s.opts.ServerURL)
		}
		bundle := bundleResponseSchema([]string{"searchset"}, refs)
		success = map[int]*openapi3.ResponseRef{
			200: response(description, s.content(bundle.NewRef(), ex)),
		}
	default:
		code := 200
		if interaction == "create" {
			code = 201
		}
		schema := &openapi3.Schema{AnyOf: refs}
		success = map[int]*openapi3.ResponseRef{
			code: response(description, s.content(schema.NewRef(), examples.refs)),
		}
	}
	return s.responses(interaction, success)
}

// requestBody builds the body of create, update and patch: any of the
// resource's profile schemas.
func (s *Synthesizer) requestBody(resourceType string, refs openapi3.SchemaRefs, examples exampleSet) *openapi3.RequestBodyRef {
	schema := &openapi3.Schema{AnyOf: refs}
	return &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
		WithDescription(resourceType + " to create").
		WithRequired(true).
		WithContent(s.content(schema.NewRef(), examples.refs))}
}

// profileRefs references the component schema of every profile.
func profileRefs(schemas []profile.ProfileSchema) openapi3.SchemaRefs {
	refs := make(openapi3.SchemaRefs, 0, len(schemas))
	for _, ps := range schemas {
		refs = append(refs, openapi3.NewSchemaRef(ps.Ref(), nil))
	}
	return refs
}
