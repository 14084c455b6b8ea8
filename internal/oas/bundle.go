package oas

import (
	"github.com/getkin/kin-openapi/openapi3"
)

func describedString(description string, enum ...any) *openapi3.Schema {
	s := openapi3.NewStringSchema()
	s.Description = description
	if len(enum) > 0 {
		s.Enum = enum
	}
	return s
}

func describedObject(description string) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	s.Description = description
	return s
}

func resourceTypeProperty(resourceType string) *openapi3.Schema {
	return describedString("Resource type must be a "+resourceType+".", resourceType)
}

// bundleRequestSchema describes a batch or transaction Bundle whose type is
// one of the declared system interaction codes.
func bundleRequestSchema(codes []string) *openapi3.Schema {
	request := describedObject("The request to perform for this entry.").
		WithProperty("method", describedString("The HTTP method used for the request.", "GET", "POST", "PUT", "DELETE")).
		WithProperty("url", describedString("The URL for the request."))

	entry := openapi3.NewObjectSchema().
		WithProperty("resource", describedObject("A resource in the bundle.")).
		WithProperty("request", request)

	entries := openapi3.NewArraySchema().WithItems(entry)
	entries.Description = "Entries in the bundle representing resources involved in the interaction."

	return openapi3.NewObjectSchema().
		WithProperty("resourceType", resourceTypeProperty("Bundle")).
		WithProperty("type", describedString("The type of bundle (e.g. transaction or batch).", toAny(codes)...)).
		WithProperty("entry", entries)
}

// bundleResponseSchema describes a response Bundle. Entry resources are an
// anyOf over profileRefs when any are given.
func bundleResponseSchema(types []string, profileRefs openapi3.SchemaRefs) *openapi3.Schema {
	resource := describedObject("A resource in the bundle.")
	if len(profileRefs) > 0 {
		resource.AnyOf = profileRefs
	}

	entry := openapi3.NewObjectSchema().
		WithProperty("resource", resource).
		WithProperty("fullUrl", describedString("The full url of the resource"))

	entries := openapi3.NewArraySchema().WithItems(entry)
	entries.Description = "Entries in the bundle representing resources involved in the interaction."

	return openapi3.NewObjectSchema().
		WithProperty("resourceType", resourceTypeProperty("Bundle")).
		WithProperty("type", describedString("The type of response (e.g. searchset or transaction-response).", toAny(types)...)).
		WithProperty("entry", entries)
}

// responseTypes maps interaction codes onto their response Bundle types.
func responseTypes(codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = c + "-response"
	}
	return out
}

// parametersSchema describes the Parameters resource posted to operations.
func parametersSchema() *openapi3.Schema {
	yes := true
	item := openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("valueString", openapi3.NewStringSchema())
	item.Required = []string{"name"}
	item.AdditionalProperties = openapi3.AdditionalProperties{Has: &yes}

	s := openapi3.NewObjectSchema().
		WithProperty("resourceType", openapi3.NewStringSchema().WithEnum("Parameters")).
		WithProperty("parameter", openapi3.NewArraySchema().WithItems(item))
	s.Required = []string{"resourceType", "parameter"}
	return s
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
