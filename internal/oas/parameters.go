package oas

import (
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/rs/zerolog"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhir"
)

// searchTypeSchemas maps a FHIR search parameter type onto its query schema.
var searchTypeSchemas = map[string]func() *openapi3.Schema{
	"number":    openapi3.NewIntegerSchema,
	"date":      openapi3.NewStringSchema,
	"token":     openapi3.NewStringSchema,
	"reference": openapi3.NewStringSchema,
	"composite": openapi3.NewStringSchema,
	"quantity":  openapi3.NewStringSchema,
	"uri":       openapi3.NewStringSchema,
	"string":    openapi3.NewStringSchema,
	"special":   openapi3.NewStringSchema,
}

// globalHeaderParams renders the headers every operation accepts.
func globalHeaderParams(headers []fhir.GlobalHeader) openapi3.Parameters {
	params := make(openapi3.Parameters, 0, len(headers))
	for _, h := range headers {
		schema := openapi3.NewSchemaRef("", openapi3.NewStringSchema())
		if h.Value != "" {
			schema = openapi3.NewSchemaRef(h.Value, nil)
		}
		params = append(params, &openapi3.ParameterRef{Value: &openapi3.Parameter{
			Name:        h.Name,
			In:          openapi3.ParameterInHeader,
			Description: h.Documentation,
			Required:    h.Required,
			Schema:      schema,
		}})
	}
	return params
}

func pathParam(name, description string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: &openapi3.Parameter{
		Name:        name,
		In:          openapi3.ParameterInPath,
		Description: description,
		Required:    true,
		Schema:      openapi3.NewStringSchema().NewRef(),
	}}
}

// searchParam renders one search parameter as a query parameter. Unknown
// types fall back to a string schema.
func searchParam(sp fhir.SearchParam, log zerolog.Logger) *openapi3.ParameterRef {
	newSchema, ok := searchTypeSchemas[sp.Type]
	if !ok {
		log.Warn().
			Str("param", sp.Name).
			Str("type", sp.Type).
			Msg("unsupported search parameter type, using string")
		newSchema = openapi3.NewStringSchema
	}

	p := &openapi3.Parameter{
		Name:        sp.Name,
		In:          openapi3.ParameterInQuery,
		Description: sp.Documentation,
		Required:    sp.Mandatory(),
		Schema:      newSchema().NewRef(),
	}
	switch sp.Type {
	case "number":
		p.Example = 123456
	case "date":
		explode := true
		p.Style = openapi3.SerializationForm
		p.Explode = &explode
		p.Examples = openapi3.Examples{
			"date": &openapi3.ExampleRef{Value: openapi3.NewExample("2024-12-02")},
		}
	}
	return &openapi3.ParameterRef{Value: p}
}

func searchParams(params []fhir.SearchParam, log zerolog.Logger) openapi3.Parameters {
	out := make(openapi3.Parameters, 0, len(params))
	for _, sp := range params {
		out = append(out, searchParam(sp, log))
	}
	return out
}

// operationQueryParams renders the "in" parameters of a query operation.
func operationQueryParams(od *fhir.OperationDefinition) openapi3.Parameters {
	var out openapi3.Parameters
	for _, p := range od.InParameters() {
		out = append(out, &openapi3.ParameterRef{Value: &openapi3.Parameter{
			Name:        p.Name,
			In:          openapi3.ParameterInQuery,
			Description: p.Documentation,
			Required:    p.Min > 0,
			Schema:      openapi3.NewStringSchema().NewRef(),
		}})
	}
	return out
}

// concatParams joins parameter lists into a fresh slice.
func concatParams(lists ...openapi3.Parameters) openapi3.Parameters {
	var out openapi3.Parameters
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
