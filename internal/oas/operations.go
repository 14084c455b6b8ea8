package oas

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhir"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhirerr"
)

// placement is one path template a custom operation is exposed at.
type placement struct {
	template    string
	operationID string
	instance    bool
}

// placements returns the templates of operation name. An empty resourceType
// places it at the system level. Instance-only definitions live under
// /{Type}/{rid}; definitions allowing both levels get both templates.
func placements(name, resourceType string, od *fhir.OperationDefinition) []placement {
	if resourceType == "" {
		return []placement{{template: "/$" + name, operationID: name}}
	}
	var out []placement
	if od.Type || !od.Instance {
		out = append(out, placement{
			template:    "/" + resourceType + "/$" + name,
			operationID: name + resourceType,
		})
	}
	if od.Instance {
		out = append(out, placement{
			template:    "/" + resourceType + "/{rid}/$" + name,
			operationID: name + resourceType + "Instance",
			instance:    true,
		})
	}
	return out
}

// addCustomOperations resolves and places every custom operation. It
// returns the number of operations added.
func (s *Synthesizer) addCustomOperations(paths *PathMap, resourceType string, ops []fhir.Operation) (int, error) {
	scope := resourceType
	if scope == "" {
		scope = SystemTag
	}

	added := 0
	for _, op := range ops {
		var od *fhir.OperationDefinition
		var ok bool
		if s.defs != nil {
			od, ok = s.defs.OperationDefinition(op.Definition)
		}
		if !ok || od == nil {
			return added, &fhirerr.MissingDefinitionError{
				Kind:    "OperationDefinition",
				URL:     op.Definition,
				Context: scope,
			}
		}

		name := strings.TrimPrefix(op.Name, "$")
		for _, p := range placements(name, resourceType, od) {
			method, operation := s.customOperation(od, scope, p)
			if !paths.Add(p.template, method, operation) {
				s.log.Warn().Str("path", p.template).Str("method", method).Msg("duplicate operation ignored")
				continue
			}
			s.security.RequireDefinition(operation, od.URL)
			added++
		}
	}
	return added, nil
}

// customOperation builds the operation for od. Definitions of kind
// "operation" are POSTed a Parameters resource; queries take their "in"
// parameters on the query string.
func (s *Synthesizer) customOperation(od *fhir.OperationDefinition, scope string, p placement) (string, *openapi3.Operation) {
	summary := od.Name
	if summary == "" {
		summary = "Custom operation " + od.Code
	}
	description := od.Description
	if description == "" {
		description = fmt.Sprintf("Custom operation %s %s", od.Code, scope)
	}

	params := globalHeaderParams(s.opts.GlobalHeaders)
	if p.instance {
		params = append(params, pathParam("rid", pathVarDescriptions["rid"]))
	}

	op := &openapi3.Operation{
		Summary:     summary,
		Description: description,
		Tags:        []string{scope},
		OperationID: p.operationID,
		Responses:   s.operationResponses(od),
	}

	if od.Kind == "operation" {
		op.Parameters = params
		op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
			WithDescription("Parameters for the " + od.Code + " operation").
			WithRequired(true).
			WithContent(s.content(parametersSchema().NewRef(), nil))}
		return http.MethodPost, op
	}
	op.Parameters = concatParams(params, operationQueryParams(od))
	return http.MethodGet, op
}

func (s *Synthesizer) operationResponses(od *fhir.OperationDefinition) *openapi3.Responses {
	description := "Successful response"
	resultType := "Parameters"
	if out := od.OutParameter(); out != nil {
		if out.Documentation != "" {
			description = out.Documentation
		}
		if out.Type != "" {
			resultType = out.Type
		}
	}
	interaction := od.Name
	if interaction == "" {
		interaction = od.Code
	}
	return s.responses(interaction, map[int]*openapi3.ResponseRef{
		200: response(description, s.content(s.baseSchemaRef(resultType), nil)),
	})
}
