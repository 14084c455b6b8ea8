package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaIssue is one draft-07 rule broken by a derived profile schema.
type SchemaIssue struct {
	Location string // JSON pointer into the profile schema
	Message  string
}

// CheckSchema compiles a derived profile schema as draft-07 JSON Schema and
// returns the meta-schema violations found. err is set only when the schema
// cannot be encoded.
func CheckSchema(schema Fragment) ([]SchemaIssue, error) {
	encoded, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource("profile.json", bytes.NewReader(encoded)); err != nil {
		return []SchemaIssue{{Message: err.Error()}}, nil
	}
	if _, err := compiler.Compile("profile.json"); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return collectIssues(ve), nil
		}
		return []SchemaIssue{{Message: err.Error()}}, nil
	}
	return nil, nil
}

func collectIssues(err *jsonschema.ValidationError) []SchemaIssue {
	var issues []SchemaIssue
	var walk func(*jsonschema.ValidationError)
	walk = func(node *jsonschema.ValidationError) {
		if node == nil {
			return
		}
		if len(node.Causes) == 0 {
			issues = append(issues, SchemaIssue{
				Location: strings.TrimSpace(node.InstanceLocation),
				Message:  strings.TrimSpace(node.Message),
			})
			return
		}
		for _, cause := range node.Causes {
			walk(cause)
		}
	}
	walk(err)
	return issues
}
