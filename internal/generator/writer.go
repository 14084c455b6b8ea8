package generator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/getkin/kin-openapi/openapi3"
	"go.yaml.in/yaml/v4"
)

// Output holds the encoded forms of one document.
type Output struct {
	JSON []byte
	YAML []byte
}

// Encode renders doc as indented JSON and as YAML with the same key order.
func Encode(doc *openapi3.T) (*Output, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}

	// JSON is valid YAML, decoding into a node keeps the key order.
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("convert to yaml: %w", err)
	}
	resetStyle(&node)
	y, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}
	return &Output{JSON: data, YAML: y}, nil
}

// resetStyle drops the flow style inherited from the JSON source so the
// YAML output uses block style.
func resetStyle(n *yaml.Node) {
	n.Style &^= yaml.FlowStyle
	for _, c := range n.Content {
		resetStyle(c)
	}
}

// Write stores out as {dir}/{name}.openapi.json and .yaml and returns the
// written paths.
func Write(out *Output, dir, name string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	files := []struct {
		ext  string
		data []byte
	}{
		{".openapi.json", out.JSON},
		{".openapi.yaml", out.YAML},
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, name+f.ext)
		if err := os.WriteFile(path, f.data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
