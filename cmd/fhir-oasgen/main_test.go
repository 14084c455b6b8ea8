package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tewhatuora/fhir-openapi-converter/internal/config"
)

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("FHIR_OASGEN_LOGLEVEL", "debug")
	t.Setenv("FHIR_OASGEN_DEFAULTRESPONSES", "400,500")

	v := config.NewViper()
	cmd, err := newRootCmd(v)
	require.NoError(t, err)
	require.NoError(t, cmd.Flags().Set("default-responses", "401"))
	require.NoError(t, cmd.Flags().Set("dedupe-schemas", "true"))
	require.NoError(t, cmd.Flags().Set("content-type", "application/fhir+json,application/json"))

	cfg, err := config.Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "401", cfg.DefaultResponses)
	assert.True(t, cfg.DedupeSchemas)
	assert.Equal(t, []string{"application/fhir+json", "application/json"}, cfg.ContentType)
	assert.Equal(t, "./output", cfg.OutputFolder)
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestRunWritesDocuments(t *testing.T) {
	root := t.TempDir()
	igDir := filepath.Join(root, "ig")
	schemaDir := filepath.Join(root, "schemas")
	outDir := filepath.Join(root, "out")

	writeJSON(t, filepath.Join(igDir, "CapabilityStatement-api.json"), map[string]any{
		"resourceType": "CapabilityStatement",
		"id":           "api",
		"title":        "Patient API",
		"version":      "1.0.0",
		"meta":         map[string]any{"profile": []string{config.DefaultCapabilityProfile}},
		"rest": []any{map[string]any{
			"mode": "server",
			"resource": []any{map[string]any{
				"type":        "Patient",
				"interaction": []any{map[string]any{"code": "read"}},
			}},
		}},
	})
	writeJSON(t, filepath.Join(schemaDir, "Patient-definition.json"), map[string]any{
		"type":       "object",
		"properties": map[string]any{"id": map[string]any{"type": "string"}},
	})

	cfg := config.DefaultConfig()
	cfg.InputFolder = igDir
	cfg.SchemaDir = schemaDir
	cfg.OutputFolder = outDir
	cfg.SkipValidation = true
	cfg.LogFormat = "json"
	cfg.LogLevel = "error"

	require.NoError(t, run(context.Background(), cfg))

	data, err := os.ReadFile(filepath.Join(outDir, "api.openapi.json"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Contains(t, doc["paths"], "/Patient/{rid}")
	assert.FileExists(t, filepath.Join(outDir, "api.openapi.yaml"))
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Error(t, run(context.Background(), cfg))
}

func TestRunMissingSchema(t *testing.T) {
	root := t.TempDir()
	igDir := filepath.Join(root, "ig")
	writeJSON(t, filepath.Join(igDir, "CapabilityStatement-api.json"), map[string]any{
		"resourceType": "CapabilityStatement",
		"id":           "api",
		"meta":         map[string]any{"profile": []string{config.DefaultCapabilityProfile}},
		"rest": []any{map[string]any{
			"mode":     "server",
			"resource": []any{map[string]any{"type": "Patient", "interaction": []any{map[string]any{"code": "read"}}}},
		}},
	})

	cfg := config.DefaultConfig()
	cfg.InputFolder = igDir
	cfg.SchemaDir = filepath.Join(root, "empty")
	cfg.DisableOutputFiles = true
	cfg.LogFormat = "json"
	cfg.LogLevel = "disabled"

	err := run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Patient")
}
