package ig

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhirerr"
)

const capabilityProfile = "https://example.org/StructureDefinition/api-capability"

var guideFiles = map[string]string{
	"CapabilityStatement-api.json": `{
		"resourceType": "CapabilityStatement",
		"id": "api",
		"meta": {"profile": ["` + capabilityProfile + `"]},
		"rest": [{"mode": "server", "resource": [{"type": "Patient", "interaction": [{"code": "read"}]}]}]
	}`,
	"CapabilityStatement-other.json": `{
		"resourceType": "CapabilityStatement",
		"id": "other"
	}`,
	"StructureDefinition-NhiPatient.json": `{
		"resourceType": "StructureDefinition",
		"id": "NhiPatient",
		"url": "https://example.org/StructureDefinition/NhiPatient",
		"type": "Patient",
		"differential": {"element": [{"id": "Patient.gender", "path": "Patient.gender", "min": 1}]}
	}`,
	"OperationDefinition-match.json": `{
		"resourceType": "OperationDefinition",
		"id": "match",
		"url": "https://example.org/OperationDefinition/match",
		"kind": "operation",
		"code": "match",
		"system": false,
		"type": true,
		"instance": false
	}`,
	"examples/Patient-p1.json": `{
		"resourceType": "Patient",
		"id": "p1",
		"meta": {"profile": ["https://example.org/StructureDefinition/NhiPatient"]}
	}`,
	"examples/broken.json": `{"resourceType": `,
	"notes.txt":            `ignored`,
}

func writeGuide(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range guideFiles {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestReadDir(t *testing.T) {
	dir := writeGuide(t)
	a, err := ReadDir(dir, zerolog.Nop())
	require.NoError(t, err)

	assert.Len(t, a.CapabilityStatements, 2)

	sd, ok := a.StructureDefinition("https://example.org/StructureDefinition/NhiPatient")
	require.True(t, ok)
	assert.Equal(t, "Patient", sd.Type)
	require.Len(t, sd.Differential.Element, 1)
	assert.Equal(t, 1, sd.Differential.Element[0].Min)

	od, ok := a.OperationDefinition("https://example.org/OperationDefinition/match")
	require.True(t, ok)
	assert.True(t, od.Type)

	examples := a.Examples["https://example.org/StructureDefinition/NhiPatient"]
	require.Len(t, examples, 1)
	assert.Equal(t, "Patient-p1", examples[0].Key())

	// the filtered capability statement is also an instance of its profile
	assert.Len(t, a.Examples[capabilityProfile], 1)
	assert.Equal(t, 2, a.ExampleCount())
}

func TestLoadFiltersCapabilityStatements(t *testing.T) {
	dir := writeGuide(t)
	a, err := Load(context.Background(), Options{InputFolder: dir, CapabilityProfile: capabilityProfile}, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, a.CapabilityStatements, 1)
	assert.Equal(t, "api", a.CapabilityStatements[0].ID)
}

func TestLoadNoCapability(t *testing.T) {
	dir := writeGuide(t)
	_, err := Load(context.Background(), Options{InputFolder: dir, CapabilityProfile: "https://example.org/none"}, zerolog.Nop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, fhirerr.ErrNoCapability))
}

func TestLoadWithoutSource(t *testing.T) {
	_, err := Load(context.Background(), Options{}, zerolog.Nop())
	assert.True(t, errors.Is(err, fhirerr.ErrConfig))
}

func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestLoadRemotePackages(t *testing.T) {
	guide := tarball(t, map[string]string{
		"package/CapabilityStatement-api.json": guideFiles["CapabilityStatement-api.json"],
	})
	dep := tarball(t, map[string]string{
		"package/StructureDefinition-NhiPatient.json": guideFiles["StructureDefinition-NhiPatient.json"],
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/main.tgz":
			_, _ = w.Write(guide)
		case "/dep.tgz":
			_, _ = w.Write(dep)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a, err := Load(context.Background(), Options{
		PackageURLs:       []string{srv.URL + "/main.tgz", srv.URL + "/dep.tgz"},
		CapabilityProfile: capabilityProfile,
		Client:            srv.Client(),
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, a.CapabilityStatements, 1)
	assert.Contains(t, a.StructureDefinitions, "https://example.org/StructureDefinition/NhiPatient")

	_, statErr := os.Stat(a.Dir)
	assert.True(t, os.IsNotExist(statErr), "temporary directory should be removed")
}

func TestLoadRemotePackageFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Load(context.Background(), Options{
		PackageURLs: []string{srv.URL + "/missing.tgz"},
		Client:      srv.Client(),
	}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestExtractRejectsTraversal(t *testing.T) {
	data := tarball(t, map[string]string{"../escape.json": `{}`})
	err := extractTarGz(bytes.NewReader(data), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal path")
}
