package oas

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhir"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhirerr"
	"github.com/tewhatuora/fhir-openapi-converter/internal/profile"
	"github.com/tewhatuora/fhir-openapi-converter/internal/security"
)

const schemaBase = "https://schemas.example.org/"

type testDefs struct {
	sds map[string]*fhir.StructureDefinition
	ods map[string]*fhir.OperationDefinition
}

func (d testDefs) StructureDefinition(url string) (*fhir.StructureDefinition, bool) {
	sd, ok := d.sds[url]
	return sd, ok
}

func (d testDefs) OperationDefinition(url string) (*fhir.OperationDefinition, bool) {
	od, ok := d.ods[url]
	return od, ok
}

func baseSchemas() profile.MapSource {
	object := func() profile.Fragment {
		return profile.Fragment{
			"type": "object",
			"properties": profile.Fragment{
				"resourceType": profile.Fragment{"type": "string"},
				"id":           profile.Fragment{"type": "string"},
			},
		}
	}
	return profile.MapSource{
		"Patient":     object(),
		"Observation": object(),
	}
}

func interactionsOf(codes ...string) []fhir.Interaction {
	out := make([]fhir.Interaction, len(codes))
	for i, c := range codes {
		out[i] = fhir.Interaction{Code: c}
	}
	return out
}

func statement(resources ...fhir.Resource) *fhir.CapabilityStatement {
	return &fhir.CapabilityStatement{
		ResourceType: "CapabilityStatement",
		ID:           "test-api",
		Rest:         []fhir.Rest{{Mode: "server", Resource: resources}},
	}
}

type fixture struct {
	defs     testDefs
	examples Examples
	sec      *fhir.Security
	opts     Options
}

func newFixture() *fixture {
	return &fixture{
		defs: testDefs{
			sds: map[string]*fhir.StructureDefinition{},
			ods: map[string]*fhir.OperationDefinition{},
		},
		examples: Examples{},
		opts: Options{
			ContentTypes:         []string{"application/fhir+json"},
			DefaultResponseCodes: []int{400, 401, 403, 500},
			SchemaBaseURL:        schemaBase,
			ServerURL:            "https://api.example.org/fhir",
		},
	}
}

func (f *fixture) run(t *testing.T, cs *fhir.CapabilityStatement) (*Result, *security.Collector, error) {
	t.Helper()
	log := zerolog.Nop()
	collector := security.NewCollector(security.Translate(f.sec, "scope/example", log))
	s := New(Config{
		Options:     f.opts,
		Resolver:    profile.NewResolver(baseSchemas(), f.defs, log),
		Definitions: f.defs,
		Examples:    f.examples,
		Security:    collector,
		Logger:      log,
	})
	res, err := s.Synthesize(context.Background(), cs)
	if err == nil {
		collector.Resolve()
	}
	return res, collector, err
}

func TestSynthesizePatient(t *testing.T) {
	f := newFixture()
	res, _, err := f.run(t, statement(fhir.Resource{
		Type:        "Patient",
		Interaction: interactionsOf("read", "create", "search-type"),
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"/Patient", "/Patient/{rid}", "/metadata"}, res.Paths.Templates())
	assert.NotNil(t, res.Paths.Operation("/Patient/{rid}", http.MethodGet))
	assert.NotNil(t, res.Paths.Operation("/Patient", http.MethodPost))
	assert.NotNil(t, res.Paths.Operation("/Patient", http.MethodGet))

	require.Len(t, res.Schemas, 1)
	assert.Equal(t, "Base-Profile-Patient", res.Schemas[0].Identity.ComponentName())
	assert.Equal(t, []string{SystemTag, "Patient"}, res.Tags)

	read := res.Paths.Operation("/Patient/{rid}", http.MethodGet)
	assert.Equal(t, "readPatient", read.OperationID)
	assert.Equal(t, "Read Patient", read.Summary)
	assert.Nil(t, read.Security)
	require.Len(t, read.Parameters, 1)
	assert.Equal(t, "rid", read.Parameters[0].Value.Name)
	assert.True(t, read.Parameters[0].Value.Required)

	ok := read.Responses.Value("200")
	require.NotNil(t, ok)
	media := ok.Value.Content["application/fhir+json"]
	require.NotNil(t, media)
	require.Len(t, media.Schema.Value.AnyOf, 1)
	assert.Equal(t, "#/components/schemas/Base-Profile-Patient", media.Schema.Value.AnyOf[0].Ref)

	create := res.Paths.Operation("/Patient", http.MethodPost)
	assert.NotNil(t, create.Responses.Value("201"))
	assert.Nil(t, create.Responses.Value("200"))
	for _, code := range []string{"400", "401", "403", "500"} {
		resp := create.Responses.Value(code)
		require.NotNil(t, resp, code)
		assert.Equal(t, "Unsuccessful create operation - "+code, *resp.Value.Description)
		assert.Equal(t, schemaBase+"OperationOutcome-definition.json",
			resp.Value.Content["application/fhir+json"].Schema.Ref)
	}
	require.NotNil(t, create.RequestBody)
	assert.True(t, create.RequestBody.Value.Required)
	assert.Equal(t, "Patient to create", create.RequestBody.Value.Description)
}

func TestSynthesizeVersionedRead(t *testing.T) {
	f := newFixture()
	res, _, err := f.run(t, statement(fhir.Resource{
		Type:        "Observation",
		Interaction: interactionsOf("vread"),
	}))
	require.NoError(t, err)

	op := res.Paths.Operation("/Observation/{rid}/_history/{vid}", http.MethodGet)
	require.NotNil(t, op)
	assert.Equal(t, "vreadObservation", op.OperationID)
	names := []string{}
	for _, p := range op.Parameters {
		names = append(names, p.Value.Name)
	}
	assert.Equal(t, []string{"rid", "vid"}, names)
}

func TestSynthesizeMergesMethodsAtTemplate(t *testing.T) {
	f := newFixture()
	res, _, err := f.run(t, statement(fhir.Resource{
		Type:        "Patient",
		Interaction: interactionsOf("read", "update", "patch", "delete"),
	}))
	require.NoError(t, err)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		assert.NotNil(t, res.Paths.Operation("/Patient/{rid}", method), method)
	}
	del := res.Paths.Operation("/Patient/{rid}", http.MethodDelete)
	assert.Equal(t, schemaBase+"OperationOutcome-definition.json",
		del.Responses.Value("200").Value.Content["application/fhir+json"].Schema.Ref)
	assert.Nil(t, del.RequestBody)
}

func TestSynthesizeSkipsUnknownInteraction(t *testing.T) {
	f := newFixture()
	res, _, err := f.run(t, statement(fhir.Resource{
		Type:        "Patient",
		Interaction: interactionsOf("history-instance", "read"),
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"/Patient/{rid}", "/metadata"}, res.Paths.Templates())
}

func TestSynthesizeSystemTransaction(t *testing.T) {
	f := newFixture()
	cs := statement()
	cs.Rest[0].Interaction = interactionsOf("transaction", "batch")

	res, _, err := f.run(t, cs)
	require.NoError(t, err)

	op := res.Paths.Operation("/", http.MethodPost)
	require.NotNil(t, op)
	assert.Equal(t, "systemInteractions", op.OperationID)
	assert.Equal(t, []string{SystemTag}, op.Tags)

	body := op.RequestBody.Value.Content["application/fhir+json"].Schema.Value
	assert.Equal(t, []any{"transaction", "batch"}, body.Properties["type"].Value.Enum)

	resp := op.Responses.Value("200").Value.Content["application/fhir+json"].Schema.Value
	assert.Equal(t, []any{"transaction-response", "batch-response"}, resp.Properties["type"].Value.Enum)
}

func TestSynthesizeMetadata(t *testing.T) {
	f := newFixture()
	cs := statement()
	res, _, err := f.run(t, cs)
	require.NoError(t, err)

	op := res.Paths.Operation("/metadata", http.MethodGet)
	require.NotNil(t, op)
	assert.Equal(t, "metadata", op.OperationID)
	media := op.Responses.Value("200").Value.Content["application/fhir+json"]
	assert.Equal(t, schemaBase+"CapabilityStatement-definition.json", media.Schema.Ref)
	require.Contains(t, media.Examples, "CapabilityStatement-test-api")
	assert.Same(t, cs, media.Examples["CapabilityStatement-test-api"].Value.Value)
}

func TestSynthesizeMetadataKeepsDecodedStatement(t *testing.T) {
	var cs fhir.CapabilityStatement
	require.NoError(t, json.Unmarshal([]byte(`{
		"resourceType": "CapabilityStatement",
		"id": "test-api",
		"status": "active",
		"kind": "instance",
		"date": "2024-01-01",
		"publisher": "Health NZ",
		"software": {"name": "fhir-server", "version": "2.1.0"},
		"rest": [{"mode": "server", "resource": [{"type": "Patient", "interaction": [{"code": "read"}]}]}]
	}`), &cs))

	f := newFixture()
	res, _, err := f.run(t, &cs)
	require.NoError(t, err)

	op := res.Paths.Operation("/metadata", http.MethodGet)
	require.NotNil(t, op)
	example := op.Responses.Value("200").Value.Content["application/fhir+json"].Examples["CapabilityStatement-test-api"]
	require.NotNil(t, example)

	data, err := json.Marshal(example.Value.Value)
	require.NoError(t, err)
	var published map[string]any
	require.NoError(t, json.Unmarshal(data, &published))
	assert.Equal(t, "instance", published["kind"])
	assert.Equal(t, "2024-01-01", published["date"])
	assert.Equal(t, "Health NZ", published["publisher"])
	assert.Equal(t, map[string]any{"name": "fhir-server", "version": "2.1.0"}, published["software"])
	assert.Equal(t, "active", published["status"])
}

func TestSynthesizeWithoutServerRest(t *testing.T) {
	f := newFixture()
	res, _, err := f.run(t, &fhir.CapabilityStatement{ID: "client-only"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/metadata"}, res.Paths.Templates())
}

func smartSecurity() *fhir.Security {
	authorize := "https://auth.example.org/authorize"
	token := "https://auth.example.org/token"
	code := "client-confidential-symmetric"
	return &fhir.Security{
		Service: []fhir.CodeableConcept{{Coding: []fhir.Coding{{Code: security.ServiceSMART}}}},
		Extension: []fhir.Extension{
			{URL: fhir.SMARTOAuthURIsURL, Extension: []fhir.Extension{
				{URL: "authorize", ValueURI: &authorize},
				{URL: "token", ValueURI: &token},
			}},
			{URL: fhir.SMARTCapabilitiesURL, ValueCode: &code},
		},
	}
}

func TestSynthesizeSMARTScopes(t *testing.T) {
	f := newFixture()
	f.sec = smartSecurity()
	res, collector, err := f.run(t, statement(fhir.Resource{
		Type:        "Patient",
		Interaction: interactionsOf("read", "vread", "search-type", "create", "update", "patch", "delete"),
	}))
	require.NoError(t, err)

	want := map[string]string{
		"readPatient":   "system/Patient.r",
		"vreadPatient":  "system/Patient.r",
		"searchPatient": "system/Patient.s",
		"createPatient": "system/Patient.c",
		"updatePatient": "system/Patient.u",
		"patchPatient":  "system/Patient.u",
		"deletePatient": "system/Patient.d",
	}
	for _, template := range res.Paths.Templates() {
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
			op := res.Paths.Operation(template, method)
			if op == nil || op.OperationID == "metadata" {
				continue
			}
			require.NotNil(t, op.Security, op.OperationID)
			assert.Equal(t, openapi3.SecurityRequirements{
				{security.SchemeSMART: []string{want[op.OperationID]}},
			}, *op.Security, op.OperationID)
		}
	}

	flows := collector.Translation().Schemes[security.SchemeSMART].Value.Flows
	assert.Len(t, flows.ClientCredentials.Scopes, 5)
	assert.Empty(t, flows.AuthorizationCode.Scopes)
}

func TestSynthesizeMissingProfile(t *testing.T) {
	f := newFixture()
	_, _, err := f.run(t, statement(fhir.Resource{
		Type:        "Patient",
		Profile:     "https://example.org/StructureDefinition/Unknown",
		Interaction: interactionsOf("read"),
	}))
	assert.True(t, errors.Is(err, fhirerr.ErrMissingDefinition))
}

func TestSynthesizeFetchFailure(t *testing.T) {
	f := newFixture()
	_, _, err := f.run(t, statement(fhir.Resource{
		Type:        "Encounter",
		Interaction: interactionsOf("read"),
	}))
	assert.True(t, errors.Is(err, fhirerr.ErrUpstreamFetch))
}

func TestSynthesizeProfilesAndExamples(t *testing.T) {
	f := newFixture()
	nhi := &fhir.StructureDefinition{
		ResourceType: "StructureDefinition",
		ID:           "NhiPatient",
		URL:          "https://example.org/StructureDefinition/NhiPatient",
		Type:         "Patient",
		Differential: &fhir.Differential{Element: []fhir.ElementDefinition{
			{ID: "Patient.id", Path: "Patient.id", Min: 1},
		}},
	}
	f.defs.sds[nhi.URL] = nhi
	f.examples[nhi.URL] = []fhir.ResourceInstance{
		{"resourceType": "Patient", "id": "p1", "meta": map[string]any{"profile": []any{nhi.URL}}},
		{"resourceType": "Patient", "id": "p2", "meta": map[string]any{"profile": []any{nhi.URL}}},
	}
	f.examples["https://example.org/StructureDefinition/Other"] = []fhir.ResourceInstance{
		{"resourceType": "Observation", "id": "o1"},
	}

	res, _, err := f.run(t, statement(fhir.Resource{
		Type:             "Patient",
		Profile:          fhir.CanonicalResourceURL("Patient"),
		SupportedProfile: []string{nhi.URL},
		Interaction:      interactionsOf("read", "search-type", "update"),
	}))
	require.NoError(t, err)

	require.Len(t, res.Schemas, 2)
	assert.Equal(t, "StructureDefinition-NhiPatient", res.Schemas[1].Identity.ComponentName())
	assert.Len(t, res.Examples, 2)
	assert.Contains(t, res.Examples, "Patient-p1")

	read := res.Paths.Operation("/Patient/{rid}", http.MethodGet)
	media := read.Responses.Value("200").Value.Content["application/fhir+json"]
	assert.Len(t, media.Schema.Value.AnyOf, 2)
	require.Contains(t, media.Examples, "Patient-p2")
	assert.Equal(t, ExampleRefPrefix+"Patient-p2", media.Examples["Patient-p2"].Ref)

	update := res.Paths.Operation("/Patient/{rid}", http.MethodPut)
	assert.Len(t, update.RequestBody.Value.Content["application/fhir+json"].Examples, 2)

	search := res.Paths.Operation("/Patient", http.MethodGet)
	searchMedia := search.Responses.Value("200").Value.Content["application/fhir+json"]
	bundle := searchMedia.Schema.Value
	assert.Equal(t, []any{"searchset"}, bundle.Properties["type"].Value.Enum)
	require.Contains(t, searchMedia.Examples, "searchset-example")
	value := searchMedia.Examples["searchset-example"].Value.Value.(map[string]any)
	entries := value["entry"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "https://api.example.org/fhir/Patient/p1", entries[0].(map[string]any)["fullUrl"])
}

func TestSynthesizeContentTypesReplicated(t *testing.T) {
	f := newFixture()
	f.opts.ContentTypes = []string{"application/fhir+json", "application/json"}
	res, _, err := f.run(t, statement(fhir.Resource{Type: "Patient", Interaction: interactionsOf("create")}))
	require.NoError(t, err)

	op := res.Paths.Operation("/Patient", http.MethodPost)
	assert.Len(t, op.RequestBody.Value.Content, 2)
	assert.Len(t, op.Responses.Value("201").Value.Content, 2)
	assert.Len(t, op.Responses.Value("400").Value.Content, 2)
}

func TestSynthesizeSuccessWinsOverDefault(t *testing.T) {
	f := newFixture()
	f.opts.DefaultResponseCodes = []int{200, 500}
	res, _, err := f.run(t, statement(fhir.Resource{Type: "Patient", Interaction: interactionsOf("read")}))
	require.NoError(t, err)

	op := res.Paths.Operation("/Patient/{rid}", http.MethodGet)
	assert.Equal(t, "Successful read operation", *op.Responses.Value("200").Value.Description)
	assert.NotNil(t, op.Responses.Value("500"))
}

func TestSynthesizeGlobalHeaders(t *testing.T) {
	f := newFixture()
	f.opts.GlobalHeaders = []fhir.GlobalHeader{
		{Name: "X-Correlation-Id", Value: "https://example.org/schemas/correlation.json", Required: true, Documentation: "Correlation"},
	}
	res, _, err := f.run(t, statement(fhir.Resource{Type: "Patient", Interaction: interactionsOf("read")}))
	require.NoError(t, err)

	for _, template := range []string{"/Patient/{rid}", "/metadata"} {
		op := res.Paths.Operation(template, http.MethodGet)
		require.NotEmpty(t, op.Parameters)
		h := op.Parameters[0].Value
		assert.Equal(t, "X-Correlation-Id", h.Name)
		assert.Equal(t, openapi3.ParameterInHeader, h.In)
		assert.True(t, h.Required)
		assert.Equal(t, "https://example.org/schemas/correlation.json", h.Schema.Ref)
	}
}
