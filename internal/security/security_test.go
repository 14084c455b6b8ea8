package security

import (
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhir"
)

func str(s string) *string { return &s }

func service(code string) fhir.CodeableConcept {
	return fhir.CodeableConcept{Coding: []fhir.Coding{{Code: code}}}
}

func oauthURIs(authorize, token string) fhir.Extension {
	ext := fhir.Extension{URL: fhir.SMARTOAuthURIsURL}
	if authorize != "" {
		ext.Extension = append(ext.Extension, fhir.Extension{URL: "authorize", ValueURI: str(authorize)})
	}
	if token != "" {
		ext.Extension = append(ext.Extension, fhir.Extension{URL: "token", ValueURI: str(token)})
	}
	return ext
}

func capability(code string) fhir.Extension {
	return fhir.Extension{URL: fhir.SMARTCapabilitiesURL, ValueCode: str(code)}
}

func smartSecurity(capabilities ...string) *fhir.Security {
	sec := &fhir.Security{
		Service:   []fhir.CodeableConcept{service(ServiceSMART)},
		Extension: []fhir.Extension{oauthURIs("https://auth.example.org/authorize", "https://auth.example.org/token")},
	}
	for _, c := range capabilities {
		sec.Extension = append(sec.Extension, capability(c))
	}
	return sec
}

func TestTranslateNoSecurity(t *testing.T) {
	tr := Translate(nil, "scope/example", zerolog.Nop())
	assert.True(t, tr.Empty())
	assert.Empty(t, tr.ScopeBases)
}

func TestTranslateSMART(t *testing.T) {
	tr := Translate(smartSecurity("client-confidential-symmetric", "permission-patient", "launch-ehr"), "", zerolog.Nop())

	require.True(t, tr.HasSMART())
	assert.False(t, tr.HasOAuth())
	assert.Equal(t, []string{"system", "patient"}, tr.ScopeBases)

	scheme := tr.Schemes[SchemeSMART].Value
	assert.Equal(t, "oauth2", scheme.Type)
	assert.Equal(t, "SMART-on-FHIR security scheme", scheme.Description)
	require.NotNil(t, scheme.Flows.AuthorizationCode)
	assert.Equal(t, "https://auth.example.org/authorize", scheme.Flows.AuthorizationCode.AuthorizationURL)
	assert.Equal(t, "https://auth.example.org/token", scheme.Flows.AuthorizationCode.TokenURL)
	require.NotNil(t, scheme.Flows.ClientCredentials)
	assert.Equal(t, "https://auth.example.org/token", scheme.Flows.ClientCredentials.TokenURL)
}

func TestTranslateTokenOnly(t *testing.T) {
	sec := &fhir.Security{
		Service:   []fhir.CodeableConcept{service(ServiceOAuth)},
		Extension: []fhir.Extension{oauthURIs("", "https://auth.example.org/token")},
	}
	tr := Translate(sec, "scope/example", zerolog.Nop())

	scheme := tr.Schemes[SchemeOAuth].Value
	assert.Nil(t, scheme.Flows.AuthorizationCode)
	assert.NotNil(t, scheme.Flows.ClientCredentials)
}

func TestTranslateUnknownServiceIgnored(t *testing.T) {
	sec := &fhir.Security{Service: []fhir.CodeableConcept{service("Basic")}}
	tr := Translate(sec, "", zerolog.Nop())
	assert.True(t, tr.Empty())
}

func TestInteractionScopes(t *testing.T) {
	assert.Equal(t,
		[]string{"system/Patient.r", "user/Patient.r"},
		InteractionScopes("Patient", LetterRead, []string{"system", "user"}))
	assert.Empty(t, InteractionScopes("Patient", LetterRead, nil))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Match access", Describe("https://example.org/OperationDefinition/match"))
	assert.Equal(t, "Scope access", Describe("scope"))
	assert.Equal(t, "Match-patient access", Describe("https://example.org/OperationDefinition/match-patient"))
	assert.Equal(t, "Patient.r access", Describe("system/Patient.r"))
	assert.Equal(t, " access", Describe(""))
}

func TestCollectorSMART(t *testing.T) {
	tr := Translate(smartSecurity("client-confidential-symmetric", "permission-user"), "", zerolog.Nop())
	c := NewCollector(tr)

	read := &openapi3.Operation{}
	create := &openapi3.Operation{}
	custom := &openapi3.Operation{}
	system := &openapi3.Operation{}
	c.RequireInteraction(read, "Patient", LetterRead)
	c.RequireInteraction(create, "Patient", LetterCreate)
	c.RequireDefinition(custom, "https://example.org/OperationDefinition/match")
	c.RequireAny(system)
	c.Resolve()

	require.NotNil(t, read.Security)
	assert.Equal(t, openapi3.SecurityRequirements{
		{SchemeSMART: []string{"system/Patient.r", "user/Patient.r"}},
	}, *read.Security)
	assert.Equal(t, openapi3.SecurityRequirements{
		{SchemeSMART: []string{"https://example.org/OperationDefinition/match"}},
	}, *custom.Security)

	flows := tr.Schemes[SchemeSMART].Value.Flows
	assert.Len(t, flows.ClientCredentials.Scopes, 3)
	assert.Contains(t, flows.ClientCredentials.Scopes, "system/Patient.c")
	assert.Contains(t, flows.ClientCredentials.Scopes, "https://example.org/OperationDefinition/match")
	assert.NotContains(t, flows.ClientCredentials.Scopes, "user/Patient.r")

	assert.Len(t, flows.AuthorizationCode.Scopes, 3)
	assert.Contains(t, flows.AuthorizationCode.Scopes, "user/Patient.c")
	assert.NotContains(t, flows.AuthorizationCode.Scopes, "system/Patient.r")

	require.NotNil(t, system.Security)
	assert.Len(t, *system.Security, 5)
	for _, req := range *system.Security {
		assert.Len(t, req, 1)
		assert.Len(t, req[SchemeSMART], 1)
	}
}

func TestCollectorOAuthDefaultScope(t *testing.T) {
	sec := &fhir.Security{
		Service:   []fhir.CodeableConcept{service(ServiceOAuth)},
		Extension: []fhir.Extension{oauthURIs("https://auth.example.org/authorize", "https://auth.example.org/token")},
	}
	tr := Translate(sec, "scope/example", zerolog.Nop())
	c := NewCollector(tr)

	op := &openapi3.Operation{}
	c.RequireInteraction(op, "Patient", LetterSearch)
	c.Resolve()

	assert.Equal(t, openapi3.SecurityRequirements{{SchemeOAuth: []string{"scope/example"}}}, *op.Security)
	flows := tr.Schemes[SchemeOAuth].Value.Flows
	assert.Equal(t, DefaultScopeDescription, flows.ClientCredentials.Scopes["scope/example"])
	assert.Equal(t, DefaultScopeDescription, flows.AuthorizationCode.Scopes["scope/example"])
}

func TestCollectorUnreferencedFlowStaysEmpty(t *testing.T) {
	tr := Translate(smartSecurity("client-confidential-symmetric"), "", zerolog.Nop())
	c := NewCollector(tr)
	c.RequireInteraction(&openapi3.Operation{}, "Patient", LetterRead)
	c.Resolve()

	flows := tr.Schemes[SchemeSMART].Value.Flows
	require.NotNil(t, flows.AuthorizationCode)
	assert.NotNil(t, flows.AuthorizationCode.Scopes)
	assert.Empty(t, flows.AuthorizationCode.Scopes)
}

func TestCollectorWithoutSchemes(t *testing.T) {
	c := NewCollector(Translate(nil, "", zerolog.Nop()))
	op := &openapi3.Operation{}
	c.RequireInteraction(op, "Patient", LetterRead)
	c.RequireAny(op)
	c.Resolve()
	assert.Nil(t, op.Security)
}
