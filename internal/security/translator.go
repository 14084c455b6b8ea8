// Package security converts the security block of a CapabilityStatement into
// OpenAPI security schemes and resolves the scopes referenced by generated
// operations.
package security

import (
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/rs/zerolog"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhir"
)

// Security scheme names under components.securitySchemes.
const (
	SchemeSMART = "smartOnFhir"
	SchemeOAuth = "OAuth"
)

// Service codes recognized in security.service.
const (
	ServiceSMART = "SMART-on-FHIR"
	ServiceOAuth = "OAuth"
)

// Scope bases derived from SMART capabilities.
const (
	BaseSystem  = "system"
	BaseUser    = "user"
	BasePatient = "patient"
)

var capabilityBases = map[string]string{
	"client-confidential-symmetric": BaseSystem,
	"permission-user":               BaseUser,
	"permission-patient":            BasePatient,
}

// Translation is the security posture of one CapabilityStatement.
type Translation struct {
	Schemes openapi3.SecuritySchemes
	// ScopeBases are the SMART scope prefixes, in capability order.
	ScopeBases []string
	// DefaultScope is required by every operation under the OAuth scheme.
	DefaultScope string
}

// Translate builds the security schemes declared by sec. Unknown service
// kinds are logged and ignored. A nil sec yields an empty translation.
func Translate(sec *fhir.Security, defaultScope string, log zerolog.Logger) *Translation {
	t := &Translation{
		Schemes:      openapi3.SecuritySchemes{},
		DefaultScope: defaultScope,
	}
	codes := sec.ServiceCodes()
	if len(codes) == 0 {
		log.Debug().Msg("no security services declared")
		return t
	}

	for _, code := range codes {
		switch code {
		case ServiceSMART:
			log.Debug().Msg("found SMART-on-FHIR security scheme")
			t.Schemes[SchemeSMART] = &openapi3.SecuritySchemeRef{Value: oauthScheme(code, sec, log)}
			t.ScopeBases = scopeBases(sec, log)
		case ServiceOAuth:
			log.Debug().Msg("found OAuth security scheme")
			t.Schemes[SchemeOAuth] = &openapi3.SecuritySchemeRef{Value: oauthScheme(code, sec, log)}
		default:
			log.Warn().Str("code", code).Msg("ignoring unknown security service")
		}
	}
	return t
}

// HasSMART reports whether the smartOnFhir scheme is declared.
func (t *Translation) HasSMART() bool {
	_, ok := t.Schemes[SchemeSMART]
	return ok
}

// HasOAuth reports whether the plain OAuth scheme is declared.
func (t *Translation) HasOAuth() bool {
	_, ok := t.Schemes[SchemeOAuth]
	return ok
}

// Empty reports whether no scheme was declared.
func (t *Translation) Empty() bool {
	return len(t.Schemes) == 0
}

func scopeBases(sec *fhir.Security, log zerolog.Logger) []string {
	var bases []string
	for _, capability := range sec.SMARTCapabilities() {
		base, ok := capabilityBases[capability]
		if !ok {
			log.Debug().Str("capability", capability).Msg("SMART capability does not map to a scope base")
			continue
		}
		bases = append(bases, base)
	}
	log.Debug().Strs("bases", bases).Msg("resolved SMART scope bases")
	return bases
}

// oauthScheme builds an oauth2 scheme whose flows follow the SMART oauth-uris
// extension: authorize yields an authorization code flow, token a client
// credentials flow. Scopes are filled in later by the Collector.
func oauthScheme(code string, sec *fhir.Security, log zerolog.Logger) *openapi3.SecurityScheme {
	scheme := &openapi3.SecurityScheme{
		Type:        "oauth2",
		Description: code + " security scheme",
		Flows:       &openapi3.OAuthFlows{},
	}

	authorize, token, ok := sec.OAuthURIs()
	if !ok {
		log.Debug().Str("url", fhir.SMARTOAuthURIsURL).Msg("no oauth-uris extension")
		return scheme
	}
	if authorize != "" {
		scheme.Flows.AuthorizationCode = &openapi3.OAuthFlow{
			AuthorizationURL: authorize,
			TokenURL:         token,
			Scopes:           map[string]string{},
		}
	}
	if token != "" {
		scheme.Flows.ClientCredentials = &openapi3.OAuthFlow{
			TokenURL: token,
			Scopes:   map[string]string{},
		}
	}
	return scheme
}
