package parser

import "fmt"

// Summary describes a loaded OpenAPI document.
type Summary struct {
	Title           string
	Version         string
	BaseURL         string
	Endpoints       []Endpoint
	Tags            []string
	Schemas         int
	Examples        int
	SecuritySchemes []SecurityScheme
}

// SecurityScheme names a declared scheme and its flows.
type SecurityScheme struct {
	Name  string
	Type  string   // oauth2, http, apiKey, openIdConnect
	Flows []string // clientCredentials, authorizationCode
}

// Endpoint is one operation of the document.
type Endpoint struct {
	Method      string
	Path        string
	OperationID string
	Tags        []string
	// Scopes are the distinct scopes over every security requirement.
	Scopes []string
}

// String renders the one-line summary logged after generation.
func (s *Summary) String() string {
	return fmt.Sprintf("%d endpoints, %d tags, %d schemas, %d examples, %d security schemes",
		len(s.Endpoints), len(s.Tags), s.Schemas, s.Examples, len(s.SecuritySchemes))
}
