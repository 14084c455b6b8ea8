package fhir

import "strings"

// Extension URLs recognized by the compiler.
const (
	SMARTOAuthURIsURL    = "http://fhir-registry.smarthealthit.org/StructureDefinition/oauth-uris"
	SMARTCapabilitiesURL = "http://fhir-registry.smarthealthit.org/StructureDefinition/capabilities"
	ExpectationURL       = "http://hl7.org/fhir/StructureDefinition/capabilitystatement-expectation"

	// ResourceMetadataURL carries the custom API publishing details
	// (global headers, license, external docs).
	ResourceMetadataURL    = "https://fhir-ig.digital.health.nz/hnz-digital-tooling/StructureDefinition/resource-metadata-extension"
	ResourceMetadataUATURL = "https://fhir-ig-uat.digital.health.nz/hnz-digital-tooling/StructureDefinition/resource-metadata-extension"
)

// Extension is the generic FHIR extension element. Only the value[x]
// variants used by the compiler are modelled.
type Extension struct {
	URL          string      `json:"url"`
	ValueString  *string     `json:"valueString,omitempty"`
	ValueURI     *string     `json:"valueUri,omitempty"`
	ValueURL     *string     `json:"valueUrl,omitempty"`
	ValueCode    *string     `json:"valueCode,omitempty"`
	ValueBoolean *bool       `json:"valueBoolean,omitempty"`
	Extension    []Extension `json:"extension,omitempty"`
}

// FindExtension returns the first extension in list whose url matches one of
// urls, or nil when none matches.
func FindExtension(list []Extension, urls ...string) *Extension {
	for i := range list {
		for _, u := range urls {
			if list[i].URL == u {
				return &list[i]
			}
		}
	}
	return nil
}

// FilterExtensions returns every extension in list with the given url.
func FilterExtensions(list []Extension, url string) []Extension {
	var out []Extension
	for _, ext := range list {
		if ext.URL == url {
			out = append(out, ext)
		}
	}
	return out
}

// String returns valueString.
func (e *Extension) String() (string, bool) {
	if e == nil || e.ValueString == nil {
		return "", false
	}
	return *e.ValueString, true
}

// URI returns valueUri, falling back to valueUrl.
func (e *Extension) URI() (string, bool) {
	if e == nil {
		return "", false
	}
	if e.ValueURI != nil {
		return *e.ValueURI, true
	}
	if e.ValueURL != nil {
		return *e.ValueURL, true
	}
	return "", false
}

// Code returns valueCode.
func (e *Extension) Code() (string, bool) {
	if e == nil || e.ValueCode == nil {
		return "", false
	}
	return *e.ValueCode, true
}

// Bool returns valueBoolean.
func (e *Extension) Bool() (bool, bool) {
	if e == nil || e.ValueBoolean == nil {
		return false, false
	}
	return *e.ValueBoolean, true
}

// Child returns the nested extension with the given url, or nil.
func (e *Extension) Child(url string) *Extension {
	if e == nil {
		return nil
	}
	return FindExtension(e.Extension, url)
}

// GlobalHeader is an HTTP header every operation accepts.
type GlobalHeader struct {
	Name          string
	Value         string // schema reference URL
	Required      bool
	Documentation string
}

// PublishingDetails are the custom API publishing extension values.
type PublishingDetails struct {
	GlobalHeaders []GlobalHeader
	LicenseName   string
	LicenseURL    string
	ExternalDocs  string
	// Invalid lists global header entries that were skipped because they
	// lack a key or a value.
	Invalid int
}

// PublishingDetails extracts the resource-metadata extension of the
// CapabilityStatement.
func (cs *CapabilityStatement) PublishingDetails() PublishingDetails {
	var details PublishingDetails
	meta := FindExtension(cs.Extension, ResourceMetadataURL, ResourceMetadataUATURL)
	if meta == nil {
		return details
	}

	for _, group := range FilterExtensions(meta.Extension, "globalHeaders") {
		for _, item := range group.Extension {
			key, okKey := item.Child("key").String()
			value, okValue := item.Child("value").URI()
			if !okKey || !okValue || key == "" || value == "" {
				details.Invalid++
				continue
			}
			required, _ := item.Child("required").Bool()
			doc, _ := item.Child("documentation").String()
			details.GlobalHeaders = append(details.GlobalHeaders, GlobalHeader{
				Name:          key,
				Value:         value,
				Required:      required,
				Documentation: doc,
			})
		}
	}

	details.LicenseURL, _ = meta.Child("licenseURL").URI()
	details.LicenseName, _ = meta.Child("licenseName").String()
	details.ExternalDocs, _ = meta.Child("externalDocs").URI()
	return details
}

// Mandatory reports whether the search parameter carries a SHALL
// expectation.
func (sp *SearchParam) Mandatory() bool {
	code, ok := FindExtension(sp.Extension, ExpectationURL).Code()
	return ok && strings.EqualFold(code, "SHALL")
}

// ServiceCodes returns the first coding code of every declared service.
func (s *Security) ServiceCodes() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Service))
	for _, svc := range s.Service {
		out = append(out, svc.FirstCode())
	}
	return out
}

// OAuthURIs returns the authorize and token endpoints from the SMART
// oauth-uris extension. ok is false when the extension is absent.
func (s *Security) OAuthURIs() (authorize, token string, ok bool) {
	if s == nil {
		return "", "", false
	}
	ext := FindExtension(s.Extension, SMARTOAuthURIsURL)
	if ext == nil {
		return "", "", false
	}
	authorize, _ = ext.Child("authorize").URI()
	token, _ = ext.Child("token").URI()
	return authorize, token, true
}

// SMARTCapabilities returns the valueCode of every SMART capabilities
// extension, in declaration order.
func (s *Security) SMARTCapabilities() []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, ext := range FilterExtensions(s.Extension, SMARTCapabilitiesURL) {
		if code, ok := ext.Code(); ok {
			out = append(out, code)
		}
	}
	return out
}
