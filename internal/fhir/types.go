// Package fhir models the subset of FHIR conformance resources consumed by the
// OpenAPI compiler: CapabilityStatement, StructureDefinition,
// OperationDefinition and the generic extension mechanism.
package fhir

import "encoding/json"

// BaseProfileURL is the canonical URL prefix of the unconstrained core
// resource profiles.
const BaseProfileURL = "http://hl7.org/fhir/StructureDefinition/"

// CanonicalResourceURL returns the core profile URL for a resource type.
func CanonicalResourceURL(resourceType string) string {
	return BaseProfileURL + resourceType
}

// Meta carries resource metadata.
type Meta struct {
	Profile []string `json:"profile,omitempty"`
}

// Coding is a reference to a code defined by a terminology system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept is a concept that may be defined by one or more codings.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// FirstCode returns the code of the first coding, or "".
func (c CodeableConcept) FirstCode() string {
	if len(c.Coding) == 0 {
		return ""
	}
	return c.Coding[0].Code
}

// ContactPoint is a telecom entry.
type ContactPoint struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

// ContactDetail names a publisher contact.
type ContactDetail struct {
	Name    string         `json:"name,omitempty"`
	Telecom []ContactPoint `json:"telecom,omitempty"`
}

// Implementation describes the specific server instance.
type Implementation struct {
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// CapabilityStatement is the input capability description.
type CapabilityStatement struct {
	ResourceType   string          `json:"resourceType"`
	ID             string          `json:"id,omitempty"`
	Meta           *Meta           `json:"meta,omitempty"`
	URL            string          `json:"url,omitempty"`
	Version        string          `json:"version,omitempty"`
	Name           string          `json:"name,omitempty"`
	Title          string          `json:"title,omitempty"`
	Status         string          `json:"status,omitempty"`
	Description    string          `json:"description,omitempty"`
	Contact        []ContactDetail `json:"contact,omitempty"`
	Implementation *Implementation `json:"implementation,omitempty"`
	FHIRVersion    string          `json:"fhirVersion,omitempty"`
	Format         []string        `json:"format,omitempty"`
	Extension      []Extension     `json:"extension,omitempty"`
	Rest           []Rest          `json:"rest,omitempty"`

	// Raw is the decoded document, including elements not modelled above.
	Raw ResourceInstance `json:"-"`
}

func (cs *CapabilityStatement) UnmarshalJSON(data []byte) error {
	type plain CapabilityStatement
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw ResourceInstance
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*cs = CapabilityStatement(p)
	cs.Raw = raw
	return nil
}

// Instance returns the statement as published. Statements built in code
// have no raw form and are returned as is.
func (cs *CapabilityStatement) Instance() any {
	if cs.Raw != nil {
		return cs.Raw
	}
	return cs
}

// ServerRest returns the first rest block in server mode, or nil.
func (cs *CapabilityStatement) ServerRest() *Rest {
	for i := range cs.Rest {
		if cs.Rest[i].Mode == "server" {
			return &cs.Rest[i]
		}
	}
	return nil
}

// HasProfile reports whether the statement declares the given meta profile.
func (cs *CapabilityStatement) HasProfile(profile string) bool {
	if cs.Meta == nil {
		return false
	}
	for _, p := range cs.Meta.Profile {
		if p == profile {
			return true
		}
	}
	return false
}

// Rest is a rest block of a CapabilityStatement.
type Rest struct {
	Mode          string        `json:"mode"`
	Documentation string        `json:"documentation,omitempty"`
	Security      *Security     `json:"security,omitempty"`
	Resource      []Resource    `json:"resource,omitempty"`
	Interaction   []Interaction `json:"interaction,omitempty"`
	Operation     []Operation   `json:"operation,omitempty"`
}

// Security describes the security posture of a rest block.
type Security struct {
	Cors        *bool             `json:"cors,omitempty"`
	Service     []CodeableConcept `json:"service,omitempty"`
	Description string            `json:"description,omitempty"`
	Extension   []Extension       `json:"extension,omitempty"`
}

// Resource is a per-type capability block.
type Resource struct {
	Type             string        `json:"type"`
	Profile          string        `json:"profile,omitempty"`
	SupportedProfile []string      `json:"supportedProfile,omitempty"`
	Documentation    string        `json:"documentation,omitempty"`
	Interaction      []Interaction `json:"interaction,omitempty"`
	SearchParam      []SearchParam `json:"searchParam,omitempty"`
	Operation        []Operation   `json:"operation,omitempty"`
	Extension        []Extension   `json:"extension,omitempty"`
}

// Profiles returns the declared base profile followed by the supported
// profiles. The result is empty when neither is declared.
func (r *Resource) Profiles() []string {
	var out []string
	if r.Profile != "" {
		out = append(out, r.Profile)
	}
	return append(out, r.SupportedProfile...)
}

// Interaction is a declared interaction code.
type Interaction struct {
	Code          string      `json:"code"`
	Documentation string      `json:"documentation,omitempty"`
	Extension     []Extension `json:"extension,omitempty"`
}

// Operation references an OperationDefinition by canonical URL.
type Operation struct {
	Name          string      `json:"name"`
	Definition    string      `json:"definition"`
	Documentation string      `json:"documentation,omitempty"`
	Extension     []Extension `json:"extension,omitempty"`
}

// SearchParam is a search parameter supported by a resource.
type SearchParam struct {
	Name          string      `json:"name"`
	Definition    string      `json:"definition,omitempty"`
	Type          string      `json:"type"`
	Documentation string      `json:"documentation,omitempty"`
	Extension     []Extension `json:"extension,omitempty"`
}

// StructureDefinition is a profile document. Only the differential is read.
type StructureDefinition struct {
	ResourceType   string        `json:"resourceType"`
	ID             string        `json:"id,omitempty"`
	URL            string        `json:"url"`
	Name           string        `json:"name,omitempty"`
	Type           string        `json:"type,omitempty"`
	BaseDefinition string        `json:"baseDefinition,omitempty"`
	Differential   *Differential `json:"differential,omitempty"`
}

// Differential holds the ordered element constraints of a profile.
type Differential struct {
	Element []ElementDefinition `json:"element"`
}

// ElementDefinition is one element constraint of a differential.
type ElementDefinition struct {
	ID                     string           `json:"id"`
	Path                   string           `json:"path"`
	SliceName              string           `json:"sliceName,omitempty"`
	Min                    int              `json:"min,omitempty"`
	Max                    string           `json:"max,omitempty"`
	PatternBoolean         *bool            `json:"patternBoolean,omitempty"`
	PatternCode            *string          `json:"patternCode,omitempty"`
	PatternCodeableConcept *CodeableConcept `json:"patternCodeableConcept,omitempty"`
}

// IsSlice reports whether the element id denotes a slice definition.
func (e ElementDefinition) IsSlice() bool {
	for _, r := range e.ID {
		if r == ':' {
			return true
		}
	}
	return false
}

// OperationDefinition describes a custom operation.
type OperationDefinition struct {
	ResourceType string               `json:"resourceType"`
	ID           string               `json:"id,omitempty"`
	URL          string               `json:"url"`
	Name         string               `json:"name,omitempty"`
	Title        string               `json:"title,omitempty"`
	Description  string               `json:"description,omitempty"`
	Kind         string               `json:"kind"`
	Code         string               `json:"code"`
	Resource     []string             `json:"resource,omitempty"`
	System       bool                 `json:"system"`
	Type         bool                 `json:"type"`
	Instance     bool                 `json:"instance"`
	Parameter    []OperationParameter `json:"parameter,omitempty"`
}

// OutParameter returns the first "out" parameter, or nil.
func (od *OperationDefinition) OutParameter() *OperationParameter {
	for i := range od.Parameter {
		if od.Parameter[i].Use == "out" {
			return &od.Parameter[i]
		}
	}
	return nil
}

// InParameters returns the "in" parameters in declaration order.
func (od *OperationDefinition) InParameters() []OperationParameter {
	var out []OperationParameter
	for _, p := range od.Parameter {
		if p.Use == "in" {
			out = append(out, p)
		}
	}
	return out
}

// OperationParameter is a parameter of an OperationDefinition.
type OperationParameter struct {
	Name          string `json:"name"`
	Use           string `json:"use"`
	Min           int    `json:"min"`
	Max           string `json:"max,omitempty"`
	Documentation string `json:"documentation,omitempty"`
	Type          string `json:"type,omitempty"`
}

// ResourceInstance is an arbitrary FHIR resource, used for examples.
type ResourceInstance map[string]any

// ResourceType returns the instance's resourceType, or "".
func (r ResourceInstance) ResourceType() string {
	s, _ := r["resourceType"].(string)
	return s
}

// ID returns the instance id, or "".
func (r ResourceInstance) ID() string {
	s, _ := r["id"].(string)
	return s
}

// Key returns the "{resourceType}-{id}" key used for component examples.
func (r ResourceInstance) Key() string {
	return r.ResourceType() + "-" + r.ID()
}

// Profiles returns meta.profile of the instance.
func (r ResourceInstance) Profiles() []string {
	meta, _ := r["meta"].(map[string]any)
	raw, _ := meta["profile"].([]any)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if s, ok := p.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
