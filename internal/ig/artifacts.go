// Package ig loads the conformance artifacts of an implementation guide from
// a folder or from remote FHIR packages.
package ig

import (
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhir"
)

// Artifacts are the classified contents of an implementation guide.
type Artifacts struct {
	// Dir is the folder the artifacts were read from.
	Dir string

	CapabilityStatements []*fhir.CapabilityStatement
	StructureDefinitions map[string]*fhir.StructureDefinition // by canonical url
	OperationDefinitions map[string]*fhir.OperationDefinition // by canonical url
	// Examples are keyed by the first meta.profile of each instance.
	Examples map[string][]fhir.ResourceInstance
}

func newArtifacts(dir string) *Artifacts {
	return &Artifacts{
		Dir:                  dir,
		StructureDefinitions: make(map[string]*fhir.StructureDefinition),
		OperationDefinitions: make(map[string]*fhir.OperationDefinition),
		Examples:             make(map[string][]fhir.ResourceInstance),
	}
}

func (a *Artifacts) StructureDefinition(url string) (*fhir.StructureDefinition, bool) {
	sd, ok := a.StructureDefinitions[url]
	return sd, ok
}

func (a *Artifacts) OperationDefinition(url string) (*fhir.OperationDefinition, bool) {
	od, ok := a.OperationDefinitions[url]
	return od, ok
}

// ExampleCount returns the number of example instances across all profiles.
func (a *Artifacts) ExampleCount() int {
	n := 0
	for _, list := range a.Examples {
		n += len(list)
	}
	return n
}
