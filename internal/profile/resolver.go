// Package profile derives per-profile JSON-Schema fragments by applying
// StructureDefinition differentials onto the base schema of a resource type.
package profile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhir"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhirerr"
	"golang.org/x/sync/errgroup"
)

// BaseProfileKind is the identity kind of an unconstrained resource schema.
const BaseProfileKind = "Base-Profile"

// Definitions looks up StructureDefinitions by canonical URL.
type Definitions interface {
	StructureDefinition(url string) (*fhir.StructureDefinition, bool)
}

// Identity names a profile schema.
type Identity struct {
	Kind string // BaseProfileKind or the definition's resourceType
	ID   string // resource type for base profiles, definition id otherwise
}

// ComponentName is the key of the schema under components.schemas.
func (i Identity) ComponentName() string {
	return i.Kind + "-" + i.ID
}

// ProfileSchema is the schema derived for one profile of a resource type.
type ProfileSchema struct {
	ResourceType string
	URL          string // canonical profile URL
	Identity     Identity
	Schema       Fragment
}

// Ref returns the local reference to the schema's component.
func (p ProfileSchema) Ref() string {
	return "#/components/schemas/" + p.Identity.ComponentName()
}

// Resolver produces ProfileSchemas for resource capability blocks.
type Resolver struct {
	source Source
	defs   Definitions
	log    zerolog.Logger
}

func NewResolver(source Source, defs Definitions, log zerolog.Logger) *Resolver {
	return &Resolver{source: source, defs: defs, log: log}
}

// Resolve returns one schema per declared profile, in declaration order
// (base profile first). Without any declared profile the unconstrained base
// resource is returned. A declared profile missing from the definitions is
// an error, as is a failing base schema lookup.
func (r *Resolver) Resolve(ctx context.Context, resourceType, baseProfile string, supported []string) ([]ProfileSchema, error) {
	var profiles []string
	if baseProfile != "" {
		profiles = append(profiles, baseProfile)
	}
	profiles = append(profiles, supported...)
	if len(profiles) == 0 {
		profiles = append(profiles, fhir.CanonicalResourceURL(resourceType))
	}

	r.log.Debug().
		Str("resource", resourceType).
		Strs("profiles", profiles).
		Msg("resolving profile schemas")

	base, err := r.source.BaseSchema(ctx, resourceType)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", resourceType, err)
	}

	out := make([]ProfileSchema, len(profiles))
	g, _ := errgroup.WithContext(ctx)
	for i, url := range profiles {
		g.Go(func() error {
			ps, err := r.resolveOne(resourceType, url, base)
			if err != nil {
				return err
			}
			out[i] = ps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resolver) resolveOne(resourceType, url string, base Fragment) (ProfileSchema, error) {
	if url == fhir.CanonicalResourceURL(resourceType) {
		return ProfileSchema{
			ResourceType: resourceType,
			URL:          url,
			Identity:     Identity{Kind: BaseProfileKind, ID: resourceType},
			Schema:       Clone(base),
		}, nil
	}

	var sd *fhir.StructureDefinition
	var ok bool
	if r.defs != nil {
		sd, ok = r.defs.StructureDefinition(url)
	}
	if !ok || sd == nil {
		return ProfileSchema{}, &fhirerr.MissingDefinitionError{
			Kind:    "StructureDefinition",
			URL:     url,
			Context: resourceType,
		}
	}

	kind := sd.ResourceType
	if kind == "" {
		kind = "StructureDefinition"
	}
	return ProfileSchema{
		ResourceType: resourceType,
		URL:          url,
		Identity:     Identity{Kind: kind, ID: sd.ID},
		Schema:       Apply(base, sd, r.log),
	}, nil
}
