// Package generator assembles the OpenAPI document of a CapabilityStatement
// and writes it to disk.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/rs/zerolog"
	"github.com/tewhatuora/fhir-openapi-converter/internal/config"
	"github.com/tewhatuora/fhir-openapi-converter/internal/dedupe"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhir"
	"github.com/tewhatuora/fhir-openapi-converter/internal/oas"
	"github.com/tewhatuora/fhir-openapi-converter/internal/profile"
	"github.com/tewhatuora/fhir-openapi-converter/internal/security"
)

// OpenAPIVersion is the version of every emitted document.
const OpenAPIVersion = "3.0.3"

// Extensions identifying the source statement.
const (
	ExtCapabilityURL = "x-capabilitystatement-url"
	ExtCapabilityID  = "x-capabilitystatement-id"
)

const externalDocsDescription = "FHIR Implementation Guide"

// Options control document assembly.
type Options struct {
	ContentTypes         []string
	DefaultResponseCodes []int
	SchemaBaseURL        string
	DefaultOAuthScope    string
	DedupeSchemas        bool
	CheckSchemas         bool
}

// OptionsFromConfig picks the assembly options out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ContentTypes:         cfg.ContentType,
		DefaultResponseCodes: cfg.DefaultResponseCodes(),
		SchemaBaseURL:        cfg.SchemaBaseURL,
		DefaultOAuthScope:    cfg.DefaultOAuthScope,
		DedupeSchemas:        cfg.DedupeSchemas,
		CheckSchemas:         cfg.CheckSchemas,
	}
}

// Generator compiles CapabilityStatements against one set of artifacts.
type Generator struct {
	opts     Options
	source   profile.Source
	defs     oas.Definitions
	examples oas.Examples
	log      zerolog.Logger
}

// New creates a Generator. The base schema source is shared across every
// statement compiled by the Generator.
func New(opts Options, source profile.Source, defs oas.Definitions, examples oas.Examples, log zerolog.Logger) *Generator {
	return &Generator{
		opts:     opts,
		source:   source,
		defs:     defs,
		examples: examples,
		log:      log,
	}
}

// Generate builds the OpenAPI document of cs.
func (g *Generator) Generate(ctx context.Context, cs *fhir.CapabilityStatement) (*openapi3.T, error) {
	log := g.log.With().Str("capability", cs.ID).Logger()

	var sec *fhir.Security
	if rest := cs.ServerRest(); rest != nil {
		sec = rest.Security
	}
	translation := security.Translate(sec, g.opts.DefaultOAuthScope, log)
	collector := security.NewCollector(translation)

	details := cs.PublishingDetails()
	if details.Invalid > 0 {
		log.Warn().Int("count", details.Invalid).Msg("skipping global headers without key or value")
	}

	synth := oas.New(oas.Config{
		Options: oas.Options{
			ContentTypes:         g.opts.ContentTypes,
			DefaultResponseCodes: g.opts.DefaultResponseCodes,
			SchemaBaseURL:        g.opts.SchemaBaseURL,
			ServerURL:            serverURL(cs),
			GlobalHeaders:        details.GlobalHeaders,
		},
		Resolver:    profile.NewResolver(g.source, g.defs, log),
		Definitions: g.defs,
		Examples:    g.examples,
		Security:    collector,
		Logger:      log,
	})
	res, err := synth.Synthesize(ctx, cs)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", cs.ID, err)
	}
	collector.Resolve()

	schemas, err := componentSchemas(res.Schemas)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", cs.ID, err)
	}
	if g.opts.DedupeSchemas {
		report, err := dedupe.Schemas(schemas, log)
		if err != nil {
			return nil, fmt.Errorf("dedupe %s: %w", cs.ID, err)
		}
		log.Info().Int("shared", report.Shared).Int("replaced", report.Replaced).Msg("deduplicated schemas")
	}
	if g.opts.CheckSchemas {
		checkSchemas(res.Schemas, log)
	}

	doc := &openapi3.T{
		Extensions: map[string]any{
			ExtCapabilityURL: cs.URL,
			ExtCapabilityID:  cs.ID,
		},
		OpenAPI: OpenAPIVersion,
		Info:    info(cs, details),
		Servers: servers(cs),
		Tags:    tags(res.Tags),
		Paths:   res.Paths.Paths(),
		Components: &openapi3.Components{
			Schemas:         schemas,
			SecuritySchemes: translation.Schemes,
			Examples:        componentExamples(res.Examples),
		},
	}
	if details.ExternalDocs != "" {
		doc.ExternalDocs = &openapi3.ExternalDocs{
			Description: externalDocsDescription,
			URL:         details.ExternalDocs,
		}
	}

	log.Info().
		Int("paths", len(res.Paths.Templates())).
		Int("schemas", len(schemas)).
		Int("examples", len(res.Examples)).
		Msg("generated OpenAPI document")
	return doc, nil
}

func serverURL(cs *fhir.CapabilityStatement) string {
	if cs.Implementation == nil {
		return ""
	}
	return cs.Implementation.URL
}

func info(cs *fhir.CapabilityStatement, details fhir.PublishingDetails) *openapi3.Info {
	title := cs.Title
	if title == "" {
		title = cs.Description
	}
	if title == "" {
		title = cs.Name
	}
	inf := &openapi3.Info{
		Title:       title,
		Description: cs.Description,
		Version:     cs.Version,
	}
	if details.LicenseName != "" {
		inf.License = &openapi3.License{Name: details.LicenseName, URL: details.LicenseURL}
	}
	inf.Contact = contact(cs.Contact)
	return inf
}

// contact picks the first publisher contact that has a url.
func contact(list []fhir.ContactDetail) *openapi3.Contact {
	for _, c := range list {
		out := &openapi3.Contact{Name: c.Name}
		for _, tp := range c.Telecom {
			switch tp.System {
			case "url":
				if out.URL == "" {
					out.URL = tp.Value
				}
			case "email":
				if out.Email == "" {
					out.Email = tp.Value
				}
			}
		}
		if out.URL != "" {
			return out
		}
	}
	return nil
}

func servers(cs *fhir.CapabilityStatement) openapi3.Servers {
	if cs.Implementation == nil || cs.Implementation.URL == "" {
		return nil
	}
	return openapi3.Servers{{
		URL:         cs.Implementation.URL,
		Description: cs.Implementation.Description,
	}}
}

func tags(names []string) openapi3.Tags {
	out := make(openapi3.Tags, 0, len(names))
	for _, name := range names {
		if name == oas.SystemTag {
			out = append(out, &openapi3.Tag{
				Name:        name,
				Description: "System level operations",
			})
			continue
		}
		out = append(out, &openapi3.Tag{
			Name:        name,
			Description: "Operations related to " + name + " FHIR resource",
			ExternalDocs: &openapi3.ExternalDocs{
				Description: "FHIR " + name + " resource",
				URL:         "https://www.hl7.org/fhir/" + strings.ToLower(name) + ".html",
			},
		})
	}
	return out
}

// componentSchemas converts the profile schemas into components.schemas.
func componentSchemas(list []profile.ProfileSchema) (openapi3.Schemas, error) {
	out := make(openapi3.Schemas, len(list))
	for _, ps := range list {
		data, err := json.Marshal(ps.Schema)
		if err != nil {
			return nil, fmt.Errorf("encode schema %s: %w", ps.URL, err)
		}
		var schema openapi3.Schema
		if err := json.Unmarshal(data, &schema); err != nil {
			return nil, fmt.Errorf("decode schema %s: %w", ps.URL, err)
		}
		out[ps.Identity.ComponentName()] = openapi3.NewSchemaRef("", &schema)
	}
	return out, nil
}

func componentExamples(instances map[string]fhir.ResourceInstance) openapi3.Examples {
	out := make(openapi3.Examples, len(instances))
	for key, instance := range instances {
		out[key] = &openapi3.ExampleRef{Value: openapi3.NewExample(map[string]any(instance))}
	}
	return out
}

// checkSchemas reports derived profile schemas that are not valid draft-07
// JSON Schema. Problems are logged, never fatal.
func checkSchemas(schemas []profile.ProfileSchema, log zerolog.Logger) {
	for _, ps := range schemas {
		issues, err := profile.CheckSchema(ps.Schema)
		if err != nil {
			log.Warn().Err(err).Str("url", ps.URL).Msg("cannot check profile schema")
			continue
		}
		for _, issue := range issues {
			log.Warn().
				Str("schema", ps.Identity.ComponentName()).
				Str("url", ps.URL).
				Str("location", issue.Location).
				Msg(issue.Message)
		}
	}
}
