// Package oas synthesizes OpenAPI path items from the resources,
// interactions and custom operations of a CapabilityStatement.
package oas

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/rs/zerolog"
	"github.com/tewhatuora/fhir-openapi-converter/internal/fhir"
	"github.com/tewhatuora/fhir-openapi-converter/internal/profile"
	"github.com/tewhatuora/fhir-openapi-converter/internal/security"
	"golang.org/x/sync/errgroup"
)

// SystemTag groups operations that are not bound to a resource type.
const SystemTag = "system"

// Definitions resolves the conformance artifacts referenced by a
// CapabilityStatement.
type Definitions interface {
	profile.Definitions
	OperationDefinition(url string) (*fhir.OperationDefinition, bool)
}

// Options shape the generated operations.
type Options struct {
	// ContentTypes are the media types every request and response body is
	// offered in.
	ContentTypes []string
	// DefaultResponseCodes get a generic OperationOutcome error response on
	// every operation.
	DefaultResponseCodes []int
	// SchemaBaseURL locates the {Type}-definition.json base schemas that
	// OperationOutcome and operation results reference.
	SchemaBaseURL string
	// ServerURL prefixes fullUrl in searchset examples.
	ServerURL     string
	GlobalHeaders []fhir.GlobalHeader
}

// Config wires a Synthesizer.
type Config struct {
	Options
	Resolver    *profile.Resolver
	Definitions Definitions
	Examples    Examples
	// Security receives the scope requirements of every operation. It may be
	// nil when the statement declares no security.
	Security *security.Collector
	Logger   zerolog.Logger
}

// Synthesizer builds the paths of one CapabilityStatement.
type Synthesizer struct {
	opts     Options
	resolver *profile.Resolver
	defs     Definitions
	examples Examples
	security *security.Collector
	log      zerolog.Logger
}

func New(cfg Config) *Synthesizer {
	collector := cfg.Security
	if collector == nil {
		collector = security.NewCollector(security.Translate(nil, "", cfg.Logger))
	}
	return &Synthesizer{
		opts:     cfg.Options,
		resolver: cfg.Resolver,
		defs:     cfg.Definitions,
		examples: cfg.Examples,
		security: collector,
		log:      cfg.Logger,
	}
}

// Result is the synthesized path map and everything it references.
type Result struct {
	Paths *PathMap
	// Schemas are the profile schemas of every resource, in resource order.
	Schemas []profile.ProfileSchema
	// Examples are the instances referenced from components.examples.
	Examples map[string]fhir.ResourceInstance
	// Tags are the tags used by operations, system first then resources in
	// declaration order.
	Tags []string
}

type resourceResult struct {
	schemas  []profile.ProfileSchema
	examples map[string]fhir.ResourceInstance
	tagged   bool
}

// Synthesize builds every path of cs. A missing definition or a failing
// base schema lookup aborts the whole statement.
func (s *Synthesizer) Synthesize(ctx context.Context, cs *fhir.CapabilityStatement) (*Result, error) {
	paths := NewPathMap()
	s.addMetadata(paths, cs)

	res := &Result{
		Paths:    paths,
		Examples: make(map[string]fhir.ResourceInstance),
		Tags:     []string{SystemTag},
	}

	rest := cs.ServerRest()
	if rest == nil {
		s.log.Debug().Str("capability", cs.ID).Msg("no server mode rest block")
		return res, nil
	}

	if err := s.addSystemPaths(paths, rest); err != nil {
		return nil, err
	}

	results := make([]resourceResult, len(rest.Resource))
	g, gctx := errgroup.WithContext(ctx)
	for i := range rest.Resource {
		g.Go(func() error {
			r, err := s.addResourcePaths(gctx, paths, &rest.Resource[i])
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, r := range results {
		res.Schemas = append(res.Schemas, r.schemas...)
		for k, v := range r.examples {
			res.Examples[k] = v
		}
		if r.tagged {
			res.Tags = append(res.Tags, rest.Resource[i].Type)
		}
	}
	return res, nil
}

// interaction describes how one interaction code maps onto an operation.
type interaction struct {
	name     string // interaction type in summaries and response text
	method   string
	suffix   string // path template suffix after /{Type}
	letter   string // scope letter
	summary  string
	idPrefix string
	pathVars []string
	search   bool
	body     bool
}

var interactions = map[string]interaction{
	"read": {
		name: "read", method: http.MethodGet, suffix: "/{rid}", letter: security.LetterRead,
		summary: "Read %s", idPrefix: "read", pathVars: []string{"rid"},
	},
	"vread": {
		name: "vread", method: http.MethodGet, suffix: "/{rid}/_history/{vid}", letter: security.LetterRead,
		summary: "Read %s (versioned)", idPrefix: "vread", pathVars: []string{"rid", "vid"},
	},
	"search-type": {
		name: "search", method: http.MethodGet, letter: security.LetterSearch,
		summary: "Search for %s", idPrefix: "search", search: true,
	},
	"create": {
		name: "create", method: http.MethodPost, letter: security.LetterCreate,
		summary: "Create %s", idPrefix: "create", body: true,
	},
	"update": {
		name: "update", method: http.MethodPut, suffix: "/{rid}", letter: security.LetterUpdate,
		summary: "Update %s", idPrefix: "update", pathVars: []string{"rid"}, body: true,
	},
	"patch": {
		name: "patch", method: http.MethodPatch, suffix: "/{rid}", letter: security.LetterUpdate,
		summary: "Patch for %s", idPrefix: "patch", pathVars: []string{"rid"}, body: true,
	},
	"delete": {
		name: "delete", method: http.MethodDelete, suffix: "/{rid}", letter: security.LetterDelete,
		summary: "Delete %s", idPrefix: "delete", pathVars: []string{"rid"},
	},
}

var pathVarDescriptions = map[string]string{
	"rid": "Resource id",
	"vid": "Resource version id",
}

func (s *Synthesizer) addResourcePaths(ctx context.Context, paths *PathMap, res *fhir.Resource) (resourceResult, error) {
	s.log.Debug().
		Str("resource", res.Type).
		Int("interactions", len(res.Interaction)).
		Int("operations", len(res.Operation)).
		Msg("building resource paths")

	schemas, err := s.resolver.Resolve(ctx, res.Type, res.Profile, res.SupportedProfile)
	if err != nil {
		return resourceResult{}, err
	}
	examples := matchExamples(s.examples, schemas)
	refs := profileRefs(schemas)

	var mu sync.Mutex
	tagged := false

	g, _ := errgroup.WithContext(ctx)
	for _, in := range res.Interaction {
		def, ok := interactions[in.Code]
		if !ok {
			s.log.Warn().Str("resource", res.Type).Str("code", in.Code).Msg("skipping unsupported interaction")
			continue
		}
		g.Go(func() error {
			op := s.interactionOperation(def, res, refs, examples)
			template := "/" + res.Type + def.suffix
			if !paths.Add(template, def.method, op) {
				s.log.Warn().Str("path", template).Str("method", def.method).Msg("duplicate operation ignored")
				return nil
			}
			s.security.RequireInteraction(op, res.Type, def.letter)
			mu.Lock()
			tagged = true
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return resourceResult{}, err
	}

	added, err := s.addCustomOperations(paths, res.Type, res.Operation)
	if err != nil {
		return resourceResult{}, err
	}

	return resourceResult{
		schemas:  schemas,
		examples: examples.instances,
		tagged:   tagged || added > 0,
	}, nil
}

func (s *Synthesizer) interactionOperation(def interaction, res *fhir.Resource, refs openapi3.SchemaRefs, examples exampleSet) *openapi3.Operation {
	summary := fmt.Sprintf(def.summary, res.Type)

	var pathParams openapi3.Parameters
	for _, v := range def.pathVars {
		pathParams = append(pathParams, pathParam(v, pathVarDescriptions[v]))
	}
	var queryParams openapi3.Parameters
	if def.search {
		queryParams = searchParams(res.SearchParam, s.log)
	}

	op := &openapi3.Operation{
		Summary:     summary,
		Description: summary,
		Tags:        []string{res.Type},
		OperationID: def.idPrefix + res.Type,
		Parameters:  concatParams(globalHeaderParams(s.opts.GlobalHeaders), pathParams, queryParams),
		Responses:   s.resourceResponses(def.name, res.Type, refs, examples),
	}
	if def.body {
		op.RequestBody = s.requestBody(res.Type, refs, examples)
	}
	return op
}

// addSystemPaths adds the batch/transaction endpoint and the system level
// custom operations.
func (s *Synthesizer) addSystemPaths(paths *PathMap, rest *fhir.Rest) error {
	if len(rest.Interaction) > 0 {
		codes := make([]string, 0, len(rest.Interaction))
		for _, in := range rest.Interaction {
			codes = append(codes, in.Code)
		}
		op := &openapi3.Operation{
			Summary:     "System level interactions",
			Description: "System level interactions",
			Tags:        []string{SystemTag},
			OperationID: "systemInteractions",
			Parameters:  globalHeaderParams(s.opts.GlobalHeaders),
			RequestBody: &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
				WithDescription("Bundle of " + joinCodes(codes) + " entries").
				WithRequired(true).
				WithContent(s.content(bundleRequestSchema(codes).NewRef(), nil))},
			Responses: s.responses("system", map[int]*openapi3.ResponseRef{
				200: response("Successful system level interaction",
					s.content(bundleResponseSchema(responseTypes(codes), nil).NewRef(), nil)),
			}),
		}
		if paths.Add("/", http.MethodPost, op) {
			s.security.RequireAny(op)
		}
	}

	_, err := s.addCustomOperations(paths, "", rest.Operation)
	return err
}

// addMetadata adds GET /metadata returning the statement itself.
func (s *Synthesizer) addMetadata(paths *PathMap, cs *fhir.CapabilityStatement) {
	key := "CapabilityStatement-" + cs.ID
	examples := openapi3.Examples{
		key: &openapi3.ExampleRef{Value: openapi3.NewExample(cs.Instance())},
	}
	op := &openapi3.Operation{
		Summary:     "Server capability statement",
		Description: "Returns the CapabilityStatement describing this server",
		Tags:        []string{SystemTag},
		OperationID: "metadata",
		Parameters:  globalHeaderParams(s.opts.GlobalHeaders),
		Responses: s.responses("metadata", map[int]*openapi3.ResponseRef{
			200: response("Successful metadata operation",
				s.content(s.baseSchemaRef("CapabilityStatement"), examples)),
		}),
	}
	paths.Add("/metadata", http.MethodGet, op)
}

func joinCodes(codes []string) string {
	out := ""
	for i, c := range codes {
		switch {
		case i == 0:
		case i == len(codes)-1:
			out += " or "
		default:
			out += ", "
		}
		out += c
	}
	return out
}
