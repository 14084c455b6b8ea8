package security

import (
	"sort"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// Requirement is a placeholder security requirement: one scheme and the
// scopes an operation needs under it.
type Requirement struct {
	Scheme string
	Scopes []string
}

type pending struct {
	op  *openapi3.Operation
	req Requirement
	any bool
}

// Collector records the security requirements of operations while they are
// synthesized and writes them back once every operation is known. It is
// safe for concurrent use.
type Collector struct {
	t *Translation

	mu      sync.Mutex
	pending []pending
}

func NewCollector(t *Translation) *Collector {
	return &Collector{t: t}
}

// Translation returns the security posture the collector resolves against.
func (c *Collector) Translation() *Translation {
	return c.t
}

// RequireInteraction records the scopes of a CRUD interaction. SMART takes
// precedence over plain OAuth; without either nothing is recorded.
func (c *Collector) RequireInteraction(op *openapi3.Operation, resourceType, letter string) {
	switch {
	case c.t.HasSMART():
		c.add(pending{op: op, req: Requirement{
			Scheme: SchemeSMART,
			Scopes: InteractionScopes(resourceType, letter, c.t.ScopeBases),
		}})
	case c.t.HasOAuth():
		c.add(pending{op: op, req: Requirement{Scheme: SchemeOAuth, Scopes: []string{c.t.DefaultScope}}})
	}
}

// RequireDefinition records a custom operation, scoped by its canonical
// definition URL under SMART or the default scope under OAuth.
func (c *Collector) RequireDefinition(op *openapi3.Operation, definitionURL string) {
	switch {
	case c.t.HasSMART():
		c.add(pending{op: op, req: Requirement{Scheme: SchemeSMART, Scopes: []string{definitionURL}}})
	case c.t.HasOAuth():
		c.add(pending{op: op, req: Requirement{Scheme: SchemeOAuth, Scopes: []string{c.t.DefaultScope}}})
	}
}

// RequireAny marks an operation that accepts any single known scope.
func (c *Collector) RequireAny(op *openapi3.Operation) {
	if c.t.Empty() {
		return
	}
	c.add(pending{op: op, any: true})
}

func (c *Collector) add(p pending) {
	c.mu.Lock()
	c.pending = append(c.pending, p)
	c.mu.Unlock()
}

// Resolve fills the flow scope dictionaries from the recorded requirements
// and sets the security of every recorded operation. Flows that no
// operation references keep an empty scope dictionary.
func (c *Collector) Resolve() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ref, ok := c.t.Schemes[SchemeSMART]; ok && ref.Value != nil && ref.Value.Flows != nil {
		referenced := c.referencedScopes(SchemeSMART)
		fillFlow(ref.Value.Flows.ClientCredentials, referenced, belongsToClientCredentials)
		fillFlow(ref.Value.Flows.AuthorizationCode, referenced, belongsToAuthorizationCode)
	}
	if ref, ok := c.t.Schemes[SchemeOAuth]; ok && ref.Value != nil && ref.Value.Flows != nil {
		for _, flow := range []*openapi3.OAuthFlow{ref.Value.Flows.ClientCredentials, ref.Value.Flows.AuthorizationCode} {
			if flow != nil && c.t.DefaultScope != "" {
				flow.Scopes = map[string]string{c.t.DefaultScope: DefaultScopeDescription}
			}
		}
	}

	for _, p := range c.pending {
		var reqs openapi3.SecurityRequirements
		if p.any {
			reqs = c.anyScope()
		} else {
			reqs = openapi3.SecurityRequirements{{p.req.Scheme: p.req.Scopes}}
		}
		p.op.Security = &reqs
	}
}

// referencedScopes returns the distinct scopes recorded under scheme.
func (c *Collector) referencedScopes(scheme string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range c.pending {
		if p.any || p.req.Scheme != scheme {
			continue
		}
		for _, s := range p.req.Scopes {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

func fillFlow(flow *openapi3.OAuthFlow, scopes []string, keep func(string) bool) {
	if flow == nil {
		return
	}
	dict := make(map[string]string)
	for _, s := range scopes {
		if keep(s) {
			dict[s] = Describe(s)
		}
	}
	flow.Scopes = dict
}

// anyScope returns one requirement per (scheme, scope) pair over every
// scope registered in the resolved flows.
func (c *Collector) anyScope() openapi3.SecurityRequirements {
	names := make([]string, 0, len(c.t.Schemes))
	for name := range c.t.Schemes {
		names = append(names, name)
	}
	sort.Strings(names)

	reqs := openapi3.SecurityRequirements{}
	for _, name := range names {
		ref := c.t.Schemes[name]
		if ref.Value == nil || ref.Value.Flows == nil {
			continue
		}
		seen := make(map[string]bool)
		for _, flow := range []*openapi3.OAuthFlow{ref.Value.Flows.ClientCredentials, ref.Value.Flows.AuthorizationCode} {
			if flow == nil {
				continue
			}
			scopes := make([]string, 0, len(flow.Scopes))
			for s := range flow.Scopes {
				scopes = append(scopes, s)
			}
			sort.Strings(scopes)
			for _, s := range scopes {
				if seen[s] {
					continue
				}
				seen[s] = true
				reqs = append(reqs, openapi3.SecurityRequirement{name: []string{s}})
			}
		}
	}
	return reqs
}
