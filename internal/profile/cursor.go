package profile

// cursor walks a schema along the segments of an element path. Every schema
// node visited is kept in an arena indexed by segment depth: nodes[i] is the
// object schema whose properties hold segments[i].
type cursor struct {
	segments []string
	nodes    []Fragment
}

func newCursor(root Fragment, segments []string) *cursor {
	return &cursor{
		segments: segments,
		nodes:    append(make([]Fragment, 0, len(segments)), root),
	}
}

// walk descends to the node holding the final segment, creating any missing
// intermediate containers on the way.
func (c *cursor) walk() {
	for i := 0; i < len(c.segments)-1; i++ {
		child := ensureContainer(c.nodes[i], c.segments[i])
		c.nodes = append(c.nodes, child)
	}
}

// parent returns the node holding the final segment. Only valid after walk.
func (c *cursor) parent() Fragment {
	return c.nodes[len(c.nodes)-1]
}

// leaf returns the final path segment.
func (c *cursor) leaf() string {
	return c.segments[len(c.segments)-1]
}

// depth returns the number of arena nodes.
func (c *cursor) depth() int {
	return len(c.nodes)
}

// ensureProperties returns the properties map of node, creating it if absent.
func ensureProperties(node Fragment) Fragment {
	props, ok := node["properties"].(Fragment)
	if !ok {
		props = Fragment{}
		node["properties"] = props
	}
	return props
}

// ensureContainer returns the object schema addressed by name under node.
// Arrays are entered through their items schema; a missing property becomes
// an empty object schema.
func ensureContainer(node Fragment, name string) Fragment {
	props := ensureProperties(node)
	child, ok := props[name].(Fragment)
	if !ok {
		child = Fragment{"type": "object", "properties": Fragment{}}
		props[name] = child
		return child
	}
	if isArray(child) {
		items, ok := child["items"].(Fragment)
		if !ok {
			items = Fragment{"type": "object", "properties": Fragment{}}
			child["items"] = items
		}
		return items
	}
	return child
}

// property returns the schema of name under node, or nil.
func property(node Fragment, name string) Fragment {
	props, _ := node["properties"].(Fragment)
	child, _ := props[name].(Fragment)
	return child
}

func isArray(node Fragment) bool {
	if node == nil {
		return false
	}
	switch t := node["type"].(type) {
	case string:
		return t == "array"
	case []any:
		for _, v := range t {
			if v == "array" {
				return true
			}
		}
	}
	return false
}

// addRequired appends name to node's required list unless already present.
func addRequired(node Fragment, name string) {
	required := requiredList(node)
	for _, r := range required {
		if r == name {
			return
		}
	}
	node["required"] = append(required, name)
}

// removeRequired drops names from node's required list, deleting the list
// when it becomes empty.
func removeRequired(node Fragment, names ...string) {
	required := requiredList(node)
	if required == nil {
		return
	}
	kept := required[:0]
	for _, r := range required {
		drop := false
		for _, n := range names {
			if r == n {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(node, "required")
		return
	}
	node["required"] = kept
}

// requiredList normalizes node's required list to []any.
func requiredList(node Fragment) []any {
	switch r := node["required"].(type) {
	case []any:
		return r
	case []string:
		out := make([]any, len(r))
		for i, s := range r {
			out[i] = s
		}
		return out
	}
	return nil
}
