package spec

import "sort"

// Intermediate Schema Model (ISM) definitions shared by the resolver and the
// emitters. Every schema shape is a Node with exactly one populated case,
// discriminated by Kind. References are never inlined: reuse and cycles are
// both expressed through KindRef, so the emitted form is always acyclic.

type HttpMethod string

const (
	GET     HttpMethod = "get"
	POST    HttpMethod = "post"
	PUT     HttpMethod = "put"
	DELETE  HttpMethod = "delete"
	PATCH   HttpMethod = "patch"
	HEAD    HttpMethod = "head"
	OPTIONS HttpMethod = "options"
	TRACE   HttpMethod = "trace"
)

// NodeKind discriminates the Node union.
type NodeKind string

const (
	KindPrimitive NodeKind = "primitive"
	KindEnum      NodeKind = "enum"
	KindArray     NodeKind = "array"
	KindObject    NodeKind = "object"
	KindUnion     NodeKind = "union"
	KindRef       NodeKind = "ref"
)

// Node is one schema shape. Only the fields belonging to Kind are set.
type Node struct {
	Kind NodeKind `json:"kind"`

	// KindPrimitive: Type is one of string|number|boolean|null.
	Type   string `json:"type,omitempty"`
	Format string `json:"format,omitempty"`

	// KindEnum: literal values in declaration order.
	Enum []any `json:"enum,omitempty"`

	// KindArray
	Elem *Node `json:"elem,omitempty"`

	// KindObject: Props keeps source declaration order. AdditionalProps is
	// nil when additionalProperties is absent or false; a non-nil node
	// renders as an index signature.
	Props           []Property `json:"props,omitempty"`
	AdditionalProps *Node      `json:"additionalProps,omitempty"`

	// KindUnion: variants in declaration order, never deduplicated.
	Variants []*Node `json:"variants,omitempty"`

	// KindRef: bare component name resolvable in the ComponentTable.
	Ref string `json:"ref,omitempty"`

	// Validation constraints, meaningful for primitives and arrays.
	Constraints *Constraints `json:"constraints,omitempty"`
}

// Property is one named member of an object node.
type Property struct {
	Name     string `json:"name"`
	Schema   *Node  `json:"schema"`
	Required bool   `json:"required"`
}

// Constraints carries the OpenAPI restriction keywords the validator emitter
// understands. Pointers distinguish "absent" from zero.
type Constraints struct {
	MinLength *uint64  `json:"minLength,omitempty"`
	MaxLength *uint64  `json:"maxLength,omitempty"`
	Minimum   *float64 `json:"minimum,omitempty"`
	Maximum   *float64 `json:"maximum,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	MinItems  *uint64  `json:"minItems,omitempty"`
	MaxItems  *uint64  `json:"maxItems,omitempty"`
}

// Empty reports whether no constraint keyword is set.
func (c *Constraints) Empty() bool {
	if c == nil {
		return true
	}
	return c.MinLength == nil && c.MaxLength == nil && c.Minimum == nil &&
		c.Maximum == nil && c.Pattern == "" && c.MinItems == nil && c.MaxItems == nil
}

// Parameter is a named path or query parameter of a route.
type Parameter struct {
	Name     string `json:"name"`
	Schema   *Node  `json:"schema"`
	Required bool   `json:"required"`
}

// Response maps one status code of a route to its body schema. Schema may be
// nil for bodiless responses.
type Response struct {
	Status string `json:"status"`
	Schema *Node  `json:"schema,omitempty"`
}

// RouteEntry is one path+method operation. Routes are ordered by path then
// method and form the root of the endpoint-index emission.
type RouteEntry struct {
	Path        string      `json:"path"`
	Method      HttpMethod  `json:"method"`
	PathParams  []Parameter `json:"pathParams,omitempty"`
	QueryParams []Parameter `json:"queryParams,omitempty"`
	RequestBody *Node       `json:"requestBody,omitempty"`
	Responses   []Response  `json:"responses,omitempty"`
}

// Document is the fully resolved ISM for one input document. Components map
// declared component names (case-sensitive) to their nodes; every KindRef in
// the document resolves within that table. The Document is rebuilt from
// scratch on each generation cycle and never mutated afterwards.
type Document struct {
	Title      string           `json:"title,omitempty"`
	Version    string           `json:"version,omitempty"`
	Components map[string]*Node `json:"components"`
	Routes     []RouteEntry     `json:"routes"`
}

// ComponentNames returns the component names in sorted order, the order in
// which top-level declarations are emitted.
func (d *Document) ComponentNames() []string {
	names := make([]string, 0, len(d.Components))
	for name := range d.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
