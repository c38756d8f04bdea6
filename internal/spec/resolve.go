package spec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/goccy/go-json"
)

// Resolve converts a loaded OpenAPI v3 document into the ISM: a component
// table plus the ordered route entries. Every internal $ref becomes a
// KindRef naming a component in the table; pointers that do not resolve fail
// with a ResolutionError carrying the offending pointer.
//
// Cycle handling: while a component is being expanded its name sits on the
// active resolution path. Re-encountering that component (by pointer or by
// the loader having inlined the schema value) resolves to a KindRef
// immediately instead of re-expanding, so the built ISM is acyclic by
// construction.
func Resolve(doc *openapi3.T) (*Document, error) {
	if doc == nil {
		return nil, &SpecError{Code: ResolutionError, Message: "resolve: nil document"}
	}

	r := &resolver{
		components: map[string]*openapi3.SchemaRef{},
		names:      map[*openapi3.Schema]string{},
		building:   map[string]bool{},
		out:        map[string]*Node{},
	}
	if doc.Components != nil {
		for name, ref := range doc.Components.Schemas {
			r.components[name] = ref
			if ref != nil && ref.Value != nil {
				r.names[ref.Value] = name
			}
		}
	}

	for _, name := range sortedKeys(r.components) {
		if _, done := r.out[name]; done {
			continue
		}
		node, err := r.expandComponent(name)
		if err != nil {
			return nil, err
		}
		r.out[name] = node
	}

	routes, err := r.routes(doc)
	if err != nil {
		return nil, err
	}

	out := &Document{
		Components: r.out,
		Routes:     routes,
	}
	if doc.Info != nil {
		out.Title = strings.TrimSpace(doc.Info.Title)
		out.Version = strings.TrimSpace(doc.Info.Version)
	}
	return out, nil
}

type resolver struct {
	components map[string]*openapi3.SchemaRef
	names      map[*openapi3.Schema]string // schema value identity → component name
	building   map[string]bool             // active resolution path
	out        map[string]*Node
}

// expandComponent builds the node for a top-level component, bypassing the
// identity shortcut for its own schema value so the component body is
// expanded exactly once.
func (r *resolver) expandComponent(name string) (*Node, error) {
	ref := r.components[name]
	ptr := "#/components/schemas/" + name
	if ref == nil {
		return nil, &SpecError{Code: ResolutionError, Message: fmt.Sprintf("resolve: component %q has no schema", name), JSONPointer: ptr}
	}
	if ref.Ref != "" {
		return r.refNode(ref.Ref, ptr)
	}
	if ref.Value == nil {
		// Bare entry with no body; treat as an unconstrained value.
		return &Node{Kind: KindPrimitive, Type: "unknown"}, nil
	}
	r.building[name] = true
	defer delete(r.building, name)
	return r.schema(ref.Value, ptr)
}

// componentNode returns the built node for name, expanding on demand. Used
// by conjunction merges, which need the referenced component's shape.
func (r *resolver) componentNode(name, ptr string) (*Node, error) {
	if node, ok := r.out[name]; ok {
		return node, nil
	}
	if r.building[name] {
		return nil, &SpecError{Code: ResolutionError, Message: fmt.Sprintf("resolve: cannot merge cyclic reference to %q", name), JSONPointer: ptr}
	}
	if _, ok := r.components[name]; !ok {
		return nil, &SpecError{Code: ResolutionError, Message: fmt.Sprintf("resolve: unresolved pointer to %q", name), JSONPointer: ptr}
	}
	node, err := r.expandComponent(name)
	if err != nil {
		return nil, err
	}
	r.out[name] = node
	return node, nil
}

func (r *resolver) refNode(raw, ptr string) (*Node, error) {
	name := refName(raw)
	if name == "" {
		return nil, &SpecError{Code: ResolutionError, Message: fmt.Sprintf("resolve: malformed pointer %q", raw), JSONPointer: ptr}
	}
	if _, ok := r.components[name]; !ok {
		return nil, &SpecError{Code: ResolutionError, Message: fmt.Sprintf("resolve: pointer %q does not name a declared component", raw), JSONPointer: ptr}
	}
	return &Node{Kind: KindRef, Ref: name}, nil
}

func (r *resolver) schemaOrRef(ref *openapi3.SchemaRef, ptr string) (*Node, error) {
	if ref == nil || (ref.Ref == "" && ref.Value == nil) {
		return &Node{Kind: KindPrimitive, Type: "unknown"}, nil
	}
	if ref.Ref != "" {
		return r.refNode(ref.Ref, ptr)
	}
	// The loader may have inlined a component's schema value. A value that is
	// pointer-identical to a declared component stays a named link, which is
	// also what terminates direct and transitive self-reference.
	if name, ok := r.names[ref.Value]; ok {
		return &Node{Kind: KindRef, Ref: name}, nil
	}
	return r.schema(ref.Value, ptr)
}

func (r *resolver) schema(s *openapi3.Schema, ptr string) (*Node, error) {
	if s == nil {
		return &Node{Kind: KindPrimitive, Type: "unknown"}, nil
	}

	var node *Node
	var err error
	switch {
	case len(s.AllOf) > 0:
		node, err = r.mergeAllOf(s, ptr)
	case len(s.OneOf) > 0:
		node, err = r.union(s.OneOf, ptr+"/oneOf")
	case len(s.AnyOf) > 0:
		node, err = r.union(s.AnyOf, ptr+"/anyOf")
	case len(s.Enum) > 0:
		node = &Node{Kind: KindEnum, Enum: append([]any(nil), s.Enum...)}
	case s.Type == "array":
		var elem *Node
		elem, err = r.schemaOrRef(s.Items, ptr+"/items")
		if err == nil {
			node = &Node{Kind: KindArray, Elem: elem, Constraints: arrayConstraints(s)}
		}
	case s.Type == "object" || len(s.Properties) > 0:
		node, err = r.object(s, ptr)
	case s.Type == "string":
		node = &Node{Kind: KindPrimitive, Type: "string", Format: s.Format, Constraints: stringConstraints(s)}
	case s.Type == "integer", s.Type == "number":
		node = &Node{Kind: KindPrimitive, Type: "number", Format: s.Format, Constraints: numberConstraints(s)}
	case s.Type == "boolean":
		node = &Node{Kind: KindPrimitive, Type: "boolean"}
	case s.Type == "null":
		node = &Node{Kind: KindPrimitive, Type: "null"}
	default:
		node = &Node{Kind: KindPrimitive, Type: "unknown"}
	}
	if err != nil {
		return nil, err
	}

	if s.Nullable && !(node.Kind == KindPrimitive && (node.Type == "null" || node.Type == "unknown")) {
		node = &Node{Kind: KindUnion, Variants: []*Node{node, {Kind: KindPrimitive, Type: "null"}}}
	}
	return node, nil
}

func (r *resolver) object(s *openapi3.Schema, ptr string) (*Node, error) {
	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}

	props := make([]Property, 0, len(s.Properties))
	for _, name := range sortedKeys(s.Properties) {
		child, err := r.schemaOrRef(s.Properties[name], ptr+"/properties/"+name)
		if err != nil {
			return nil, err
		}
		props = append(props, Property{Name: name, Schema: child, Required: required[name]})
	}

	node := &Node{Kind: KindObject, Props: props}
	if s.AdditionalProperties.Schema != nil {
		extra, err := r.schemaOrRef(s.AdditionalProperties.Schema, ptr+"/additionalProperties")
		if err != nil {
			return nil, err
		}
		node.AdditionalProps = extra
	} else if s.AdditionalProperties.Has != nil && *s.AdditionalProperties.Has {
		node.AdditionalProps = &Node{Kind: KindPrimitive, Type: "unknown"}
	}
	return node, nil
}

func (r *resolver) union(refs openapi3.SchemaRefs, ptr string) (*Node, error) {
	variants := make([]*Node, 0, len(refs))
	for i, ref := range refs {
		v, err := r.schemaOrRef(ref, fmt.Sprintf("%s/%d", ptr, i))
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	// Variant order is the contract; no canonicalization or deduplication.
	return &Node{Kind: KindUnion, Variants: variants}, nil
}

// mergeAllOf folds a conjunction into a single object node. Every member
// must contribute an object shape; a property declared by more than one
// member must agree structurally, else the merge fails with a ConflictError.
func (r *resolver) mergeAllOf(s *openapi3.Schema, ptr string) (*Node, error) {
	members := make([]*Node, 0, len(s.AllOf)+1)
	for i, ref := range s.AllOf {
		mptr := fmt.Sprintf("%s/allOf/%d", ptr, i)
		m, err := r.schemaOrRef(ref, mptr)
		if err != nil {
			return nil, err
		}
		if m.Kind == KindRef {
			m, err = r.componentNode(m.Ref, mptr)
			if err != nil {
				return nil, err
			}
		}
		members = append(members, m)
	}
	// Inline properties alongside allOf participate in the merge too.
	if len(s.Properties) > 0 {
		inline, err := r.object(s, ptr)
		if err != nil {
			return nil, err
		}
		members = append(members, inline)
	}

	merged := &Node{Kind: KindObject}
	seen := map[string]int{} // property name → index in merged.Props
	for _, m := range members {
		if m.Kind != KindObject {
			return nil, &SpecError{Code: ConflictError, Message: fmt.Sprintf("resolve: conjunction member at %s is not an object", ptr), JSONPointer: ptr}
		}
		for _, p := range m.Props {
			if idx, dup := seen[p.Name]; dup {
				prev := merged.Props[idx]
				if nodeSignature(prev.Schema) != nodeSignature(p.Schema) {
					return nil, &SpecError{
						Code:        ConflictError,
						Message:     fmt.Sprintf("resolve: property %q declared with conflicting types across conjunction members", p.Name),
						JSONPointer: ptr,
					}
				}
				if p.Required {
					merged.Props[idx].Required = true
				}
				continue
			}
			seen[p.Name] = len(merged.Props)
			merged.Props = append(merged.Props, p)
		}
		if merged.AdditionalProps == nil && m.AdditionalProps != nil {
			merged.AdditionalProps = m.AdditionalProps
		}
	}
	return merged, nil
}

func (r *resolver) routes(doc *openapi3.T) ([]RouteEntry, error) {
	if doc.Paths == nil {
		return nil, nil
	}
	pathKeys := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		pathKeys = append(pathKeys, p)
	}
	sort.Strings(pathKeys)

	var routes []RouteEntry
	for _, p := range pathKeys {
		item := doc.Paths[p]
		if item == nil {
			continue
		}
		ops := []struct {
			m HttpMethod
			o *openapi3.Operation
		}{
			{GET, item.Get},
			{POST, item.Post},
			{PUT, item.Put},
			{DELETE, item.Delete},
			{PATCH, item.Patch},
			{HEAD, item.Head},
			{OPTIONS, item.Options},
			{TRACE, item.Trace},
		}
		for _, pair := range ops {
			if pair.o == nil {
				continue
			}
			entry, err := r.route(p, pair.m, item, pair.o)
			if err != nil {
				return nil, err
			}
			routes = append(routes, *entry)
		}
	}
	return routes, nil
}

func (r *resolver) route(path string, method HttpMethod, item *openapi3.PathItem, op *openapi3.Operation) (*RouteEntry, error) {
	ptr := fmt.Sprintf("#/paths/%s/%s", escapePointer(path), method)

	// Merge parameters: path-level first, overridden by op-level.
	merged := map[string]*openapi3.Parameter{}
	for _, pref := range item.Parameters {
		if pref != nil && pref.Value != nil {
			merged[pref.Value.In+":"+pref.Value.Name] = pref.Value
		}
	}
	for _, pref := range op.Parameters {
		if pref != nil && pref.Value != nil {
			merged[pref.Value.In+":"+pref.Value.Name] = pref.Value
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entry := &RouteEntry{Path: path, Method: method}
	for _, k := range keys {
		p := merged[k]
		node, err := r.schemaOrRef(p.Schema, ptr+"/parameters/"+p.Name)
		if err != nil {
			return nil, err
		}
		param := Parameter{Name: p.Name, Schema: node, Required: p.Required}
		switch p.In {
		case "path":
			// Path template variables are always required.
			param.Required = true
			entry.PathParams = append(entry.PathParams, param)
		case "query":
			entry.QueryParams = append(entry.QueryParams, param)
		}
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		if ref := preferredMedia(op.RequestBody.Value.Content); ref != nil {
			node, err := r.schemaOrRef(ref, ptr+"/requestBody")
			if err != nil {
				return nil, err
			}
			entry.RequestBody = node
		}
	}

	if op.Responses != nil {
		codes := make([]string, 0, len(op.Responses))
		for code := range op.Responses {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			rref := op.Responses[code]
			if rref == nil || rref.Value == nil {
				continue
			}
			resp := Response{Status: code}
			if ref := preferredMedia(rref.Value.Content); ref != nil {
				node, err := r.schemaOrRef(ref, ptr+"/responses/"+code)
				if err != nil {
					return nil, err
				}
				resp.Schema = node
			}
			entry.Responses = append(entry.Responses, resp)
		}
	}
	return entry, nil
}

// preferredMedia picks the schema to describe a body: application/json when
// present, otherwise the first media type in sorted order.
func preferredMedia(content openapi3.Content) *openapi3.SchemaRef {
	if len(content) == 0 {
		return nil
	}
	if mt := content["application/json"]; mt != nil && mt.Schema != nil {
		return mt.Schema
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if mt := content[k]; mt != nil && mt.Schema != nil {
			return mt.Schema
		}
	}
	return nil
}

func refName(raw string) string {
	idx := strings.LastIndex(raw, "/")
	if idx < 0 || idx == len(raw)-1 {
		return ""
	}
	// Only component-schema pointers resolve; anything else fails lookup.
	if !strings.HasPrefix(raw, "#/components/schemas/") && !strings.HasPrefix(raw, "#/definitions/") {
		return ""
	}
	return raw[idx+1:]
}

// nodeSignature is a deterministic structural encoding used for conflict
// detection in conjunction merges.
func nodeSignature(n *Node) string {
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Sprintf("!%v", err)
	}
	return string(b)
}

func escapePointer(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringConstraints(s *openapi3.Schema) *Constraints {
	c := &Constraints{Pattern: s.Pattern}
	if s.MinLength > 0 {
		v := s.MinLength
		c.MinLength = &v
	}
	if s.MaxLength != nil {
		v := *s.MaxLength
		c.MaxLength = &v
	}
	if c.Empty() {
		return nil
	}
	return c
}

func numberConstraints(s *openapi3.Schema) *Constraints {
	c := &Constraints{}
	if s.Min != nil {
		v := *s.Min
		c.Minimum = &v
	}
	if s.Max != nil {
		v := *s.Max
		c.Maximum = &v
	}
	if c.Empty() {
		return nil
	}
	return c
}

func arrayConstraints(s *openapi3.Schema) *Constraints {
	c := &Constraints{}
	if s.MinItems > 0 {
		v := s.MinItems
		c.MinItems = &v
	}
	if s.MaxItems != nil {
		v := *s.MaxItems
		c.MaxItems = &v
	}
	if c.Empty() {
		return nil
	}
	return c
}
