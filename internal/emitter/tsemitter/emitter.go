// Package tsemitter renders the ISM into TypeScript type declarations: one
// named declaration per component, the endpoint index keyed by path then
// method, and (optionally) the two generic extraction helpers.
package tsemitter

import (
	"strings"

	"github.com/mark3labs/swagger2ts/internal/emitter"
	"github.com/mark3labs/swagger2ts/internal/spec"
)

// Options controls how the type emitter renders a document.
type Options struct {
	// Helpers adds the RequestOf/ResponseOf extraction types.
	Helpers bool
	// Fingerprint, when non-empty, is written into the header comment.
	Fingerprint string
}

// Emit renders the document as TypeScript declaration text. It is a pure
// function of its inputs: the same document yields byte-identical output.
func Emit(doc *spec.Document, opts Options) (string, error) {
	if doc == nil {
		return "", &emitter.EmissionError{Node: "document", Message: "nil document"}
	}

	names := emitter.NewNameTable()
	var b strings.Builder
	if opts.Fingerprint != "" {
		b.WriteString(emitter.Header(opts.Fingerprint))
	}

	// Register every component before rendering anything so forward
	// references resolve regardless of sort order.
	for _, name := range doc.ComponentNames() {
		if _, err := names.Add(name); err != nil {
			return "", err
		}
	}

	// Component declarations first, sorted by name. A component referenced
	// from several sites emits exactly once, here.
	for _, name := range doc.ComponentNames() {
		id, _ := names.Lookup(name)
		rendered, err := renderNode(doc.Components[name], names, 0)
		if err != nil {
			return "", err
		}
		b.WriteString("export type " + id + " = " + rendered + ";\n\n")
	}

	if err := renderEndpoints(&b, doc, names); err != nil {
		return "", err
	}

	if opts.Helpers {
		b.WriteString(helperTypes)
	}
	return b.String(), nil
}

// renderNode renders one ISM node. indent is the nesting depth of the
// surrounding object literal, used only for multiline object layout.
func renderNode(n *spec.Node, names *emitter.NameTable, indent int) (string, error) {
	if n == nil {
		return "unknown", nil
	}
	switch n.Kind {
	case spec.KindPrimitive:
		switch n.Type {
		case "string", "number", "boolean", "null", "unknown":
			return n.Type, nil
		default:
			return "", &emitter.EmissionError{Node: n.Type, Message: "unrecognized primitive type"}
		}
	case spec.KindEnum:
		parts := make([]string, 0, len(n.Enum))
		for _, v := range n.Enum {
			parts = append(parts, emitter.Literal(v))
		}
		if len(parts) == 0 {
			return "never", nil
		}
		return strings.Join(parts, " | "), nil
	case spec.KindArray:
		elem, err := renderNode(n.Elem, names, indent)
		if err != nil {
			return "", err
		}
		if strings.Contains(elem, " | ") {
			return "(" + elem + ")[]", nil
		}
		return elem + "[]", nil
	case spec.KindObject:
		return renderObject(n, names, indent)
	case spec.KindUnion:
		parts := make([]string, 0, len(n.Variants))
		for _, v := range n.Variants {
			rendered, err := renderNode(v, names, indent)
			if err != nil {
				return "", err
			}
			parts = append(parts, rendered)
		}
		if len(parts) == 0 {
			return "never", nil
		}
		// Source order is the contract; never canonicalize or deduplicate.
		return strings.Join(parts, " | "), nil
	case spec.KindRef:
		if id, ok := names.Lookup(n.Ref); ok {
			return id, nil
		}
		return "", &emitter.EmissionError{Node: n.Ref, Message: "reference to unemitted component"}
	default:
		return "", emitter.UnknownNode(n)
	}
}

func renderObject(n *spec.Node, names *emitter.NameTable, indent int) (string, error) {
	if len(n.Props) == 0 && n.AdditionalProps == nil {
		return "Record<string, never>", nil
	}
	pad := strings.Repeat("  ", indent+1)
	var b strings.Builder
	b.WriteString("{\n")
	for _, p := range n.Props {
		rendered, err := renderNode(p.Schema, names, indent+1)
		if err != nil {
			return "", err
		}
		opt := ""
		if !p.Required {
			opt = "?"
		}
		b.WriteString(pad + emitter.PropertyKey(p.Name) + opt + ": " + rendered + ";\n")
	}
	if n.AdditionalProps != nil {
		rendered, err := renderNode(n.AdditionalProps, names, indent+1)
		if err != nil {
			return "", err
		}
		b.WriteString(pad + "[key: string]: " + rendered + ";\n")
	}
	b.WriteString(strings.Repeat("  ", indent) + "}")
	return b.String(), nil
}

// renderEndpoints writes the endpoint-index declaration: paths, then methods,
// each carrying a request shape and the per-status response map.
func renderEndpoints(b *strings.Builder, doc *spec.Document, names *emitter.NameTable) error {
	b.WriteString("export interface Endpoints {\n")
	var lastPath string
	open := false
	for _, route := range doc.Routes {
		if route.Path != lastPath {
			if open {
				b.WriteString("  };\n")
			}
			b.WriteString("  " + emitter.TSString(route.Path) + ": {\n")
			lastPath = route.Path
			open = true
		}
		if err := renderRoute(b, route, names); err != nil {
			return err
		}
	}
	if open {
		b.WriteString("  };\n")
	}
	b.WriteString("}\n")
	return nil
}

func renderRoute(b *strings.Builder, route spec.RouteEntry, names *emitter.NameTable) error {
	b.WriteString("    " + string(route.Method) + ": {\n")

	b.WriteString("      request: {\n")
	if err := renderParams(b, "pathParams", route.PathParams, names); err != nil {
		return err
	}
	if err := renderParams(b, "queryParams", route.QueryParams, names); err != nil {
		return err
	}
	if route.RequestBody != nil {
		rendered, err := renderNode(route.RequestBody, names, 4)
		if err != nil {
			return err
		}
		b.WriteString("        body: " + rendered + ";\n")
	}
	b.WriteString("      };\n")

	b.WriteString("      responses: {\n")
	for _, resp := range route.Responses {
		rendered := "void"
		if resp.Schema != nil {
			var err error
			rendered, err = renderNode(resp.Schema, names, 4)
			if err != nil {
				return err
			}
		}
		b.WriteString("        " + emitter.StatusKey(resp.Status) + ": " + rendered + ";\n")
	}
	b.WriteString("      };\n")

	b.WriteString("    };\n")
	return nil
}

func renderParams(b *strings.Builder, key string, params []spec.Parameter, names *emitter.NameTable) error {
	if len(params) == 0 {
		return nil
	}
	b.WriteString("        " + key + ": {\n")
	for _, p := range params {
		rendered, err := renderNode(p.Schema, names, 5)
		if err != nil {
			return err
		}
		opt := ""
		if !p.Required {
			opt = "?"
		}
		b.WriteString("          " + emitter.PropertyKey(p.Name) + opt + ": " + rendered + ";\n")
	}
	b.WriteString("        };\n")
	return nil
}

// helperTypes project request and response shapes out of the endpoint index
// at the type level. ResponseOf defaults its status parameter to 200.
const helperTypes = `type ResponsesOf<
  P extends keyof Endpoints,
  M extends keyof Endpoints[P],
> = Endpoints[P][M] extends { responses: infer R } ? R : never;

export type RequestOf<
  P extends keyof Endpoints,
  M extends keyof Endpoints[P],
> = Endpoints[P][M] extends { request: infer R } ? R : never;

export type ResponseOf<
  P extends keyof Endpoints,
  M extends keyof Endpoints[P],
  S extends keyof ResponsesOf<P, M> = 200 & keyof ResponsesOf<P, M>,
> = ResponsesOf<P, M>[S];
`
