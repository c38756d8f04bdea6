// Package validatoremitter renders the ISM into executable TypeScript
// validation code, structurally parallel to the type declarations: one check
// function per component plus throwing and non-throwing entry points.
//
// Constraint keywords map through constraintTable, one row per OpenAPI
// keyword, so supporting a new keyword means adding a row, not touching the
// traversal.
package validatoremitter

import (
	"fmt"
	"strings"

	"github.com/mark3labs/swagger2ts/internal/emitter"
	"github.com/mark3labs/swagger2ts/internal/spec"
)

// Options controls how the validator emitter renders a document.
type Options struct {
	// Fingerprint, when non-empty, is written into the header comment.
	Fingerprint string
}

// Emit renders runtime validators for every component in the document. Like
// the type emitter it is pure: same document, byte-identical output.
func Emit(doc *spec.Document, opts Options) (string, error) {
	if doc == nil {
		return "", &emitter.EmissionError{Node: "document", Message: "nil document"}
	}

	names := emitter.NewNameTable()
	for _, name := range doc.ComponentNames() {
		if _, err := names.Add(name); err != nil {
			return "", err
		}
	}

	var b strings.Builder
	if opts.Fingerprint != "" {
		b.WriteString(emitter.Header(opts.Fingerprint))
	}
	b.WriteString(prelude)

	for _, name := range doc.ComponentNames() {
		id, _ := names.Lookup(name)
		body, err := checkExpr(doc.Components[name], names, "v", "p", 0, 1)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "function check%s(v: unknown, p: string, issues: Issue[]): boolean {\n  return %s;\n}\n\n", id, body)
		fmt.Fprintf(&b, "export function validate%s(v: unknown): Result {\n"+
			"  const issues: Issue[] = [];\n"+
			"  return check%s(v, \"$\", issues) ? { ok: true, value: v } : { ok: false, issues };\n"+
			"}\n\n", id, id)
		fmt.Fprintf(&b, "export function is%s(v: unknown): boolean {\n  return validate%s(v).ok;\n}\n\n", id, id)
		fmt.Fprintf(&b, "export function assert%s(v: unknown): unknown {\n"+
			"  const r = validate%s(v);\n"+
			"  if (!r.ok) throw new ValidationError(r.issues);\n"+
			"  return r.value;\n"+
			"}\n\n", id, id)
	}
	return b.String(), nil
}

// checkExpr renders the boolean check expression for one node. val and path
// are TypeScript expressions for the value under test and its display path;
// depth uniquifies callback variable names; indent is the current nesting
// level for multiline layout.
func checkExpr(n *spec.Node, names *emitter.NameTable, val, path string, depth, indent int) (string, error) {
	if n == nil {
		return "true", nil
	}
	switch n.Kind {
	case spec.KindPrimitive:
		return primitiveExpr(n, val, path)
	case spec.KindEnum:
		lits := make([]string, 0, len(n.Enum))
		for _, v := range n.Enum {
			lits = append(lits, emitter.Literal(v))
		}
		set := "[" + strings.Join(lits, ", ") + "]"
		return fmt.Sprintf("((%s as unknown[]).indexOf(%s) !== -1 || fail(%s, %s, issues))",
			set, val, path, emitter.TSString("expected one of "+strings.Join(lits, ", "))), nil
	case spec.KindArray:
		return arrayExpr(n, names, val, path, depth, indent)
	case spec.KindObject:
		return objectExpr(n, names, val, path, depth, indent)
	case spec.KindUnion:
		return unionExpr(n, names, val, path, depth, indent)
	case spec.KindRef:
		id, ok := names.Lookup(n.Ref)
		if !ok {
			return "", &emitter.EmissionError{Node: n.Ref, Message: "reference to unemitted component"}
		}
		return fmt.Sprintf("check%s(%s, %s, issues)", id, val, path), nil
	default:
		return "", emitter.UnknownNode(n)
	}
}

func primitiveExpr(n *spec.Node, val, path string) (string, error) {
	var base string
	switch n.Type {
	case "string", "number", "boolean":
		base = fmt.Sprintf("(typeof %s === %q || fail(%s, %s, issues))",
			val, n.Type, path, emitter.TSString("expected "+n.Type))
	case "null":
		return fmt.Sprintf("(%s === null || fail(%s, \"expected null\", issues))", val, path), nil
	case "unknown":
		return "true", nil
	default:
		return "", &emitter.EmissionError{Node: n.Type, Message: "unrecognized primitive type"}
	}
	parts := []string{base}
	for _, row := range constraintTable {
		if row.applies(n) {
			parts = append(parts, row.render(n, val, path))
		}
	}
	return strings.Join(parts, " && "), nil
}

func arrayExpr(n *spec.Node, names *emitter.NameTable, val, path string, depth, indent int) (string, error) {
	item := fmt.Sprintf("item%d", depth)
	idx := fmt.Sprintf("i%d", depth)
	elem, err := checkExpr(n.Elem, names, item, fmt.Sprintf(`%s + "[" + %s + "]"`, path, idx), depth+1, indent)
	if err != nil {
		return "", err
	}
	parts := []string{
		fmt.Sprintf("(Array.isArray(%s) || fail(%s, \"expected array\", issues))", val, path),
	}
	for _, row := range constraintTable {
		if row.applies(n) {
			parts = append(parts, row.render(n, val, path))
		}
	}
	parts = append(parts, fmt.Sprintf("(%s as unknown[]).map((%s, %s) => %s).every((r) => r)", val, item, idx, elem))
	return strings.Join(parts, " && "), nil
}

func objectExpr(n *spec.Node, names *emitter.NameTable, val, path string, depth, indent int) (string, error) {
	obj := fmt.Sprintf("o%d", depth)
	pad := strings.Repeat("  ", indent+1)
	inner := strings.Repeat("  ", indent+2)

	var b strings.Builder
	fmt.Fprintf(&b, "(isObject(%s) || fail(%s, \"expected object\", issues)) && (() => {\n", val, path)
	fmt.Fprintf(&b, "%sconst %s = %s as Record<string, unknown>;\n", pad, obj, val)
	fmt.Fprintf(&b, "%sconst results: boolean[] = [];\n", pad)

	for _, p := range n.Props {
		key := emitter.TSString(p.Name)
		propPath := fmt.Sprintf("%s + %s", path, emitter.TSString("."+p.Name))
		propVal := fmt.Sprintf("%s[%s]", obj, key)
		check, err := checkExpr(p.Schema, names, propVal, propPath, depth+1, indent+1)
		if err != nil {
			return "", err
		}
		if p.Required {
			fmt.Fprintf(&b, "%sresults.push(%s in %s ? %s : fail(%s, \"missing required property\", issues));\n",
				pad, key, obj, check, propPath)
		} else {
			// Optional properties are checked only when present.
			fmt.Fprintf(&b, "%sresults.push(!(%s in %s) || %s === undefined || %s);\n",
				pad, key, obj, propVal, check)
		}
	}

	if n.AdditionalProps != nil && !(n.AdditionalProps.Kind == spec.KindPrimitive && n.AdditionalProps.Type == "unknown") {
		key := fmt.Sprintf("k%d", depth)
		declared := make([]string, 0, len(n.Props))
		for _, p := range n.Props {
			declared = append(declared, emitter.TSString(p.Name))
		}
		extra, err := checkExpr(n.AdditionalProps, names,
			fmt.Sprintf("%s[%s]", obj, key),
			fmt.Sprintf(`%s + "." + %s`, path, key), depth+1, indent+2)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%sresults.push(\n%sObject.keys(%s)\n%s  .filter((%s) => [%s].indexOf(%s) === -1)\n%s  .map((%s) => %s)\n%s  .every((r) => r),\n%s);\n",
			pad, inner, obj, inner, key, strings.Join(declared, ", "), key, inner, key, extra, inner, pad)
	}

	fmt.Fprintf(&b, "%sreturn results.every((r) => r);\n", pad)
	fmt.Fprintf(&b, "%s})()", strings.Repeat("  ", indent))
	return b.String(), nil
}

func unionExpr(n *spec.Node, names *emitter.NameTable, val, path string, depth, indent int) (string, error) {
	if len(n.Variants) == 0 {
		return fmt.Sprintf("fail(%s, \"empty union\", issues)", path), nil
	}
	v := fmt.Sprintf("v%d", depth)
	p := fmt.Sprintf("p%d", depth)
	variants := make([]string, 0, len(n.Variants))
	for _, variant := range n.Variants {
		check, err := checkExpr(variant, names, v, p, depth+1, indent+1)
		if err != nil {
			return "", err
		}
		variants = append(variants, fmt.Sprintf("(%s, %s, issues) => %s", v, p, check))
	}
	pad := strings.Repeat("  ", indent+1)
	// Variants are tried first-match in declared order.
	return fmt.Sprintf("matchUnion(%s, %s, issues, [\n%s%s,\n%s])",
		val, path, pad, strings.Join(variants, ",\n"+pad), strings.Repeat("  ", indent)), nil
}

// constraintTable maps OpenAPI restriction keywords to rendered checks, one
// row per keyword. New constraints are additive: add a row.
type constraintRow struct {
	keyword string
	applies func(n *spec.Node) bool
	render  func(n *spec.Node, val, path string) string
}

var constraintTable = []constraintRow{
	{
		keyword: "minLength",
		applies: func(n *spec.Node) bool { return n.Type == "string" && n.Constraints != nil && n.Constraints.MinLength != nil },
		render: func(n *spec.Node, val, path string) string {
			return fmt.Sprintf("((%s as string).length >= %d || fail(%s, \"expected minLength %d\", issues))",
				val, *n.Constraints.MinLength, path, *n.Constraints.MinLength)
		},
	},
	{
		keyword: "maxLength",
		applies: func(n *spec.Node) bool { return n.Type == "string" && n.Constraints != nil && n.Constraints.MaxLength != nil },
		render: func(n *spec.Node, val, path string) string {
			return fmt.Sprintf("((%s as string).length <= %d || fail(%s, \"expected maxLength %d\", issues))",
				val, *n.Constraints.MaxLength, path, *n.Constraints.MaxLength)
		},
	},
	{
		keyword: "pattern",
		applies: func(n *spec.Node) bool { return n.Type == "string" && n.Constraints != nil && n.Constraints.Pattern != "" },
		render: func(n *spec.Node, val, path string) string {
			return fmt.Sprintf("(new RegExp(%s).test(%s as string) || fail(%s, %s, issues))",
				emitter.TSString(n.Constraints.Pattern), val, path,
				emitter.TSString("expected pattern "+n.Constraints.Pattern))
		},
	},
	{
		keyword: "format",
		applies: func(n *spec.Node) bool { return n.Type == "string" && formatPattern(n.Format) != "" },
		render: func(n *spec.Node, val, path string) string {
			return fmt.Sprintf("(FORMATS[%s].test(%s as string) || fail(%s, %s, issues))",
				emitter.TSString(n.Format), val, path,
				emitter.TSString("expected format "+n.Format))
		},
	},
	{
		keyword: "minimum",
		applies: func(n *spec.Node) bool { return n.Type == "number" && n.Constraints != nil && n.Constraints.Minimum != nil },
		render: func(n *spec.Node, val, path string) string {
			min := emitter.Literal(*n.Constraints.Minimum)
			return fmt.Sprintf("((%s as number) >= %s || fail(%s, \"expected minimum %s\", issues))", val, min, path, min)
		},
	},
	{
		keyword: "maximum",
		applies: func(n *spec.Node) bool { return n.Type == "number" && n.Constraints != nil && n.Constraints.Maximum != nil },
		render: func(n *spec.Node, val, path string) string {
			max := emitter.Literal(*n.Constraints.Maximum)
			return fmt.Sprintf("((%s as number) <= %s || fail(%s, \"expected maximum %s\", issues))", val, max, path, max)
		},
	},
	{
		keyword: "minItems",
		applies: func(n *spec.Node) bool { return n.Kind == spec.KindArray && n.Constraints != nil && n.Constraints.MinItems != nil },
		render: func(n *spec.Node, val, path string) string {
			return fmt.Sprintf("((%s as unknown[]).length >= %d || fail(%s, \"expected minItems %d\", issues))",
				val, *n.Constraints.MinItems, path, *n.Constraints.MinItems)
		},
	},
	{
		keyword: "maxItems",
		applies: func(n *spec.Node) bool { return n.Kind == spec.KindArray && n.Constraints != nil && n.Constraints.MaxItems != nil },
		render: func(n *spec.Node, val, path string) string {
			return fmt.Sprintf("((%s as unknown[]).length <= %d || fail(%s, \"expected maxItems %d\", issues))",
				val, *n.Constraints.MaxItems, path, *n.Constraints.MaxItems)
		},
	},
}

// formatPattern reports whether a format keyword has a runtime pattern in
// the generated FORMATS table. Unknown formats are annotations only.
func formatPattern(format string) string {
	switch format {
	case "email", "uuid", "uri", "date-time", "date":
		return format
	default:
		return ""
	}
}

const prelude = `export interface Issue {
  path: string;
  message: string;
}

export type Result =
  | { ok: true; value: unknown }
  | { ok: false; issues: Issue[] };

export class ValidationError extends Error {
  issues: Issue[];
  constructor(issues: Issue[]) {
    super(issues.map((i) => i.path + ": " + i.message).join("; "));
    this.name = "ValidationError";
    this.issues = issues;
  }
}

type Check = (v: unknown, p: string, issues: Issue[]) => boolean;

const FORMATS: Record<string, RegExp> = {
  email: /^[^@\s]+@[^@\s]+\.[^@\s]+$/,
  uuid: /^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$/,
  uri: /^[a-zA-Z][a-zA-Z0-9+.-]*:/,
  "date-time": /^\d{4}-\d{2}-\d{2}[Tt]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:[Zz]|[+-]\d{2}:\d{2})$/,
  date: /^\d{4}-\d{2}-\d{2}$/,
};

function fail(p: string, message: string, issues: Issue[]): false {
  issues.push({ path: p, message });
  return false;
}

function isObject(v: unknown): v is Record<string, unknown> {
  return typeof v === "object" && v !== null && !Array.isArray(v);
}

function matchUnion(v: unknown, p: string, issues: Issue[], variants: Check[]): boolean {
  for (const check of variants) {
    const scratch: Issue[] = [];
    if (check(v, p, scratch)) {
      return true;
    }
  }
  issues.push({ path: p, message: "no union variant matched" });
  return false;
}

`
