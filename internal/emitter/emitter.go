// Package emitter holds the pieces shared by the type and validator
// emitters: identifier mangling, TypeScript literal rendering, the reserved
// output-name check, and the generated-file header. Both emitters are pure
// text producers; neither performs any I/O.
package emitter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mark3labs/swagger2ts/internal/spec"
)

// EmissionError reports an internal invariant violation: an ISM node the
// renderer does not recognize. It must never occur for a well-formed ISM.
type EmissionError struct {
	Node    string
	Message string
}

func (e *EmissionError) Error() string {
	return fmt.Sprintf("emit: %s (node %s)", e.Message, e.Node)
}

// NamingConflictError reports a component whose emitted identifier collides
// with a reserved output name or with another component's identifier.
type NamingConflictError struct {
	Name string
	With string
}

func (e *NamingConflictError) Error() string {
	return fmt.Sprintf("emit: component %q collides with %s", e.Name, e.With)
}

// reserved are identifiers the generated output claims for itself.
var reserved = map[string]struct{}{
	"Endpoints":       {},
	"RequestOf":       {},
	"ResponseOf":      {},
	"ResponsesOf":     {},
	"Result":          {},
	"Issue":           {},
	"ValidationError": {},
}

// NameTable assigns each component a TypeScript identifier and rejects
// collisions, both with reserved names and between components whose names
// mangle to the same identifier.
type NameTable struct {
	byComponent map[string]string
	taken       map[string]string // identifier → component that owns it
}

func NewNameTable() *NameTable {
	return &NameTable{byComponent: map[string]string{}, taken: map[string]string{}}
}

// Add registers a component name and returns its identifier.
func (t *NameTable) Add(component string) (string, error) {
	id := Identifier(component)
	if _, ok := reserved[id]; ok {
		return "", &NamingConflictError{Name: component, With: fmt.Sprintf("reserved identifier %q", id)}
	}
	if owner, ok := t.taken[id]; ok && owner != component {
		return "", &NamingConflictError{Name: component, With: fmt.Sprintf("component %q (both emit as %q)", owner, id)}
	}
	t.byComponent[component] = id
	t.taken[id] = component
	return id, nil
}

// Lookup returns the identifier for a previously added component. Refs to
// components always pass through Add first because the component table is
// emitted before any route references it.
func (t *NameTable) Lookup(component string) (string, bool) {
	id, ok := t.byComponent[component]
	return id, ok
}

// Identifier mangles a component name into a valid TypeScript identifier.
func Identifier(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '$':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// TSString renders s as a double-quoted TypeScript string literal.
func TSString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// Literal renders an enum value as a TypeScript literal.
func Literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(val)
	case string:
		return TSString(val)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return "null"
		}
		return string(raw)
	}
}

// PropertyKey renders an object property name, quoting it only when it is
// not a bare identifier.
func PropertyKey(name string) string {
	if name == Identifier(name) {
		return name
	}
	return TSString(name)
}

// StatusKey renders a response status code key: bare for numeric codes and
// "default", quoted for wildcard forms like "4XX".
func StatusKey(status string) string {
	if status == "default" {
		return status
	}
	for _, r := range status {
		if r < '0' || r > '9' {
			return TSString(status)
		}
	}
	return status
}

// Header is the first line of every generated artifact. It carries the
// content fingerprint of the source state so external tooling can detect
// staleness without re-running generation.
func Header(fingerprint string) string {
	return "// Code generated by swagger2ts. DO NOT EDIT.\n// swagger2ts fingerprint: " + fingerprint + "\n\n"
}

// UnknownNode builds the fatal error for an unrecognized ISM node kind.
func UnknownNode(n *spec.Node) error {
	return &EmissionError{Node: string(n.Kind), Message: "unrecognized ISM node kind"}
}
