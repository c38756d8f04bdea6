package spec

import (
	"strings"
	"testing"
)

func TestFingerprint_Deterministic(t *testing.T) {
	t.Parallel()
	doc, err := Resolve(loadDoc(t, userSpec))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	first, err := Fingerprint(doc)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if len(first) != 64 {
		t.Fatalf("expected hex sha256, got %q", first)
	}
	for i := 0; i < 5; i++ {
		again, err := Fingerprint(doc)
		if err != nil {
			t.Fatalf("fingerprint: %v", err)
		}
		if again != first {
			t.Fatalf("fingerprint not stable: %s vs %s", first, again)
		}
	}
}

func TestFingerprint_IgnoresFormatting(t *testing.T) {
	t.Parallel()
	// Same document, different YAML formatting and key order.
	reordered := `openapi: 3.0.0
info:
  version: "1.0.0"
  title: Users API
components:
  schemas:
    Role:
      enum:
        - admin
        - editor
        - viewer
      type: string
    User:
      properties:
        role:
          $ref: '#/components/schemas/Role'
        name:
          type: string
        id:
          type: string
      required: [id, name]
      type: object
paths:
  /users:
    get:
      parameters:
        - in: query
          name: limit
          required: false
          schema: {type: integer}
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: array
                items: {$ref: '#/components/schemas/User'}
  /users/{id}:
    get:
      parameters:
        - {in: path, name: id, required: true, schema: {type: string}}
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema: {$ref: '#/components/schemas/User'}
`
	a, err := Resolve(loadDoc(t, userSpec))
	if err != nil {
		t.Fatalf("resolve a: %v", err)
	}
	b, err := Resolve(loadDoc(t, reordered))
	if err != nil {
		t.Fatalf("resolve b: %v", err)
	}
	ha, err := Fingerprint(a)
	if err != nil {
		t.Fatalf("fingerprint a: %v", err)
	}
	hb, err := Fingerprint(b)
	if err != nil {
		t.Fatalf("fingerprint b: %v", err)
	}
	if ha != hb {
		t.Fatalf("formatting must not change the fingerprint: %s vs %s", ha, hb)
	}
}

func TestFingerprint_ChangesWithContent(t *testing.T) {
	t.Parallel()
	a, err := Resolve(loadDoc(t, userSpec))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	changed := strings.Replace(userSpec, "enum: [admin, editor, viewer]", "enum: [admin, editor]", 1)
	b, err := Resolve(loadDoc(t, changed))
	if err != nil {
		t.Fatalf("resolve changed: %v", err)
	}
	ha, _ := Fingerprint(a)
	hb, _ := Fingerprint(b)
	if ha == hb {
		t.Fatalf("content change must change the fingerprint")
	}
}
