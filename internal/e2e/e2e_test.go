package e2e

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/swagger2ts/internal/cli"
)

const petstore = `openapi: 3.0.0
info:
  title: Petstore
  version: "1.0.0"
paths:
  /pets:
    get:
      parameters:
        - in: query
          name: limit
          required: false
          schema:
            type: integer
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: array
                items:
                  $ref: '#/components/schemas/Pet'
    post:
      requestBody:
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/NewPet'
      responses:
        "201":
          description: created
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Pet'
  /pets/{petId}:
    get:
      parameters:
        - in: path
          name: petId
          required: true
          schema:
            type: string
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Pet'
        "404":
          description: not found
components:
  schemas:
    NewPet:
      type: object
      required: [name]
      properties:
        name:
          type: string
          minLength: 1
        tag:
          type: string
    Pet:
      allOf:
        - $ref: '#/components/schemas/NewPet'
        - type: object
          required: [id]
          properties:
            id:
              type: string
              format: uuid
`

func run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := cli.NewRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func writeSpec(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "petstore.yaml")
	if err := os.WriteFile(path, []byte(petstore), 0o600); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	return path
}

func TestGenerate_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	specPath := writeSpec(t, dir)
	out := filepath.Join(dir, "gen", "types.ts")
	validatorsOut := filepath.Join(dir, "gen", "validators.ts")

	if err := run(t, "--quiet", "generate", "--input", specPath, "--out", out, "--helpers"); err != nil {
		t.Fatalf("generate: %v", err)
	}

	types, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read types: %v", err)
	}
	text := string(types)
	for _, want := range []string{
		"// Code generated by swagger2ts. DO NOT EDIT.",
		"// swagger2ts fingerprint: ",
		"export type NewPet = {",
		"export type Pet = {",
		"export interface Endpoints {",
		`  "/pets": {`,
		`  "/pets/{petId}": {`,
		"        201: Pet;",
		"        404: void;",
		"export type ResponseOf<",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("types output missing %q", want)
		}
	}
	// Pet is NewPet plus id: the composition merges into one object type.
	if !strings.Contains(text, "id: string;") || !strings.Contains(text, "tag?: string;") {
		t.Errorf("merged Pet shape wrong:\n%s", text)
	}

	validators, err := os.ReadFile(validatorsOut)
	if err != nil {
		t.Fatalf("read validators: %v", err)
	}
	vtext := string(validators)
	for _, want := range []string{
		"export function validatePet(v: unknown): Result {",
		"export function assertNewPet(v: unknown): unknown {",
		".length >= 1 ||",
		`FORMATS["uuid"].test(`,
	} {
		if !strings.Contains(vtext, want) {
			t.Errorf("validators output missing %q", want)
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	dir := t.TempDir()
	specPath := writeSpec(t, dir)

	outA := filepath.Join(dir, "a", "types.ts")
	outB := filepath.Join(dir, "b", "types.ts")
	if err := run(t, "--quiet", "generate", "--input", specPath, "--out", outA); err != nil {
		t.Fatalf("first generate: %v", err)
	}
	if err := run(t, "--quiet", "generate", "--input", specPath, "--out", outB); err != nil {
		t.Fatalf("second generate: %v", err)
	}

	a, err := os.ReadFile(outA)
	if err != nil {
		t.Fatalf("read a: %v", err)
	}
	b, err := os.ReadFile(outB)
	if err != nil {
		t.Fatalf("read b: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("repeated generation must be byte-identical")
	}
}

func TestGenerate_DiffOnlySkipsRewrite(t *testing.T) {
	dir := t.TempDir()
	specPath := writeSpec(t, dir)
	out := filepath.Join(dir, "types.ts")

	if err := run(t, "--quiet", "generate", "--input", specPath, "--out", out); err != nil {
		t.Fatalf("generate: %v", err)
	}
	before, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	if err := run(t, "--quiet", "generate", "--input", specPath, "--out", out, "--diff-only"); err != nil {
		t.Fatalf("diff-only generate: %v", err)
	}
	after, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Fatalf("unchanged content must not be rewritten")
	}
}

func TestGenerate_DryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	specPath := writeSpec(t, dir)
	out := filepath.Join(dir, "gen", "types.ts")

	if err := run(t, "--quiet", "generate", "--input", specPath, "--out", out, "--dry-run"); err != nil {
		t.Fatalf("dry-run: %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("dry run must not write output: %v", err)
	}
}

func TestGenerate_InvalidSpecFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("not: [an, openapi, document\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := run(t, "--quiet", "generate", "--input", path, "--out", filepath.Join(dir, "types.ts")); err == nil {
		t.Fatalf("expected failure for malformed document")
	}
}
