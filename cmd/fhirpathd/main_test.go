package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ehr/fhirpath/internal/fhirpath/schema"
	"github.com/ehr/fhirpath/internal/fhirpath/value"
)

// ---------------------------------------------------------------------------
// output rendering
// ---------------------------------------------------------------------------

func TestPrintCollection_Lines(t *testing.T) {
	col := value.Singleton(value.NewString("Peter")).
		Append(value.NewInteger(7)).
		Append(value.NewBoolean(true))

	var buf bytes.Buffer
	if err := printCollection(&buf, col, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	if lines[0] != "Peter" || lines[1] != "7" || lines[2] != "true" {
		t.Errorf("unexpected rendering: %q", lines)
	}
}

func TestPrintCollection_JSON(t *testing.T) {
	col := value.Singleton(value.NewString("a\"b")).
		Append(value.NewInteger(3))

	var buf bytes.Buffer
	if err := printCollection(&buf, col, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := strings.TrimSpace(buf.String())
	if got != `["a\"b",3]` {
		t.Errorf("json rendering = %s", got)
	}
}

func TestPrintCollection_EmptyJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printCollection(&buf, value.Collection{}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("empty collection rendered as %s", got)
	}
}

// ---------------------------------------------------------------------------
// eval command end to end
// ---------------------------------------------------------------------------

func TestEvalCommand(t *testing.T) {
	resource := filepath.Join(t.TempDir(), "patient.json")
	err := os.WriteFile(resource, []byte(`{
		"resourceType": "Patient",
		"name": [{"given": ["Peter", "James"]}]
	}`), 0o644)
	if err != nil {
		t.Fatalf("write resource: %v", err)
	}

	cmd := evalCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"name.given.first()", "--resource", resource})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "Peter" {
		t.Errorf("eval output = %q, want Peter", got)
	}
}

// ---------------------------------------------------------------------------
// explain command
// ---------------------------------------------------------------------------

func TestExplainCommand(t *testing.T) {
	cmd := explainCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"name.given.count()", "--type", "Patient"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("explain: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"== syntax tree ==", "== typed ir ==", "== plan ==", "result type:"} {
		if !strings.Contains(out, want) {
			t.Errorf("explain output missing %q:\n%s", want, out)
		}
	}
}

func TestExplainCommand_DOT(t *testing.T) {
	cmd := explainCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"name | telecom", "--type", "Patient", "--dot"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("explain --dot: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "digraph") {
		t.Errorf("dot output missing digraph header:\n%s", buf.String())
	}
}

// ---------------------------------------------------------------------------
// functions command
// ---------------------------------------------------------------------------

func TestFunctionsCommand(t *testing.T) {
	cmd := functionsCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("functions: %v", err)
	}
	out := buf.String()
	for _, name := range []string{"where", "count", "substring", "toQuantity"} {
		if !strings.Contains(out, name) {
			t.Errorf("registry listing missing %q", name)
		}
	}
}

// ---------------------------------------------------------------------------
// schema loading
// ---------------------------------------------------------------------------

func TestLoadSchemaDir(t *testing.T) {
	dir := t.TempDir()
	sd := `{
		"resourceType": "StructureDefinition",
		"name": "Specimen",
		"kind": "resource",
		"snapshot": {"element": [
			{"path": "Specimen", "min": 0, "max": "*"},
			{"path": "Specimen.status", "min": 0, "max": "1", "type": [{"code": "code"}]}
		]}
	}`
	if err := os.WriteFile(filepath.Join(dir, "specimen.json"), []byte(sd), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Non-JSON files are skipped.
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	registry := schema.NewRegistry()
	n, err := loadSchemaDir(registry, dir)
	if err != nil {
		t.Fatalf("loadSchemaDir: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 definition loaded, got %d", n)
	}
	if _, ok := registry.ResolveType("Specimen"); !ok {
		t.Error("Specimen definition not registered")
	}
	if _, ok := registry.ResolveElement("Specimen", "status"); !ok {
		t.Error("Specimen.status element not registered")
	}
}
