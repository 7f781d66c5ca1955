package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bulkupload/internal/result"
	"bulkupload/internal/rowio"
	"bulkupload/internal/schema"
	"bulkupload/internal/store"
	"bulkupload/internal/uploadplan"
)

const minimalPlanJSON = `{"uploadTable": {"name": "Locality", "wbcols": {"locality": "Locality"}}}`

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// setupTestEnv wires every factory variable to an in-memory fake and
// returns the config file path for a minimal, valid run.
func setupTestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	planPath := writeTempFile(t, dir, "plan.json", minimalPlanJSON)
	schemaPath := writeTempFile(t, dir, "schema.yaml", "fields: []\n")
	rowsPath := writeTempFile(t, dir, "rows.csv", "Locality\nBig Lake\n")

	cfgContent := `
logging:
  level: info
collectionId: 1
datasetId: 1
planFile: ` + planPath + `
rowsFile: ` + rowsPath + `
schemaFile: ` + schemaPath + `
store: postgres://localhost/specify
commit: true
`
	cfgPath := writeTempFile(t, dir, "config.yaml", cfgContent)

	origStore := newStoreFunc
	origSchema := newSchemaProviderFunc
	origStat := osStatFunc
	origRunID := newRunIDFunc
	origRowReader := newRowReaderFunc
	origScope := scopeFunc
	t.Cleanup(func() {
		newStoreFunc = origStore
		newSchemaProviderFunc = origSchema
		osStatFunc = origStat
		newRunIDFunc = origRunID
		newRowReaderFunc = origRowReader
		scopeFunc = origScope
	})

	newStoreFunc = func(ctx context.Context, connStr string) (store.DataStore, error) {
		return store.NewMemoryStore(), nil
	}
	newSchemaProviderFunc = func(path string) (schema.Provider, error) {
		return schema.NewMemoryProvider(), nil
	}
	newRunIDFunc = func() string { return "test-run-id" }

	return cfgPath
}

func TestAppRunner_Usage(t *testing.T) {
	runner := NewAppRunner()
	var buf bytes.Buffer
	runner.Usage(&buf)
	if !strings.Contains(buf.String(), "Usage:") {
		t.Errorf("expected usage text, got: %q", buf.String())
	}
}

func TestAppRunner_Run_Help(t *testing.T) {
	runner := NewAppRunner()
	origStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	t.Cleanup(func() { os.Stderr = origStderr })

	err := runner.Run([]string{"-help"})
	w.Close()
	captured, _ := io.ReadAll(r)

	if err != nil {
		t.Errorf("Run err: %v", err)
	}
	if !strings.Contains(string(captured), "Usage:") {
		t.Errorf("no usage message, got:\n%s", captured)
	}
}

func TestAppRunner_Run_NoArgs(t *testing.T) {
	runner := NewAppRunner()
	origStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	t.Cleanup(func() { os.Stderr = origStderr })

	err := runner.Run([]string{})
	w.Close()
	captured, _ := io.ReadAll(r)

	if err != nil {
		t.Errorf("Run err: %v", err)
	}
	if !strings.Contains(string(captured), "Usage:") {
		t.Errorf("no usage message, got:\n%s", captured)
	}
}

func TestAppRunner_Run_InvalidFlag(t *testing.T) {
	runner := NewAppRunner()
	setupTestEnv(t)
	err := runner.Run([]string{"-invalid-flag"})
	if !errors.Is(err, ErrUsage) {
		t.Errorf("expected ErrUsage, got: %v", err)
	}
}

func TestAppRunner_Run_ConfigNotFound(t *testing.T) {
	runner := NewAppRunner()
	setupTestEnv(t)
	err := runner.Run([]string{"-config", "does-not-exist.yaml"})
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got: %v", err)
	}
}

func TestAppRunner_Run_InvalidConfigContent(t *testing.T) {
	runner := NewAppRunner()
	dir := t.TempDir()
	cfgPath := writeTempFile(t, dir, "config.yaml", "logging: [this is not valid")
	err := runner.Run([]string{"-config", cfgPath})
	if err == nil || !strings.Contains(err.Error(), "YAML") {
		t.Errorf("expected a YAML parse error, got: %v", err)
	}
}

func TestAppRunner_Run_HappyPath(t *testing.T) {
	runner := NewAppRunner()
	cfgPath := setupTestEnv(t)

	outPath := filepath.Join(t.TempDir(), "out.json")
	err := runner.Run([]string{"-config", cfgPath, "-output", outPath})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
	var results []result.Result
	if err := json.Unmarshal(data, &results); err != nil {
		t.Fatalf("output was not valid JSON: %v\n%s", err, data)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestAppRunner_Run_DryRunSkipsCommit(t *testing.T) {
	runner := NewAppRunner()
	dir := t.TempDir()
	planPath := writeTempFile(t, dir, "plan.json", minimalPlanJSON)
	schemaPath := writeTempFile(t, dir, "schema.yaml", "fields: []\n")
	rowsPath := writeTempFile(t, dir, "rows.csv", "Locality\nBig Lake\n")
	cfgContent := `
collectionId: 1
datasetId: 1
planFile: ` + planPath + `
rowsFile: ` + rowsPath + `
schemaFile: ` + schemaPath + `
store: postgres://localhost/specify
commit: false
`
	cfgPath := writeTempFile(t, dir, "config.yaml", cfgContent)
	setupTestEnv(t)

	outPath := filepath.Join(t.TempDir(), "out.json")
	if err := runner.Run([]string{"-config", cfgPath, "-output", outPath}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAppRunner_Run_RowReaderError(t *testing.T) {
	runner := NewAppRunner()
	cfgPath := setupTestEnv(t)
	newRowReaderFunc = func(path string) (rowio.RowReader, error) {
		return nil, errors.New("mock row reader failure")
	}
	err := runner.Run([]string{"-config", cfgPath})
	if err == nil || !strings.Contains(err.Error(), "mock row reader failure") {
		t.Errorf("expected wrapped row reader error, got: %v", err)
	}
}

func TestAppRunner_Run_FilterSkipsNonMatchingRows(t *testing.T) {
	runner := NewAppRunner()
	dir := t.TempDir()
	planPath := writeTempFile(t, dir, "plan.json", minimalPlanJSON)
	schemaPath := writeTempFile(t, dir, "schema.yaml", "fields: []\n")
	rowsPath := writeTempFile(t, dir, "rows.csv", "Locality\nBig Lake\nSmall Pond\n")
	cfgContent := `
collectionId: 1
datasetId: 1
planFile: ` + planPath + `
rowsFile: ` + rowsPath + `
schemaFile: ` + schemaPath + `
store: postgres://localhost/specify
commit: true
filter: "Locality == 'Big Lake'"
`
	cfgPath := writeTempFile(t, dir, "config.yaml", cfgContent)
	setupTestEnv(t)

	outPath := filepath.Join(t.TempDir(), "out.json")
	if err := runner.Run([]string{"-config", cfgPath, "-output", outPath}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := os.ReadFile(outPath)
	var results []result.Result
	if err := json.Unmarshal(data, &results); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result after filtering, got %d", len(results))
	}
}

func TestAppRunner_Run_CollectionFlagOverride(t *testing.T) {
	runner := NewAppRunner()
	cfgPath := setupTestEnv(t)

	var gotCollection int64
	origScope := scopeFunc
	t.Cleanup(func() { scopeFunc = origScope })
	scopeFunc = func(n uploadplan.PlanNode, coll *uploadplan.Collection, provider schema.Provider) (uploadplan.ScopedNode, error) {
		gotCollection = coll.ID
		return origScope(n, coll, provider)
	}

	outPath := filepath.Join(t.TempDir(), "out.json")
	if err := runner.Run([]string{"-config", cfgPath, "-collection", "42", "-output", outPath}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotCollection != 42 {
		t.Errorf("expected collection override 42, got %d", gotCollection)
	}
}

func Test_anyFlagsSet(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		want bool
	}{
		{"none", []string{}, false},
		{"one", []string{"-config=a"}, true},
		{"help", []string{"-help"}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fs := flag.NewFlagSet("t", flag.ContinueOnError)
			fs.String("config", "", "")
			fs.Bool("help", false, "")
			if err := fs.Parse(tc.args); err != nil && !errors.Is(err, flag.ErrHelp) {
				t.Fatal(err)
			}
			if got := anyFlagsSet(fs); got != tc.want {
				t.Errorf("anyFlagsSet(%v) = %v, want %v", tc.args, got, tc.want)
			}
		})
	}
}

func Test_isFlagSet(t *testing.T) {
	fs := flag.NewFlagSet("t", flag.ContinueOnError)
	fs.String("config", "", "")
	fs.Bool("commit", false, "")
	if err := fs.Parse([]string{"-config=a"}); err != nil {
		t.Fatal(err)
	}
	if !isFlagSet(fs, "config") {
		t.Errorf("expected config to be set")
	}
	if isFlagSet(fs, "commit") {
		t.Errorf("expected commit to be unset")
	}
}
