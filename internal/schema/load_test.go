package schema

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSchemaFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write schema file: %v", err)
	}
	return path
}

func TestLoadFromFile_FieldsAndPicklist(t *testing.T) {
	path := writeSchemaFile(t, `
fields:
  - table: Collectionobject
    field: catalognumber
    required: true
  - table: Agent
    field: agenttype
    dataType: integer
    picklist:
      id: 4
      name: agentType
      type: items
      readOnly: true
      items:
        - title: Person
          value: "1"
        - title: Organization
          value: "0"
`)

	provider, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	catNum, ok := provider.FieldInfo("Collectionobject", "catalognumber")
	if !ok || !catNum.Required {
		t.Fatalf("expected catalognumber to be required, got %+v ok=%v", catNum, ok)
	}

	agentType, ok := provider.FieldInfo("Agent", "agenttype")
	if !ok {
		t.Fatalf("expected agenttype field info")
	}
	if agentType.DataType != DataTypeInteger {
		t.Errorf("expected DataTypeInteger, got %v", agentType.DataType)
	}
	if agentType.Picklist == nil {
		t.Fatalf("expected a picklist bound to agenttype")
	}
	item, ok := agentType.Picklist.ItemByTitle("Person")
	if !ok || item.Value != "1" {
		t.Errorf("expected Person -> 1, got %+v ok=%v", item, ok)
	}
	if !agentType.Picklist.ReadOnly {
		t.Errorf("expected picklist to be read-only")
	}
}

func TestLoadFromFile_TreeDefinition(t *testing.T) {
	path := writeSchemaFile(t, `
treeDefinitions:
  - table: Taxon
    disciplineId: 3
    ranks:
      - name: Kingdom
        rankId: 0
        enforced: true
      - name: Species
        rankId: 220
        enforced: false
`)

	provider, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	def, ok := provider.TreeDefinition("Taxon", 3)
	if !ok {
		t.Fatalf("expected a tree definition for Taxon/3")
	}
	if len(def.Ranks) != 2 {
		t.Fatalf("expected 2 ranks, got %d", len(def.Ranks))
	}
	rank, ok := def.RankByName("Species")
	if !ok || rank.RankID != 220 {
		t.Errorf("expected Species rank 220, got %+v ok=%v", rank, ok)
	}
}

func TestLoadFromFile_UnknownDataTypeReturnsError(t *testing.T) {
	path := writeSchemaFile(t, `
fields:
  - table: Locality
    field: latitude1
    dataType: bogus
`)
	if _, err := LoadFromFile(path); err == nil {
		t.Fatalf("expected an error for an unknown dataType")
	}
}

func TestLoadFromFile_MissingFileReturnsError(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
