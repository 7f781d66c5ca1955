package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSchema is the on-disk YAML shape consumed by LoadFromFile. It carries
// the same metadata FieldInfo/TreeDefinition expose, flattened into a list
// per table/field rather than nested, mirroring how the teacher's
// config.DriverConfig is a flat field list rather than a tree.
type fileSchema struct {
	Fields          []fileField          `yaml:"fields"`
	TreeDefinitions []fileTreeDefinition `yaml:"treeDefinitions"`
}

type fileField struct {
	Table          string        `yaml:"table"`
	Field          string        `yaml:"field"`
	Required       bool          `yaml:"required"`
	DataType       string        `yaml:"dataType"`
	PrecisionField string        `yaml:"precisionField"`
	Picklist       *filePicklist `yaml:"picklist"`
}

type filePicklist struct {
	ID       int64            `yaml:"id"`
	Name     string           `yaml:"name"`
	Type     string           `yaml:"type"`
	ReadOnly bool             `yaml:"readOnly"`
	Items    []filePicklistItem `yaml:"items"`
}

type filePicklistItem struct {
	Title string `yaml:"title"`
	Value string `yaml:"value"`
}

type fileTreeDefinition struct {
	Table        string     `yaml:"table"`
	DisciplineID int64      `yaml:"disciplineId"`
	Ranks        []fileRank `yaml:"ranks"`
}

type fileRank struct {
	Name     string `yaml:"name"`
	RankID   int    `yaml:"rankId"`
	Enforced bool   `yaml:"enforced"`
}

var dataTypeNames = map[string]DataType{
	"text":     DataTypeText,
	"boolean":  DataTypeBoolean,
	"temporal": DataTypeTemporal,
	"latlong":  DataTypeLatLong,
	"integer":  DataTypeInteger,
}

var picklistTypeNames = map[string]PicklistType{
	"items":         PicklistTypeItems,
	"rowsOfTable":   PicklistTypeRowsOfTable,
	"fieldOfTable":  PicklistTypeFieldOfTable,
}

// LoadFromFile reads a schema metadata definition from a YAML file and
// returns a populated MemoryProvider. This is the deployment-time stand-in
// for the live database catalog introspection that a production schema
// provider would perform (out of scope here: the persistent SQL schema
// itself is an external collaborator, per spec.md §1).
func LoadFromFile(path string) (*MemoryProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file '%s': %w", path, err)
	}

	var fs fileSchema
	if err := yaml.Unmarshal(raw, &fs); err != nil {
		return nil, fmt.Errorf("failed to parse YAML in schema file '%s': %w", path, err)
	}

	provider := NewMemoryProvider()
	for _, f := range fs.Fields {
		info, err := toFieldInfo(f)
		if err != nil {
			return nil, fmt.Errorf("schema file '%s': field %s.%s: %w", path, f.Table, f.Field, err)
		}
		provider.SetField(f.Table, f.Field, info)
	}
	for _, td := range fs.TreeDefinitions {
		provider.SetTreeDefinition(td.Table, td.DisciplineID, toTreeDefinition(td))
	}
	return provider, nil
}

func toFieldInfo(f fileField) (FieldInfo, error) {
	dataType := DataTypeText
	if f.DataType != "" {
		dt, ok := dataTypeNames[f.DataType]
		if !ok {
			return FieldInfo{}, fmt.Errorf("unknown dataType %q", f.DataType)
		}
		dataType = dt
	}

	info := FieldInfo{
		Required:       f.Required,
		DataType:       dataType,
		PrecisionField: f.PrecisionField,
	}

	if f.Picklist != nil {
		pt, ok := picklistTypeNames[f.Picklist.Type]
		if !ok {
			return FieldInfo{}, fmt.Errorf("unknown picklist type %q", f.Picklist.Type)
		}
		items := make([]PicklistItem, len(f.Picklist.Items))
		for i, it := range f.Picklist.Items {
			items[i] = PicklistItem{Title: it.Title, Value: it.Value}
		}
		info.Picklist = &Picklist{
			ID:       f.Picklist.ID,
			Name:     f.Picklist.Name,
			Type:     pt,
			ReadOnly: f.Picklist.ReadOnly,
			Items:    items,
		}
	}

	return info, nil
}

func toTreeDefinition(td fileTreeDefinition) TreeDefinition {
	ranks := make([]Rank, len(td.Ranks))
	for i, r := range td.Ranks {
		ranks[i] = Rank{Name: r.Name, RankID: r.RankID, Enforced: r.Enforced}
	}
	return TreeDefinition{ID: td.DisciplineID, Ranks: ranks}
}
