package uploadplan

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseNode parses one wrapper-keyed plan node: `{"uploadTable": {...}}`,
// `{"oneToOneTable": {...}}`, `{"mustMatchTable": {...}}` or
// `{"treeRecord": {...}}`, rejecting unknown outer keys and any
// combination other than exactly one variant present.
func ParseNode(data []byte) (PlanNode, error) {
	var wrapper struct {
		UploadTable    *tableNodeJSON  `json:"uploadTable,omitempty"`
		OneToOneTable  *tableNodeJSON  `json:"oneToOneTable,omitempty"`
		MustMatchTable *tableNodeJSON  `json:"mustMatchTable,omitempty"`
		TreeRecord     *treeRecordJSON `json:"treeRecord,omitempty"`
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("uploadplan: invalid plan node JSON: %w", err)
	}

	present := 0
	if wrapper.UploadTable != nil {
		present++
	}
	if wrapper.OneToOneTable != nil {
		present++
	}
	if wrapper.MustMatchTable != nil {
		present++
	}
	if wrapper.TreeRecord != nil {
		present++
	}
	if present != 1 {
		return nil, fmt.Errorf("uploadplan: plan node must have exactly one of uploadTable/oneToOneTable/mustMatchTable/treeRecord, found %d", present)
	}

	switch {
	case wrapper.UploadTable != nil:
		return wrapper.UploadTable.toTableNode(KindUploadTable)
	case wrapper.OneToOneTable != nil:
		return wrapper.OneToOneTable.toTableNode(KindOneToOneUploadTable)
	case wrapper.MustMatchTable != nil:
		return wrapper.MustMatchTable.toTableNode(KindMustMatchTable)
	default:
		return wrapper.TreeRecord.toTreeRecordNode()
	}
}

// tableNodeJSON is the wire shape of an UploadTable/OneToOneUploadTable/
// MustMatchTable body.
type tableNodeJSON struct {
	Name   string                     `json:"name"`
	WBCols map[string]columnOptionJSON `json:"wbcols,omitempty"`
	Static map[string]interface{}     `json:"static,omitempty"`
	ToOne  map[string]json.RawMessage `json:"toOne,omitempty"`
	ToMany map[string][]toManyItemJSON `json:"toMany,omitempty"`
}

// toManyItemJSON reuses the table body shape directly: spec.md describes
// ToManyRecord as having "the same interior shape as UploadTable but no
// further to_many nesting in the typical case" — nesting is still parsed
// if present, since the spec only says it's atypical, not forbidden.
type toManyItemJSON = tableNodeJSON

func (t *tableNodeJSON) toTableNode(kind NodeKind) (*TableNode, error) {
	if t.Name == "" {
		return nil, fmt.Errorf("uploadplan: %s node missing required \"name\"", kind)
	}

	wbcols := make(map[string]ColumnOption, len(t.WBCols))
	seenCaptions := make(map[string]string, len(t.WBCols))
	for fieldName, raw := range t.WBCols {
		opt := raw.toColumnOption()
		if existingField, dup := seenCaptions[opt.Column]; dup {
			return nil, fmt.Errorf("uploadplan: duplicate caption %q in wbcols of %q (fields %q and %q)", opt.Column, t.Name, existingField, fieldName)
		}
		seenCaptions[opt.Column] = fieldName
		wbcols[fieldName] = opt
	}

	var toOne map[string]PlanNode
	if len(t.ToOne) > 0 {
		toOne = make(map[string]PlanNode, len(t.ToOne))
		for relation, raw := range t.ToOne {
			child, err := ParseNode(raw)
			if err != nil {
				return nil, fmt.Errorf("uploadplan: toOne relation %q of %q: %w", relation, t.Name, err)
			}
			toOne[relation] = child
		}
	}

	var toMany map[string][]*TableNode
	if len(t.ToMany) > 0 {
		toMany = make(map[string][]*TableNode, len(t.ToMany))
		for relation, items := range t.ToMany {
			children := make([]*TableNode, 0, len(items))
			for i := range items {
				child, err := items[i].toTableNode(KindUploadTable)
				if err != nil {
					return nil, fmt.Errorf("uploadplan: toMany relation %q of %q, item %d: %w", relation, t.Name, i, err)
				}
				children = append(children, child)
			}
			toMany[relation] = children
		}
	}

	return &TableNode{
		Kind:   kind,
		Name:   t.Name,
		WBCols: wbcols,
		Static: t.Static,
		ToOne:  toOne,
		ToMany: toMany,
	}, nil
}

// columnOptionJSON accepts either a bare string caption (shorthand) or a
// full object, per column_options.py's to_json collapse.
type columnOptionJSON struct {
	isString bool
	str      string
	Column        string  `json:"column"`
	MatchBehavior string  `json:"matchBehavior,omitempty"`
	NullAllowed   bool    `json:"nullAllowed,omitempty"`
	Default       *string `json:"default,omitempty"`
}

func (c *columnOptionJSON) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.isString = true
		c.str = s
		return nil
	}
	type alias columnOptionJSON
	var a alias
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return fmt.Errorf("uploadplan: wbcols entry must be a string or an object: %w", err)
	}
	*c = columnOptionJSON(a)
	return nil
}

func (c columnOptionJSON) toColumnOption() ColumnOption {
	if c.isString {
		return ColumnOption{Column: c.str}
	}
	opt := ColumnOption{Column: c.Column, NullAllowed: c.NullAllowed, Default: c.Default}
	switch c.MatchBehavior {
	case "ignoreWhenBlank":
		opt.MatchBehavior = MatchIgnoreWhenBlank
	case "ignoreAlways":
		opt.MatchBehavior = MatchIgnoreAlways
	default:
		opt.MatchBehavior = MatchIgnoreNever
	}
	return opt
}

// treeRecordJSON is the wire shape of a TreeRecord body.
type treeRecordJSON struct {
	Name  string                      `json:"name"`
	Ranks map[string]rankColumnsJSON `json:"ranks"`
}

// rankColumnsJSON accepts either a bare string caption (shorthand for
// `{"name": caption}`) or an object of tree-column-name to caption.
type rankColumnsJSON struct {
	isString bool
	str      string
	obj      map[string]string
}

func (r *rankColumnsJSON) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.isString = true
		r.str = s
		return nil
	}
	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("uploadplan: ranks entry must be a string or an object of column captions: %w", err)
	}
	r.obj = obj
	return nil
}

func (r rankColumnsJSON) toRankColumns() RankColumns {
	if r.isString {
		return RankColumns{"name": r.str}
	}
	out := make(RankColumns, len(r.obj))
	for k, v := range r.obj {
		out[k] = v
	}
	return out
}

func (t *treeRecordJSON) toTreeRecordNode() (*TreeRecordNode, error) {
	if t.Name == "" {
		return nil, fmt.Errorf("uploadplan: treeRecord node missing required \"name\"")
	}
	ranks := make([]RankEntry, 0, len(t.Ranks))
	for rankName, cols := range t.Ranks {
		ranks = append(ranks, RankEntry{RankName: rankName, Columns: cols.toRankColumns()})
	}
	return &TreeRecordNode{Name: t.Name, Ranks: ranks}, nil
}
