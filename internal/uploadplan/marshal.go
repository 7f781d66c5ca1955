package uploadplan

import "encoding/json"

// MarshalNode serializes a PlanNode back to its wrapper-keyed wire form.
// Shorthand collapses (a bare string wbcols/ranks entry) are applied
// wherever the richer form carries only default values, so that
// parse-then-marshal yields an equivalent plan that keeps the shorthand
// form for plans originally written with it. The output is not
// byte-identical to the input: object keys come out sorted and
// whitespace is dropped.
func MarshalNode(n PlanNode) ([]byte, error) {
	switch v := n.(type) {
	case *TableNode:
		return marshalTableWrapper(v)
	case *TreeRecordNode:
		return marshalTreeWrapper(v)
	default:
		return nil, errUnknownNodeType
	}
}

var errUnknownNodeType = jsonError("uploadplan: unknown PlanNode implementation")

type jsonError string

func (e jsonError) Error() string { return string(e) }

func marshalTableWrapper(t *TableNode) ([]byte, error) {
	body, err := tableBody(t)
	if err != nil {
		return nil, err
	}
	wrapper := map[string]json.RawMessage{t.Kind.String(): body}
	return json.Marshal(wrapper)
}

func tableBody(t *TableNode) (json.RawMessage, error) {
	wbcols := make(map[string]interface{}, len(t.WBCols))
	for field, opt := range t.WBCols {
		wbcols[field] = columnOptionJSONValue(opt)
	}

	var toOne map[string]json.RawMessage
	if len(t.ToOne) > 0 {
		toOne = make(map[string]json.RawMessage, len(t.ToOne))
		for relation, child := range t.ToOne {
			raw, err := MarshalNode(child)
			if err != nil {
				return nil, err
			}
			toOne[relation] = raw
		}
	}

	var toMany map[string][]json.RawMessage
	if len(t.ToMany) > 0 {
		toMany = make(map[string][]json.RawMessage, len(t.ToMany))
		for relation, children := range t.ToMany {
			items := make([]json.RawMessage, 0, len(children))
			for _, child := range children {
				raw, err := tableBody(child)
				if err != nil {
					return nil, err
				}
				items = append(items, raw)
			}
			toMany[relation] = items
		}
	}

	return json.Marshal(struct {
		Name   string                      `json:"name"`
		WBCols map[string]interface{}      `json:"wbcols,omitempty"`
		Static map[string]interface{}      `json:"static,omitempty"`
		ToOne  map[string]json.RawMessage  `json:"toOne,omitempty"`
		ToMany map[string][]json.RawMessage `json:"toMany,omitempty"`
	}{
		Name:   t.Name,
		WBCols: wbcols,
		Static: t.Static,
		ToOne:  toOne,
		ToMany: toMany,
	})
}

func columnOptionJSONValue(opt ColumnOption) interface{} {
	if opt.MatchBehavior == MatchIgnoreNever && !opt.NullAllowed && opt.Default == nil {
		return opt.Column
	}
	behavior := ""
	switch opt.MatchBehavior {
	case MatchIgnoreWhenBlank:
		behavior = "ignoreWhenBlank"
	case MatchIgnoreAlways:
		behavior = "ignoreAlways"
	}
	return struct {
		Column        string  `json:"column"`
		MatchBehavior string  `json:"matchBehavior,omitempty"`
		NullAllowed   bool    `json:"nullAllowed,omitempty"`
		Default       *string `json:"default,omitempty"`
	}{Column: opt.Column, MatchBehavior: behavior, NullAllowed: opt.NullAllowed, Default: opt.Default}
}

func marshalTreeWrapper(t *TreeRecordNode) ([]byte, error) {
	ranks := make(map[string]interface{}, len(t.Ranks))
	for _, entry := range t.Ranks {
		if len(entry.Columns) == 1 {
			if name, ok := entry.Columns["name"]; ok {
				ranks[entry.RankName] = name
				continue
			}
		}
		ranks[entry.RankName] = entry.Columns
	}
	body, err := json.Marshal(struct {
		Name  string                 `json:"name"`
		Ranks map[string]interface{} `json:"ranks"`
	}{Name: t.Name, Ranks: ranks})
	if err != nil {
		return nil, err
	}
	wrapper := map[string]json.RawMessage{"treeRecord": body}
	return json.Marshal(wrapper)
}
