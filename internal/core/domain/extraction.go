package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ExtractedField is the tagged variant for structured fund data produced by
// the field-extraction collaborator. A field is either a plain value or a
// value located on a page with a bounding box; the shape is resolved once
// here, at the boundary, never re-inspected downstream.
type ExtractedField struct {
	Value   string
	Located bool
	Page    int
	BBox    [4]float64
}

func PlainValue(v string) ExtractedField {
	return ExtractedField{Value: v}
}

func LocatedValue(v string, page int, bbox [4]float64) ExtractedField {
	return ExtractedField{Value: v, Located: true, Page: page, BBox: bbox}
}

// DecodeExtractedFields resolves the collaborator's mixed JSON payload, where
// each field is either a bare scalar or an object {value, page, bbox}.
func DecodeExtractedFields(raw []byte) (map[string]ExtractedField, error) {
	if len(raw) == 0 {
		return map[string]ExtractedField{}, nil
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode extracted data: %w", err)
	}

	out := make(map[string]ExtractedField, len(payload))
	for key, msg := range payload {
		out[key] = decodeField(msg)
	}
	return out, nil
}

func decodeField(msg json.RawMessage) ExtractedField {
	var located struct {
		Value any        `json:"value"`
		Page  int        `json:"page"`
		BBox  [4]float64 `json:"bbox"`
	}
	if err := json.Unmarshal(msg, &located); err == nil && located.Value != nil {
		if located.Page > 0 {
			return LocatedValue(stringify(located.Value), located.Page, located.BBox)
		}
		return PlainValue(stringify(located.Value))
	}

	var plain any
	if err := json.Unmarshal(msg, &plain); err != nil {
		return PlainValue(string(msg))
	}
	return PlainValue(stringify(plain))
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(raw)
	}
}

// SortedFieldKeys returns field names in stable order for prompt assembly.
func SortedFieldKeys(fields map[string]ExtractedField) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
