package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// parseFields turns a model response into a flat label to text map. The
// response may be wrapped in a markdown fence or surrounded by prose.
func parseFields(text string) (map[string]string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text[startIdx : endIdx+1])))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	fields := make(map[string]string, len(doc))
	flatten(fields, doc)
	return fields, nil
}

// flatten copies scalar values into fields. Nested objects contribute their
// own labels unless the outer level already has them.
func flatten(fields map[string]string, doc map[string]any) {
	var nested []map[string]any
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		label := strings.TrimSpace(k)
		switch v := doc[k].(type) {
		case map[string]any:
			nested = append(nested, v)
		default:
			if s, ok := scalarText(v); ok && s != "" {
				fields[label] = s
			}
		}
	}

	for _, n := range nested {
		inner := make(map[string]string)
		flatten(inner, n)
		for k, v := range inner {
			if _, exists := fields[k]; !exists {
				fields[k] = v
			}
		}
	}
}

func scalarText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := scalarText(item); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "、"), true
	default:
		return fmt.Sprint(t), true
	}
}
