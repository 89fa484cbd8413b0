package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// StripCodeFences removes a markdown ```json ... ``` wrapper the model
// sometimes adds despite instructions.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// NormalizeInvoiceJSON makes model output schema-friendly without
// touching extracted values:
//   - Drops unknown keys (strict additionalProperties = false friendliness)
//   - Replaces null strings with "" and null numbers with 0
//   - Coerces numeric strings ("1190.50") to numbers
//
// Returns the cleaned JSON plus the list of keys it had to touch.
func NormalizeInvoiceJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	touched := make([]string, 0, 8)

	cleanParty := func(key string) {
		v, ok := m[key]
		if !ok {
			return
		}
		pm, ok := v.(map[string]any)
		if !ok {
			delete(m, key)
			touched = append(touched, key+"(type)")
			return
		}
		out := map[string]any{}
		for _, f := range []string{"name", "rut", "address", "type"} {
			switch t := pm[f].(type) {
			case string:
				out[f] = strings.TrimSpace(t)
			case nil:
				// omitted or null -> empty string, parties always carry all fields
			default:
				touched = append(touched, key+"."+f+"(type)")
			}
		}
		for _, f := range []string{"name", "rut", "address"} {
			if _, ok := out[f]; !ok {
				out[f] = ""
			}
		}
		m[key] = out
	}
	cleanParty("provider")
	cleanParty("buyer")

	coerceNumber := func(obj map[string]any, key, path string) {
		switch t := obj[key].(type) {
		case float64:
			// already a JSON number
		case nil:
			obj[key] = 0.0
			touched = append(touched, path+"(null)")
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(t, ",", ""))
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				obj[key] = f
			} else {
				obj[key] = 0.0
			}
			touched = append(touched, path+"(string)")
		default:
			obj[key] = 0.0
			touched = append(touched, path+"(type)")
		}
	}

	if v, ok := m["totals"]; ok {
		if tm, ok := v.(map[string]any); ok {
			for _, f := range []string{"subtotal", "iva", "iva_rate", "total"} {
				coerceNumber(tm, f, "totals."+f)
			}
			for k := range tm {
				switch k {
				case "subtotal", "iva", "iva_rate", "total":
				default:
					delete(tm, k)
					touched = append(touched, "totals."+k+"(unknown)")
				}
			}
		}
	}

	if v, ok := m["line_items"]; ok {
		items, ok := v.([]any)
		if !ok {
			delete(m, "line_items")
			touched = append(touched, "line_items(type)")
		} else {
			cleaned := make([]any, 0, len(items))
			for i, it := range items {
				im, ok := it.(map[string]any)
				if !ok {
					touched = append(touched, fmt.Sprintf("line_items[%d](type)", i))
					continue
				}
				out := map[string]any{}
				if s, ok := im["rubro_raw"].(string); ok {
					out["rubro_raw"] = strings.TrimSpace(s)
				} else if s, ok := im["description"].(string); ok {
					// common synonym from generic invoice prompts
					out["rubro_raw"] = strings.TrimSpace(s)
					touched = append(touched, fmt.Sprintf("line_items[%d].description->rubro_raw", i))
				} else {
					out["rubro_raw"] = ""
					touched = append(touched, fmt.Sprintf("line_items[%d].rubro_raw(missing)", i))
				}
				for _, f := range []string{"quantity", "unit_price", "subtotal"} {
					out[f] = im[f]
					coerceNumber(out, f, fmt.Sprintf("line_items[%d].%s", i, f))
				}
				cleaned = append(cleaned, out)
			}
			m["line_items"] = cleaned
		}
	}

	if v, ok := m["confidence"]; ok {
		if f, ok := v.(float64); !ok || f < 0 || f > 1 {
			delete(m, "confidence")
			touched = append(touched, "confidence(out_of_range)")
		}
	}

	allowed := map[string]struct{}{
		"provider": {}, "buyer": {}, "line_items": {}, "totals": {}, "confidence": {},
	}
	for k := range m {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			touched = append(touched, k+"(unknown)")
		}
	}

	if len(touched) > 0 {
		logger.Debug("llm.sanitize.touched", "keys", touched)
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, touched, nil
}
