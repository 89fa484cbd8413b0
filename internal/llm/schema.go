package llm

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// We pass this to the model as a structured output constraint and also use it locally to validate.
func BuildInvoiceJSONSchema() map[string]any {
	party := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name":    map[string]any{"type": "string"},
			"rut":     map[string]any{"type": "string"},
			"address": map[string]any{"type": "string"},
			"type":    map[string]any{"type": "string"},
		},
	}

	lineItem := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"rubro_raw":  map[string]any{"type": "string"},
			"quantity":   map[string]any{"type": "number", "minimum": 0},
			"unit_price": map[string]any{"type": "number"},
			"subtotal":   map[string]any{"type": "number"},
		},
		"required": []string{"rubro_raw"},
	}

	totals := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"subtotal": map[string]any{"type": "number"},
			"iva":      map[string]any{"type": "number"},
			"iva_rate": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"total":    map[string]any{"type": "number"},
		},
		"required": []string{"total"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"provider":   party,
			"buyer":      party,
			"line_items": map[string]any{"type": "array", "items": lineItem},
			"totals":     totals,
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"provider", "totals"},
	}
}
