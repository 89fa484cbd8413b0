package llama

import (
	"encoding/json"
	"fmt"

	"github.com/facturai/invoice-engine/internal/invoice"
)

// agentDataSchema is the structured-output schema the extraction agent
// is created with. The agent returns seller/buyer/line_items/
// financial_summary; mapResult folds that into the canonical Invoice.
func agentDataSchema() map[string]any {
	strProp := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"seller": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":    strProp("Seller name"),
					"rut":     strProp("Seller RUT"),
					"address": strProp("Seller address"),
				},
			},
			"buyer": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":    strProp("Buyer name"),
					"rut":     strProp("Buyer RUT"),
					"address": strProp("Buyer address"),
					"type":    strProp("Invoice type"),
				},
			},
			"line_items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"description":     strProp("Item description"),
						"quantity":        map[string]any{"type": "number", "description": "Quantity"},
						"unit_of_measure": strProp("Unit of measure"),
					},
				},
			},
			"financial_summary": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"sub_total":    map[string]any{"type": "number", "description": "Subtotal"},
					"iva_amount":   map[string]any{"type": "number", "description": "IVA amount"},
					"total_amount": map[string]any{"type": "number", "description": "Total amount"},
				},
			},
		},
	}
}

type resultParty struct {
	Name    string `json:"name"`
	RUT     string `json:"rut"`
	Address string `json:"address"`
	Type    string `json:"type"`
}

type resultPayload struct {
	Data struct {
		Seller    resultParty `json:"seller"`
		Buyer     resultParty `json:"buyer"`
		LineItems []struct {
			Description string  `json:"description"`
			Quantity    float64 `json:"quantity"`
		} `json:"line_items"`
		FinancialSummary struct {
			SubTotal    float64 `json:"sub_total"`
			IVAAmount   float64 `json:"iva_amount"`
			TotalAmount float64 `json:"total_amount"`
		} `json:"financial_summary"`
	} `json:"data"`
	ExtractionMetadata map[string]any `json:"extraction_metadata"`
}

// defaultConfidence is attached when the service reports extraction
// metadata; the API gives no field-level scores.
const defaultConfidence float32 = 0.85

// mapResult converts the extraction-agent output into the canonical
// Invoice. The agent does not separate unit prices, so line items carry
// zero unit_price/subtotal, the known-incomplete state the validator
// treats as informational.
func mapResult(raw []byte) (*invoice.Invoice, error) {
	// A single-document job may come back wrapped in a one-element list.
	trimmed := raw
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode result list: %w", err)
		}
		if len(list) != 1 {
			return nil, fmt.Errorf("unexpected result list length %d", len(list))
		}
		trimmed = list[0]
	}

	var p resultPayload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if p.Data.Seller.Name == "" && p.Data.FinancialSummary.TotalAmount == 0 && len(p.Data.LineItems) == 0 {
		return nil, fmt.Errorf("result carries no extraction data")
	}

	items := make([]invoice.LineItem, 0, len(p.Data.LineItems))
	for _, li := range p.Data.LineItems {
		items = append(items, invoice.LineItem{
			RubroRaw:  li.Description,
			Quantity:  li.Quantity,
			UnitPrice: 0,
			Subtotal:  0,
		})
	}

	inv := &invoice.Invoice{
		Provider:  invoice.Party{Name: p.Data.Seller.Name, RUT: p.Data.Seller.RUT, Address: p.Data.Seller.Address},
		Buyer:     invoice.Party{Name: p.Data.Buyer.Name, RUT: p.Data.Buyer.RUT, Address: p.Data.Buyer.Address, Type: p.Data.Buyer.Type},
		LineItems: items,
		Totals: invoice.Totals{
			Subtotal: p.Data.FinancialSummary.SubTotal,
			IVA:      p.Data.FinancialSummary.IVAAmount,
			IVARate:  0,
			Total:    p.Data.FinancialSummary.TotalAmount,
		},
	}
	if p.ExtractionMetadata != nil {
		conf := defaultConfidence
		inv.Confidence = &conf
	}
	return inv, nil
}
