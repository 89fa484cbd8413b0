package openai

import "github.com/facturai/invoice-engine/internal/invoice"

// payload mirrors the JSON the model returns (the shape enforced by
// llm.BuildInvoiceJSONSchema).
type payload struct {
	Provider   partyPayload  `json:"provider"`
	Buyer      partyPayload  `json:"buyer"`
	LineItems  []linePayload `json:"line_items"`
	Totals     totalsPayload `json:"totals"`
	Confidence *float32      `json:"confidence,omitempty"`
}

type partyPayload struct {
	Name    string `json:"name"`
	RUT     string `json:"rut"`
	Address string `json:"address"`
	Type    string `json:"type"`
}

type linePayload struct {
	RubroRaw  string  `json:"rubro_raw"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

type totalsPayload struct {
	Subtotal float64 `json:"subtotal"`
	IVA      float64 `json:"iva"`
	IVARate  float64 `json:"iva_rate"`
	Total    float64 `json:"total"`
}

func (p payload) toInvoice() *invoice.Invoice {
	items := make([]invoice.LineItem, 0, len(p.LineItems))
	for _, li := range p.LineItems {
		items = append(items, invoice.LineItem{
			RubroRaw:  li.RubroRaw,
			Quantity:  li.Quantity,
			UnitPrice: li.UnitPrice,
			Subtotal:  li.Subtotal,
		})
	}
	return &invoice.Invoice{
		Provider:  invoice.Party{Name: p.Provider.Name, RUT: p.Provider.RUT, Address: p.Provider.Address},
		Buyer:     invoice.Party{Name: p.Buyer.Name, RUT: p.Buyer.RUT, Address: p.Buyer.Address, Type: p.Buyer.Type},
		LineItems: items,
		Totals: invoice.Totals{
			Subtotal: p.Totals.Subtotal,
			IVA:      p.Totals.IVA,
			IVARate:  p.Totals.IVARate,
			Total:    p.Totals.Total,
		},
		Confidence: p.Confidence,
	}
}
