// Package invoice holds the canonical structured representation every
// extraction backend produces, plus the numeric-consistency validator.
package invoice

// Party is an invoice party (issuer or receiver). Fields may be empty
// strings when unknown, never absent.
type Party struct {
	Name    string `json:"name"`
	RUT     string `json:"rut"`
	Address string `json:"address"`
	Type    string `json:"type,omitempty"`
}

// LineItem is one invoice line in document order.
//
// UnitPrice may legitimately be zero when the backend could not separate
// the price from the description; in that state Subtotal is not expected
// to equal Quantity*UnitPrice.
type LineItem struct {
	RubroCode string  `json:"rubro_code,omitempty"`
	RubroRaw  string  `json:"rubro_raw"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

// Totals are the stated invoice totals. IVARate is a fraction
// (0.19 for 19%), zero when the backend did not report one.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	IVA      float64 `json:"iva"`
	IVARate  float64 `json:"iva_rate"`
	Total    float64 `json:"total"`
}

// Invoice is the root aggregate produced by a backend.
type Invoice struct {
	Provider  Party      `json:"provider"`
	Buyer     Party      `json:"buyer"`
	LineItems []LineItem `json:"line_items"`
	Totals    Totals     `json:"totals"`
	// Confidence is a 0..1 score when the backend supplies one, nil otherwise.
	Confidence *float32 `json:"confidence,omitempty"`
}

// Issue severities.
const (
	SeverityError = "error"
	SeverityInfo  = "info"
)

// ValidationIssue is one human-readable discrepancy found by Validate.
type ValidationIssue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
	Severity string `json:"severity"`
}

// ValidationResult is produced fresh per invoice and never mutated after.
type ValidationResult struct {
	IsValid bool              `json:"is_valid"`
	Issues  []ValidationIssue `json:"issues"`
}
