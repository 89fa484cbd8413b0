package invoice

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(res *ValidationResult) []string {
	out := make([]string, 0, len(res.Issues))
	for _, is := range res.Issues {
		out = append(out, is.Code)
	}
	return out
}

func TestValidateConsistentInvoice(t *testing.T) {
	inv := &Invoice{
		Provider: Party{Name: "ACME SA", RUT: "12.345.678-9"},
		LineItems: []LineItem{
			{RubroRaw: "Servicio de consultoría", Quantity: 2, UnitPrice: 100, Subtotal: 200},
			{RubroRaw: "Horas extra", Quantity: 1.5, UnitPrice: 200, Subtotal: 300},
		},
		Totals: Totals{Subtotal: 500, IVA: 95, IVARate: 0.19, Total: 595},
	}

	res := Validate(inv)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Issues)
}

func TestValidateTotalMismatch(t *testing.T) {
	inv := &Invoice{
		LineItems: []LineItem{
			{RubroRaw: "Item", Quantity: 1, UnitPrice: 100, Subtotal: 100},
		},
		Totals: Totals{Subtotal: 100, IVA: 19, IVARate: 0.19, Total: 150},
	}

	res := Validate(inv)
	assert.False(t, res.IsValid)
	assert.Contains(t, codes(res), "total_mismatch")
}

func TestValidateIVAMismatch(t *testing.T) {
	inv := &Invoice{
		LineItems: []LineItem{
			{RubroRaw: "Item", Quantity: 1, UnitPrice: 100, Subtotal: 100},
		},
		Totals: Totals{Subtotal: 100, IVA: 25, IVARate: 0.19, Total: 125},
	}

	res := Validate(inv)
	assert.False(t, res.IsValid)
	assert.Contains(t, codes(res), "iva_mismatch")
	assert.NotContains(t, codes(res), "total_mismatch")
}

func TestValidateLineSubtotalMismatch(t *testing.T) {
	inv := &Invoice{
		LineItems: []LineItem{
			{RubroRaw: "Item", Quantity: 2, UnitPrice: 10, Subtotal: 25},
		},
		Totals: Totals{Subtotal: 25, IVA: 0, IVARate: 0, Total: 25},
	}

	res := Validate(inv)
	assert.False(t, res.IsValid)
	assert.Contains(t, codes(res), "line_subtotal_mismatch")
}

func TestValidateZeroQuantityPricedLineMismatch(t *testing.T) {
	inv := &Invoice{
		LineItems: []LineItem{
			{RubroRaw: "Item", Quantity: 0, UnitPrice: 100, Subtotal: 500},
		},
		Totals: Totals{Subtotal: 500, IVA: 0, IVARate: 0, Total: 500},
	}

	res := Validate(inv)
	assert.False(t, res.IsValid)
	assert.Contains(t, codes(res), "line_subtotal_mismatch")
}

// Zero unit prices mean the backend could not separate price from
// description; the invoice must still validate on its stated totals.
func TestValidateUnpricedLinesAreInformational(t *testing.T) {
	inv := &Invoice{
		LineItems: []LineItem{
			{RubroRaw: "Obra gruesa", Quantity: 2, UnitPrice: 0, Subtotal: 0},
		},
		Totals: Totals{Subtotal: 69393.0, IVA: 15267.0, IVARate: 0, Total: 84660.0},
	}

	res := Validate(inv)
	assert.True(t, res.IsValid)
	for _, is := range res.Issues {
		assert.Equal(t, SeverityInfo, is.Severity)
	}

	// Breaking the stated total must flip the verdict.
	inv.Totals.Total = 90000.0
	res = Validate(inv)
	assert.False(t, res.IsValid)
	assert.Contains(t, codes(res), "total_mismatch")
}

func TestValidateRelativeTolerance(t *testing.T) {
	// 400 off on a ~100k subtotal is inside the 0.5% relative band.
	inv := &Invoice{
		LineItems: []LineItem{
			{RubroRaw: "Item", Quantity: 1, UnitPrice: 100400, Subtotal: 100400},
		},
		Totals: Totals{Subtotal: 100000, IVA: 0, IVARate: 0, Total: 100000},
	}

	res := Validate(inv)
	assert.True(t, res.IsValid)
}

func TestValidateMalformedNumbers(t *testing.T) {
	inv := &Invoice{
		Totals: Totals{Subtotal: math.NaN(), IVA: 0, IVARate: 0, Total: 0},
	}

	res := Validate(inv)
	require.False(t, res.IsValid)
	assert.Contains(t, codes(res), "malformed_number")
}

func TestValidateEmptyInvoice(t *testing.T) {
	res := Validate(&Invoice{})
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Issues)
}
