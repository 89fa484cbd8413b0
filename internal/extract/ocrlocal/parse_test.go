package ocrlocal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleText = `Comercial Andina Ltda.
RUT: 76.543.210-K
FACTURA ELECTRONICA N° 4512
FECHA: 12/03/2026

2 x Resma papel carta 9.000
1 Toner HP 85A 45.500

SUBTOTAL 54.500
IVA 19% 10.355
TOTAL 64.855
`

func TestParseInvoiceSample(t *testing.T) {
	inv := parseInvoice(sampleText)

	assert.Equal(t, "Comercial Andina Ltda.", inv.Provider.Name)
	assert.Equal(t, "76.543.210-K", inv.Provider.RUT)

	assert.InDelta(t, 54500, inv.Totals.Subtotal, 0.01)
	assert.InDelta(t, 10355, inv.Totals.IVA, 0.01)
	assert.InDelta(t, 64855, inv.Totals.Total, 0.01)
	assert.InDelta(t, 0.19, inv.Totals.IVARate, 0.001)

	require.Len(t, inv.LineItems, 2)
	assert.Equal(t, "Resma papel carta", inv.LineItems[0].RubroRaw)
	assert.Equal(t, 2.0, inv.LineItems[0].Quantity)
	assert.InDelta(t, 9000, inv.LineItems[0].Subtotal, 0.01)
	assert.InDelta(t, 4500, inv.LineItems[0].UnitPrice, 0.01)
	assert.Equal(t, "Toner HP 85A", inv.LineItems[1].RubroRaw)

	require.NotNil(t, inv.Confidence)
	assert.InDelta(t, 1.0, float64(*inv.Confidence), 0.001)
}

func TestParseInvoicePlainRUT(t *testing.T) {
	inv := parseInvoice("Servicios del Sur\nRUT 21345678-9\nTOTAL 12.000\n")
	assert.Equal(t, "21345678-9", inv.Provider.RUT)
	assert.InDelta(t, 12000, inv.Totals.Total, 0.01)
}

func TestParseAmountFormats(t *testing.T) {
	assert.InDelta(t, 1234.56, parseAmount("1.234,56"), 0.001)
	assert.InDelta(t, 1234.0, parseAmount("1.234"), 0.001)
	assert.InDelta(t, 12.34, parseAmount("12.34"), 0.001)
	assert.InDelta(t, 999.0, parseAmount("999"), 0.001)
	assert.Equal(t, 0.0, parseAmount("n/a"))
}

func TestParseInvoiceEmptyText(t *testing.T) {
	inv := parseInvoice("\n\n")
	assert.Empty(t, inv.Provider.Name)
	assert.Zero(t, inv.Totals.Total)
	assert.Empty(t, inv.LineItems)
}
