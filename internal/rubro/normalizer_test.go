package rubro

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturai/invoice-engine/internal/invoice"
)

const nomenclatorCSV = `codigo,nombre
R001,Papeleria y utiles de oficina
R002,Servicios de limpieza
R003,Equipos de computacion
`

func loadTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := Parse(strings.NewReader(nomenclatorCSV), nil)
	require.NoError(t, err)
	return n
}

func TestResolveExactMatch(t *testing.T) {
	n := loadTestNormalizer(t)
	assert.Equal(t, "R002", n.Resolve("Servicios de Limpieza"))
	assert.Equal(t, "R002", n.Resolve("  servicios   de limpieza "))
}

func TestResolveSubstringMatch(t *testing.T) {
	n := loadTestNormalizer(t)
	assert.Equal(t, "R003", n.Resolve("equipos de computacion marca X"))
	assert.Equal(t, "R001", n.Resolve("papeleria y utiles de oficina (resmas)"))
}

func TestResolveNoMatch(t *testing.T) {
	n := loadTestNormalizer(t)
	assert.Empty(t, n.Resolve("arriendo de maquinaria"))
	assert.Empty(t, n.Resolve(""))
}

func TestApplySetsCodesAndCounts(t *testing.T) {
	n := loadTestNormalizer(t)
	inv := &invoice.Invoice{
		LineItems: []invoice.LineItem{
			{RubroRaw: "Servicios de limpieza"},
			{RubroRaw: "algo desconocido"},
			{RubroRaw: "Equipos de computacion", RubroCode: "CUSTOM"},
		},
	}
	matched := n.Apply(inv)
	assert.Equal(t, 1, matched)
	assert.Equal(t, "R002", inv.LineItems[0].RubroCode)
	assert.Empty(t, inv.LineItems[1].RubroCode)
	assert.Equal(t, "CUSTOM", inv.LineItems[2].RubroCode, "existing codes are preserved")
}

func TestParseSkipsHeaderAndBlankRows(t *testing.T) {
	n, err := Parse(strings.NewReader("codigo,nombre\n,\nR009,Fletes\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "R009", n.Resolve("fletes"))
}
