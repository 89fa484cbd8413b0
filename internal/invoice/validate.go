package invoice

import (
	"fmt"
	"math"
)

// Tolerance for monetary comparisons: the larger of an absolute epsilon
// (half a currency minor unit) and a relative one (0.5%), since raw
// currency values on these invoices can be large.
const (
	absTolerance = 0.5
	relTolerance = 0.005
)

func tolerance(ref float64) float64 {
	if r := math.Abs(ref) * relTolerance; r > absTolerance {
		return r
	}
	return absTolerance
}

func within(stated, expected float64) bool {
	return math.Abs(stated-expected) <= tolerance(expected)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Validate checks the numeric self-consistency of an invoice: line
// subtotals against quantity*unit_price, the stated subtotal against the
// line items, IVA against subtotal*rate, and the grand total against
// subtotal+IVA. It never fails; malformed numbers become issues.
//
// Line items with a zero unit price are a known-incomplete-extraction
// state (price embedded in the description), so they are not penalized:
// their recomputation is skipped and a disagreement between the stated
// subtotal and the sum of their stated line subtotals is reported as
// informational only. IsValid reflects error-severity issues alone.
func Validate(inv *Invoice) *ValidationResult {
	issues := make([]ValidationIssue, 0, 4)
	addErr := func(code, field, msg string) {
		issues = append(issues, ValidationIssue{Code: code, Message: msg, Field: field, Severity: SeverityError})
	}
	addInfo := func(code, field, msg string) {
		issues = append(issues, ValidationIssue{Code: code, Message: msg, Field: field, Severity: SeverityInfo})
	}

	totalsOK := true
	for _, f := range []struct {
		name string
		val  float64
	}{
		{"totals.subtotal", inv.Totals.Subtotal},
		{"totals.iva", inv.Totals.IVA},
		{"totals.iva_rate", inv.Totals.IVARate},
		{"totals.total", inv.Totals.Total},
	} {
		if !finite(f.val) {
			addErr("malformed_number", f.name, fmt.Sprintf("%s is not a finite number", f.name))
			totalsOK = false
		}
	}

	var statedSum, recomputedSum float64
	pricedLines := 0
	statedLineSubtotals := false
	for idx, li := range inv.LineItems {
		if !finite(li.Quantity) || !finite(li.UnitPrice) || !finite(li.Subtotal) {
			addErr("malformed_number",
				fmt.Sprintf("line_items[%d]", idx),
				fmt.Sprintf("line %d has a non-finite numeric field", idx))
			continue
		}
		statedSum += li.Subtotal
		if li.Subtotal != 0 {
			statedLineSubtotals = true
		}
		// Only a zero unit price marks an inseparable-price line; a zero
		// quantity with a priced line still recomputes (expected 0).
		if li.UnitPrice > 0 {
			expected := li.Quantity * li.UnitPrice
			recomputedSum += expected
			pricedLines++
			if !within(li.Subtotal, expected) {
				addErr("line_subtotal_mismatch",
					fmt.Sprintf("line_items[%d].subtotal", idx),
					fmt.Sprintf("line %d subtotal %.2f != quantity*unit_price %.2f", idx, li.Subtotal, expected))
			}
		}
	}

	if totalsOK {
		// Recomputed subtotal is only meaningful when at least one line
		// carried a separable unit price.
		if pricedLines > 0 && !within(inv.Totals.Subtotal, recomputedSum) {
			addErr("subtotal_mismatch", "totals.subtotal",
				fmt.Sprintf("invoice subtotal %.2f != recomputed sum of line items %.2f", inv.Totals.Subtotal, recomputedSum))
		}
		if len(inv.LineItems) > 0 && !within(inv.Totals.Subtotal, statedSum) {
			msg := fmt.Sprintf("invoice subtotal %.2f != sum of stated line subtotals %.2f", inv.Totals.Subtotal, statedSum)
			if pricedLines > 0 || statedLineSubtotals {
				addErr("lines_sum_mismatch", "totals.subtotal", msg)
			} else {
				addInfo("lines_sum_incomplete", "totals.subtotal", msg)
			}
		}
		if inv.Totals.IVARate > 0 {
			expectedIVA := inv.Totals.Subtotal * inv.Totals.IVARate
			if !within(inv.Totals.IVA, expectedIVA) {
				addErr("iva_mismatch", "totals.iva",
					fmt.Sprintf("IVA %.2f != subtotal*iva_rate %.2f", inv.Totals.IVA, expectedIVA))
			}
		}
		expectedTotal := inv.Totals.Subtotal + inv.Totals.IVA
		if !within(inv.Totals.Total, expectedTotal) {
			addErr("total_mismatch", "totals.total",
				fmt.Sprintf("total %.2f != subtotal+IVA %.2f", inv.Totals.Total, expectedTotal))
		}
	}

	valid := true
	for _, is := range issues {
		if is.Severity == SeverityError {
			valid = false
			break
		}
	}
	return &ValidationResult{IsValid: valid, Issues: issues}
}
