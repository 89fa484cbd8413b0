package ocrlocal

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/facturai/invoice-engine/internal/invoice"
)

// Regex parsing of normalized OCR text. Tuned for Chilean/Uruguayan
// invoices: RUT tax ids, TOTAL/SUBTOTAL/IVA labels, "qty x description"
// line items.
var (
	reRUTDotted = regexp.MustCompile(`\b\d{1,2}\.\d{3}\.\d{3}-[0-9Kk]\b`)
	reRUTPlain  = regexp.MustCompile(`\b\d{7,8}-[0-9Kk]\b`)

	reTotal    = regexp.MustCompile(`(?i)\bTOTAL\b[^0-9]*([\d.,]+)`)
	reSubtotal = regexp.MustCompile(`(?i)\b(?:SUB\s*-?\s*TOTAL|BASE\s+IMPONIBLE|NETO)\b[^0-9]*([\d.,]+)`)
	// skips a printed rate like "IVA 19%" so the amount is captured
	reIVA = regexp.MustCompile(`(?i)\bI\.?V\.?A\.?\b[^0-9]*(?:\d+\s*%[^0-9]*)?([\d.,]+)`)

	reLineItem = regexp.MustCompile(`^(\d+)\s+[xX\s]*(.+)$`)
	reAmount   = regexp.MustCompile(`([\d.,]+)\s*$`)

	headerWords = []string{"FACTURA", "INVOICE", "BOLETA", "RUT", "TOTAL", "FECHA", "N°", "NRO"}
)

// parseAmount reads a Latin-American formatted number: dots as thousand
// separators, comma as the decimal mark. "1.234,56" -> 1234.56.
func parseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else if n := strings.Count(s, "."); n > 0 {
		// A lone dot followed by exactly 3 digits is a thousand separator.
		idx := strings.LastIndex(s, ".")
		if n > 1 || len(s)-idx-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func isHeaderLine(line string) bool {
	up := strings.ToUpper(line)
	for _, w := range headerWords {
		if strings.Contains(up, w) {
			return true
		}
	}
	return false
}

// providerName picks the first non-header line near the top of the
// document; invoices usually print the issuer name first.
func providerName(lines []string) string {
	limit := len(lines)
	if limit > 8 {
		limit = 8
	}
	for _, line := range lines[:limit] {
		line = strings.TrimSpace(line)
		if line == "" || isHeaderLine(line) {
			continue
		}
		if len(line) < 3 || reAmount.MatchString(line) && len(strings.Fields(line)) == 1 {
			continue
		}
		return line
	}
	return ""
}

func findRUT(text string) string {
	if m := reRUTDotted.FindString(text); m != "" {
		return m
	}
	return reRUTPlain.FindString(text)
}

func findAmount(re *regexp.Regexp, text string) float64 {
	var best float64
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if v := parseAmount(m[1]); v > best {
			best = v
		}
	}
	return best
}

// parseLineItems reads "qty description [price]" rows; when the row
// carries no trailing price the next line is tried.
func parseLineItems(lines []string) []invoice.LineItem {
	var items []invoice.LineItem
	for i, line := range lines {
		line = strings.TrimSpace(line)
		m := reLineItem.FindStringSubmatch(line)
		if m == nil || isHeaderLine(line) {
			continue
		}
		qty, err := strconv.ParseFloat(m[1], 64)
		if err != nil || qty <= 0 || qty > 10000 {
			continue
		}
		desc := strings.TrimSpace(m[2])

		var price float64
		if am := reAmount.FindStringSubmatch(desc); am != nil && len(strings.Fields(desc)) > 1 {
			price = parseAmount(am[1])
			desc = strings.TrimSpace(strings.TrimSuffix(desc, am[0]))
		} else if i+1 < len(lines) {
			next := strings.TrimSpace(lines[i+1])
			if am := reAmount.FindStringSubmatch(next); am != nil && next == am[0] {
				price = parseAmount(am[1])
			}
		}
		if desc == "" {
			continue
		}
		item := invoice.LineItem{RubroRaw: desc, Quantity: qty}
		if price > 0 {
			item.Subtotal = price
			item.UnitPrice = math.Round(price/qty*100) / 100
		}
		items = append(items, item)
	}
	return items
}

// parseInvoice builds an Invoice from raw OCR text. Fields that cannot
// be recovered stay at their zero value; the validator flags the gaps.
func parseInvoice(text string) *invoice.Invoice {
	lines := strings.Split(text, "\n")

	inv := &invoice.Invoice{
		Provider: invoice.Party{
			Name: providerName(lines),
			RUT:  findRUT(text),
		},
		LineItems: parseLineItems(lines),
	}

	inv.Totals.Total = findAmount(reTotal, text)
	inv.Totals.Subtotal = findAmount(reSubtotal, text)
	inv.Totals.IVA = findAmount(reIVA, text)
	if inv.Totals.Subtotal > 0 && inv.Totals.IVA > 0 {
		inv.Totals.IVARate = math.Round(inv.Totals.IVA/inv.Totals.Subtotal*10000) / 10000
	}

	conf := float32(0.5)
	if inv.Provider.Name != "" {
		conf += 0.1
	}
	if inv.Provider.RUT != "" {
		conf += 0.1
	}
	if inv.Totals.Total > 0 {
		conf += 0.2
	}
	if len(inv.LineItems) > 0 {
		conf += 0.1
	}
	if conf > 1 {
		conf = 1
	}
	inv.Confidence = &conf
	return inv
}
