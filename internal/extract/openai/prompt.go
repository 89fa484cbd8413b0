package openai

import "strings"

func systemPrompt() string {
	parts := []string{
		"You are an invoice parser. Return ONLY JSON that matches the JSON Schema provided.",
		"The invoices are Chilean/Uruguayan: the tax id is a RUT and the tax is IVA.",
		"'iva_rate' is a fraction (0.19 for 19%); use 0 when no rate is printed.",
		"All amounts are plain numbers without currency symbols or thousand separators.",
		"When a line item's unit price cannot be separated from its description, set unit_price and subtotal to 0 and keep the full text in rubro_raw.",
		"Never output null. If a value is missing, use \"\" for strings and 0 for numbers.",
	}
	return strings.Join(parts, " ")
}

func userPrompt(ocrText, filename string) string {
	var b strings.Builder
	b.WriteString("Filename: ")
	b.WriteString(filename)
	b.WriteString("\n\nOCR text (first ~6k chars):\n")
	if len(ocrText) > 6000 {
		b.WriteString(ocrText[:6000])
	} else {
		b.WriteString(ocrText)
	}
	return b.String()
}
