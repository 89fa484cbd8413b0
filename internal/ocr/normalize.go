package ocr

import (
	"regexp"
	"strings"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
)

var reBoxNoise = regexp.MustCompile(`(?m)^\s*[_\-]{3,}\s*$`)

// Normalize collapses noisy whitespace and fixes common OCR artifacts.
// Conservative: keeps line breaks; collapses >2 newlines into a single blank line.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

var (
	reRUT    = regexp.MustCompile(`\b\d{1,2}\.\d{3}\.\d{3}-[0-9Kk]\b|\b\d{7,8}-[0-9Kk]\b`)
	reTotal  = regexp.MustCompile(`(?i)\b(total|importe total|total general)\b`)
	reIVA    = regexp.MustCompile(`(?i)\biva\b`)
	reAmount = regexp.MustCompile(`\$\s?\d+|\b\d{1,3}(\.\d{3})+\b|\b\d+\.\d{2}\b`)
)

// heuristicConfidence scores decoded text by how much it looks like an
// invoice: a RUT, total/IVA labels and amount-shaped tokens each raise it.
func heuristicConfidence(txt string) float32 {
	score := float32(0.2) // base
	if reRUT.MatchString(txt) {
		score += 0.2
	}
	if reTotal.MatchString(txt) {
		score += 0.2
	}
	if reIVA.MatchString(txt) {
		score += 0.1
	}
	if reAmount.MatchString(txt) {
		score += 0.15
	}
	if len(txt) > 120 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
