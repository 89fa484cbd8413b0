// Package rubro resolves free-text line-item descriptions to codes from
// a nomenclator CSV (code,name per row). Matching is lexical only; an
// unmatched description simply keeps an empty code.
package rubro

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/facturai/invoice-engine/internal/invoice"
)

type entry struct {
	code string
	name string
}

type Normalizer struct {
	byName  map[string]string // normalized name -> code
	entries []entry
	log     *slog.Logger
}

// Load reads the nomenclator CSV from path. A header row is detected by
// a non-empty first field that parses as no known code shape ("codigo",
// "code") and skipped.
func Load(path string, logger *slog.Logger) (*Normalizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open nomenclator: %w", err)
	}
	defer f.Close()
	return Parse(f, logger)
}

// Parse reads nomenclator rows from r.
func Parse(r io.Reader, logger *slog.Logger) (*Normalizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	n := &Normalizer{byName: make(map[string]string), log: logger}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read nomenclator: %w", err)
		}
		if len(rec) < 2 {
			continue
		}
		code := strings.TrimSpace(rec[0])
		name := strings.TrimSpace(rec[1])
		if code == "" || name == "" {
			continue
		}
		if low := strings.ToLower(code); low == "codigo" || low == "código" || low == "code" {
			continue
		}
		key := normalize(name)
		if _, dup := n.byName[key]; dup {
			continue
		}
		n.byName[key] = code
		n.entries = append(n.entries, entry{code: code, name: key})
	}
	logger.Info("rubro.nomenclator_loaded", "entries", len(n.entries))
	return n, nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Resolve maps one raw description to a rubro code. Exact normalized
// match first, then substring containment either way.
func (n *Normalizer) Resolve(raw string) string {
	key := normalize(raw)
	if key == "" {
		return ""
	}
	if code, ok := n.byName[key]; ok {
		return code
	}
	for _, e := range n.entries {
		if strings.Contains(key, e.name) || strings.Contains(e.name, key) {
			return n.byName[e.name]
		}
	}
	return ""
}

// Apply resolves every line item lacking a code and returns how many
// were matched. Existing codes are left alone.
func (n *Normalizer) Apply(inv *invoice.Invoice) int {
	matched := 0
	for i := range inv.LineItems {
		li := &inv.LineItems[i]
		if li.RubroCode != "" || li.RubroRaw == "" {
			continue
		}
		if code := n.Resolve(li.RubroRaw); code != "" {
			li.RubroCode = code
			matched++
		}
	}
	return matched
}
