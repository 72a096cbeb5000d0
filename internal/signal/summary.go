package signal

import (
	"fmt"
	"sort"

	"unrat/internal/extract"
)

// FieldSignal is one config field with its categories.
type FieldSignal struct {
	Field      string   `json:"field"`
	Value      string   `json:"value"`
	Values     []string `json:"-" yaml:"-"` // elements classified, one per list entry
	Categories []string `json:"categories,omitempty"`
	Severity   string   `json:"severity"`
}

// Summary is the classification of a whole config.
type Summary struct {
	Fields     []FieldSignal  `json:"fields"`
	Categories map[string]int `json:"categories"`
	Severity   string         `json:"severity"`
}

// ClassifyConfig classifies every value of cfg in order. List values are
// classified per element and their categories merged.
func ClassifyConfig(cfg *extract.Config) *Summary {
	s := &Summary{Categories: make(map[string]int)}
	var all []string
	for _, k := range cfg.Keys() {
		v, _ := cfg.Get(k)
		fs := FieldSignal{Field: k, Value: fmt.Sprint(v), Values: values(v)}
		seen := make(map[string]bool)
		for _, str := range fs.Values {
			for _, c := range ClassifyString(str) {
				if !seen[c] {
					seen[c] = true
					fs.Categories = append(fs.Categories, c)
				}
			}
		}
		sort.Strings(fs.Categories)
		fs.Severity = MaxSeverity(fs.Categories)
		for _, c := range fs.Categories {
			s.Categories[c]++
		}
		all = append(all, fs.Categories...)
		s.Fields = append(s.Fields, fs)
	}
	s.Severity = MaxSeverity(all)
	return s
}

// Indicators returns the fields with at least one high severity category.
func (s *Summary) Indicators() []FieldSignal {
	var out []FieldSignal
	for _, f := range s.Fields {
		if f.Severity == SeverityHigh {
			out = append(out, f)
		}
	}
	return out
}

func values(v any) []string {
	switch x := v.(type) {
	case string:
		return []string{x}
	case []string:
		return x
	default:
		// Integers and booleans are classified by their text; a bare int
		// port is still a port.
		return []string{fmt.Sprint(x)}
	}
}
