package sigscan

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"gopkg.in/yaml.v3"
)

//go:embed rules/families.yaml
var defaultRulesYAML []byte

// RuleString is one signature inside a rule. Exactly one of Text or Hex is set.
type RuleString struct {
	Text string `yaml:"text,omitempty"`
	Hex  string `yaml:"hex,omitempty"`
	Wide bool   `yaml:"wide,omitempty"` // match Text as UTF-16LE
}

// Rule names a family and the signatures that identify it.
type Rule struct {
	Name      string       `yaml:"name"`
	Condition string       `yaml:"condition"` // "any" (default) or "all"
	Strings   []RuleString `yaml:"strings"`

	patterns []Pattern
}

// Ruleset is an ordered list of rules; earlier rules win.
type Ruleset struct {
	Rules []*Rule `yaml:"rules"`
}

// LoadRules reads a YAML ruleset from disk.
func LoadRules(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sigscan: read rules: %w", err)
	}
	return ParseRules(data)
}

// DefaultRules returns the embedded ruleset.
func DefaultRules() *Ruleset {
	rs, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("sigscan: embedded rules: %v", err))
	}
	return rs
}

// ParseRules parses and compiles a YAML ruleset.
func ParseRules(data []byte) (*Ruleset, error) {
	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("sigscan: parse rules: %w", err)
	}
	for _, r := range rs.Rules {
		if err := r.compile(); err != nil {
			return nil, err
		}
	}
	return &rs, nil
}

func (r *Rule) compile() error {
	if r.Name == "" {
		return fmt.Errorf("sigscan: rule without name")
	}
	switch strings.ToLower(r.Condition) {
	case "", "any":
		r.Condition = "any"
	case "all":
		r.Condition = "all"
	default:
		return fmt.Errorf("sigscan: rule %s: unknown condition %q", r.Name, r.Condition)
	}
	if len(r.Strings) == 0 {
		return fmt.Errorf("sigscan: rule %s has no strings", r.Name)
	}
	r.patterns = r.patterns[:0]
	for i, s := range r.Strings {
		switch {
		case s.Hex != "" && s.Text != "":
			return fmt.Errorf("sigscan: rule %s string %d sets both text and hex", r.Name, i)
		case s.Hex != "":
			p, err := ParseHex(s.Hex)
			if err != nil {
				return fmt.Errorf("sigscan: rule %s string %d: %w", r.Name, i, err)
			}
			r.patterns = append(r.patterns, p)
		case s.Text != "":
			b := []byte(s.Text)
			if s.Wide {
				w, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes(b)
				if err != nil {
					return fmt.Errorf("sigscan: rule %s string %d: %w", r.Name, i, err)
				}
				b = w
			}
			r.patterns = append(r.patterns, Literal(b))
		default:
			return fmt.Errorf("sigscan: rule %s string %d is empty", r.Name, i)
		}
	}
	return nil
}

// Matches reports whether the rule matches data.
func (r *Rule) Matches(data []byte) bool {
	if len(r.patterns) == 0 {
		return false
	}
	for _, p := range r.patterns {
		hit := p.Index(data) >= 0
		if r.Condition == "any" && hit {
			return true
		}
		if r.Condition == "all" && !hit {
			return false
		}
	}
	return r.Condition == "all"
}

// Match returns the names of all matching rules in ruleset order.
func (rs *Ruleset) Match(data []byte) []string {
	if rs == nil {
		return nil
	}
	var out []string
	for _, r := range rs.Rules {
		if r.Matches(data) {
			out = append(out, r.Name)
		}
	}
	return out
}

// First returns the first matching rule name, or "".
func (rs *Ruleset) First(data []byte) string {
	if rs == nil {
		return ""
	}
	for _, r := range rs.Rules {
		if r.Matches(data) {
			return r.Name
		}
	}
	return ""
}
