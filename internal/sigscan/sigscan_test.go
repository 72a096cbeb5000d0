package sigscan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseHex(t *testing.T) {
	p, err := ParseHex("7E ?? ?? ?? 04")
	if err != nil {
		t.Fatal(err)
	}
	if p.Len() != 5 {
		t.Errorf("Len = %d, want 5", p.Len())
	}
	for _, bad := range []string{"", "7E GG", "7E 0400", "zz"} {
		if _, err := ParseHex(bad); err == nil {
			t.Errorf("ParseHex(%q): expected error", bad)
		}
	}
}

func TestPatternIndexWildcards(t *testing.T) {
	p := MustParseHex("7E ?? ?? ?? 04 6F")
	data := []byte{0x00, 0x7E, 0x01, 0x02, 0x03, 0x05, 0x7E, 0xAA, 0xBB, 0xCC, 0x04, 0x6F, 0x00}
	if got := p.Index(data); got != 6 {
		t.Errorf("Index = %d, want 6", got)
	}
	if got := p.Captures(data, 6); string(got) != string([]byte{0xAA, 0xBB, 0xCC}) {
		t.Errorf("Captures = %x", got)
	}
	if got := p.Captures(data, 1); got != nil {
		t.Errorf("Captures at non-match = %x, want nil", got)
	}
	if got := p.IndexFrom(data, 7); got != -1 {
		t.Errorf("IndexFrom past match = %d, want -1", got)
	}
}

func TestPatternLeadingWildcard(t *testing.T) {
	p := MustParseHex("?? 80 ?? ?? ?? 04")
	data := []byte{0x17, 0x80, 0x01, 0x00, 0x00, 0x04}
	if got := p.Index(data); got != 0 {
		t.Errorf("Index = %d, want 0", got)
	}
	// Anchor byte present but the match would start before the slice.
	if got := p.Index(data[1:]); got != -1 {
		t.Errorf("Index on truncated data = %d, want -1", got)
	}
}

func TestPatternFindAll(t *testing.T) {
	p := Literal([]byte("ab"))
	got := p.FindAll([]byte("abxabab"))
	want := []int{0, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("FindAll = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FindAll[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRulesMatch(t *testing.T) {
	rs, err := ParseRules([]byte(`
rules:
  - name: Wide
    strings:
      - text: Hi
        wide: true
  - name: Both
    condition: all
    strings:
      - text: foo
      - hex: "01 ?? 03"
`))
	if err != nil {
		t.Fatal(err)
	}
	if got := rs.First([]byte("xxH\x00i\x00")); got != "Wide" {
		t.Errorf("First = %q, want Wide", got)
	}
	if got := rs.First([]byte("foo")); got != "" {
		t.Errorf("First(all, partial) = %q, want empty", got)
	}
	if got := rs.First([]byte("foo\x01\xff\x03")); got != "Both" {
		t.Errorf("First(all) = %q, want Both", got)
	}
	if got := rs.Match([]byte("H\x00i\x00foo\x01\x02\x03")); len(got) != 2 {
		t.Errorf("Match = %v, want both rules", got)
	}

	var nilSet *Ruleset
	if nilSet.First([]byte("x")) != "" || nilSet.Match(nil) != nil {
		t.Error("nil ruleset should match nothing")
	}
}

func TestRulesErrors(t *testing.T) {
	for name, src := range map[string]string{
		"noname":    "rules:\n  - strings:\n      - text: a\n",
		"nostrings": "rules:\n  - name: x\n",
		"condition": "rules:\n  - name: x\n    condition: some\n    strings:\n      - text: a\n",
		"both":      "rules:\n  - name: x\n    strings:\n      - text: a\n        hex: \"01\"\n",
		"badhex":    "rules:\n  - name: x\n    strings:\n      - hex: \"0g\"\n",
		"yaml":      "rules: [",
	} {
		if _, err := ParseRules([]byte(src)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestDefaultRules(t *testing.T) {
	rs := DefaultRules()
	if len(rs.Rules) == 0 {
		t.Fatal("no default rules")
	}
	wide := []byte{}
	for _, c := range "DcRatByqwqdanchun" {
		wide = append(wide, byte(c), 0)
	}
	data := append([]byte("AsyncClient...."), wide...)
	if got := rs.First(data); got != "DcRAT" {
		t.Errorf("First = %q, want DcRAT (forks listed before AsyncRAT)", got)
	}
	if got := rs.First([]byte("nothing here")); got != "" {
		t.Errorf("First = %q, want empty", got)
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("rules:\n  - name: T\n    strings:\n      - text: t\n"), 0644); err != nil {
		t.Fatal(err)
	}
	rs, err := LoadRules(path)
	if err != nil {
		t.Fatal(err)
	}
	if rs.First([]byte("t")) != "T" {
		t.Error("loaded rule does not match")
	}
	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
