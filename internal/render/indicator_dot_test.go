package render

import (
	"strings"
	"testing"

	"unrat/internal/signal"
)

func summary(fields ...signal.FieldSignal) *signal.Summary {
	s := &signal.Summary{Fields: fields, Severity: signal.SeverityLow}
	for _, f := range fields {
		if rank(f.Severity) > rank(s.Severity) {
			s.Severity = f.Severity
		}
	}
	return s
}

func TestIndicatorDOTSharedValue(t *testing.T) {
	hosts := signal.FieldSignal{Field: "Hosts", Values: []string{"c2.example.com", "10.0.0.7"},
		Categories: []string{"host"}, Severity: signal.SeverityHigh}
	samples := []Sample{
		{Path: "/tmp/a.exe", Family: "AsyncRAT", Summary: summary(hosts)},
		{Path: `C:\samples\b.exe`, Family: "AsyncRAT", Summary: summary(hosts)},
		{Path: "/tmp/c.exe", Family: "", Error: "Exception encountered for /tmp/c.exe: boom"},
	}
	dot := IndicatorDOT(samples, "run", "", NASA)

	if !strings.HasPrefix(dot, "digraph indicators {") || !strings.HasSuffix(dot, "}\n") {
		t.Fatalf("not a digraph:\n%s", dot)
	}
	if n := strings.Count(dot, `label="c2.example.com"`); n != 1 {
		t.Errorf("c2.example.com nodes = %d, want 1", n)
	}
	// Both samples point their Hosts field at v_0.
	if n := strings.Count(dot, "-> v_0 "); n != 2 {
		t.Errorf("edges into v_0 = %d, want 2", n)
	}
	for _, want := range []string{
		"cluster_n_AsyncRAT",
		`label="b.exe\nhigh"`,
		`label="Hosts\nhost"`,
		">unknown<",
		"style=\"filled,dashed\"",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestIndicatorDOTMinSeverity(t *testing.T) {
	samples := []Sample{{Path: "a.exe", Family: "DcRAT", Summary: summary(
		signal.FieldSignal{Field: "Hosts", Value: "evil.example.net", Categories: []string{"host"}, Severity: signal.SeverityHigh},
		signal.FieldSignal{Field: "Delay", Value: "3", Severity: signal.SeverityLow},
	)}}
	all := IndicatorDOT(samples, "", "", NASA)
	if !strings.Contains(all, `label="Delay"`) {
		t.Error("empty minSeverity should keep low fields")
	}
	high := IndicatorDOT(samples, "", signal.SeverityHigh, NASA)
	if strings.Contains(high, `label="Delay"`) {
		t.Error("low field kept at minSeverity=high")
	}
	// Value falls back to the joined text when Values is unset.
	if !strings.Contains(high, `label="evil.example.net"`) {
		t.Error("missing value node")
	}
}

func TestIndicatorDOTValueCap(t *testing.T) {
	var vals []string
	for i := 0; i < 9; i++ {
		vals = append(vals, strings.Repeat("x", i+1))
	}
	samples := []Sample{{Path: "a.exe", Summary: summary(
		signal.FieldSignal{Field: "Hosts", Values: vals, Severity: signal.SeverityLow},
	)}}
	dot := IndicatorDOT(samples, "", "", NASA)
	if !strings.Contains(dot, `label="+3 more"`) {
		t.Errorf("missing overflow node:\n%s", dot)
	}
	if strings.Contains(dot, `label="xxxxxxx"`) {
		t.Error("seventh value should be folded")
	}
}

func TestSharedValues(t *testing.T) {
	a := summary(signal.FieldSignal{Field: "Mutex", Values: []string{"AsyncMutex_6SI8OkPnk"}})
	b := summary(
		signal.FieldSignal{Field: "Mutex", Values: []string{"AsyncMutex_6SI8OkPnk"}},
		signal.FieldSignal{Field: "Group", Values: []string{"Default"}},
	)
	got := SharedValues([]Sample{{Summary: a}, {Summary: b}, {Error: "x"}})
	if len(got) != 1 || got["AsyncMutex_6SI8OkPnk"] != 2 {
		t.Errorf("SharedValues = %v", got)
	}
}

func TestDotLabel(t *testing.T) {
	if got := dotLabel(`%AppData%\x`, `say "hi"`); got != `"%AppData%\\x\nsay \"hi\""` {
		t.Errorf("dotLabel = %s", got)
	}
	if got := dotID("Client.Settings"); got != "n_Client_002eSettings" {
		t.Errorf("dotID = %s", got)
	}
	if got := baseName(`C:\a\b.exe`); got != "b.exe" {
		t.Errorf("baseName = %s", got)
	}
}
