package cil

import (
	"strings"
	"testing"
)

func TestDisassembleOperands(t *testing.T) {
	code := []byte{
		0x00,                         // nop
		0x1F, 0xF6,                   // ldc.i4.s -10
		0x20, 0x39, 0x05, 0x00, 0x00, // ldc.i4 1337
		0x72, 0x01, 0x00, 0x00, 0x70, // ldstr 0x70000001
		0x80, 0x03, 0x00, 0x00, 0x04, // stsfld 0x04000003
		0xFE, 0x0C, 0x02, 0x00,       // ldloc 2
		0x2A,                         // ret
	}
	insts := Disassemble(code, Options{BaseRVA: 0x2050})
	if len(insts) != 7 {
		t.Fatalf("got %d instructions, want 7", len(insts))
	}
	wantNames := []string{"nop", "ldc.i4.s", "ldc.i4", "ldstr", "stsfld", "ldloc", "ret"}
	wantSizes := []int{1, 2, 5, 5, 5, 4, 1}
	for i, inst := range insts {
		if inst.Name != wantNames[i] {
			t.Errorf("[%d] name = %q, want %q", i, inst.Name, wantNames[i])
		}
		if inst.Size != wantSizes[i] {
			t.Errorf("[%d] size = %d, want %d", i, inst.Size, wantSizes[i])
		}
	}
	if v, ok := insts[1].I4(); !ok || v != -10 {
		t.Errorf("ldc.i4.s I4 = %d, %v", v, ok)
	}
	if v, ok := insts[2].I4(); !ok || v != 1337 {
		t.Errorf("ldc.i4 I4 = %d, %v", v, ok)
	}
	if insts[3].Token != 0x70000001 || insts[4].Token != 0x04000003 {
		t.Errorf("tokens = %08x %08x", insts[3].Token, insts[4].Token)
	}
	if insts[5].Code != 0x10C || insts[5].Int != 2 {
		t.Errorf("ldloc code=%x int=%d", insts[5].Code, insts[5].Int)
	}
	if insts[4].RVA != 0x2050+13 {
		t.Errorf("stsfld RVA = 0x%x", insts[4].RVA)
	}
}

func TestI4Shortforms(t *testing.T) {
	tests := []struct {
		b    byte
		want int32
	}{
		{0x15, -1}, {0x16, 0}, {0x17, 1}, {0x18, 2}, {0x1E, 8},
	}
	for _, tt := range tests {
		inst := DecodeAt([]byte{tt.b}, 0)
		if v, ok := inst.I4(); !ok || v != tt.want {
			t.Errorf("0x%02x: I4 = %d, %v; want %d", tt.b, v, ok, tt.want)
		}
	}
	if _, ok := DecodeAt([]byte{0x14}, 0).I4(); ok {
		t.Error("ldnull should not be an I4 constant")
	}
}

func TestDisassembleBadBytes(t *testing.T) {
	// 0x24 and 0x77 are unassigned; 0x72 has a truncated token.
	insts := Disassemble([]byte{0x24, 0x72, 0x77}, Options{})
	if len(insts) != 3 {
		t.Fatalf("got %d instructions, want 3", len(insts))
	}
	for i, inst := range insts {
		if !inst.Bad || inst.Size != 1 {
			t.Errorf("[%d] = %+v, want .byte", i, inst)
		}
	}
	if got := insts[0].Text(); got != ".byte 0x24" {
		t.Errorf("Text = %q", got)
	}
	if got := DecodeAt([]byte{0xFE}, 0); !got.Bad {
		t.Error("lone prefix should be bad")
	}
	if got := DecodeAt(nil, 0); !got.Bad {
		t.Error("empty code should be bad")
	}
}

func TestDisassembleMaxSteps(t *testing.T) {
	code := make([]byte, 100)
	insts := Disassemble(code, Options{MaxSteps: 10})
	if len(insts) != 10 {
		t.Fatalf("got %d instructions, want 10", len(insts))
	}
}

func TestSwitch(t *testing.T) {
	code := []byte{
		0x45, 0x02, 0x00, 0x00, 0x00, // switch (2 targets)
		0x01, 0x00, 0x00, 0x00,       // +1
		0x02, 0x00, 0x00, 0x00,       // +2
		0x00,                         // nop (IL_000d)
		0x00,                         // nop (IL_000e)
		0x2A,                         // ret (IL_000f)
	}
	insts := Disassemble(code, Options{})
	sw := insts[0]
	if sw.Size != 13 || len(sw.Targets) != 2 || sw.Targets[0] != 14 || sw.Targets[1] != 15 {
		t.Fatalf("switch = %+v", sw)
	}
	if got := sw.Text(); got != "switch (IL_000e, IL_000f)" {
		t.Errorf("Text = %q", got)
	}

	bad := DecodeAt([]byte{0x45, 0xFF, 0x00, 0x00, 0x00}, 0)
	if !bad.Bad {
		t.Error("switch with oversized count should be bad")
	}
}

func TestFormat(t *testing.T) {
	code := []byte{0x28, 0x01, 0x00, 0x00, 0x0A, 0x2A}
	insts := Disassemble(code, Options{BaseRVA: 0x2000})
	lookup := func(tok uint32) (string, bool) {
		if tok == 0x0A000001 {
			return "System.Object::ToString", true
		}
		return "", false
	}
	ann := func(i Inst) string {
		if i.Is(Ret) {
			return "end"
		}
		return ""
	}
	out := Format(insts, lookup, ann)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "IL_0000  0x00002000  28 01 00 00 0a") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.HasSuffix(lines[0], "call System.Object::ToString") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "ret  ; end") {
		t.Errorf("line 1 = %q", lines[1])
	}
	if got := Format(insts, nil); !strings.Contains(got, "call 0x0a000001") {
		t.Errorf("unresolved token not rendered as hex: %q", got)
	}
}

func TestBuildCFG(t *testing.T) {
	code := []byte{
		0x16,                         // 0: ldc.i4.0
		0x2C, 0x06,                   // 1: brfalse.s +6 -> 9
		0x28, 0x01, 0x00, 0x00, 0x0A, // 3: call
		0x2A,                         // 8: ret
		0x28, 0x02, 0x00, 0x00, 0x0A, // 9: call
		0x2A,                         // 14: ret
	}
	insts := Disassemble(code, Options{})
	cfg := BuildCFG("M", insts)
	if len(cfg.Blocks) != 3 {
		t.Fatalf("blocks = %d, want 3", len(cfg.Blocks))
	}
	b0 := cfg.Blocks[0]
	if len(b0.Succs) != 2 || b0.Succs[0].BlockID != 2 || b0.Succs[0].Cond != "T" || b0.Succs[1].BlockID != 1 || b0.Succs[1].Cond != "F" {
		t.Errorf("B0 succs = %+v", b0.Succs)
	}
	if !cfg.Blocks[1].IsTerm || !cfg.Blocks[2].IsTerm {
		t.Error("return blocks should be terminal")
	}

	edges := CallEdges(insts, nil)
	if len(edges) != 2 || edges[0].FromOffset != 3 || edges[1].Token != 0x0A000002 {
		t.Errorf("edges = %+v", edges)
	}
}

func TestStringRefs(t *testing.T) {
	code := []byte{0x72, 0x01, 0x00, 0x00, 0x70, 0x72, 0x09, 0x00, 0x00, 0x70, 0x2A}
	insts := Disassemble(code, Options{})
	refs := StringRefs(insts, func(tok uint32) (string, error) {
		if tok == 0x70000001 {
			return "hello", nil
		}
		return "", errString("missing")
	})
	if len(refs) != 1 || refs[0].Value != "hello" {
		t.Errorf("refs = %+v", refs)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
