// Package cil decodes CIL (ECMA-335 Partition III) method bodies.
package cil

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Inst is a decoded CIL instruction.
type Inst struct {
	Offset  int // offset within the method body
	RVA     uint32
	Code    int // opcode; two-byte opcodes are 0x100 | second byte
	Name    string
	Size    int
	Operand OperandKind
	Int     int64   // immediate, local index or branch displacement
	Float   float64 // ldc.r4 / ldc.r8
	Token   uint32  // OpToken and OpString
	Targets []int   // absolute branch targets (body offsets)
	Raw     []byte
	Bad     bool // undecodable byte, emitted as .byte
}

// Options controls decoding.
type Options struct {
	BaseRVA  uint32 // RVA of the first code byte
	MaxSteps int    // maximum instructions to decode; 0 = 1M
}

const defaultMaxSteps = 1_000_000

func (o Options) effectiveMax() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return defaultMaxSteps
}

// Disassemble decodes a method body. Undecodable bytes become single-byte
// .byte instructions so the walk never stalls.
func Disassemble(code []byte, opts Options) []Inst {
	maxSteps := opts.effectiveMax()
	var out []Inst
	for off := 0; off < len(code) && len(out) < maxSteps; {
		inst := DecodeAt(code, off)
		inst.RVA = opts.BaseRVA + uint32(off)
		out = append(out, inst)
		off += inst.Size
	}
	return out
}

// DecodeAt decodes the instruction at code[off].
func DecodeAt(code []byte, off int) Inst {
	bad := Inst{Offset: off, Code: -1, Name: ".byte", Size: 1, Bad: true}
	if off < 0 || off >= len(code) {
		return bad
	}
	bad.Raw = code[off : off+1]
	bad.Int = int64(code[off])

	c := int(code[off])
	opLen := 1
	if code[off] == Prefix2 {
		if off+1 >= len(code) {
			return bad
		}
		c = prefix2Off | int(code[off+1])
		opLen = 2
	}
	op, ok := Lookup(c)
	if !ok {
		return bad
	}

	inst := Inst{Offset: off, Code: c, Name: op.Name, Operand: op.Operand}
	p := off + opLen
	size := op.Operand.Size()
	if p+size > len(code) {
		return bad
	}
	le := binary.LittleEndian
	switch op.Operand {
	case OpI8:
		if c == LdcI4S {
			inst.Int = int64(int8(code[p]))
		} else {
			inst.Int = int64(code[p])
		}
	case OpBr8:
		inst.Int = int64(int8(code[p]))
		inst.Targets = []int{p + 1 + int(inst.Int)}
	case OpVar16:
		inst.Int = int64(le.Uint16(code[p:]))
	case OpI32:
		inst.Int = int64(int32(le.Uint32(code[p:])))
	case OpBr32:
		inst.Int = int64(int32(le.Uint32(code[p:])))
		inst.Targets = []int{p + 4 + int(inst.Int)}
	case OpI64:
		inst.Int = int64(le.Uint64(code[p:]))
	case OpR4:
		inst.Float = float64(math.Float32frombits(le.Uint32(code[p:])))
	case OpR8:
		inst.Float = math.Float64frombits(le.Uint64(code[p:]))
	case OpToken, OpString:
		inst.Token = le.Uint32(code[p:])
	case OpSwitch:
		n := int(le.Uint32(code[p:]))
		if n < 0 || n > (len(code)-p-4)/4 {
			return bad
		}
		size += n * 4
		base := p + size
		inst.Int = int64(n)
		for i := 0; i < n; i++ {
			d := int32(le.Uint32(code[p+4+i*4:]))
			inst.Targets = append(inst.Targets, base+int(d))
		}
	}
	inst.Size = opLen + size
	inst.Raw = code[off : off+inst.Size]
	return inst
}

// I4 returns the constant pushed by an ldc.i4 family instruction.
func (i Inst) I4() (int32, bool) {
	switch {
	case i.Code == LdcI4M1:
		return -1, true
	case i.Code >= LdcI40 && i.Code <= LdcI48:
		return int32(i.Code - LdcI40), true
	case i.Code == LdcI4S, i.Code == LdcI4:
		return int32(i.Int), true
	}
	return 0, false
}

// Is reports whether i has opcode code.
func (i Inst) Is(code int) bool { return !i.Bad && i.Code == code }

// Text renders the instruction without symbol resolution.
func (i Inst) Text() string {
	return i.text(nil)
}

func (i Inst) text(lookup TokenLookup) string {
	if i.Bad {
		return fmt.Sprintf(".byte 0x%02x", i.Int)
	}
	switch i.Operand {
	case OpNone:
		return i.Name
	case OpI8, OpVar16, OpI32, OpI64:
		return fmt.Sprintf("%s %d", i.Name, i.Int)
	case OpR4, OpR8:
		return fmt.Sprintf("%s %g", i.Name, i.Float)
	case OpBr8, OpBr32:
		return fmt.Sprintf("%s IL_%04x", i.Name, i.Targets[0])
	case OpSwitch:
		labels := make([]string, len(i.Targets))
		for k, t := range i.Targets {
			labels[k] = fmt.Sprintf("IL_%04x", t)
		}
		return fmt.Sprintf("%s (%s)", i.Name, strings.Join(labels, ", "))
	case OpToken, OpString:
		if lookup != nil {
			if name, ok := lookup(i.Token); ok {
				return fmt.Sprintf("%s %s", i.Name, name)
			}
		}
		return fmt.Sprintf("%s 0x%08x", i.Name, i.Token)
	}
	return i.Name
}

// TokenLookup resolves a metadata token to display text. Returns ("", false)
// if unknown.
type TokenLookup func(tok uint32) (string, bool)

// Format renders instructions as stable text output.
// Each line: IL_<off>  <rva>  <hex bytes>  <disasm>  ; <comment>
// Annotators are checked in order; first non-empty result is used.
func Format(insts []Inst, lookup TokenLookup, annotators ...Annotator) string {
	var b strings.Builder
	for _, inst := range insts {
		fmt.Fprintf(&b, "IL_%04x  0x%08x  ", inst.Offset, inst.RVA)
		fmt.Fprintf(&b, "%-24s", fmt.Sprintf("% x", inst.Raw))
		b.WriteString("  ")
		b.WriteString(inst.text(lookup))
		for _, ann := range annotators {
			if s := ann(inst); s != "" {
				fmt.Fprintf(&b, "  ; %s", s)
				break
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Annotator returns a trailing comment for an instruction, or "".
type Annotator func(Inst) string
