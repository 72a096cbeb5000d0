// Package items declares the bytecode shapes that store configuration values
// into static fields.
package items

import (
	"strconv"

	"unrat/internal/cil"
)

// Kind selects how the decoder post-processes a raw value.
type Kind int

const (
	KindPlain Kind = iota
	KindEncryptedString
	KindByteArray
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindEncryptedString:
		return "encrypted_string"
	case KindByteArray:
		return "byte_array"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a raw value recovered from bytecode. Which fields are set depends
// on Kind.
type Value struct {
	Kind Kind
	// Plain holds bool, int64 or string.
	Plain any
	// StringToken is the #US token of an encrypted string.
	StringToken uint32
	// Size and DataToken locate a byte array's initial data.
	Size      int
	DataToken uint32
}

// Pair is one field assignment found in a method body.
type Pair struct {
	Field  uint32 // Field token written by stsfld
	Offset int    // body offset of the stsfld
	Value  Value
}

// Schema extracts one kind of field assignment from a method body.
type Schema interface {
	Name() string
	Kind() Kind
	Parse(insts []cil.Inst) []Pair
}

// Default returns the schemas in the order the decoder applies them.
func Default() []Schema {
	return []Schema{
		Bool{},
		ByteArray{},
		Int{},
		Null{},
		SpecialFolder{},
		EncryptedString{},
	}
}

// Bool matches ldc.i4.0 / ldc.i4.1 followed by stsfld.
type Bool struct{}

func (Bool) Name() string { return "bool" }
func (Bool) Kind() Kind   { return KindPlain }

func (Bool) Parse(insts []cil.Inst) []Pair {
	return pairsBefore(insts, func(i cil.Inst) (Value, bool) {
		if i.Is(cil.LdcI40) || i.Is(cil.LdcI41) {
			return Value{Kind: KindPlain, Plain: i.Code == cil.LdcI41}, true
		}
		return Value{}, false
	})
}

// Int matches ldc.i4 <imm32>, ldc.i4.m1 and ldc.i4.2 through ldc.i4.8
// followed by stsfld. ldc.i4.0/1 belong to Bool and ldc.i4.s to SpecialFolder.
type Int struct{}

func (Int) Name() string { return "int" }
func (Int) Kind() Kind   { return KindPlain }

func (Int) Parse(insts []cil.Inst) []Pair {
	return pairsBefore(insts, func(i cil.Inst) (Value, bool) {
		if i.Is(cil.LdcI4) || i.Is(cil.LdcI4M1) || (!i.Bad && i.Code >= cil.LdcI42 && i.Code <= cil.LdcI48) {
			v, _ := i.I4()
			return Value{Kind: KindPlain, Plain: int64(v)}, true
		}
		return Value{}, false
	})
}

// Null matches ldnull followed by stsfld.
type Null struct{}

func (Null) Name() string { return "null" }
func (Null) Kind() Kind   { return KindPlain }

func (Null) Parse(insts []cil.Inst) []Pair {
	return pairsBefore(insts, func(i cil.Inst) (Value, bool) {
		if i.Is(cil.Ldnull) {
			return Value{Kind: KindPlain, Plain: "null"}, true
		}
		return Value{}, false
	})
}

// SpecialFolder matches ldc.i4.s <folder> followed by stsfld and names the
// Environment.SpecialFolder value.
type SpecialFolder struct{}

func (SpecialFolder) Name() string { return "special_folder" }
func (SpecialFolder) Kind() Kind   { return KindPlain }

func (SpecialFolder) Parse(insts []cil.Inst) []Pair {
	return pairsBefore(insts, func(i cil.Inst) (Value, bool) {
		if i.Is(cil.LdcI4S) {
			return Value{Kind: KindPlain, Plain: FolderName(int(i.Int))}, true
		}
		return Value{}, false
	})
}

// EncryptedString matches ldstr <token> followed by stsfld.
type EncryptedString struct{}

func (EncryptedString) Name() string { return "encrypted_string" }
func (EncryptedString) Kind() Kind   { return KindEncryptedString }

func (EncryptedString) Parse(insts []cil.Inst) []Pair {
	return pairsBefore(insts, func(i cil.Inst) (Value, bool) {
		if i.Is(cil.Ldstr) {
			return Value{Kind: KindEncryptedString, StringToken: i.Token}, true
		}
		return Value{}, false
	})
}

// ByteArray matches the compiler's static array initializer:
//
//	ldc.i4(.s) <size>
//	newarr     System.Byte
//	dup
//	ldtoken    <field with RVA data>
//	call       RuntimeHelpers::InitializeArray
//	stsfld     <field>
type ByteArray struct{}

func (ByteArray) Name() string { return "byte_array" }
func (ByteArray) Kind() Kind   { return KindByteArray }

func (ByteArray) Parse(insts []cil.Inst) []Pair {
	var out []Pair
	for k := 0; k+5 < len(insts); k++ {
		size, ok := insts[k].I4()
		if !ok || !(insts[k].Is(cil.LdcI4S) || insts[k].Is(cil.LdcI4)) {
			continue
		}
		if !insts[k+1].Is(cil.Newarr) || !insts[k+2].Is(cil.Dup) || !insts[k+3].Is(cil.Ldtoken) ||
			!insts[k+4].Is(cil.Call) || !insts[k+5].Is(cil.Stsfld) {
			continue
		}
		if size < 0 {
			continue
		}
		out = append(out, Pair{
			Field:  insts[k+5].Token,
			Offset: insts[k+5].Offset,
			Value:  Value{Kind: KindByteArray, Size: int(size), DataToken: insts[k+3].Token},
		})
		k += 5
	}
	return out
}

// pairsBefore collects every stsfld whose preceding instruction is accepted
// by load.
func pairsBefore(insts []cil.Inst, load func(cil.Inst) (Value, bool)) []Pair {
	var out []Pair
	for k := 1; k < len(insts); k++ {
		if !insts[k].Is(cil.Stsfld) {
			continue
		}
		v, ok := load(insts[k-1])
		if !ok {
			continue
		}
		out = append(out, Pair{Field: insts[k].Token, Offset: insts[k].Offset, Value: v})
	}
	return out
}
