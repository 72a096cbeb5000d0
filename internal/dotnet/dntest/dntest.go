// Package dntest builds minimal .NET PE32 images for tests.
//
// Layout of the single .text section (RVA 0x2000, file offset 0x200):
//
//	+0x00: native entry stub (jmp [0x402000])
//	+0x08: CLI header (72 bytes)
//	+0x50: method bodies, 4-aligned
//	       field initial data, 8-aligned
//	       metadata root (#~, #Strings, #US, #Blob)
package dntest

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"unicode/utf16"
)

const (
	TextRVA    = 0x2000
	TextOffset = 0x200
	ImageBase  = 0x400000

	cliRVA  = TextRVA + 8
	cliSize = 72
)

type field struct {
	name string
	data []byte
}

type method struct {
	name string
	code []byte
	fat  bool
}

// Builder accumulates fields, methods, user strings and member references.
type Builder struct {
	fields     []field
	methods    []method
	memberRefs []string
	us         bytes.Buffer

	// TypeName names the TypeDef that owns every method.
	TypeName  string
	Namespace string
	// Trailer is appended to the end of the file, outside any section.
	Trailer []byte
}

// New returns an empty builder.
func New() *Builder {
	b := &Builder{TypeName: "Settings", Namespace: "Client"}
	b.us.WriteByte(0)
	return b
}

// AddField adds a static field and returns its token. data, if non-nil,
// becomes the field's FieldRVA initial value.
func (b *Builder) AddField(name string, data []byte) uint32 {
	b.fields = append(b.fields, field{name: name, data: data})
	return 0x04000000 | uint32(len(b.fields))
}

// AddMethod adds a method with the given IL code and returns its token.
// Bodies shorter than 64 bytes get a tiny header.
func (b *Builder) AddMethod(name string, code []byte) uint32 {
	b.methods = append(b.methods, method{name: name, code: code, fat: len(code) >= 64})
	return 0x06000000 | uint32(len(b.methods))
}

// AddAbstractMethod adds a method without a body (RVA 0).
func (b *Builder) AddAbstractMethod(name string) uint32 {
	b.methods = append(b.methods, method{name: name})
	return 0x06000000 | uint32(len(b.methods))
}

// AddMemberRef adds a MemberRef on System.Object and returns its token.
func (b *Builder) AddMemberRef(name string) uint32 {
	b.memberRefs = append(b.memberRefs, name)
	return 0x0A000000 | uint32(len(b.memberRefs))
}

// AddUserString appends s to the #US heap and returns its 0x70 token.
func (b *Builder) AddUserString(s string) uint32 {
	off := b.us.Len()
	units := utf16.Encode([]rune(s))
	b.us.Write(CompressUint(uint32(len(units)*2 + 1)))
	for _, u := range units {
		binary.Write(&b.us, binary.LittleEndian, u)
	}
	b.us.WriteByte(0)
	return 0x70000000 | uint32(off)
}

// CompressUint encodes v as an ECMA-335 compressed unsigned integer.
func CompressUint(v uint32) []byte {
	switch {
	case v < 0x80:
		return []byte{byte(v)}
	case v < 0x4000:
		return []byte{byte(v>>8) | 0x80, byte(v)}
	default:
		return []byte{byte(v>>24) | 0xC0, byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

// Build lays out the section and returns the complete PE image.
func (b *Builder) Build() []byte {
	var sec bytes.Buffer
	le := binary.LittleEndian

	// jmp dword ptr [ImageBase+TextRVA]
	sec.Write([]byte{0xFF, 0x25})
	binary.Write(&sec, le, uint32(ImageBase+TextRVA))
	pad(&sec, 8)
	sec.Write(make([]byte, cliSize))

	methodRVA := make([]uint32, len(b.methods))
	for i, m := range b.methods {
		if m.code == nil {
			continue
		}
		pad(&sec, 4)
		methodRVA[i] = uint32(TextRVA + sec.Len())
		if m.fat {
			binary.Write(&sec, le, uint16(0x3003)) // fat, header size 3 dwords
			binary.Write(&sec, le, uint16(8))
			binary.Write(&sec, le, uint32(len(m.code)))
			binary.Write(&sec, le, uint32(0))
		} else {
			sec.WriteByte(byte(len(m.code)<<2) | 0x2)
		}
		sec.Write(m.code)
	}

	fieldRVA := make([]uint32, len(b.fields))
	for i, f := range b.fields {
		if f.data == nil {
			continue
		}
		pad(&sec, 8)
		fieldRVA[i] = uint32(TextRVA + sec.Len())
		sec.Write(f.data)
	}

	pad(&sec, 4)
	mdRVA := uint32(TextRVA + sec.Len())
	md := b.metadata(methodRVA, fieldRVA)
	sec.Write(md)

	// CLI header
	cli := sec.Bytes()[cliRVA-TextRVA:]
	le.PutUint32(cli[0:], cliSize)
	le.PutUint16(cli[4:], 2)
	le.PutUint16(cli[6:], 5)
	le.PutUint32(cli[8:], mdRVA)
	le.PutUint32(cli[12:], uint32(len(md)))
	le.PutUint32(cli[16:], 1) // COMIMAGE_FLAGS_ILONLY

	virtualSize := uint32(sec.Len())
	pad(&sec, 0x200)
	rawSize := uint32(sec.Len())

	var out bytes.Buffer
	dos := make([]byte, 0x40)
	dos[0], dos[1] = 'M', 'Z'
	le.PutUint32(dos[0x3c:], 0x40)
	out.Write(dos)
	out.WriteString("PE\x00\x00")
	binary.Write(&out, le, pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_I386,
		NumberOfSections:     1,
		SizeOfOptionalHeader: 0xE0,
		Characteristics:      0x0102,
	})
	oh := pe.OptionalHeader32{
		Magic:                 0x10b,
		SizeOfCode:            rawSize,
		AddressOfEntryPoint:   TextRVA,
		BaseOfCode:            TextRVA,
		ImageBase:             ImageBase,
		SectionAlignment:      0x2000,
		FileAlignment:         0x200,
		MajorSubsystemVersion: 4,
		SizeOfImage:           TextRVA + alignUp(virtualSize, 0x2000),
		SizeOfHeaders:         0x200,
		Subsystem:             3,
		NumberOfRvaAndSizes:   16,
	}
	oh.DataDirectory[14] = pe.DataDirectory{VirtualAddress: cliRVA, Size: cliSize}
	binary.Write(&out, le, oh)
	sh := pe.SectionHeader32{
		VirtualSize:      virtualSize,
		VirtualAddress:   TextRVA,
		SizeOfRawData:    rawSize,
		PointerToRawData: TextOffset,
		Characteristics:  0x60000020,
	}
	copy(sh.Name[:], ".text")
	binary.Write(&out, le, sh)
	pad(&out, TextOffset)
	out.Write(sec.Bytes())
	out.Write(b.Trailer)
	return out.Bytes()
}

func (b *Builder) metadata(methodRVA, fieldRVA []uint32) []byte {
	le := binary.LittleEndian

	// #Strings
	var strs bytes.Buffer
	strs.WriteByte(0)
	strIdx := map[string]uint16{"": 0}
	str := func(s string) uint16 {
		if i, ok := strIdx[s]; ok {
			return i
		}
		i := uint16(strs.Len())
		strs.WriteString(s)
		strs.WriteByte(0)
		strIdx[s] = i
		return i
	}

	// #Blob: field sig (FIELD I4) at 1, method sig (DEFAULT, 0 params, void) at 4.
	blob := []byte{0, 2, 0x06, 0x08, 3, 0x00, 0x00, 0x01}
	const fieldSig, methodSig = 1, 4

	var tbl bytes.Buffer
	w := func(vs ...any) {
		for _, v := range vs {
			binary.Write(&tbl, le, v)
		}
	}

	var fieldRVARows int
	for _, r := range fieldRVA {
		if r != 0 {
			fieldRVARows++
		}
	}
	type tableRows struct {
		id   uint
		rows int
	}
	present := []tableRows{
		{0x00, 1},
		{0x01, 1},
		{0x02, 2},
		{0x04, len(b.fields)},
		{0x06, len(b.methods)},
		{0x0A, len(b.memberRefs)},
		{0x1D, fieldRVARows},
	}
	var valid uint64
	for _, t := range present {
		if t.rows > 0 {
			valid |= 1 << t.id
		}
	}
	w(uint32(0), uint8(2), uint8(0), uint8(0), uint8(1), valid, uint64(0))
	for _, t := range present {
		if t.rows > 0 {
			w(uint32(t.rows))
		}
	}

	// Module: generation, name, mvid, encid, encbaseid
	w(uint16(0), str("test.exe"), uint16(0), uint16(0), uint16(0))
	// TypeRef: resolution scope, name, namespace
	w(uint16(0), str("Object"), str("System"))
	// TypeDef: flags, name, namespace, extends, field list, method list
	w(uint32(0), str("<Module>"), uint16(0), uint16(0), uint16(1), uint16(1))
	w(uint32(0x100081), str(b.TypeName), str(b.Namespace), uint16(1<<2|1), uint16(1), uint16(1))
	for _, f := range b.fields {
		w(uint16(0x16), str(f.name), uint16(fieldSig))
	}
	for i, m := range b.methods {
		w(methodRVA[i], uint16(0), uint16(0x96), str(m.name), uint16(methodSig), uint16(1))
	}
	for _, name := range b.memberRefs {
		// MemberRefParent tag 1 = TypeRef
		w(uint16(1<<3|1), str(name), uint16(methodSig))
	}
	for i, r := range fieldRVA {
		if r != 0 {
			w(r, uint16(i+1))
		}
	}

	streams := []struct {
		name string
		data []byte
	}{
		{"#~", padded(tbl.Bytes())},
		{"#Strings", padded(strs.Bytes())},
		{"#US", padded(b.us.Bytes())},
		{"#Blob", padded(blob)},
	}

	version := padded([]byte("v4.0.30319"))
	hdrSize := 16 + len(version) + 4
	for _, s := range streams {
		hdrSize += 8 + alignInt(len(s.name)+1, 4)
	}

	var root bytes.Buffer
	w2 := func(vs ...any) {
		for _, v := range vs {
			binary.Write(&root, le, v)
		}
	}
	w2(uint32(0x424A5342), uint16(1), uint16(1), uint32(0), uint32(len(version)))
	root.Write(version)
	w2(uint16(0), uint16(len(streams)))
	off := hdrSize
	for _, s := range streams {
		w2(uint32(off), uint32(len(s.data)))
		root.WriteString(s.name)
		root.WriteByte(0)
		pad(&root, 4)
		off += len(s.data)
	}
	for _, s := range streams {
		root.Write(s.data)
	}
	return root.Bytes()
}

func pad(buf *bytes.Buffer, align int) {
	for buf.Len()%align != 0 {
		buf.WriteByte(0)
	}
}

func padded(b []byte) []byte {
	out := append([]byte(nil), b...)
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	return out
}

func alignInt(n, a int) int { return (n + a - 1) / a * a }

func alignUp(n, a uint32) uint32 { return (n + a - 1) / a * a }
