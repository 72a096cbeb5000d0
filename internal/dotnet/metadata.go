package dotnet

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"

	"unrat/internal/mdfmt"
)

var (
	ErrNoMetadata    = errors.New("dotnet: metadata root not found")
	ErrNoTableStream = errors.New("dotnet: no #~ table stream")
	ErrBadHeapIndex  = errors.New("dotnet: heap index out of range")
	ErrBadToken      = errors.New("dotnet: token out of range")
)

// metadataMagic is "BSJB" read as a little-endian uint32.
const metadataMagic = 0x424A5342

// StreamHeader describes one metadata stream.
type StreamHeader struct {
	Name   string `json:"name"`
	Offset uint32 `json:"offset"`
	Size   uint32 `json:"size"`
}

// FieldRow is a row of the Field table.
type FieldRow struct {
	Flags     uint16
	Name      string
	Signature uint32
}

// MethodRow is a row of the MethodDef table.
type MethodRow struct {
	RVA       uint32
	ImplFlags uint16
	Flags     uint16
	Name      string
	Signature uint32
}

// TypeRow is a row of the TypeDef or TypeRef table.
type TypeRow struct {
	Name       string
	Namespace  string
	FieldList  uint32
	MethodList uint32
}

// MemberRefRow is a row of the MemberRef table.
type MemberRefRow struct {
	ClassTable int
	ClassRow   uint32
	Name       string
}

// FieldRVARow is a row of the FieldRVA table.
type FieldRVARow struct {
	RVA   uint32
	Field uint32
}

// Metadata is the parsed CLI metadata of an assembly.
type Metadata struct {
	Version string         `json:"version"`
	Streams []StreamHeader `json:"streams"`
	Rows    map[string]int `json:"rows"`

	Fields     []FieldRow     `json:"-"`
	Methods    []MethodRow    `json:"-"`
	TypeDefs   []TypeRow      `json:"-"`
	TypeRefs   []TypeRow      `json:"-"`
	MemberRefs []MemberRefRow `json:"-"`
	FieldRVAs  []FieldRVARow  `json:"-"`

	strings []byte
	us      []byte
	blob    []byte
}

// ParseMetadata parses a metadata root (the blob addressed by the CLI header).
func ParseMetadata(data []byte, opts mdfmt.Options, diags *mdfmt.Diags) (*Metadata, error) {
	s := mdfmt.NewStream(data)
	magic, err := s.ReadUint32()
	if err != nil || magic != metadataMagic {
		return nil, ErrNoMetadata
	}
	// major, minor, reserved
	if err := s.Skip(8); err != nil {
		return nil, fmt.Errorf("dotnet: metadata root: %w", err)
	}
	vlen, err := s.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("dotnet: metadata root: %w", err)
	}
	vraw, err := s.ReadBytes(int(vlen))
	if err != nil {
		return nil, fmt.Errorf("dotnet: metadata version: %w", err)
	}
	md := &Metadata{Version: cstring(vraw), Rows: map[string]int{}}

	if _, err := s.ReadUint16(); err != nil { // flags
		return nil, fmt.Errorf("dotnet: metadata root: %w", err)
	}
	nStreams, err := s.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("dotnet: metadata root: %w", err)
	}

	var tables []byte
	for i := 0; i < int(nStreams); i++ {
		off, err := s.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("dotnet: stream header %d: %w", i, err)
		}
		size, err := s.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("dotnet: stream header %d: %w", i, err)
		}
		name, err := s.ReadCString()
		if err != nil {
			return nil, fmt.Errorf("dotnet: stream header %d: %w", i, err)
		}
		s.Align(4)
		md.Streams = append(md.Streams, StreamHeader{Name: name, Offset: off, Size: size})

		end := uint64(off) + uint64(size)
		if end > uint64(len(data)) {
			if opts.Mode == mdfmt.ModeStrict {
				return nil, fmt.Errorf("dotnet: stream %s exceeds metadata (0x%x > 0x%x)", name, end, len(data))
			}
			diags.Addf("root", uint64(off), mdfmt.DiagClamped, "stream %s clamped to metadata size", name)
			end = uint64(len(data))
			if uint64(off) > end {
				continue
			}
		}
		body := data[off:end]
		// Obfuscators append duplicate streams; the runtime uses the first one.
		switch name {
		case "#~", "#-":
			if tables == nil {
				tables = body
			}
		case "#Strings":
			if md.strings == nil {
				md.strings = body
			}
		case "#US":
			if md.us == nil {
				md.us = body
			}
		case "#Blob":
			if md.blob == nil {
				md.blob = body
			}
		}
	}

	if tables == nil {
		return nil, ErrNoTableStream
	}
	for _, h := range []struct {
		name string
		heap []byte
	}{{"#Strings", md.strings}, {"#US", md.us}, {"#Blob", md.blob}} {
		if h.heap == nil {
			diags.Addf(h.name, 0, mdfmt.DiagMissingStream, "stream %s absent", h.name)
		}
	}

	if err := md.parseTables(tables, opts, diags); err != nil {
		return nil, err
	}
	return md, nil
}

func (md *Metadata) parseTables(data []byte, opts mdfmt.Options, diags *mdfmt.Diags) error {
	s := mdfmt.NewStream(data)
	// reserved, major, minor
	if err := s.Skip(6); err != nil {
		return fmt.Errorf("dotnet: #~ header: %w", err)
	}
	heapSizes, err := s.ReadByte()
	if err != nil {
		return fmt.Errorf("dotnet: #~ header: %w", err)
	}
	if err := s.Skip(1); err != nil {
		return fmt.Errorf("dotnet: #~ header: %w", err)
	}
	valid, err := s.ReadUint64()
	if err != nil {
		return fmt.Errorf("dotnet: #~ header: %w", err)
	}
	if _, err := s.ReadUint64(); err != nil { // sorted
		return fmt.Errorf("dotnet: #~ header: %w", err)
	}

	var rows [numTables]uint32
	for id := 0; id < numTables; id++ {
		if valid&(1<<uint(id)) == 0 {
			continue
		}
		n, err := s.ReadUint32()
		if err != nil {
			return fmt.Errorf("dotnet: row count for table 0x%02x: %w", id, err)
		}
		rows[id] = n
	}
	// Uncompressed (#-) streams written with the extra-data flag carry 4 more bytes.
	if heapSizes&0x40 != 0 {
		if err := s.Skip(4); err != nil {
			return fmt.Errorf("dotnet: #~ extra data: %w", err)
		}
	}

	layout := newTableLayout(heapSizes, rows)
	need := 0
	for id := 0; id <= tFieldRVA; id++ {
		need += int(rows[id]) * layout.rowSize(tableSchemas[id])
	}
	if need > s.Remaining() {
		if opts.Mode == mdfmt.ModeStrict {
			return fmt.Errorf("dotnet: tables need 0x%x bytes, have 0x%x", need, s.Remaining())
		}
		diags.Addf("#~", uint64(s.Position()), mdfmt.DiagTruncated, "tables need 0x%x bytes, have 0x%x", need, s.Remaining())
	}

	raw, err := readTables(s, layout)
	if err != nil {
		return err
	}
	for id := 0; id < numTables; id++ {
		if rows[id] > 0 {
			md.Rows[fmt.Sprintf("0x%02x", id)] = int(rows[id])
		}
	}

	for _, r := range raw[tField] {
		md.Fields = append(md.Fields, FieldRow{Flags: uint16(r[0]), Name: md.String(r[1]), Signature: r[2]})
	}
	for _, r := range raw[tMethodDef] {
		md.Methods = append(md.Methods, MethodRow{
			RVA: r[0], ImplFlags: uint16(r[1]), Flags: uint16(r[2]), Name: md.String(r[3]), Signature: r[4],
		})
	}
	for _, r := range raw[tTypeDef] {
		md.TypeDefs = append(md.TypeDefs, TypeRow{Name: md.String(r[1]), Namespace: md.String(r[2]), FieldList: r[4], MethodList: r[5]})
	}
	for _, r := range raw[tTypeRef] {
		md.TypeRefs = append(md.TypeRefs, TypeRow{Name: md.String(r[1]), Namespace: md.String(r[2])})
	}
	for _, r := range raw[tMemberRef] {
		tbl, row := decodeCoded(cMemberRefParent, r[0])
		md.MemberRefs = append(md.MemberRefs, MemberRefRow{ClassTable: tbl, ClassRow: row, Name: md.String(r[1])})
	}
	for _, r := range raw[tFieldRVA] {
		md.FieldRVAs = append(md.FieldRVAs, FieldRVARow{RVA: r[0], Field: r[1]})
	}
	return nil
}

// String reads a null-terminated UTF-8 string from the #Strings heap.
func (md *Metadata) String(idx uint32) string {
	if int(idx) >= len(md.strings) {
		return ""
	}
	return cstring(md.strings[idx:])
}

// UserString decodes a UTF-16LE string from the #US heap.
func (md *Metadata) UserString(idx uint32) (string, error) {
	b, err := heapBlob(md.us, idx)
	if err != nil {
		return "", err
	}
	// The trailing byte flags non-ASCII content and is not part of the string.
	if len(b)%2 == 1 {
		b = b[:len(b)-1]
	}
	out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("dotnet: user string 0x%x: %w", idx, err)
	}
	return string(out), nil
}

// Blob returns the contents of a #Blob heap entry.
func (md *Metadata) Blob(idx uint32) ([]byte, error) {
	return heapBlob(md.blob, idx)
}

func heapBlob(heap []byte, idx uint32) ([]byte, error) {
	if int(idx) >= len(heap) {
		return nil, fmt.Errorf("%w: 0x%x", ErrBadHeapIndex, idx)
	}
	s := mdfmt.NewStreamAt(heap, int(idx))
	n, err := s.ReadCompressedUint()
	if err != nil {
		return nil, fmt.Errorf("dotnet: heap entry 0x%x: %w", idx, err)
	}
	b, err := s.ReadBytes(int(n))
	if err != nil {
		return nil, fmt.Errorf("dotnet: heap entry 0x%x: %w", idx, err)
	}
	return b, nil
}

// TypeName returns "Namespace.Name" for a TypeDef or TypeRef row.
func (md *Metadata) TypeName(table int, row uint32) string {
	var rows []TypeRow
	switch table {
	case tTypeDef:
		rows = md.TypeDefs
	case tTypeRef:
		rows = md.TypeRefs
	default:
		return ""
	}
	if row == 0 || int(row) > len(rows) {
		return ""
	}
	t := rows[row-1]
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// MethodOwner returns the TypeDef row (1-based) that owns MethodDef row, or 0.
func (md *Metadata) MethodOwner(row uint32) uint32 {
	var owner uint32
	for i, t := range md.TypeDefs {
		if t.MethodList == 0 || t.MethodList > row {
			break
		}
		owner = uint32(i + 1)
	}
	return owner
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
