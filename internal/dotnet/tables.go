package dotnet

import (
	"fmt"

	"unrat/internal/mdfmt"
)

// Metadata table identifiers (ECMA-335 II.22).
const (
	tModule                 = 0x00
	tTypeRef                = 0x01
	tTypeDef                = 0x02
	tFieldPtr               = 0x03
	tField                  = 0x04
	tMethodPtr              = 0x05
	tMethodDef              = 0x06
	tParamPtr               = 0x07
	tParam                  = 0x08
	tInterfaceImpl          = 0x09
	tMemberRef              = 0x0A
	tConstant               = 0x0B
	tCustomAttribute        = 0x0C
	tFieldMarshal           = 0x0D
	tDeclSecurity           = 0x0E
	tClassLayout            = 0x0F
	tFieldLayout            = 0x10
	tStandAloneSig          = 0x11
	tEventMap               = 0x12
	tEventPtr               = 0x13
	tEvent                  = 0x14
	tPropertyMap            = 0x15
	tPropertyPtr            = 0x16
	tProperty               = 0x17
	tMethodSemantics        = 0x18
	tMethodImpl             = 0x19
	tModuleRef              = 0x1A
	tTypeSpec               = 0x1B
	tImplMap                = 0x1C
	tFieldRVA               = 0x1D
	tAssembly               = 0x20
	tAssemblyRef            = 0x23
	tFile                   = 0x26
	tExportedType           = 0x27
	tManifestResource       = 0x28
	tGenericParam           = 0x2A
	tMethodSpec             = 0x2B
	tGenericParamConstraint = 0x2C

	numTables = 64
)

// Token table prefixes.
const (
	TokenTypeRef    uint32 = 0x01000000
	TokenTypeDef    uint32 = 0x02000000
	TokenField      uint32 = 0x04000000
	TokenMethodDef  uint32 = 0x06000000
	TokenMemberRef  uint32 = 0x0A000000
	TokenUserString uint32 = 0x70000000
)

// TokenTable returns the table byte of a metadata token.
func TokenTable(tok uint32) uint32 { return tok & 0xFF000000 }

// TokenRow returns the 1-based row of a metadata token.
func TokenRow(tok uint32) uint32 { return tok & 0x00FFFFFF }

type codedKind int

const (
	cTypeDefOrRef codedKind = iota
	cHasConstant
	cHasCustomAttribute
	cHasFieldMarshal
	cHasDeclSecurity
	cMemberRefParent
	cHasSemantics
	cMethodDefOrRef
	cMemberForwarded
	cImplementation
	cCustomAttributeType
	cResolutionScope
	cTypeOrMethodDef
)

// codedTables lists the tables addressed by each coded index; -1 is unused.
var codedTables = map[codedKind][]int{
	cTypeDefOrRef: {tTypeDef, tTypeRef, tTypeSpec},
	cHasConstant:  {tField, tParam, tProperty},
	cHasCustomAttribute: {
		tMethodDef, tField, tTypeRef, tTypeDef, tParam, tInterfaceImpl, tMemberRef,
		tModule, tDeclSecurity, tProperty, tEvent, tStandAloneSig, tModuleRef,
		tTypeSpec, tAssembly, tAssemblyRef, tFile, tExportedType, tManifestResource,
		tGenericParam, tGenericParamConstraint, tMethodSpec,
	},
	cHasFieldMarshal:     {tField, tParam},
	cHasDeclSecurity:     {tTypeDef, tMethodDef, tAssembly},
	cMemberRefParent:     {tTypeDef, tTypeRef, tModuleRef, tMethodDef, tTypeSpec},
	cHasSemantics:        {tEvent, tProperty},
	cMethodDefOrRef:      {tMethodDef, tMemberRef},
	cMemberForwarded:     {tField, tMethodDef},
	cImplementation:      {tFile, tAssemblyRef, tExportedType},
	cCustomAttributeType: {-1, -1, tMethodDef, tMemberRef, -1},
	cResolutionScope:     {tModule, tModuleRef, tAssemblyRef, tTypeRef},
	cTypeOrMethodDef:     {tTypeDef, tMethodDef},
}

func tagBits(n int) uint {
	var b uint
	for (1 << b) < n {
		b++
	}
	return b
}

type colKind int

const (
	colU16 colKind = iota
	colU32
	colString
	colGUID
	colBlob
	colTable // simple index into another table
	colCoded
)

type column struct {
	kind colKind
	arg  int // table id for colTable, codedKind for colCoded
}

func u16() column { return column{kind: colU16} }
func u32() column { return column{kind: colU32} }
func str() column { return column{kind: colString} }
func guid() column { return column{kind: colGUID} }
func blob() column { return column{kind: colBlob} }
func idx(table int) column { return column{kind: colTable, arg: table} }
func coded(c codedKind) column { return column{kind: colCoded, arg: int(c)} }

// tableSchemas covers every table that can precede FieldRVA. Tables are stored
// in id order, so nothing past FieldRVA needs a schema.
var tableSchemas = [...][]column{
	tModule:          {u16(), str(), guid(), guid(), guid()},
	tTypeRef:         {coded(cResolutionScope), str(), str()},
	tTypeDef:         {u32(), str(), str(), coded(cTypeDefOrRef), idx(tField), idx(tMethodDef)},
	tFieldPtr:        {idx(tField)},
	tField:           {u16(), str(), blob()},
	tMethodPtr:       {idx(tMethodDef)},
	tMethodDef:       {u32(), u16(), u16(), str(), blob(), idx(tParam)},
	tParamPtr:        {idx(tParam)},
	tParam:           {u16(), u16(), str()},
	tInterfaceImpl:   {idx(tTypeDef), coded(cTypeDefOrRef)},
	tMemberRef:       {coded(cMemberRefParent), str(), blob()},
	tConstant:        {u16(), coded(cHasConstant), blob()},
	tCustomAttribute: {coded(cHasCustomAttribute), coded(cCustomAttributeType), blob()},
	tFieldMarshal:    {coded(cHasFieldMarshal), blob()},
	tDeclSecurity:    {u16(), coded(cHasDeclSecurity), blob()},
	tClassLayout:     {u16(), u32(), idx(tTypeDef)},
	tFieldLayout:     {u32(), idx(tField)},
	tStandAloneSig:   {blob()},
	tEventMap:        {idx(tTypeDef), idx(tEvent)},
	tEventPtr:        {idx(tEvent)},
	tEvent:           {u16(), str(), coded(cTypeDefOrRef)},
	tPropertyMap:     {idx(tTypeDef), idx(tProperty)},
	tPropertyPtr:     {idx(tProperty)},
	tProperty:        {u16(), str(), blob()},
	tMethodSemantics: {u16(), idx(tMethodDef), coded(cHasSemantics)},
	tMethodImpl:      {idx(tTypeDef), coded(cMethodDefOrRef), coded(cMethodDefOrRef)},
	tModuleRef:       {str()},
	tTypeSpec:        {blob()},
	tImplMap:         {u16(), coded(cMemberForwarded), str(), idx(tModuleRef)},
	tFieldRVA:        {u32(), idx(tField)},
}

// tableLayout holds the index widths derived from the #~ header.
type tableLayout struct {
	rows       [numTables]uint32
	strWidth   int
	guidWidth  int
	blobWidth  int
	codedWidth map[codedKind]int
}

func newTableLayout(heapSizes byte, rows [numTables]uint32) *tableLayout {
	l := &tableLayout{rows: rows, strWidth: 2, guidWidth: 2, blobWidth: 2, codedWidth: map[codedKind]int{}}
	if heapSizes&0x01 != 0 {
		l.strWidth = 4
	}
	if heapSizes&0x02 != 0 {
		l.guidWidth = 4
	}
	if heapSizes&0x04 != 0 {
		l.blobWidth = 4
	}
	for c, tables := range codedTables {
		bits := tagBits(len(tables))
		var maxRows uint32
		for _, t := range tables {
			if t >= 0 && rows[t] > maxRows {
				maxRows = rows[t]
			}
		}
		if maxRows < 1<<(16-bits) {
			l.codedWidth[c] = 2
		} else {
			l.codedWidth[c] = 4
		}
	}
	return l
}

func (l *tableLayout) width(c column) int {
	switch c.kind {
	case colU16:
		return 2
	case colU32:
		return 4
	case colString:
		return l.strWidth
	case colGUID:
		return l.guidWidth
	case colBlob:
		return l.blobWidth
	case colTable:
		if l.rows[c.arg] < 1<<16 {
			return 2
		}
		return 4
	case colCoded:
		return l.codedWidth[codedKind(c.arg)]
	}
	return 0
}

func (l *tableLayout) rowSize(schema []column) int {
	n := 0
	for _, c := range schema {
		n += l.width(c)
	}
	return n
}

// readTables reads every table up to and including FieldRVA. Rows are
// returned as raw column values.
func readTables(s *mdfmt.Stream, l *tableLayout) ([numTables][][]uint32, error) {
	var out [numTables][][]uint32
	for id := 0; id <= tFieldRVA; id++ {
		n := l.rows[id]
		if n == 0 {
			continue
		}
		schema := tableSchemas[id]
		rows := make([][]uint32, 0, n)
		for r := uint32(0); r < n; r++ {
			row := make([]uint32, len(schema))
			for ci, c := range schema {
				v, err := s.ReadIndex(l.width(c))
				if err != nil {
					return out, fmt.Errorf("dotnet: table 0x%02x row %d col %d: %w", id, r+1, ci, err)
				}
				row[ci] = v
			}
			rows = append(rows, row)
		}
		out[id] = rows
	}
	return out, nil
}

// decodeCoded splits a coded index into (table id, 1-based row).
func decodeCoded(c codedKind, v uint32) (int, uint32) {
	tables := codedTables[c]
	bits := tagBits(len(tables))
	tag := int(v & (1<<bits - 1))
	if tag >= len(tables) {
		return -1, 0
	}
	return tables[tag], v >> bits
}
