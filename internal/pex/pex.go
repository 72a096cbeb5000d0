// Package pex provides PE loading helpers for .NET assemblies.
package pex

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"golang.org/x/arch/x86/x86asm"
)

var (
	ErrNotPE        = errors.New("pex: not a PE file")
	ErrNotDotNet    = errors.New("pex: no CLI header (not a .NET assembly)")
	ErrNoSection    = errors.New("pex: no section covers address")
	ErrNoEntryStub  = errors.New("pex: no native entry stub")
	ErrShortCLIHead = errors.New("pex: CLI header truncated")
)

// comDescriptorIndex is IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR.
const comDescriptorIndex = 14

// File wraps a debug/pe.File together with its raw contents.
type File struct {
	PE   *pe.File
	data []byte
}

// Open reads a PE file from disk.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pex: open: %w", err)
	}
	return Parse(data)
}

// Parse parses PE headers from an in-memory image.
func Parse(data []byte) (*File, error) {
	pf, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPE, err)
	}
	if pf.OptionalHeader == nil {
		return nil, fmt.Errorf("%w: missing optional header", ErrNotPE)
	}
	return &File{PE: pf, data: data}, nil
}

// Data returns the raw file contents.
func (f *File) Data() []byte { return f.data }

// FileSize returns the size of the underlying file.
func (f *File) FileSize() int64 { return int64(len(f.data)) }

// Is64 reports whether the optional header is PE32+.
func (f *File) Is64() bool {
	_, ok := f.PE.OptionalHeader.(*pe.OptionalHeader64)
	return ok
}

// DataDirectory returns the data directory entry at idx.
func (f *File) DataDirectory(idx int) (pe.DataDirectory, bool) {
	switch oh := f.PE.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if idx < int(oh.NumberOfRvaAndSizes) && idx < len(oh.DataDirectory) {
			return oh.DataDirectory[idx], true
		}
	case *pe.OptionalHeader64:
		if idx < int(oh.NumberOfRvaAndSizes) && idx < len(oh.DataDirectory) {
			return oh.DataDirectory[idx], true
		}
	}
	return pe.DataDirectory{}, false
}

// EntryPoint returns AddressOfEntryPoint.
func (f *File) EntryPoint() uint32 {
	switch oh := f.PE.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		return oh.AddressOfEntryPoint
	case *pe.OptionalHeader64:
		return oh.AddressOfEntryPoint
	}
	return 0
}

// RVAToOffset converts a relative virtual address to a file offset using the
// section table.
func (f *File) RVAToOffset(rva uint32) (uint32, error) {
	for _, s := range f.PE.Sections {
		size := s.VirtualSize
		if size == 0 || size < s.Size {
			size = s.Size
		}
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+size {
			offset := rva - s.VirtualAddress + s.Offset
			if int64(offset) >= f.FileSize() {
				return 0, fmt.Errorf("pex: RVA 0x%x maps to offset 0x%x beyond file size 0x%x", rva, offset, f.FileSize())
			}
			return offset, nil
		}
	}
	return 0, fmt.Errorf("%w: RVA 0x%x", ErrNoSection, rva)
}

// OffsetToRVA is the inverse of RVAToOffset.
func (f *File) OffsetToRVA(off uint32) (uint32, error) {
	for _, s := range f.PE.Sections {
		if off >= s.Offset && off < s.Offset+s.Size {
			return off - s.Offset + s.VirtualAddress, nil
		}
	}
	return 0, fmt.Errorf("%w: offset 0x%x", ErrNoSection, off)
}

// ReadAtRVA reads n bytes starting at the given RVA, clamped to the file size.
func (f *File) ReadAtRVA(rva uint32, n int) ([]byte, error) {
	off, err := f.RVAToOffset(rva)
	if err != nil {
		return nil, err
	}
	avail := f.FileSize() - int64(off)
	if avail <= 0 {
		return nil, fmt.Errorf("pex: offset 0x%x at or past end of file", off)
	}
	if int64(n) > avail {
		n = int(avail)
	}
	buf := make([]byte, n)
	copy(buf, f.data[off:])
	return buf, nil
}

// CLIHeader is the IMAGE_COR20_HEADER of a .NET assembly.
type CLIHeader struct {
	Cb                  uint32 `json:"cb"`
	MajorRuntimeVersion uint16 `json:"major_runtime_version"`
	MinorRuntimeVersion uint16 `json:"minor_runtime_version"`
	MetaDataRVA         uint32 `json:"metadata_rva"`
	MetaDataSize        uint32 `json:"metadata_size"`
	Flags               uint32 `json:"flags"`
	EntryPointToken     uint32 `json:"entry_point_token"`
	ResourcesRVA        uint32 `json:"resources_rva"`
	ResourcesSize       uint32 `json:"resources_size"`
}

// CLI returns the parsed CLI header.
func (f *File) CLI() (*CLIHeader, error) {
	dd, ok := f.DataDirectory(comDescriptorIndex)
	if !ok || dd.VirtualAddress == 0 {
		return nil, ErrNotDotNet
	}
	raw, err := f.ReadAtRVA(dd.VirtualAddress, 32)
	if err != nil {
		return nil, fmt.Errorf("pex: CLI header: %w", err)
	}
	if len(raw) < 32 {
		return nil, ErrShortCLIHead
	}
	le := binary.LittleEndian
	return &CLIHeader{
		Cb:                  le.Uint32(raw[0:]),
		MajorRuntimeVersion: le.Uint16(raw[4:]),
		MinorRuntimeVersion: le.Uint16(raw[6:]),
		MetaDataRVA:         le.Uint32(raw[8:]),
		MetaDataSize:        le.Uint32(raw[12:]),
		Flags:               le.Uint32(raw[16:]),
		EntryPointToken:     le.Uint32(raw[20:]),
		ResourcesRVA:        le.Uint32(raw[24:]),
		ResourcesSize:       le.Uint32(raw[28:]),
	}, nil
}

// EntryStub decodes the native x86 instruction at AddressOfEntryPoint.
// For PE32 .NET executables this is "jmp dword ptr [_CorExeMain]".
func (f *File) EntryStub() (string, error) {
	ep := f.EntryPoint()
	if ep == 0 {
		return "", ErrNoEntryStub
	}
	code, err := f.ReadAtRVA(ep, 16)
	if err != nil {
		return "", err
	}
	mode := 32
	if f.Is64() {
		mode = 64
	}
	inst, err := x86asm.Decode(code, mode)
	if err != nil {
		return "", fmt.Errorf("pex: decode entry stub: %w", err)
	}
	return x86asm.IntelSyntax(inst, uint64(ep), nil), nil
}

// SectionInfo describes a PE section.
type SectionInfo struct {
	Name           string `json:"name"`
	VirtualAddress uint32 `json:"virtual_address"`
	VirtualSize    uint32 `json:"virtual_size"`
	Offset         uint32 `json:"offset"`
	Size           uint32 `json:"size"`
}

// Sections returns the section table.
func (f *File) Sections() []SectionInfo {
	var out []SectionInfo
	for _, s := range f.PE.Sections {
		out = append(out, SectionInfo{
			Name:           s.Name,
			VirtualAddress: s.VirtualAddress,
			VirtualSize:    s.VirtualSize,
			Offset:         s.Offset,
			Size:           s.Size,
		})
	}
	return out
}
