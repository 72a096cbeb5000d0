package dotnet

import (
	"errors"
	"fmt"

	"unrat/internal/mdfmt"
)

var ErrBadMethodHeader = errors.New("dotnet: invalid method body header")

// Method body header formats (ECMA-335 II.25.4).
const (
	corILMethodTinyFormat = 0x2
	corILMethodFatFormat  = 0x3
)

// BodyHeader describes a parsed method body header.
type BodyHeader struct {
	Fat        bool   `json:"fat"`
	HeaderSize int    `json:"header_size"`
	CodeSize   uint32 `json:"code_size"`
	MaxStack   uint16 `json:"max_stack"`
	LocalSig   uint32 `json:"local_sig,omitempty"`
}

// ParseBody reads a method body starting at data[0] and returns its header
// and IL code bytes.
func ParseBody(data []byte) (BodyHeader, []byte, error) {
	s := mdfmt.NewStream(data)
	first, err := s.ReadByte()
	if err != nil {
		return BodyHeader{}, nil, fmt.Errorf("%w: %v", ErrBadMethodHeader, err)
	}
	var h BodyHeader
	switch first & 0x3 {
	case corILMethodTinyFormat:
		h = BodyHeader{HeaderSize: 1, CodeSize: uint32(first >> 2), MaxStack: 8}
	case corILMethodFatFormat:
		s.SetPosition(0)
		flags, err := s.ReadUint16()
		if err != nil {
			return BodyHeader{}, nil, fmt.Errorf("%w: %v", ErrBadMethodHeader, err)
		}
		h.Fat = true
		h.HeaderSize = int(flags>>12) * 4
		if h.HeaderSize < 12 {
			return BodyHeader{}, nil, fmt.Errorf("%w: fat header size %d", ErrBadMethodHeader, h.HeaderSize)
		}
		if h.MaxStack, err = s.ReadUint16(); err != nil {
			return BodyHeader{}, nil, fmt.Errorf("%w: %v", ErrBadMethodHeader, err)
		}
		if h.CodeSize, err = s.ReadUint32(); err != nil {
			return BodyHeader{}, nil, fmt.Errorf("%w: %v", ErrBadMethodHeader, err)
		}
		if h.LocalSig, err = s.ReadUint32(); err != nil {
			return BodyHeader{}, nil, fmt.Errorf("%w: %v", ErrBadMethodHeader, err)
		}
		s.SetPosition(h.HeaderSize)
	default:
		return BodyHeader{}, nil, fmt.Errorf("%w: format bits 0x%x", ErrBadMethodHeader, first&0x3)
	}
	code, err := s.ReadBytes(int(h.CodeSize))
	if err != nil {
		return h, nil, fmt.Errorf("dotnet: method code (%d bytes): %w", h.CodeSize, err)
	}
	return h, code, nil
}
