package cil

// OperandKind describes the inline operand that follows an opcode.
type OperandKind int

const (
	OpNone        OperandKind = iota
	OpI8                      // int8 / uint8 (ShortInlineI, ShortInlineVar)
	OpBr8                     // int8 branch displacement
	OpVar16                   // uint16 local or argument index
	OpI32                     // int32 immediate
	OpBr32                    // int32 branch displacement
	OpI64                     // int64 immediate
	OpR4                      // float32
	OpR8                      // float64
	OpToken                   // metadata token
	OpString                  // #US token
	OpSwitch                  // uint32 count followed by count int32 targets
)

// Size returns the fixed operand size in bytes. OpSwitch returns 4 (the
// count only).
func (k OperandKind) Size() int {
	switch k {
	case OpI8, OpBr8:
		return 1
	case OpVar16:
		return 2
	case OpI32, OpBr32, OpR4, OpToken, OpString, OpSwitch:
		return 4
	case OpI64, OpR8:
		return 8
	}
	return 0
}

// OpCode is an entry in the opcode table.
type OpCode struct {
	Name    string
	Operand OperandKind
}

// Single-byte opcodes referenced by extraction code.
const (
	Nop        = 0x00
	Ldnull     = 0x14
	LdcI4M1    = 0x15
	LdcI40     = 0x16
	LdcI41     = 0x17
	LdcI42     = 0x18
	LdcI48     = 0x1E
	LdcI4S     = 0x1F
	LdcI4      = 0x20
	Dup        = 0x25
	Ret        = 0x2A
	Call       = 0x28
	Callvirt   = 0x6F
	Ldstr      = 0x72
	Newobj     = 0x73
	Castclass  = 0x74
	Ldsfld     = 0x7E
	Stsfld     = 0x80
	Newarr     = 0x8D
	Ldtoken    = 0xD0
	Prefix2    = 0xFE
	prefix2Off = 0x100
)

var oneByte = map[byte]OpCode{
	0x00: {"nop", OpNone},
	0x01: {"break", OpNone},
	0x02: {"ldarg.0", OpNone},
	0x03: {"ldarg.1", OpNone},
	0x04: {"ldarg.2", OpNone},
	0x05: {"ldarg.3", OpNone},
	0x06: {"ldloc.0", OpNone},
	0x07: {"ldloc.1", OpNone},
	0x08: {"ldloc.2", OpNone},
	0x09: {"ldloc.3", OpNone},
	0x0A: {"stloc.0", OpNone},
	0x0B: {"stloc.1", OpNone},
	0x0C: {"stloc.2", OpNone},
	0x0D: {"stloc.3", OpNone},
	0x0E: {"ldarg.s", OpI8},
	0x0F: {"ldarga.s", OpI8},
	0x10: {"starg.s", OpI8},
	0x11: {"ldloc.s", OpI8},
	0x12: {"ldloca.s", OpI8},
	0x13: {"stloc.s", OpI8},
	0x14: {"ldnull", OpNone},
	0x15: {"ldc.i4.m1", OpNone},
	0x16: {"ldc.i4.0", OpNone},
	0x17: {"ldc.i4.1", OpNone},
	0x18: {"ldc.i4.2", OpNone},
	0x19: {"ldc.i4.3", OpNone},
	0x1A: {"ldc.i4.4", OpNone},
	0x1B: {"ldc.i4.5", OpNone},
	0x1C: {"ldc.i4.6", OpNone},
	0x1D: {"ldc.i4.7", OpNone},
	0x1E: {"ldc.i4.8", OpNone},
	0x1F: {"ldc.i4.s", OpI8},
	0x20: {"ldc.i4", OpI32},
	0x21: {"ldc.i8", OpI64},
	0x22: {"ldc.r4", OpR4},
	0x23: {"ldc.r8", OpR8},
	0x25: {"dup", OpNone},
	0x26: {"pop", OpNone},
	0x27: {"jmp", OpToken},
	0x28: {"call", OpToken},
	0x29: {"calli", OpToken},
	0x2A: {"ret", OpNone},
	0x2B: {"br.s", OpBr8},
	0x2C: {"brfalse.s", OpBr8},
	0x2D: {"brtrue.s", OpBr8},
	0x2E: {"beq.s", OpBr8},
	0x2F: {"bge.s", OpBr8},
	0x30: {"bgt.s", OpBr8},
	0x31: {"ble.s", OpBr8},
	0x32: {"blt.s", OpBr8},
	0x33: {"bne.un.s", OpBr8},
	0x34: {"bge.un.s", OpBr8},
	0x35: {"bgt.un.s", OpBr8},
	0x36: {"ble.un.s", OpBr8},
	0x37: {"blt.un.s", OpBr8},
	0x38: {"br", OpBr32},
	0x39: {"brfalse", OpBr32},
	0x3A: {"brtrue", OpBr32},
	0x3B: {"beq", OpBr32},
	0x3C: {"bge", OpBr32},
	0x3D: {"bgt", OpBr32},
	0x3E: {"ble", OpBr32},
	0x3F: {"blt", OpBr32},
	0x40: {"bne.un", OpBr32},
	0x41: {"bge.un", OpBr32},
	0x42: {"bgt.un", OpBr32},
	0x43: {"ble.un", OpBr32},
	0x44: {"blt.un", OpBr32},
	0x45: {"switch", OpSwitch},
	0x46: {"ldind.i1", OpNone},
	0x47: {"ldind.u1", OpNone},
	0x48: {"ldind.i2", OpNone},
	0x49: {"ldind.u2", OpNone},
	0x4A: {"ldind.i4", OpNone},
	0x4B: {"ldind.u4", OpNone},
	0x4C: {"ldind.i8", OpNone},
	0x4D: {"ldind.i", OpNone},
	0x4E: {"ldind.r4", OpNone},
	0x4F: {"ldind.r8", OpNone},
	0x50: {"ldind.ref", OpNone},
	0x51: {"stind.ref", OpNone},
	0x52: {"stind.i1", OpNone},
	0x53: {"stind.i2", OpNone},
	0x54: {"stind.i4", OpNone},
	0x55: {"stind.i8", OpNone},
	0x56: {"stind.r4", OpNone},
	0x57: {"stind.r8", OpNone},
	0x58: {"add", OpNone},
	0x59: {"sub", OpNone},
	0x5A: {"mul", OpNone},
	0x5B: {"div", OpNone},
	0x5C: {"div.un", OpNone},
	0x5D: {"rem", OpNone},
	0x5E: {"rem.un", OpNone},
	0x5F: {"and", OpNone},
	0x60: {"or", OpNone},
	0x61: {"xor", OpNone},
	0x62: {"shl", OpNone},
	0x63: {"shr", OpNone},
	0x64: {"shr.un", OpNone},
	0x65: {"neg", OpNone},
	0x66: {"not", OpNone},
	0x67: {"conv.i1", OpNone},
	0x68: {"conv.i2", OpNone},
	0x69: {"conv.i4", OpNone},
	0x6A: {"conv.i8", OpNone},
	0x6B: {"conv.r4", OpNone},
	0x6C: {"conv.r8", OpNone},
	0x6D: {"conv.u4", OpNone},
	0x6E: {"conv.u8", OpNone},
	0x6F: {"callvirt", OpToken},
	0x70: {"cpobj", OpToken},
	0x71: {"ldobj", OpToken},
	0x72: {"ldstr", OpString},
	0x73: {"newobj", OpToken},
	0x74: {"castclass", OpToken},
	0x75: {"isinst", OpToken},
	0x76: {"conv.r.un", OpNone},
	0x79: {"unbox", OpToken},
	0x7A: {"throw", OpNone},
	0x7B: {"ldfld", OpToken},
	0x7C: {"ldflda", OpToken},
	0x7D: {"stfld", OpToken},
	0x7E: {"ldsfld", OpToken},
	0x7F: {"ldsflda", OpToken},
	0x80: {"stsfld", OpToken},
	0x81: {"stobj", OpToken},
	0x82: {"conv.ovf.i1.un", OpNone},
	0x83: {"conv.ovf.i2.un", OpNone},
	0x84: {"conv.ovf.i4.un", OpNone},
	0x85: {"conv.ovf.i8.un", OpNone},
	0x86: {"conv.ovf.u1.un", OpNone},
	0x87: {"conv.ovf.u2.un", OpNone},
	0x88: {"conv.ovf.u4.un", OpNone},
	0x89: {"conv.ovf.u8.un", OpNone},
	0x8A: {"conv.ovf.i.un", OpNone},
	0x8B: {"conv.ovf.u.un", OpNone},
	0x8C: {"box", OpToken},
	0x8D: {"newarr", OpToken},
	0x8E: {"ldlen", OpNone},
	0x8F: {"ldelema", OpToken},
	0x90: {"ldelem.i1", OpNone},
	0x91: {"ldelem.u1", OpNone},
	0x92: {"ldelem.i2", OpNone},
	0x93: {"ldelem.u2", OpNone},
	0x94: {"ldelem.i4", OpNone},
	0x95: {"ldelem.u4", OpNone},
	0x96: {"ldelem.i8", OpNone},
	0x97: {"ldelem.i", OpNone},
	0x98: {"ldelem.r4", OpNone},
	0x99: {"ldelem.r8", OpNone},
	0x9A: {"ldelem.ref", OpNone},
	0x9B: {"stelem.i", OpNone},
	0x9C: {"stelem.i1", OpNone},
	0x9D: {"stelem.i2", OpNone},
	0x9E: {"stelem.i4", OpNone},
	0x9F: {"stelem.i8", OpNone},
	0xA0: {"stelem.r4", OpNone},
	0xA1: {"stelem.r8", OpNone},
	0xA2: {"stelem.ref", OpNone},
	0xA3: {"ldelem", OpToken},
	0xA4: {"stelem", OpToken},
	0xA5: {"unbox.any", OpToken},
	0xB3: {"conv.ovf.i1", OpNone},
	0xB4: {"conv.ovf.u1", OpNone},
	0xB5: {"conv.ovf.i2", OpNone},
	0xB6: {"conv.ovf.u2", OpNone},
	0xB7: {"conv.ovf.i4", OpNone},
	0xB8: {"conv.ovf.u4", OpNone},
	0xB9: {"conv.ovf.i8", OpNone},
	0xBA: {"conv.ovf.u8", OpNone},
	0xC2: {"refanyval", OpToken},
	0xC3: {"ckfinite", OpNone},
	0xC6: {"mkrefany", OpToken},
	0xD0: {"ldtoken", OpToken},
	0xD1: {"conv.u2", OpNone},
	0xD2: {"conv.u1", OpNone},
	0xD3: {"conv.i", OpNone},
	0xD4: {"conv.ovf.i", OpNone},
	0xD5: {"conv.ovf.u", OpNone},
	0xD6: {"add.ovf", OpNone},
	0xD7: {"add.ovf.un", OpNone},
	0xD8: {"mul.ovf", OpNone},
	0xD9: {"mul.ovf.un", OpNone},
	0xDA: {"sub.ovf", OpNone},
	0xDB: {"sub.ovf.un", OpNone},
	0xDC: {"endfinally", OpNone},
	0xDD: {"leave", OpBr32},
	0xDE: {"leave.s", OpBr8},
	0xDF: {"stind.i", OpNone},
	0xE0: {"conv.u", OpNone},
}

// twoByte holds the 0xFE-prefixed opcodes, keyed by the second byte.
var twoByte = map[byte]OpCode{
	0x00: {"arglist", OpNone},
	0x01: {"ceq", OpNone},
	0x02: {"cgt", OpNone},
	0x03: {"cgt.un", OpNone},
	0x04: {"clt", OpNone},
	0x05: {"clt.un", OpNone},
	0x06: {"ldftn", OpToken},
	0x07: {"ldvirtftn", OpToken},
	0x09: {"ldarg", OpVar16},
	0x0A: {"ldarga", OpVar16},
	0x0B: {"starg", OpVar16},
	0x0C: {"ldloc", OpVar16},
	0x0D: {"ldloca", OpVar16},
	0x0E: {"stloc", OpVar16},
	0x0F: {"localloc", OpNone},
	0x11: {"endfilter", OpNone},
	0x12: {"unaligned.", OpI8},
	0x13: {"volatile.", OpNone},
	0x14: {"tail.", OpNone},
	0x15: {"initobj", OpToken},
	0x16: {"constrained.", OpToken},
	0x17: {"cpblk", OpNone},
	0x18: {"initblk", OpNone},
	0x19: {"no.", OpI8},
	0x1A: {"rethrow", OpNone},
	0x1C: {"sizeof", OpToken},
	0x1D: {"refanytype", OpNone},
	0x1E: {"readonly.", OpNone},
}

// Lookup returns the opcode for a (possibly two-byte) code. Two-byte codes
// are passed as 0x100 | second byte.
func Lookup(code int) (OpCode, bool) {
	if code >= prefix2Off {
		op, ok := twoByte[byte(code-prefix2Off)]
		return op, ok
	}
	op, ok := oneByte[byte(code)]
	return op, ok
}
