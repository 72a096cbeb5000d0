package cil

// BranchInfo describes a control-flow instruction.
type BranchInfo struct {
	Targets []int // body offsets; empty for ret/throw
	Cond    bool  // true if the instruction can fall through
	IsRet   bool  // ret, throw, rethrow, endfinally, jmp
}

// DecodeBranch returns branch information for inst, or nil if it does not
// end a basic block.
func DecodeBranch(inst Inst) *BranchInfo {
	if inst.Bad {
		return nil
	}
	switch inst.Code {
	case Ret, 0x7A, 0xDC, 0x27, prefix2Off | 0x1A: // ret, throw, endfinally, jmp, rethrow
		return &BranchInfo{IsRet: true}
	case 0x2B, 0x38, 0xDD, 0xDE: // br.s, br, leave, leave.s
		return &BranchInfo{Targets: inst.Targets}
	}
	switch inst.Operand {
	case OpBr8, OpBr32, OpSwitch:
		return &BranchInfo{Targets: inst.Targets, Cond: true}
	}
	return nil
}

// IsBranchTerminator reports whether inst ends a basic block. Calls do not.
func IsBranchTerminator(inst Inst) bool {
	return DecodeBranch(inst) != nil
}
