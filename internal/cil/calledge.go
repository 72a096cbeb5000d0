package cil

// CallEdge represents a call site extracted from a method body.
type CallEdge struct {
	FromOffset int    `json:"from_offset"`
	FromRVA    uint32 `json:"from_rva"`
	Kind       string `json:"kind"` // call, callvirt, newobj, ldftn
	Token      uint32 `json:"token"`
	TargetName string `json:"target_name,omitempty"`
}

// StringRef records an ldstr site.
type StringRef struct {
	FromOffset int    `json:"from_offset"`
	Token      uint32 `json:"token"`
	Value      string `json:"value"`
}

// CallEdges returns every call-like instruction in insts. lookup, if non-nil,
// names the target.
func CallEdges(insts []Inst, lookup TokenLookup) []CallEdge {
	var out []CallEdge
	for _, inst := range insts {
		switch {
		case inst.Is(Call), inst.Is(Callvirt), inst.Is(Newobj), inst.Is(prefix2Off | 0x06):
		default:
			continue
		}
		e := CallEdge{FromOffset: inst.Offset, FromRVA: inst.RVA, Kind: inst.Name, Token: inst.Token}
		if lookup != nil {
			if name, ok := lookup(inst.Token); ok {
				e.TargetName = name
			}
		}
		out = append(out, e)
	}
	return out
}

// StringRefs resolves every ldstr operand through resolve. Unresolvable
// tokens are skipped.
func StringRefs(insts []Inst, resolve func(tok uint32) (string, error)) []StringRef {
	var out []StringRef
	for _, inst := range insts {
		if !inst.Is(Ldstr) {
			continue
		}
		s, err := resolve(inst.Token)
		if err != nil {
			continue
		}
		out = append(out, StringRef{FromOffset: inst.Offset, Token: inst.Token, Value: s})
	}
	return out
}
