package callgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zboralski/lattice"

	"unrat/internal/cil"
)

// maxLabel caps string literals shown inside CFG blocks.
const maxLabel = 50

// BuildCFG constructs a lattice.CFGGraph from decoded methods. Each method
// goes through cil.BuildCFG and is then mapped to lattice types.
func BuildCFG(funcs []FuncInfo) *lattice.CFGGraph {
	cg := &lattice.CFGGraph{}
	for _, f := range funcs {
		lcfg, _ := BuildFuncCFG(f)
		cg.Funcs = append(cg.Funcs, lcfg)
	}
	return cg
}

// BuildFuncCFG builds a single-method lattice.FuncCFG. Call sites and ldstr
// literals are attached to the blocks that contain them. It also returns the
// number of basic blocks so callers can skip trivial methods.
func BuildFuncCFG(f FuncInfo) (*lattice.FuncCFG, int) {
	dcfg := cil.BuildCFG(f.Name, f.Insts)
	lcfg := convertFuncCFG(&dcfg, f.CallEdges)
	injectStringRefs(lcfg, &dcfg, f.StringRefs)
	return lcfg, len(dcfg.Blocks)
}

// injectStringRefs adds string literal CallSite entries to the blocks that
// load them.
func injectStringRefs(lcfg *lattice.FuncCFG, dcfg *cil.FuncCFG, refs []cil.StringRef) {
	if len(refs) == 0 {
		return
	}
	byOff := make(map[int]string, len(refs))
	for _, r := range refs {
		byOff[r.FromOffset] = r.Value
	}
	for bi, db := range dcfg.Blocks {
		added := false
		for idx := db.Start; idx < db.End && idx < len(dcfg.Insts); idx++ {
			val, ok := byOff[dcfg.Insts[idx].Offset]
			if !ok {
				continue
			}
			lcfg.Blocks[bi].Calls = append(lcfg.Blocks[bi].Calls, lattice.CallSite{
				Offset: idx,
				Callee: label(val),
			})
			added = true
		}
		if added {
			calls := lcfg.Blocks[bi].Calls
			sort.SliceStable(calls, func(i, j int) bool { return calls[i].Offset < calls[j].Offset })
		}
	}
}

func label(s string) string {
	s = strings.ToValidUTF8(s, "?")
	if r := []rune(s); len(r) > maxLabel {
		s = string(r[:maxLabel-3]) + "..."
	}
	return fmt.Sprintf("%q", s)
}

// convertFuncCFG maps a cil.FuncCFG to a lattice.FuncCFG. Call edges are
// placed into blocks by instruction offset.
func convertFuncCFG(dcfg *cil.FuncCFG, edges []cil.CallEdge) *lattice.FuncCFG {
	edgeByOff := make(map[int]cil.CallEdge, len(edges))
	for _, e := range edges {
		edgeByOff[e.FromOffset] = e
	}

	lcfg := &lattice.FuncCFG{Name: dcfg.Name}
	for _, db := range dcfg.Blocks {
		lb := &lattice.BasicBlock{
			ID:    db.ID,
			Start: db.Start,
			End:   db.End,
			Term:  db.IsTerm,
		}
		for _, ds := range db.Succs {
			lb.Succs = append(lb.Succs, lattice.Successor{
				BlockID: ds.BlockID,
				Cond:    ds.Cond,
			})
		}
		for idx := db.Start; idx < db.End && idx < len(dcfg.Insts); idx++ {
			if e, ok := edgeByOff[dcfg.Insts[idx].Offset]; ok {
				lb.Calls = append(lb.Calls, lattice.CallSite{
					Offset: idx,
					Callee: calleeName(e),
				})
			}
		}
		lcfg.Blocks = append(lcfg.Blocks, lb)
	}
	return lcfg
}
