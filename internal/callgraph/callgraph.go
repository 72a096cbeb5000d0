// Package callgraph converts decoded CIL methods into lattice graphs for
// DOT rendering.
package callgraph

import (
	"fmt"

	"github.com/zboralski/lattice"

	"unrat/internal/cil"
)

// FuncInfo holds the data needed to build the call graph and CFG for one
// method.
type FuncInfo struct {
	Name       string
	Insts      []cil.Inst
	CallEdges  []cil.CallEdge
	StringRefs []cil.StringRef
}

// BuildCallGraph constructs a lattice.Graph from decoded methods. Each method
// becomes a node and each call site an edge. Targets that could not be named
// are shown by token.
func BuildCallGraph(funcs []FuncInfo) *lattice.Graph {
	g := &lattice.Graph{}
	for _, f := range funcs {
		g.Nodes = append(g.Nodes, f.Name)
		for _, e := range f.CallEdges {
			g.Edges = append(g.Edges, lattice.Edge{
				Caller: f.Name,
				Callee: calleeName(e),
			})
		}
	}
	g.Dedup()
	return g
}

func calleeName(e cil.CallEdge) string {
	if e.TargetName != "" {
		return e.TargetName
	}
	return fmt.Sprintf("token_0x%08x", e.Token)
}
