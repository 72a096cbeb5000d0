package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zboralski/lattice/render"

	"unrat/internal/callgraph"
	"unrat/internal/output"
)

func newGraphCmd(a *app) *cobra.Command {
	var (
		name      string
		outDir    string
		minBlocks int
	)
	cmd := &cobra.Command{
		Use:   "graph FILE",
		Short: "Render the call graph and per-method CFGs as Graphviz DOT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				return fmt.Errorf("--out is required")
			}
			p, err := a.open(args[0])
			if err != nil {
				return fmt.Errorf("open: %w", err)
			}
			methods := selectMethods(p, name)
			if len(methods) == 0 && name != "" {
				return fmt.Errorf("no method named %q", name)
			}
			decoded := a.decodeMethods(p, methods)

			funcs := make([]callgraph.FuncInfo, 0, len(decoded))
			for _, d := range decoded {
				funcs = append(funcs, d.Info)
			}
			title := filepath.Base(args[0])

			cg := callgraph.BuildCallGraph(funcs)
			cgPath, err := output.WriteDOT(outDir, "callgraph", render.DOT(cg, title+" call graph"))
			if err != nil {
				return err
			}

			// One CFG document with every method large enough to be
			// interesting.
			var kept []callgraph.FuncInfo
			for _, f := range funcs {
				if _, blocks := callgraph.BuildFuncCFG(f); blocks >= minBlocks {
					kept = append(kept, f)
				}
			}
			cfg := callgraph.BuildCFG(kept)
			cfgPath, err := output.WriteDOT(outDir, "cfg", render.DOTCFG(cfg, title+" CFG"))
			if err != nil {
				return err
			}

			a.log.WithField("nodes", len(cg.Nodes)).WithField("edges", len(cg.Edges)).Debug("call graph built")
			fmt.Fprintf(a.stderr, "graph: %d methods, %d edges\n  %s\n  %s\n",
				len(funcs), len(cg.Edges), cgPath, cfgPath)
			if len(funcs) > 0 && len(kept) == 0 {
				fmt.Fprintf(a.stderr, "graph: no method reached %d blocks\n", minBlocks)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "method", "", "only graph methods with this name (default all)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory for .dot files")
	cmd.Flags().IntVar(&minBlocks, "min-blocks", 1, "skip methods with fewer basic blocks in cfg.dot")
	return cmd
}
