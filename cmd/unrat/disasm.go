package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"unrat/internal/callgraph"
	"unrat/internal/cil"
	"unrat/internal/dotnet"
	"unrat/internal/output"
)

// decodedMethod is a method body run through the CIL decoder.
type decodedMethod struct {
	Method dotnet.MethodDef
	Body   []byte
	Info   callgraph.FuncInfo
}

// memberLookup names call and field operands through the metadata tables.
func memberLookup(p *dotnet.Payload) cil.TokenLookup {
	return func(tok uint32) (string, bool) {
		n := p.MemberName(tok)
		return n, n != ""
	}
}

// userStringAnnotator comments ldstr lines with the literal.
func userStringAnnotator(p *dotnet.Payload) cil.Annotator {
	return func(inst cil.Inst) string {
		if !inst.Is(cil.Ldstr) {
			return ""
		}
		s, err := p.UserString(inst.Token)
		if err != nil {
			return ""
		}
		if len(s) > 80 {
			s = s[:77] + "..."
		}
		return fmt.Sprintf("%q", s)
	}
}

// decodeMethods disassembles every method with a body. Bodies that fail to
// parse are skipped with a warning.
func (a *app) decodeMethods(p *dotnet.Payload, methods []dotnet.MethodDef) []decodedMethod {
	lookup := memberLookup(p)
	var out []decodedMethod
	for _, m := range methods {
		if m.RVA == 0 {
			continue
		}
		body, err := p.MethodBody(m)
		if err != nil {
			a.log.WithError(err).WithField("method", m.FullName()).Warn("skipping method")
			continue
		}
		insts := cil.Disassemble(body, cil.Options{BaseRVA: m.RVA, MaxSteps: a.cfg.MaxSteps})
		out = append(out, decodedMethod{
			Method: m,
			Body:   body,
			Info: callgraph.FuncInfo{
				Name:       m.FullName(),
				Insts:      insts,
				CallEdges:  cil.CallEdges(insts, lookup),
				StringRefs: cil.StringRefs(insts, p.UserString),
			},
		})
	}
	return out
}

func newDisasmCmd(a *app) *cobra.Command {
	var (
		name   string
		outDir string
		bin    bool
	)
	cmd := &cobra.Command{
		Use:   "disasm FILE",
		Short: "Disassemble CIL method bodies with resolved member names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.open(args[0])
			if err != nil {
				return fmt.Errorf("open: %w", err)
			}
			methods := selectMethods(p, name)
			if len(methods) == 0 && name != "" {
				return fmt.Errorf("no method named %q", name)
			}
			decoded := a.decodeMethods(p, methods)
			lookup := memberLookup(p)
			ann := userStringAnnotator(p)

			if outDir == "" {
				for i, d := range decoded {
					if i > 0 {
						fmt.Fprintln(a.stdout)
					}
					fmt.Fprintf(a.stdout, "; %s  token=0x%08x  rva=0x%08x\n", d.Info.Name, d.Method.Token, d.Method.RVA)
					fmt.Fprint(a.stdout, cil.Format(d.Info.Insts, lookup, ann))
				}
				return nil
			}

			if err := os.MkdirAll(outDir, 0755); err != nil {
				return fmt.Errorf("mkdir: %w", err)
			}
			for _, d := range decoded {
				asmName := asmPath(d.Method)
				if err := output.WriteASM(outDir, asmName, d.Info.Insts, lookup, ann); err != nil {
					return err
				}
				if bin {
					if err := output.WriteBin(outDir, asmName, d.Body); err != nil {
						return err
					}
				}
			}
			fmt.Fprintf(a.stderr, "disasm: %d methods written to %s\n", len(decoded), filepath.Join(outDir, "asm"))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "method", "", "only methods with this name (default all)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "write one listing per method under <dir>/asm")
	cmd.Flags().BoolVar(&bin, "bin", false, "also write raw method bodies (.bin)")
	return cmd
}

// asmPath groups listings by owner type: "Client.Settings/.cctor_06000004".
// The token suffix keeps overloads apart.
func asmPath(m dotnet.MethodDef) string {
	owner := m.Owner
	if owner == "" {
		owner = "_global"
	}
	clean := func(s string) string {
		return strings.NewReplacer("/", "_", "\\", "_", "<", "_", ">", "_", ":", "_").Replace(s)
	}
	return clean(owner) + "/" + clean(m.Name) + fmt.Sprintf("_%08x", m.Token)
}
