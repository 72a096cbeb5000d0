package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"unrat/internal/dotnet"
	"unrat/internal/output"
)

func newMethodsCmd(a *app) *cobra.Command {
	var name string
	var withBody bool
	cmd := &cobra.Command{
		Use:   "methods FILE",
		Short: "List method definitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.open(args[0])
			if err != nil {
				return fmt.Errorf("open: %w", err)
			}
			methods := selectMethods(p, name)
			if withBody {
				kept := methods[:0]
				for _, m := range methods {
					if m.RVA != 0 {
						kept = append(kept, m)
					}
				}
				methods = kept
			}
			if f := a.cfg.OutputFormat(); f != output.FormatText {
				return output.Encode(a.stdout, f, methods)
			}
			for _, m := range methods {
				fmt.Fprintf(a.stdout, "0x%08x  0x%08x  %s\n", m.Token, m.RVA, m.FullName())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "only methods with this name (\"Type::Name\" also accepted)")
	cmd.Flags().BoolVar(&withBody, "with-body", false, "skip abstract and extern methods")
	return cmd
}

// selectMethods filters methods by bare name or full "Owner::Name".
func selectMethods(p *dotnet.Payload, name string) []dotnet.MethodDef {
	if name == "" {
		return append([]dotnet.MethodDef(nil), p.Methods()...)
	}
	if !strings.Contains(name, "::") {
		return p.MethodsNamed(name)
	}
	var out []dotnet.MethodDef
	for _, m := range p.Methods() {
		if m.FullName() == name {
			out = append(out, m)
		}
	}
	return out
}
