package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"unrat/internal/dotnet"
	"unrat/internal/output"
)

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan FILE",
		Short: "Print PE, CLI and metadata information for an assembly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.open(args[0])
			if err != nil {
				return fmt.Errorf("open: %w", err)
			}
			info := p.Info()
			if info.Family == "" {
				info.Family = noMatch
			}
			if f := a.cfg.OutputFormat(); f != output.FormatText {
				return output.Encode(a.stdout, f, info)
			}
			printInfo(a.stdout, info)
			return nil
		},
	}
}

func printInfo(w io.Writer, info *dotnet.Info) {
	fmt.Fprintf(w, "File:     %s\n", info.Path)
	fmt.Fprintf(w, "SHA256:   %s\n", info.SHA256)
	fmt.Fprintf(w, "Family:   %s\n", info.Family)
	fmt.Fprintf(w, "Runtime:  %s\n", info.RuntimeVersion)
	fmt.Fprintf(w, "Entry:    0x%08x\n", info.EntryPointToken)
	if info.EntryStub != "" {
		fmt.Fprintf(w, "Stub:     %s\n", info.EntryStub)
	}
	fmt.Fprintf(w, "Methods:  %d (%d static constructors)\n", info.Methods, info.Constructors)

	fmt.Fprintf(w, "\nSections:\n")
	for _, s := range info.Sections {
		fmt.Fprintf(w, "  %-8s VA=0x%08x VSize=0x%08x FileOff=0x%08x Size=0x%x\n",
			s.Name, s.VirtualAddress, s.VirtualSize, s.Offset, s.Size)
	}

	fmt.Fprintf(w, "\nStreams:\n")
	for _, s := range info.Streams {
		fmt.Fprintf(w, "  %-10s Off=0x%08x Size=0x%x\n", s.Name, s.Offset, s.Size)
	}

	names := make([]string, 0, len(info.Rows))
	for n := range info.Rows {
		names = append(names, n)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "\nTables:\n")
	for _, n := range names {
		fmt.Fprintf(w, "  %-16s %d\n", n, info.Rows[n])
	}

	if len(info.Diags) > 0 {
		fmt.Fprintf(w, "\nDiagnostics (%d):\n", len(info.Diags))
		for _, d := range info.Diags {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
}
