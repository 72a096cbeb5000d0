package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"unrat/internal/output"
	"unrat/internal/render"
	"unrat/internal/signal"
)

type signalDoc struct {
	FilePath string          `json:"file_path" yaml:"file_path"`
	Family   string          `json:"family" yaml:"family"`
	Error    string          `json:"error,omitempty" yaml:"error,omitempty"`
	Summary  *signal.Summary `json:"signals,omitempty" yaml:"signals,omitempty"`
}

func newSignalCmd(a *app) *cobra.Command {
	var (
		all    bool
		dotDir string
	)
	cmd := &cobra.Command{
		Use:   "signal FILE...",
		Short: "Extract configurations and classify their values as indicators",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reports, err := a.parseAll(cmd.Context(), args)
			if err != nil {
				return err
			}
			docs := make([]signalDoc, len(reports))
			for i, r := range reports {
				docs[i] = signalDoc{FilePath: r.FilePath, Family: r.Family}
				if !r.OK() {
					docs[i].Error = r.ErrorText()
					continue
				}
				docs[i].Summary = signal.ClassifyConfig(r.Config)
				if !all {
					docs[i].Summary.Fields = docs[i].Summary.Indicators()
				}
			}
			if dotDir != "" {
				if err := a.writeIndicatorGraph(dotDir, docs); err != nil {
					return err
				}
			}
			if a.cfg.OutputFormat() == output.FormatText {
				return writeSignalText(a.stdout, docs)
			}
			return output.Encode(a.stdout, a.cfg.OutputFormat(), docs)
		},
	}
	cmd.Flags().Bool("remap", false, "rename fields to canonical names")
	cmd.Flags().BoolVar(&all, "all", false, "list every field, not only high severity ones")
	cmd.Flags().StringVar(&dotDir, "dot", "", "also write indicators.dot to this directory")
	return cmd
}

// writeIndicatorGraph draws every sample in one graph so shared values
// (the same C2 host in two builds) are visible as joined nodes.
func (a *app) writeIndicatorGraph(dir string, docs []signalDoc) error {
	samples := make([]render.Sample, len(docs))
	for i, d := range docs {
		samples[i] = render.Sample{Path: d.FilePath, Family: d.Family, Error: d.Error, Summary: d.Summary}
	}
	path, err := output.WriteDOT(dir, "indicators", render.IndicatorDOT(samples, "unrat indicators", "", render.NASA))
	if err != nil {
		return err
	}
	shared := render.SharedValues(samples)
	for v, n := range shared {
		a.log.WithField("value", v).WithField("samples", n).Info("shared indicator")
	}
	fmt.Fprintf(a.stderr, "signal: %d samples, %d shared values\n  %s\n", len(samples), len(shared), path)
	return nil
}

func writeSignalText(w io.Writer, docs []signalDoc) error {
	for _, d := range docs {
		fmt.Fprintf(w, "%s (%s)\n", d.FilePath, d.Family)
		if d.Summary == nil {
			fmt.Fprintf(w, "  %s\n", d.Error)
			continue
		}
		fmt.Fprintf(w, "  severity: %s\n", d.Summary.Severity)
		for _, f := range d.Summary.Fields {
			cats := "-"
			if len(f.Categories) > 0 {
				cats = strings.Join(f.Categories, ",")
			}
			fmt.Fprintf(w, "  %-20s %-6s %-24s %s\n", f.Field, f.Severity, cats, f.Value)
		}
	}
	return nil
}
