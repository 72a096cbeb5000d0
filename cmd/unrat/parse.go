package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"unrat/internal/extract"
	"unrat/internal/output"
)

// noMatch is reported as the family when no signature rule matched.
const noMatch = "No match"

func newParseCmd(a *app) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "parse FILE...",
		Short: "Extract RAT configurations from one or more payloads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reports, err := a.parseAll(cmd.Context(), args)
			if err != nil {
				return err
			}
			if outPath != "" {
				if err := output.WriteReportsFile(outPath, a.cfg.OutputFormat(), reports); err != nil {
					return err
				}
				a.log.WithField("path", outPath).Info("reports written")
				return nil
			}
			return output.WriteReports(a.stdout, a.cfg.OutputFormat(), reports)
		},
	}
	fs := cmd.Flags()
	fs.Bool("remap", false, "rename fields to canonical names")
	fs.Bool("preserve-keys", false, "keep field names that look obfuscated")
	fs.StringSlice("decryptors", nil, "decryptors to try, in registry order (default all)")
	fs.IntP("workers", "j", 0, "files parsed in parallel (default NumCPU)")
	fs.StringVarP(&outPath, "out", "o", "", "write reports to a file instead of stdout")
	return cmd
}

// parseAll parses paths concurrently and returns reports in argument order.
// A failed parse is reported, not returned: only cancellation aborts.
func (a *app) parseAll(ctx context.Context, paths []string) ([]*extract.Report, error) {
	opts, err := a.extractOptions()
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reports := make([]*extract.Report, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r := extract.ParseFile(path, opts)
			if r.Family == "" {
				r.Family = noMatch
			}
			entry := a.log.WithFields(logrus.Fields{"file": path, "family": r.Family})
			if r.Err != nil {
				entry.WithError(r.Err).Warn("config extraction failed")
			} else {
				entry.WithField("fields", r.Config.Len()).Info("config extracted")
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return reports, nil
}
