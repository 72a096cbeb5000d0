package main

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"unrat/internal/dotnet"
	"unrat/internal/extract"
	"unrat/internal/logx"
	"unrat/internal/settings"
)

// app carries state shared by subcommands. It is populated by the root
// command's PersistentPreRunE.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *settings.Settings
	log     *logrus.Logger
	closer  io.Closer
	stdout  io.Writer
	stderr  io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: settings.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "unrat",
		Short: "unrat: .NET RAT configuration extractor",
		Long: `unrat recovers the embedded configuration of .NET remote access trojans
(AsyncRAT, DcRAT, QuasarRAT, VenomRAT and relatives) from compiled payloads.

Examples:
  unrat parse sample.exe
  unrat parse --remap --format yaml samples/*.exe
  unrat signal --remap --dot graphs samples/*.exe
  unrat disasm --method .cctor sample.exe
  unrat graph --out graphs sample.exe`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./unrat.yaml)")
	pf.String("rules", "", "YAML signature ruleset (default: embedded)")
	pf.String("format", "json", "output format: json, yaml or text")
	pf.Bool("strict", false, "fail on the first metadata structural error")
	pf.Int("max-steps", 0, "instruction decode cap per method")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text or json)")
	pf.String("log-file", "", "write logs to a rotated file instead of stderr")
	pf.BoolP("debug", "d", false, "shorthand for --log-level debug")

	root.AddCommand(
		newParseCmd(a),
		newSignalCmd(a),
		newScanCmd(a),
		newMethodsCmd(a),
		newDisasmCmd(a),
		newGraphCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	if err := settings.BindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		a.v.Set("log.level", "debug")
	}
	cfg, err := settings.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	log, closer, err := logx.New(cfg.Log, a.stderr)
	if err != nil {
		return err
	}
	a.cfg, a.log, a.closer = cfg, log, closer
	if used := a.v.ConfigFileUsed(); used != "" {
		a.log.WithField("config", used).Debug("loaded config file")
	}
	return nil
}

func (a *app) extractOptions() (extract.Options, error) {
	return a.cfg.ExtractOptions(a.log)
}

// open loads an assembly with the configured rules and metadata options.
func (a *app) open(path string) (*dotnet.Payload, error) {
	opts, err := a.extractOptions()
	if err != nil {
		return nil, err
	}
	return dotnet.Open(path, opts.Rules, opts.Metadata)
}
