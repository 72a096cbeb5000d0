// Package output writes unrat results to files and streams.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"unrat/internal/cil"
	"unrat/internal/extract"
)

// Format selects how reports are rendered.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// ParseFormat accepts json, yaml/yml and text (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "text", "txt", "table":
		return FormatText, nil
	}
	return "", fmt.Errorf("output: unknown format %q", s)
}

// WriteReports renders reports to w. JSON output is a single array so that
// several files parse into one document.
func WriteReports(w io.Writer, f Format, reports []*extract.Report) error {
	switch f {
	case FormatJSON, "":
		return encodeJSON(w, reports)
	case FormatYAML:
		return encodeYAML(w, reports)
	case FormatText:
		return writeReportText(w, reports)
	}
	return fmt.Errorf("output: unknown format %q", f)
}

// WriteReportsFile writes reports to path, creating parent directories.
func WriteReportsFile(path string, f Format, reports []*extract.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer out.Close()
	if err := WriteReports(out, f, reports); err != nil {
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes v as indented JSON to path.
func WriteJSON(path string, v any) error {
	return writeJSON(path, v)
}

// Encode renders any value in format f. Text falls back to YAML, which
// reads well for nested values.
func Encode(w io.Writer, f Format, v any) error {
	if f == FormatJSON || f == "" {
		return encodeJSON(w, v)
	}
	return encodeYAML(w, v)
}

// WriteASM writes a disassembly listing to asm/<name>.txt.
// name may contain path separators ("Client.Settings/.cctor") for grouping.
func WriteASM(dir string, name string, insts []cil.Inst, lookup cil.TokenLookup, annotators ...cil.Annotator) error {
	path := filepath.Join(dir, "asm", name+".txt")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir asm: %w", err)
	}

	text := cil.Format(insts, lookup, annotators...)
	return os.WriteFile(path, []byte(text), 0644)
}

// WriteBin writes a raw method body to asm/<name>.bin.
func WriteBin(dir string, name string, data []byte) error {
	path := filepath.Join(dir, "asm", name+".bin")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir asm: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// WriteDOT writes a Graphviz document to <dir>/<name>.dot and returns the
// path.
func WriteDOT(dir string, name string, dot string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("output: mkdir: %w", err)
	}
	path := filepath.Join(dir, name+".dot")
	if err := os.WriteFile(path, []byte(dot), 0644); err != nil {
		return "", fmt.Errorf("output: write %s: %w", path, err)
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	if err := encodeJSON(f, v); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return nil
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	// Hosts such as "a&b" stay readable.
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// writeReportText prints one block per report: a header line and a
// two-column field table.
func writeReportText(w io.Writer, reports []*extract.Report) error {
	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		family := r.Family
		if family == "" {
			family = "-"
		}
		fmt.Fprintf(w, "%s\n  sha256: %s\n  family: %s\n", r.FilePath, orDash(r.SHA256), family)
		if !r.OK() {
			fmt.Fprintf(w, "  error:  %s\n", r.ErrorText())
			continue
		}
		fmt.Fprintf(w, "  key:    %s\n  salt:   %s\n", r.KeyHex(), r.SaltHex())

		data := pterm.TableData{{"Field", "Value"}}
		for _, k := range r.Config.Keys() {
			v, _ := r.Config.Get(k)
			data = append(data, []string{k, textValue(v)})
		}
		table, err := pterm.DefaultTable.
			WithHasHeader(true).
			WithBoxed(false).
			WithData(data).
			Srender()
		if err != nil {
			return fmt.Errorf("output: render table: %w", err)
		}
		if _, err := io.WriteString(w, table+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func textValue(v any) string {
	switch x := v.(type) {
	case []string:
		return strings.Join(x, ", ")
	case nil:
		return "null"
	default:
		return fmt.Sprint(x)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
