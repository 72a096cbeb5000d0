// Package mdfmt holds the stream reader and diagnostics shared by the
// .NET metadata parsers.
package mdfmt

import "fmt"

// DiagKind names what went wrong in a metadata structure.
type DiagKind string

const (
	DiagTruncated     DiagKind = "truncated"      // a stream or table ends early
	DiagInvalid       DiagKind = "invalid"        // a header field is out of range
	DiagMissingStream DiagKind = "missing_stream" // #Strings, #US or #Blob absent
	DiagUnknownTable  DiagKind = "unknown_table"  // valid bit set past the known tables
	DiagClamped       DiagKind = "clamped"        // stream size cut to the metadata size
)

// Diag is a metadata problem that best-effort mode stepped over. Region is
// the metadata stream it was found in ("#~", "#US") or "root" for the
// metadata root and its stream headers; Offset is relative to the start of
// Region.
type Diag struct {
	Region string   `json:"region"`
	Offset uint64   `json:"offset"`
	Kind   DiagKind `json:"kind"`
	Msg    string   `json:"msg"`
}

func (d Diag) String() string {
	return fmt.Sprintf("[%s] %s+0x%x: %s", d.Kind, d.Region, d.Offset, d.Msg)
}

// Diags collects the problems of one load, in the order they were seen.
type Diags struct {
	items []Diag
}

func (d *Diags) Add(region string, offset uint64, kind DiagKind, msg string) {
	d.items = append(d.items, Diag{Region: region, Offset: offset, Kind: kind, Msg: msg})
}

func (d *Diags) Addf(region string, offset uint64, kind DiagKind, format string, args ...any) {
	d.Add(region, offset, kind, fmt.Sprintf(format, args...))
}

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }

// Count reports how many diagnostics of kind were recorded.
func (d *Diags) Count(kind DiagKind) int {
	n := 0
	for _, it := range d.items {
		if it.Kind == kind {
			n++
		}
	}
	return n
}

// Mode selects what a structural error in the metadata does.
type Mode int

const (
	ModeBestEffort Mode = iota // record a Diag and keep what can be read
	ModeStrict                 // fail the load
)

// Options controls metadata loading and the instruction walks over it.
type Options struct {
	Mode     Mode
	MaxSteps int // per-method decode cap; 0 = DefaultMaxSteps
}

// DefaultMaxSteps bounds a single method walk. Real method bodies are far
// below it; obfuscated junk bodies are not.
const DefaultMaxSteps = 1_000_000

func (o Options) EffectiveMaxSteps() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return DefaultMaxSteps
}
