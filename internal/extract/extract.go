// Package extract recovers RAT configurations from .NET payloads.
//
// A parse locates the method that initializes the configuration, decodes
// the static field stores in its body, decrypts string values with the
// first decryptor that works, and optionally renames fields to canonical
// names. Every parse returns a Report; failures are recorded in it.
package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"

	"unrat/internal/decrypt"
	"unrat/internal/dotnet"
	"unrat/internal/items"
	"unrat/internal/mdfmt"
	"unrat/internal/sigscan"
)

// Bounds on the number of fields a plausible config has. Candidates are
// tried against MinConfigLenCeiling first, then progressively lower bounds.
const (
	MinConfigLenFloor   = 5
	MinConfigLenCeiling = 9
)

// Payload is the view of a loaded assembly the pipeline consumes.
// *dotnet.Payload implements it.
type Payload interface {
	Digest() string
	FamilyHint() string
	RawBytes() []byte
	MethodsNamed(name string) []dotnet.MethodDef
	MethodBody(m dotnet.MethodDef) ([]byte, error)
	MethodAtOffset(off int, step int) (dotnet.MethodDef, error)
	FieldName(tok uint32) string
	UserString(tok uint32) (string, error)
	ByteArray(size int, tok uint32) ([]byte, error)
}

// Options controls a parse. The zero value is usable.
type Options struct {
	// Rules produces the family hint. nil disables hinting.
	Rules *sigscan.Ruleset
	// Remap renames fields to canonical names in field token order.
	Remap bool
	// PreserveObfuscatedKeys keeps field names that look obfuscated.
	PreserveObfuscatedKeys bool
	// Decryptors is the registry in try order; nil means decrypt.Default().
	Decryptors []decrypt.Factory
	// Schemas is the item schema set in priority order; nil means items.Default().
	Schemas []items.Schema
	// Metadata controls how damaged metadata is handled.
	Metadata mdfmt.Options
	Logger   logrus.FieldLogger
}

// ParseFile loads and parses the assembly at path. A missing path or one
// that is not a regular file reports ErrSourceNotFound.
func ParseFile(path string, opts Options) *Report {
	r := &Report{FilePath: path}
	fi, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		r.Err = ErrSourceNotFound
		return r
	case err != nil:
		r.Err = err
		return r
	case !fi.Mode().IsRegular():
		r.Err = fmt.Errorf("%w: %s is a %s", ErrSourceNotFound, path, fileKind(fi.Mode()))
		return r
	}
	data, err := os.ReadFile(path)
	if err != nil {
		r.Err = err
		return r
	}
	return ParseBytes(path, data, opts)
}

func fileKind(m fs.FileMode) string {
	switch {
	case m.IsDir():
		return "directory"
	case m&fs.ModeNamedPipe != 0:
		return "named pipe"
	case m&fs.ModeDevice != 0:
		return "device"
	case m&fs.ModeSocket != 0:
		return "socket"
	}
	return "non-regular file"
}

// ParseBytes parses an in-memory assembly. name is recorded as the report's
// file path.
func ParseBytes(name string, data []byte, opts Options) (r *Report) {
	r = &Report{FilePath: name}
	defer func() {
		if rec := recover(); rec != nil {
			r.Config = nil
			r.Err = fmt.Errorf("extract: panic: %v", rec)
		}
	}()
	p, err := dotnet.Load(name, data, opts.Rules, opts.Metadata)
	if err != nil {
		r.Err = fmt.Errorf("%w: %w", ErrPayloadLoad, err)
		return r
	}
	return parse(r, p, opts)
}

// ParsePayload runs the pipeline over an already loaded payload.
func ParsePayload(name string, p Payload, opts Options) (r *Report) {
	r = &Report{FilePath: name}
	defer func() {
		if rec := recover(); rec != nil {
			r.Config = nil
			r.Err = fmt.Errorf("extract: panic: %v", rec)
		}
	}()
	return parse(r, p, opts)
}

func parse(r *Report, p Payload, opts Options) *Report {
	r.SHA256 = p.Digest()
	r.Family = p.FamilyHint()

	s := newSession(p, opts)
	s.log = s.log.WithField("file", r.FilePath)
	s.log.Debug("extracting config")

	cand, cfg, err := s.locate()
	if err != nil {
		r.Err = err
		return r
	}
	s.log.WithField("rva", fmt.Sprintf("0x%x", cand.RVA)).Debug("config found")

	if !opts.PreserveObfuscatedKeys && likelyObfuscated(cfg) {
		s.log.Debug("possible obfuscation detected, redacting keys")
		cfg = redactKeys(cfg)
	}
	r.Config = cfg
	if s.active != nil {
		r.Key = s.active.Key()
		r.Salt = s.active.Salt()
	}
	return r
}

// session holds the state of one parse. The decryptor selection survives
// retries across candidates and thresholds.
type session struct {
	p         Payload
	log       logrus.FieldLogger
	schemas   []items.Schema
	factories []decrypt.Factory
	remap     bool

	active       decrypt.Decryptor
	incompatible map[string]bool
}

func newSession(p Payload, opts Options) *session {
	s := &session{
		p:            p,
		log:          opts.Logger,
		schemas:      opts.Schemas,
		factories:    opts.Decryptors,
		remap:        opts.Remap,
		incompatible: make(map[string]bool),
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.schemas == nil {
		s.schemas = items.Default()
	}
	if s.factories == nil {
		s.factories = decrypt.Default()
	}
	return s
}
