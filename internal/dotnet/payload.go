// Package dotnet reads .NET assembly metadata and exposes the lookups used by
// configuration extraction.
package dotnet

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"

	"unrat/internal/mdfmt"
	"unrat/internal/pex"
	"unrat/internal/sigscan"
)

var (
	ErrNoMethod     = errors.New("dotnet: no method at offset")
	ErrNoBody       = errors.New("dotnet: method has no body")
	ErrNoFieldRVA   = errors.New("dotnet: field has no FieldRVA entry")
	ErrShortArray   = errors.New("dotnet: byte array truncated")
	ErrNotUserToken = errors.New("dotnet: not a user string token")
)

// MethodDef identifies one method of the assembly.
type MethodDef struct {
	Token uint32 `json:"token"`
	Name  string `json:"name"`
	RVA   uint32 `json:"rva"`
	Owner string `json:"owner,omitempty"`
}

// FullName returns "Owner::Name", or just the name for global methods.
func (m MethodDef) FullName() string {
	if m.Owner == "" {
		return m.Name
	}
	return m.Owner + "::" + m.Name
}

// Payload is a loaded .NET assembly. It is read-only after Load and safe for
// concurrent use.
type Payload struct {
	Name string

	pe     *pex.File
	md     *Metadata
	cli    *pex.CLIHeader
	digest string
	family string

	methods []MethodDef
	byRVA   []MethodDef // methods with a body, sorted by RVA
	diags   []mdfmt.Diag
}

// Open reads and loads an assembly from disk.
func Open(path string, rules *sigscan.Ruleset, opts mdfmt.Options) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dotnet: open: %w", err)
	}
	return Load(path, data, rules, opts)
}

// Load parses an in-memory assembly. rules may be nil.
func Load(name string, data []byte, rules *sigscan.Ruleset, opts mdfmt.Options) (*Payload, error) {
	sum := sha256.Sum256(data)
	p := &Payload{
		Name:   name,
		digest: hex.EncodeToString(sum[:]),
		family: rules.First(data),
	}

	pf, err := pex.Parse(data)
	if err != nil {
		return nil, err
	}
	cli, err := pf.CLI()
	if err != nil {
		return nil, err
	}
	raw, err := pf.ReadAtRVA(cli.MetaDataRVA, int(cli.MetaDataSize))
	if err != nil {
		return nil, fmt.Errorf("dotnet: metadata: %w", err)
	}

	var diags mdfmt.Diags
	if len(raw) < int(cli.MetaDataSize) {
		if opts.Mode == mdfmt.ModeStrict {
			return nil, fmt.Errorf("dotnet: metadata truncated (0x%x of 0x%x bytes)", len(raw), cli.MetaDataSize)
		}
		diags.Addf("root", uint64(len(raw)), mdfmt.DiagTruncated, "metadata at rva 0x%x truncated to 0x%x of 0x%x bytes", cli.MetaDataRVA, len(raw), cli.MetaDataSize)
	}
	md, err := ParseMetadata(raw, opts, &diags)
	if err != nil {
		return nil, err
	}

	p.pe, p.md, p.cli = pf, md, cli
	p.diags = diags.Items()
	p.indexMethods()
	return p, nil
}

func (p *Payload) indexMethods() {
	p.methods = make([]MethodDef, len(p.md.Methods))
	for i, m := range p.md.Methods {
		row := uint32(i + 1)
		p.methods[i] = MethodDef{
			Token: TokenMethodDef | row,
			Name:  m.Name,
			RVA:   m.RVA,
			Owner: p.md.TypeName(tTypeDef, p.md.MethodOwner(row)),
		}
		if m.RVA != 0 {
			p.byRVA = append(p.byRVA, p.methods[i])
		}
	}
	sort.SliceStable(p.byRVA, func(i, j int) bool { return p.byRVA[i].RVA < p.byRVA[j].RVA })
}

// Digest returns the lowercase hex SHA-256 of the file contents.
func (p *Payload) Digest() string { return p.digest }

// FamilyHint returns the first matching signature rule, or "".
func (p *Payload) FamilyHint() string { return p.family }

// RawBytes returns the full file contents.
func (p *Payload) RawBytes() []byte { return p.pe.Data() }

// Metadata returns the parsed metadata.
func (p *Payload) Metadata() *Metadata { return p.md }

// PE returns the underlying PE file.
func (p *Payload) PE() *pex.File { return p.pe }

// CLI returns the CLI header.
func (p *Payload) CLI() *pex.CLIHeader { return p.cli }

// Diags returns non-fatal issues recorded while loading.
func (p *Payload) Diags() []mdfmt.Diag { return p.diags }

// Methods returns every MethodDef in table order.
func (p *Payload) Methods() []MethodDef { return p.methods }

// MethodsNamed returns the methods called name, in table order.
func (p *Payload) MethodsNamed(name string) []MethodDef {
	var out []MethodDef
	for _, m := range p.methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// MethodByToken returns the MethodDef for a 0x06 token.
func (p *Payload) MethodByToken(tok uint32) (MethodDef, bool) {
	row := TokenRow(tok)
	if TokenTable(tok) != TokenMethodDef || row == 0 || int(row) > len(p.methods) {
		return MethodDef{}, false
	}
	return p.methods[row-1], true
}

// MethodBody returns the IL code of m.
func (p *Payload) MethodBody(m MethodDef) ([]byte, error) {
	if m.RVA == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoBody, m.FullName())
	}
	off, err := p.pe.RVAToOffset(m.RVA)
	if err != nil {
		return nil, err
	}
	_, code, err := ParseBody(p.pe.Data()[off:])
	if err != nil {
		return nil, fmt.Errorf("dotnet: body of %s: %w", m.FullName(), err)
	}
	return code, nil
}

// MethodAtOffset finds the method whose body contains the file offset off
// and returns the method step positions after it in RVA order. A step of 0
// returns the containing method itself.
func (p *Payload) MethodAtOffset(off int, step int) (MethodDef, error) {
	if off < 0 {
		return MethodDef{}, fmt.Errorf("%w: 0x%x", ErrNoMethod, off)
	}
	rva, err := p.pe.OffsetToRVA(uint32(off))
	if err != nil {
		return MethodDef{}, fmt.Errorf("%w: 0x%x: %v", ErrNoMethod, off, err)
	}
	// First method starting past rva; the one before it contains rva.
	next := sort.Search(len(p.byRVA), func(i int) bool { return p.byRVA[i].RVA > rva })
	idx := next - 1 + step
	if idx < 0 || idx >= len(p.byRVA) {
		return MethodDef{}, fmt.Errorf("%w: 0x%x (step %d)", ErrNoMethod, off, step)
	}
	return p.byRVA[idx], nil
}

// FieldName resolves a Field token to its name. Unresolvable tokens get a
// synthetic name derived from the token.
func (p *Payload) FieldName(tok uint32) string {
	row := TokenRow(tok)
	if TokenTable(tok) == TokenField && row > 0 && int(row) <= len(p.md.Fields) {
		if name := p.md.Fields[row-1].Name; name != "" {
			return name
		}
	}
	return fmt.Sprintf("field_0x%08x", tok)
}

// UserString resolves a 0x70 token through the #US heap.
func (p *Payload) UserString(tok uint32) (string, error) {
	if TokenTable(tok) != TokenUserString {
		return "", fmt.Errorf("%w: 0x%08x", ErrNotUserToken, tok)
	}
	return p.md.UserString(TokenRow(tok))
}

// ByteArray reads the size-byte initial value of the field tok from its
// FieldRVA data.
func (p *Payload) ByteArray(size int, tok uint32) ([]byte, error) {
	row := TokenRow(tok)
	for _, fr := range p.md.FieldRVAs {
		if fr.Field != row {
			continue
		}
		b, err := p.pe.ReadAtRVA(fr.RVA, size)
		if err != nil {
			return nil, err
		}
		if len(b) < size {
			return nil, fmt.Errorf("%w: want %d bytes, have %d", ErrShortArray, size, len(b))
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: 0x%08x", ErrNoFieldRVA, tok)
}

// MemberName renders a call or field operand token as "Type::Name".
func (p *Payload) MemberName(tok uint32) string {
	row := TokenRow(tok)
	switch TokenTable(tok) {
	case TokenMethodDef:
		if m, ok := p.MethodByToken(tok); ok {
			return m.FullName()
		}
	case TokenMemberRef:
		if row > 0 && int(row) <= len(p.md.MemberRefs) {
			mr := p.md.MemberRefs[row-1]
			if owner := p.md.TypeName(mr.ClassTable, mr.ClassRow); owner != "" {
				return owner + "::" + mr.Name
			}
			return mr.Name
		}
	case TokenField:
		return p.FieldName(tok)
	case TokenTypeDef:
		return p.md.TypeName(tTypeDef, row)
	case TokenTypeRef:
		return p.md.TypeName(tTypeRef, row)
	}
	return ""
}

// Info summarizes a loaded assembly.
type Info struct {
	Path            string            `json:"path"`
	SHA256          string            `json:"sha256"`
	Family          string            `json:"family,omitempty"`
	RuntimeVersion  string            `json:"runtime_version"`
	EntryStub       string            `json:"entry_stub,omitempty"`
	EntryPointToken uint32            `json:"entry_point_token"`
	Sections        []pex.SectionInfo `json:"sections"`
	Streams         []StreamHeader    `json:"streams"`
	Rows            map[string]int    `json:"rows"`
	Methods         int               `json:"methods"`
	Constructors    int               `json:"static_constructors"`
	Diags           []mdfmt.Diag      `json:"diagnostics,omitempty"`
}

// Info collects a summary of the assembly.
func (p *Payload) Info() *Info {
	info := &Info{
		Path:            p.Name,
		SHA256:          p.digest,
		Family:          p.family,
		RuntimeVersion:  p.md.Version,
		EntryPointToken: p.cli.EntryPointToken,
		Sections:        p.pe.Sections(),
		Streams:         p.md.Streams,
		Rows:            p.md.Rows,
		Methods:         len(p.methods),
		Constructors:    len(p.MethodsNamed(".cctor")),
		Diags:           p.diags,
	}
	// DLLs have no native stub.
	if stub, err := p.pe.EntryStub(); err == nil {
		info.EntryStub = stub
	}
	return info
}
