package extract

import (
	"fmt"

	"unrat/internal/sigscan"
)

// verifyHashMarker is the compiled shape of Settings.VerifyHash():
// ldsfld; callvirt; callvirt; castclass. The config initializer is the
// method that follows it.
var verifyHashMarker = sigscan.MustParseHex("7E ?? ?? ?? 04 6F ?? ?? ?? 0A 6F ?? ?? ?? 0A 74 ?? ?? ?? 01")

// Candidate is a method body that may initialize the config.
type Candidate struct {
	RVA  uint32
	Body []byte
}

// locate tries the VerifyHash() marker first and falls back to brute
// forcing every static constructor.
func (s *session) locate() (Candidate, *Config, error) {
	c, cfg, err := s.locateVerifyHash()
	if err == nil {
		return c, cfg, nil
	}
	s.log.WithError(err).Debug("VerifyHash() method failed, attempting .cctor brute force")

	c, cfg, err = s.locateCctor()
	if err != nil {
		return Candidate{}, nil, fmt.Errorf("%w: %w", ErrNoConfigFound, err)
	}
	return c, cfg, nil
}

func (s *session) locateVerifyHash() (Candidate, *Config, error) {
	hit := verifyHashMarker.Index(s.p.RawBytes())
	if hit < 0 {
		return Candidate{}, nil, ErrMarkerNotFound
	}
	m, err := s.p.MethodAtOffset(hit, 1)
	if err != nil {
		return Candidate{}, nil, err
	}
	body, err := s.p.MethodBody(m)
	if err != nil {
		return Candidate{}, nil, err
	}
	c := Candidate{RVA: m.RVA, Body: body}
	s.log.Debugf("VerifyHash() marker at 0x%x, candidate %s at RVA 0x%x", hit, m.FullName(), m.RVA)

	var last error
	for n := MinConfigLenCeiling; n >= MinConfigLenFloor; n-- {
		cfg, err := s.decode(c, n)
		if err == nil {
			return c, cfg, nil
		}
		last = err
	}
	return Candidate{}, nil, last
}

func (s *session) locateCctor() (Candidate, *Config, error) {
	ctors := s.p.MethodsNamed(".cctor")
	if len(ctors) == 0 {
		return Candidate{}, nil, ErrNoConstructorsFound
	}

	var cands []Candidate
	seen := make(map[uint32]bool, len(ctors))
	for _, m := range ctors {
		if seen[m.RVA] {
			continue
		}
		seen[m.RVA] = true
		body, err := s.p.MethodBody(m)
		if err != nil {
			s.log.WithError(err).Debugf("skipping .cctor at RVA 0x%x", m.RVA)
			continue
		}
		cands = append(cands, Candidate{RVA: m.RVA, Body: body})
	}

	for n := MinConfigLenCeiling; n >= MinConfigLenFloor; n-- {
		for _, c := range cands {
			s.log.Debugf("attempting brute force at .cctor method at 0x%x (min %d)", c.RVA, n)
			cfg, err := s.decode(c, n)
			if err != nil {
				s.log.WithError(err).Debugf("brute force failed for method at 0x%x", c.RVA)
				continue
			}
			return c, cfg, nil
		}
	}
	return Candidate{}, nil, ErrBruteForceExhausted
}
