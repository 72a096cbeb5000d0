package extract

import (
	"unrat/internal/decrypt"
)

// decrypt runs batch through the registry. The first decryptor that
// succeeds stays selected for later batches of this parse. A factory that
// cannot be built for the payload is never tried again.
func (s *session) decrypt(batch []decrypt.Field) ([]decrypt.Field, error) {
	for _, f := range s.factories {
		name := f.Name()
		if s.incompatible[name] {
			continue
		}
		if s.active == nil {
			d, err := f.New(s.p)
			if err != nil {
				s.log.WithError(err).Debugf("decryptor %s incompatible", name)
				s.incompatible[name] = true
				continue
			}
			s.active = d
		}
		out, err := s.active.Decrypt(batch)
		if err == nil {
			return out, nil
		}
		s.log.WithError(err).Debugf("decryption failed with decryptor %s", name)
		s.active = nil
	}
	return nil, ErrAllDecryptorsFailed
}
