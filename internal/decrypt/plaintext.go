package decrypt

import (
	"fmt"

	"unrat/internal/normalize"
)

// plaintextMinKnown is how many recognizable field names a batch needs
// before its strings are trusted as cleartext config.
const plaintextMinKnown = 3

// Plaintext accepts batches that are already readable, as in QuasarRAT
// builds with encryption disabled.
type Plaintext struct{}

func (Plaintext) Name() string { return "plaintext" }

func (Plaintext) New(Payload) (Decryptor, error) { return plaintextDecryptor{}, nil }

type plaintextDecryptor struct{}

func (plaintextDecryptor) Key() []byte  { return nil }
func (plaintextDecryptor) Salt() []byte { return nil }

func (plaintextDecryptor) Decrypt(batch []Field) ([]Field, error) {
	known := 0
	for _, f := range batch {
		if normalize.IsKnownFieldName(f.Name) {
			known++
		}
	}
	if known < plaintextMinKnown {
		return nil, fmt.Errorf("%w: plaintext: %d known field names, need %d", ErrDecrypt, known, plaintextMinKnown)
	}
	out := make([]Field, len(batch))
	copy(out, batch)
	return out, nil
}
