// Package decrypt holds the string decryptors for the supported RAT families.
//
// A Factory inspects a payload and either builds a Decryptor bound to it or
// reports ErrIncompatible when the payload lacks the structure the algorithm
// needs. Decryptors turn a batch of ciphertext fields into plaintext.
package decrypt

import (
	"errors"
	"fmt"
)

var (
	// ErrIncompatible means the payload cannot use this decryptor at all.
	ErrIncompatible = errors.New("decrypt: incompatible decryptor")
	// ErrDecrypt means the decryptor was bound but a batch failed.
	ErrDecrypt = errors.New("decrypt: decryption failed")
)

// Payload is the view of a binary a Factory needs.
type Payload interface {
	RawBytes() []byte
	FieldName(tok uint32) string
}

// Field is one named value in a batch. Batches keep declaration order.
type Field struct {
	Name  string
	Value string
}

// Decryptor decrypts batches for one payload.
type Decryptor interface {
	Decrypt(batch []Field) ([]Field, error)
	// Key and Salt return the recovered material, or nil.
	Key() []byte
	Salt() []byte
}

// Factory binds a decryptor kind to a payload.
type Factory interface {
	Name() string
	New(p Payload) (Decryptor, error)
}

// Default returns the registry in the order decryptors are tried.
func Default() []Factory {
	return []Factory{
		AESCBC{},
		AESECB{},
		Plaintext{},
	}
}

// Names lists the factory names of fs.
func Names(fs []Factory) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name()
	}
	return out
}

// Select returns the factories of Default whose names appear in names, in
// registry order. An empty names selects everything.
func Select(names []string) ([]Factory, error) {
	all := Default()
	if len(names) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Factory
	for _, f := range all {
		if want[f.Name()] {
			out = append(out, f)
			delete(want, f.Name())
		}
	}
	for n := range want {
		return nil, fmt.Errorf("decrypt: unknown decryptor %q", n)
	}
	return out, nil
}

func fieldIndex(batch []Field, name string) int {
	for i, f := range batch {
		if f.Name == name {
			return i
		}
	}
	return -1
}
