package decrypt

import (
	"crypto/aes"
	"crypto/md5"
	"encoding/base64"
	"fmt"

	"unrat/internal/sigscan"
)

// ldsfld <mutex>; call UTF8.GetBytes; callvirt ComputeHash
var ecbMutexMarker = sigscan.MustParseHex("7E ?? ?? ?? 04 28 ?? ?? ?? 0A 6F ?? ?? ?? 0A")

// AESECB handles XWorm: AES-256-ECB keyed by the MD5 of the mutex string.
type AESECB struct{}

func (AESECB) Name() string { return "aes_ecb" }

func (AESECB) New(p Payload) (Decryptor, error) {
	raw := p.RawBytes()
	i := ecbMutexMarker.Index(raw)
	if i < 0 {
		return nil, fmt.Errorf("%w: aes_ecb: no mutex marker", ErrIncompatible)
	}
	c := ecbMutexMarker.Captures(raw, i)
	tok := 0x04000000 | uint32(c[0]) | uint32(c[1])<<8 | uint32(c[2])<<16
	return &ecbDecryptor{mutexField: p.FieldName(tok)}, nil
}

type ecbDecryptor struct {
	mutexField string
	key        []byte
}

func (d *ecbDecryptor) Key() []byte  { return d.key }
func (d *ecbDecryptor) Salt() []byte { return nil }

// ECBKey expands a mutex into the 32 byte XWorm key: the MD5 digest written
// at offsets 0 and 15, with a zero final byte.
func ECBKey(mutex string) []byte {
	sum := md5.Sum([]byte(mutex))
	key := make([]byte, 32)
	copy(key[0:16], sum[:])
	copy(key[15:31], sum[:])
	return key
}

func (d *ecbDecryptor) Decrypt(batch []Field) ([]Field, error) {
	m := fieldIndex(batch, d.mutexField)
	if m < 0 {
		return nil, fmt.Errorf("%w: aes_ecb: mutex field %q not in batch", ErrDecrypt, d.mutexField)
	}
	key := ECBKey(batch[m].Value)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: aes_ecb: %v", ErrDecrypt, err)
	}

	out := make([]Field, len(batch))
	decrypted := 0
	for i, f := range batch {
		out[i] = f
		if i == m {
			continue
		}
		ct, err := base64.StdEncoding.DecodeString(f.Value)
		if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
			continue
		}
		pt := make([]byte, len(ct))
		for off := 0; off < len(ct); off += aes.BlockSize {
			block.Decrypt(pt[off:off+aes.BlockSize], ct[off:off+aes.BlockSize])
		}
		pt, err = pkcs7Unpad(pt)
		if err != nil {
			return nil, fmt.Errorf("%w: aes_ecb: field %q: %v", ErrDecrypt, f.Name, err)
		}
		out[i].Value = string(pt)
		decrypted++
	}
	if decrypted == 0 {
		return nil, fmt.Errorf("%w: aes_ecb: nothing to decrypt", ErrDecrypt)
	}
	d.key = key
	return out, nil
}
