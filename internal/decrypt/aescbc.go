package decrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/encoding/unicode"

	"unrat/internal/sigscan"
)

const (
	cbcIterations = 50000
	cbcKeySize    = 32
	cbcAuthSize   = 64
	cbcMACSize    = sha256.Size
	cbcIVSize     = aes.BlockSize
)

var (
	// ldsfld <key field>; newobj <Aes256 ctor>
	cbcKeyMarker = sigscan.MustParseHex("7E ?? ?? ?? 04 73 ?? ?? ?? 06")

	asyncRATSalt = []byte{
		0xBF, 0xEB, 0x1E, 0x56, 0xFB, 0xCD, 0x97, 0x3B, 0xB2, 0x19, 0x02, 0x24, 0x30, 0xA5, 0x78, 0x43,
		0x00, 0x3D, 0x56, 0x44, 0xD2, 0x1E, 0x62, 0xB9, 0xD4, 0xF1, 0x80, 0xE7, 0xE6, 0xC3, 0x39, 0x41,
	}
	dcRATSalt = []byte("DcRatByqwqdanchun")

	// DcRat builds carry the salt as a #US literal, so it is searched for
	// in UTF-16LE.
	dcRATSaltMarker = sigscan.Literal(mustWide(dcRATSalt))
)

// AESCBC handles the AsyncRAT lineage (AsyncRAT, DcRat, VenomRAT): AES-256-CBC
// with an HMAC-SHA256 tag, keys derived by PBKDF2 from a base64 master key
// stored in another config field.
type AESCBC struct{}

func (AESCBC) Name() string { return "aes_cbc" }

func (AESCBC) New(p Payload) (Decryptor, error) {
	raw := p.RawBytes()
	i := cbcKeyMarker.Index(raw)
	if i < 0 {
		return nil, fmt.Errorf("%w: aes_cbc: no key marker", ErrIncompatible)
	}
	c := cbcKeyMarker.Captures(raw, i)
	tok := 0x04000000 | uint32(c[0]) | uint32(c[1])<<8 | uint32(c[2])<<16
	d := &cbcDecryptor{keyField: p.FieldName(tok), salt: asyncRATSalt}
	if dcRATSaltMarker.Index(raw) >= 0 {
		d.salt = dcRATSalt
	}
	return d, nil
}

type cbcDecryptor struct {
	keyField string
	salt     []byte
	key      []byte
}

func (d *cbcDecryptor) Key() []byte  { return d.key }
func (d *cbcDecryptor) Salt() []byte { return d.salt }

func (d *cbcDecryptor) Decrypt(batch []Field) ([]Field, error) {
	k := fieldIndex(batch, d.keyField)
	if k < 0 {
		return nil, fmt.Errorf("%w: aes_cbc: key field %q not in batch", ErrDecrypt, d.keyField)
	}
	master, err := base64.StdEncoding.DecodeString(batch[k].Value)
	if err != nil {
		return nil, fmt.Errorf("%w: aes_cbc: key field: %v", ErrDecrypt, err)
	}
	dk := pbkdf2.Key(master, d.salt, cbcIterations, cbcKeySize+cbcAuthSize, sha1.New)
	aesKey, authKey := dk[:cbcKeySize], dk[cbcKeySize:]
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("%w: aes_cbc: %v", ErrDecrypt, err)
	}

	out := make([]Field, len(batch))
	decrypted := 0
	for i, f := range batch {
		out[i] = f
		if i == k {
			continue
		}
		ct, err := base64.StdEncoding.DecodeString(f.Value)
		if err != nil || len(ct) < cbcMACSize+cbcIVSize+aes.BlockSize {
			continue
		}
		pt, err := cbcOpen(block, authKey, ct)
		if err != nil {
			return nil, fmt.Errorf("%w: aes_cbc: field %q: %v", ErrDecrypt, f.Name, err)
		}
		out[i].Value = string(pt)
		decrypted++
	}
	if decrypted == 0 {
		return nil, fmt.Errorf("%w: aes_cbc: nothing to decrypt", ErrDecrypt)
	}
	d.key = aesKey
	return out, nil
}

// cbcOpen verifies and decrypts mac || iv || ciphertext.
func cbcOpen(block cipher.Block, authKey, msg []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, authKey)
	mac.Write(msg[cbcMACSize:])
	if !hmac.Equal(mac.Sum(nil), msg[:cbcMACSize]) {
		return nil, fmt.Errorf("hmac mismatch")
	}
	iv := msg[cbcMACSize : cbcMACSize+cbcIVSize]
	ct := msg[cbcMACSize+cbcIVSize:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext not block aligned")
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)
	return pkcs7Unpad(pt)
}

func pkcs7Unpad(b []byte) ([]byte, error) {
	if len(b) == 0 || len(b)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("bad padded length %d", len(b))
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || !bytes.Equal(b[len(b)-n:], bytes.Repeat([]byte{byte(n)}, n)) {
		return nil, fmt.Errorf("bad padding")
	}
	return b[:len(b)-n], nil
}

func mustWide(b []byte) []byte {
	w, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes(b)
	if err != nil {
		panic(fmt.Sprintf("decrypt: utf-16 encode %q: %v", b, err))
	}
	return w
}
