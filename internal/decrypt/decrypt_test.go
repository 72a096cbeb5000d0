package decrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

type fakePayload struct {
	raw   []byte
	names map[uint32]string
}

func (f fakePayload) RawBytes() []byte { return f.raw }
func (f fakePayload) FieldName(tok uint32) string {
	if n, ok := f.names[tok]; ok {
		return n
	}
	return "unknown"
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(append([]byte{}, b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func sealCBC(t *testing.T, master, salt []byte, plain string) string {
	t.Helper()
	dk := pbkdf2.Key(master, salt, cbcIterations, cbcKeySize+cbcAuthSize, sha1.New)
	block, err := aes.NewCipher(dk[:cbcKeySize])
	if err != nil {
		t.Fatal(err)
	}
	iv := bytes.Repeat([]byte{0x42}, aes.BlockSize)
	pt := pad([]byte(plain))
	ct := make([]byte, len(pt))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, pt)
	body := append(append([]byte{}, iv...), ct...)
	mac := hmac.New(sha256.New, dk[cbcKeySize:])
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(append(mac.Sum(nil), body...))
}

func sealECB(t *testing.T, key []byte, plain string) string {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	pt := pad([]byte(plain))
	ct := make([]byte, len(pt))
	for off := 0; off < len(pt); off += aes.BlockSize {
		block.Encrypt(ct[off:], pt[off:off+aes.BlockSize])
	}
	return base64.StdEncoding.EncodeToString(ct)
}

// cbcRaw holds the ldsfld Key(0x04000003); newobj marker.
var cbcRaw = []byte{0x00, 0x7E, 0x03, 0x00, 0x00, 0x04, 0x73, 0x11, 0x00, 0x00, 0x06, 0x2A}

func TestAESCBCRoundTrip(t *testing.T) {
	master := []byte("0123456789abcdef0123456789abcdef")
	p := fakePayload{raw: cbcRaw, names: map[uint32]string{0x04000003: "Key"}}
	d, err := AESCBC{}.New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	batch := []Field{
		{"Ports", sealCBC(t, master, asyncRATSalt, "6606,7707")},
		{"Hosts", sealCBC(t, master, asyncRATSalt, "127.0.0.1")},
		{"Key", base64.StdEncoding.EncodeToString(master)},
		{"Pastebin", "null"},
	}
	got, err := d.Decrypt(batch)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	want := []string{"6606,7707", "127.0.0.1", batch[2].Value, "null"}
	for i, f := range got {
		if f.Value != want[i] {
			t.Errorf("%s = %q, want %q", f.Name, f.Value, want[i])
		}
	}
	if !bytes.Equal(d.Salt(), asyncRATSalt) {
		t.Errorf("Salt = %x", d.Salt())
	}
	if len(d.Key()) != cbcKeySize {
		t.Errorf("Key length = %d", len(d.Key()))
	}
}

// dcRatWide is the DcRat salt as it sits in the #US heap.
var dcRatWide = []byte("D\x00c\x00R\x00a\x00t\x00B\x00y\x00q\x00w\x00q\x00d\x00a\x00n\x00c\x00h\x00u\x00n\x00")

func TestDcRatSaltMarker(t *testing.T) {
	if got := dcRATSaltMarker.Index(append([]byte{0xFF, 0xFF}, dcRatWide...)); got != 2 {
		t.Errorf("Index = %d, want 2", got)
	}
	if got := dcRATSaltMarker.Len(); got != 2*len(dcRATSalt) {
		t.Errorf("Len = %d, want %d", got, 2*len(dcRATSalt))
	}
	// The narrow form is not how builds store it.
	if got := dcRATSaltMarker.Index(dcRATSalt); got != -1 {
		t.Errorf("narrow Index = %d, want -1", got)
	}
}

func TestMustWide(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"Ab", []byte{'A', 0, 'b', 0}},
		{"é", []byte{0xE9, 0x00}},
		{"€", []byte{0xAC, 0x20}},
		{"𝄞", []byte{0x34, 0xD8, 0x1E, 0xDD}},
	}
	for _, tt := range tests {
		if got := mustWide([]byte(tt.in)); !bytes.Equal(got, tt.want) {
			t.Errorf("mustWide(%q) = % x, want % x", tt.in, got, tt.want)
		}
	}
}

func TestAESCBCNarrowSaltKeepsAsyncRat(t *testing.T) {
	raw := append(append([]byte{}, cbcRaw...), dcRATSalt...)
	d, err := AESCBC{}.New(fakePayload{raw: raw, names: map[uint32]string{0x04000003: "Key"}})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(d.Salt(), asyncRATSalt) {
		t.Errorf("Salt = %x, want AsyncRAT salt", d.Salt())
	}
}

func TestAESCBCDcRatSalt(t *testing.T) {
	raw := append(append([]byte{}, cbcRaw...), dcRatWide...)
	d, err := AESCBC{}.New(fakePayload{raw: raw, names: map[uint32]string{0x04000003: "Key"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(d.Salt()) != "DcRatByqwqdanchun" {
		t.Errorf("Salt = %q", d.Salt())
	}
}

func TestAESCBCWrongKey(t *testing.T) {
	p := fakePayload{raw: cbcRaw, names: map[uint32]string{0x04000003: "Key"}}
	d, _ := AESCBC{}.New(p)
	batch := []Field{
		{"Hosts", sealCBC(t, []byte("right"), asyncRATSalt, "127.0.0.1")},
		{"Key", base64.StdEncoding.EncodeToString([]byte("wrong"))},
	}
	if _, err := d.Decrypt(batch); !errors.Is(err, ErrDecrypt) {
		t.Errorf("Decrypt err = %v, want ErrDecrypt", err)
	}
	if d.Key() != nil {
		t.Errorf("Key set after failure: %x", d.Key())
	}
}

func TestAESCBCIncompatible(t *testing.T) {
	_, err := AESCBC{}.New(fakePayload{raw: []byte{0x2A}})
	if !errors.Is(err, ErrIncompatible) {
		t.Errorf("New err = %v, want ErrIncompatible", err)
	}
}

func TestAESECBRoundTrip(t *testing.T) {
	raw := []byte{
		0x7E, 0x05, 0x00, 0x00, 0x04, // ldsfld Mutex
		0x28, 0x01, 0x00, 0x00, 0x0A, // call GetBytes
		0x6F, 0x02, 0x00, 0x00, 0x0A, // callvirt ComputeHash
	}
	p := fakePayload{raw: raw, names: map[uint32]string{0x04000005: "Mutex"}}
	d, err := AESECB{}.New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key := ECBKey("Xk2b9mGq")
	if len(key) != 32 || key[31] != 0 || !bytes.Equal(key[:15], key[15:30]) {
		t.Errorf("ECBKey layout = %x", key)
	}
	batch := []Field{
		{"Host", sealECB(t, key, "c2.example")},
		{"Port", sealECB(t, key, "7000")},
		{"Mutex", "Xk2b9mGq"},
	}
	got, err := d.Decrypt(batch)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got[0].Value != "c2.example" || got[1].Value != "7000" || got[2].Value != "Xk2b9mGq" {
		t.Errorf("Decrypt = %+v", got)
	}
	if !bytes.Equal(d.Key(), key) || d.Salt() != nil {
		t.Errorf("Key = %x, Salt = %x", d.Key(), d.Salt())
	}
}

func TestPlaintext(t *testing.T) {
	d, err := Plaintext{}.New(fakePayload{})
	if err != nil {
		t.Fatal(err)
	}
	ok := []Field{{"Hosts", "a"}, {"Ports", "1"}, {"Mutex", "m"}, {"xyz", "q"}}
	got, err := d.Decrypt(ok)
	if err != nil || len(got) != 4 || got[3].Value != "q" {
		t.Errorf("Decrypt = %+v, %v", got, err)
	}
	if _, err := d.Decrypt([]Field{{"a", "1"}, {"Hosts", "h"}}); !errors.Is(err, ErrDecrypt) {
		t.Errorf("short batch err = %v", err)
	}
}

func TestSelect(t *testing.T) {
	fs, err := Select([]string{"plaintext", "aes_cbc"})
	if err != nil {
		t.Fatal(err)
	}
	names := Names(fs)
	if len(names) != 2 || names[0] != "aes_cbc" || names[1] != "plaintext" {
		t.Errorf("Select = %v", names)
	}
	if _, err := Select([]string{"rot13"}); err == nil {
		t.Error("Select(rot13) succeeded")
	}
	if all, _ := Select(nil); len(all) != len(Default()) {
		t.Errorf("Select(nil) = %d factories", len(all))
	}
}
