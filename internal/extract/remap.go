package extract

import (
	"strconv"

	"unrat/internal/normalize"
)

// remap rebuilds decoded in field token order under canonical names.
// Fields a decryptor added without a token follow, unless their name was
// already emitted or was renamed away.
func remap(decoded *Config, fieldNames map[uint32]string) *Config {
	out := NewConfig()
	renamed := make(map[string]bool)
	for _, tok := range sortedTokens(fieldNames) {
		name := fieldNames[tok]
		v, ok := decoded.Get(name)
		if !ok {
			continue
		}
		canon, v := normalize.Canonicalize(name, v)
		if canon != name {
			renamed[name] = true
		}
		out.Set(canon, v)
	}
	for _, name := range decoded.Keys() {
		if out.Has(name) || renamed[name] {
			continue
		}
		v, _ := decoded.Get(name)
		out.Set(name, v)
	}
	return out
}

// likelyObfuscated reports whether the field names look machine generated.
// The first non-ASCII or known name decides; no decision means obfuscated.
func likelyObfuscated(cfg *Config) bool {
	for _, k := range cfg.Keys() {
		if !isASCII(k) {
			return true
		}
		if normalize.IsKnownFieldName(k) {
			return false
		}
	}
	return true
}

func redactKeys(cfg *Config) *Config {
	out := NewConfig()
	for i, k := range cfg.Keys() {
		v, _ := cfg.Get(k)
		out.Set("obfuscated_key_"+strconv.Itoa(i+1), v)
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
