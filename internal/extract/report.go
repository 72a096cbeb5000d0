package extract

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// noneValue is printed for key material that was not recovered.
const noneValue = "None"

// Report is the result of parsing one file. Exactly one of Config and Err
// is set.
type Report struct {
	FilePath string
	SHA256   string
	Family   string
	Key      []byte
	Salt     []byte
	Config   *Config
	Err      error
}

// OK reports whether a config was recovered.
func (r *Report) OK() bool { return r.Err == nil && r.Config != nil }

func (r *Report) KeyHex() string  { return hexOrNone(r.Key) }
func (r *Report) SaltHex() string { return hexOrNone(r.Salt) }

// ErrorText is the config value written for a failed parse.
func (r *Report) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return fmt.Sprintf("Exception encountered for %s: %v", r.FilePath, r.Err)
}

func hexOrNone(b []byte) string {
	if b == nil {
		return noneValue
	}
	return hex.EncodeToString(b)
}

// reportDoc fixes the serialized field order.
type reportDoc struct {
	FilePath string `json:"file_path" yaml:"file_path"`
	SHA256   string `json:"sha256" yaml:"sha256"`
	Family   string `json:"yara_possible_family" yaml:"yara_possible_family"`
	Key      string `json:"key" yaml:"key"`
	Salt     string `json:"salt" yaml:"salt"`
	Config   any    `json:"config" yaml:"config"`
}

func (r *Report) doc() reportDoc {
	d := reportDoc{
		FilePath: r.FilePath,
		SHA256:   r.SHA256,
		Family:   r.Family,
		Key:      r.KeyHex(),
		Salt:     r.SaltHex(),
	}
	switch {
	case r.Err != nil:
		// Key material is only reported for a recovered config.
		d.Key, d.Salt = "", ""
		d.Config = r.ErrorText()
	case r.Config != nil:
		d.Config = r.Config
	default:
		d.Config = NewConfig()
	}
	return d
}

func (r *Report) MarshalJSON() ([]byte, error) { return json.Marshal(r.doc()) }

func (r *Report) MarshalYAML() (any, error) { return r.doc(), nil }
