package extract

import (
	"encoding/hex"
	"fmt"
	"sort"

	"unrat/internal/cil"
	"unrat/internal/decrypt"
	"unrat/internal/items"
)

// urlHostField marks a family whose config is shorter than the floor.
const urlHostField = "UrlHost"

// decode applies every item schema to the candidate body and accepts the
// result if it holds at least minLen fields.
func (s *session) decode(c Candidate, minLen int) (*Config, error) {
	insts := cil.Disassemble(c.Body, cil.Options{BaseRVA: c.RVA})
	decoded := NewConfig()
	fieldNames := make(map[uint32]string)

	var itemData *Config
	for _, schema := range s.schemas {
		itemData = NewConfig()
		raw := make(map[string]items.Value)
		for _, pair := range schema.Parse(insts) {
			name := s.p.FieldName(pair.Field)
			fieldNames[pair.Field] = name
			itemData.Set(name, nil)
			raw[name] = pair.Value
		}
		if itemData.Len() == 0 {
			continue
		}

		switch schema.Kind() {
		case items.KindEncryptedString:
			batch := make([]decrypt.Field, 0, itemData.Len())
			for _, name := range itemData.Keys() {
				str, err := s.p.UserString(raw[name].StringToken)
				if err != nil {
					return nil, fmt.Errorf("extract: field %s: %w", name, err)
				}
				batch = append(batch, decrypt.Field{Name: name, Value: str})
			}
			out, err := s.decrypt(batch)
			if err != nil {
				return nil, err
			}
			itemData = NewConfig()
			for _, f := range out {
				itemData.Set(f.Name, f.Value)
			}
		case items.KindByteArray:
			for _, name := range itemData.Keys() {
				v := raw[name]
				b, err := s.p.ByteArray(v.Size, v.DataToken)
				if err != nil {
					return nil, fmt.Errorf("extract: field %s: %w", name, err)
				}
				itemData.Set(name, hex.EncodeToString(b))
			}
		default:
			for _, name := range itemData.Keys() {
				itemData.Set(name, raw[name].Plain)
			}
		}
		decoded.Merge(itemData)
	}

	// Only the last schema's fields are consulted for the UrlHost exception.
	if decoded.Len() < minLen && (itemData == nil || !itemData.Has(urlHostField)) {
		return nil, fmt.Errorf("%w: %d/%d", ErrInsufficientFields, decoded.Len(), minLen)
	}
	if s.remap {
		return remap(decoded, fieldNames), nil
	}
	return decoded, nil
}

// sortedTokens returns the keys of m in ascending order.
func sortedTokens(m map[uint32]string) []uint32 {
	out := make([]uint32, 0, len(m))
	for tok := range m {
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
