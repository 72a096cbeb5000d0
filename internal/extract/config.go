package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is an insertion-ordered mapping of field names to values. Setting
// an existing name replaces its value but keeps its position.
type Config struct {
	keys   []string
	values map[string]any
}

// NewConfig returns an empty Config.
func NewConfig() *Config {
	return &Config{values: make(map[string]any)}
}

func (c *Config) Set(name string, v any) {
	if _, ok := c.values[name]; !ok {
		c.keys = append(c.keys, name)
	}
	c.values[name] = v
}

func (c *Config) Get(name string) (any, bool) {
	v, ok := c.values[name]
	return v, ok
}

func (c *Config) Has(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Keys returns the names in order. The slice must not be modified.
func (c *Config) Keys() []string { return c.keys }

func (c *Config) Len() int { return len(c.keys) }

// Merge sets every entry of o in o's order.
func (c *Config) Merge(o *Config) {
	for _, k := range o.keys {
		c.Set(k, o.values[k])
	}
}

// String renders a value the way the text writer prints it.
func (c *Config) String(name string) string {
	v, ok := c.values[name]
	if !ok {
		return ""
	}
	return fmt.Sprint(v)
}

func (c *Config) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(c.values[k])
		if err != nil {
			return nil, fmt.Errorf("extract: config %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Config) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range c.keys {
		var kn, vn yaml.Node
		if err := kn.Encode(k); err != nil {
			return nil, err
		}
		if err := vn.Encode(c.values[k]); err != nil {
			return nil, fmt.Errorf("extract: config %q: %w", k, err)
		}
		n.Content = append(n.Content, &kn, &vn)
	}
	return n, nil
}
