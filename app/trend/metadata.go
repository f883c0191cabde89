package trend

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one source-specific key/value pair. Value is kept as raw JSON so
// it is passed through exactly as the upstream produced it.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Metadata is an order-preserving JSON object.
type Metadata []Field

func (m Metadata) Get(key string) (json.RawMessage, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Decode unmarshals the value stored under key into dst.
func (m Metadata) Decode(key string, dst any) (bool, error) {
	raw, ok := m.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("failed to decode metadata %q: %w", key, err)
	}
	return true, nil
}

// Set marshals v and stores it under key, replacing an existing value in place.
func (m *Metadata) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode metadata %q: %w", key, err)
	}
	m.SetRaw(key, raw)
	return nil
}

func (m *Metadata) SetRaw(key string, raw json.RawMessage) {
	for i := range *m {
		if (*m)[i].Key == key {
			(*m)[i].Value = raw
			return
		}
	}
	*m = append(*m, Field{Key: key, Value: raw})
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(f.Value) == 0 {
			buf.WriteString("null")
			continue
		}
		if err := json.Compact(&buf, f.Value); err != nil {
			return nil, fmt.Errorf("invalid metadata value for %q: %w", f.Key, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("metadata must be a JSON object")
	}

	fields := Metadata{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected metadata key %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("failed to decode metadata %q: %w", key, err)
		}
		fields.SetRaw(key, raw)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*m = fields
	return nil
}
