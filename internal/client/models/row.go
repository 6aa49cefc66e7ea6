package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Row is one record of converted tabular data. Keys keeps the column order
// as sent by the server.
type Row struct {
	Keys   []string
	Values map[string]any
}

// Get returns the value stored under key.
func (r Row) Get(key string) (any, bool) {
	v, ok := r.Values[key]
	return v, ok
}

func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("row: expected object")
	}

	r.Keys = r.Keys[:0]
	r.Values = make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("row: unexpected key token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("row: value for %q: %w", key, err)
		}
		if _, dup := r.Values[key]; !dup {
			r.Keys = append(r.Keys, key)
		}
		r.Values[key] = v
	}
	_, err = dec.Token()
	return err
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.Values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Headers returns the union of row keys in first-seen order.
func Headers(rows []Row) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range rows {
		for _, k := range r.Keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
