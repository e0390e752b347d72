// Package jsonvalue parses JSON into an ordered tagged tree so that walking
// embedded page payloads is deterministic. encoding/json into
// map[string]any loses key order, which would make "first match" searches
// depend on map iteration.
package jsonvalue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Kind tags a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

// Member is one key/value pair of an object, in document order.
type Member struct {
	Key   string
	Value *Value
}

// Value is a JSON value. Only the field matching Kind is meaningful.
type Value struct {
	Kind    Kind
	Bool    bool
	Number  float64
	String  string
	Items   []*Value
	Members []Member
}

// Parse decodes one JSON document.
func Parse(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decode(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

func decode(dec *json.Decoder) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (*Value, error) {
	switch t := tok.(type) {
	case nil:
		return &Value{Kind: Null}, nil
	case bool:
		return &Value{Kind: Bool, Bool: t}, nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", t, err)
		}
		return &Value{Kind: Number, Number: f}, nil
	case string:
		return &Value{Kind: String, String: t}, nil
	case json.Delim:
		switch t {
		case '[':
			v := &Value{Kind: Array}
			for dec.More() {
				item, err := decode(dec)
				if err != nil {
					return nil, err
				}
				v.Items = append(v.Items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return v, nil
		case '{':
			v := &Value{Kind: Object}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T", keyTok)
				}
				val, err := decode(dec)
				if err != nil {
					return nil, err
				}
				v.Members = append(v.Members, Member{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return v, nil
		}
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// Get returns the first member named key, or nil.
func (v *Value) Get(key string) *Value {
	if v == nil || v.Kind != Object {
		return nil
	}
	for _, m := range v.Members {
		if m.Key == key {
			return m.Value
		}
	}
	return nil
}

// Has reports whether an object owns key with a non-null value.
func (v *Value) Has(key string) bool {
	c := v.Get(key)
	return c != nil && c.Kind != Null
}

// Path follows a chain of object keys.
func (v *Value) Path(keys ...string) *Value {
	cur := v
	for _, k := range keys {
		cur = cur.Get(k)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Index returns the i-th array item, or nil.
func (v *Value) Index(i int) *Value {
	if v == nil || v.Kind != Array || i < 0 || i >= len(v.Items) {
		return nil
	}
	return v.Items[i]
}

// Text renders scalars as text: strings as-is, numbers without exponent.
func (v *Value) Text() string {
	if v == nil {
		return ""
	}
	switch v.Kind {
	case String:
		return strings.TrimSpace(v.String)
	case Number:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(v.Bool)
	}
	return ""
}

// Float returns a number, or a string holding one.
func (v *Value) Float() (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch v.Kind {
	case Number:
		return v.Number, true
	case String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.String), 64)
		return f, err == nil
	}
	return 0, false
}

// Array returns the items of an array value, or nil for anything else.
func (v *Value) Array() []*Value {
	if v == nil || v.Kind != Array {
		return nil
	}
	return v.Items
}
