// ABOUTME: Order-preserving JSON value model with pointer resolution
// ABOUTME: Objects keep document order so offset paging over keys is stable

package jsondoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Decoded documents are held as:
//
//	*object           JSON object, members in document order
//	[]any             JSON array
//	string            JSON string
//	json.Number       JSON number, literal text preserved
//	bool              JSON boolean
//	nil               JSON null
//
// The stock map[string]any form cannot serve here: child pages are fetched
// by offset, so object member order must be stable across calls.
type member struct {
	Key   string
	Value any
}

type object struct {
	members []member
}

func (o *object) find(key string) (int, bool) {
	for i := range o.members {
		if o.members[i].Key == key {
			return i, true
		}
	}
	return 0, false
}

// MarshalJSON re-serializes the object with its original member order.
func (o *object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o.members {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(m.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeValue reads one JSON value from dec. dec must have UseNumber set.
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (any, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := &object{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.members = append(obj.members, member{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case string, json.Number, bool, nil:
		return t, nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

// parseDocument decodes a complete JSON document from data.
func parseDocument(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

// unescapeToken reverses JSON Pointer token escaping (~1 then ~0).
func unescapeToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~1", "/")
	return strings.ReplaceAll(tok, "~0", "~")
}

// escapeToken applies JSON Pointer token escaping (~0 then ~1).
func escapeToken(raw string) string {
	raw = strings.ReplaceAll(raw, "~", "~0")
	return strings.ReplaceAll(raw, "/", "~1")
}

// valueAt resolves a JSON Pointer against root. The empty pointer is the
// root itself.
func valueAt(root any, pointer string) (any, bool) {
	if pointer == "" {
		return root, true
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, false
	}
	cur := root
	for _, tok := range strings.Split(pointer[1:], "/") {
		key := unescapeToken(tok)
		switch c := cur.(type) {
		case *object:
			i, ok := c.find(key)
			if !ok {
				return nil, false
			}
			cur = c.members[i].Value
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// setAt replaces the value at pointer and returns the (possibly new) root.
func setAt(root any, pointer string, newVal any) (any, error) {
	if pointer == "" {
		return newVal, nil
	}
	parentPtr := pointer[:strings.LastIndex(pointer, "/")]
	lastTok := unescapeToken(pointer[strings.LastIndex(pointer, "/")+1:])

	parent, ok := valueAt(root, parentPtr)
	if !ok {
		return nil, ErrInvalidPointer
	}
	switch p := parent.(type) {
	case *object:
		i, ok := p.find(lastTok)
		if !ok {
			return nil, ErrInvalidPointer
		}
		p.members[i].Value = newVal
	case []any:
		i, err := strconv.Atoi(lastTok)
		if err != nil || i < 0 || i >= len(p) {
			return nil, ErrInvalidPointer
		}
		p[i] = newVal
	default:
		return nil, ErrInvalidPointer
	}
	return root, nil
}
