// ABOUTME: Builds view-level Nodes (type, child count, preview) from values
// ABOUTME: Preview rendering matches the viewer's container/scalar summaries

package jsondoc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MartinPtrl/snappy-jason/pkg/engine"
)

const previewLimit = 120

// truncatePreview clips s to max runes, appending an ellipsis when clipped.
func truncatePreview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

// describe returns the display facts for a value.
func describe(v any) (vt engine.ValueType, hasChildren bool, childCount int, preview string) {
	switch val := v.(type) {
	case *object:
		n := len(val.members)
		if n == 0 {
			return engine.ValueObject, false, 0, "{} 0 keys"
		}
		return engine.ValueObject, true, n, fmt.Sprintf("{…} %d keys", n)
	case []any:
		n := len(val)
		if n == 0 {
			return engine.ValueArray, false, 0, "[] 0 items"
		}
		return engine.ValueArray, true, n, fmt.Sprintf("[…] %d items", n)
	case string:
		return engine.ValueString, false, 0, truncatePreview(val, previewLimit)
	case json.Number:
		return engine.ValueNumber, false, 0, val.String()
	case bool:
		return engine.ValueBoolean, false, 0, strconv.FormatBool(val)
	default:
		return engine.ValueNull, false, 0, "null"
	}
}

// childNode builds the Node for a child value reached from parentPtr via key.
func childNode(parentPtr, key string, v any) engine.Node {
	vt, hc, cc, preview := describe(v)
	return engine.Node{
		Pointer:     parentPtr + "/" + escapeToken(key),
		Key:         key,
		ValueType:   vt,
		HasChildren: hc,
		ChildCount:  cc,
		Preview:     preview,
	}
}

// nodeAt rebuilds the Node for an existing pointer, e.g. after an edit.
func nodeAt(v any, pointer string) engine.Node {
	vt, hc, cc, preview := describe(v)
	key := ""
	if pointer != "" {
		key = pointer[strings.LastIndex(pointer, "/")+1:]
	}
	return engine.Node{
		Pointer:     pointer,
		Key:         key,
		ValueType:   vt,
		HasChildren: hc,
		ChildCount:  cc,
		Preview:     preview,
	}
}

// listChildren returns one page of the children of the container at
// pointer, in document order. Non-containers have no children.
func listChildren(root any, pointer string, offset, limit int) []engine.Node {
	target, ok := valueAt(root, pointer)
	if !ok {
		return nil
	}
	var nodes []engine.Node
	switch val := target.(type) {
	case *object:
		for i := offset; i < len(val.members) && i < offset+limit; i++ {
			m := val.members[i]
			nodes = append(nodes, childNode(pointer, m.Key, m.Value))
		}
	case []any:
		for i := offset; i < len(val) && i < offset+limit; i++ {
			nodes = append(nodes, childNode(pointer, strconv.Itoa(i), val[i]))
		}
	}
	return nodes
}

// scalarText returns the searchable text of a scalar value. Containers and
// nulls yield ok=false.
func scalarText(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}
