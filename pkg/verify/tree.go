package verify

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultMinDepth is the first-child nesting a healthy hierarchy has on
// every platform the suite targets.
const DefaultMinDepth = 3

// TreeDepth returns the nesting depth reached by following the first child
// from the root of a page source document. XML and the JSON format produced
// with useJSONSource are both accepted.
func TreeDepth(src string) (int, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return 0, errors.New("empty page source")
	}
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return jsonTreeDepth(trimmed)
	}
	return xmlTreeDepth(trimmed)
}

// xmlTreeDepth counts the start elements seen before the first end element,
// which is exactly the length of the first-child chain.
func xmlTreeDepth(src string) (int, error) {
	decoder := xml.NewDecoder(strings.NewReader(src))
	depth := 0
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("invalid XML: %w", err)
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			return depth, nil
		}
	}
	if depth == 0 {
		return 0, errors.New("no root element")
	}
	return 0, errors.New("unterminated XML document")
}

func jsonTreeDepth(src string) (int, error) {
	var root interface{}
	if err := json.Unmarshal([]byte(src), &root); err != nil {
		return 0, fmt.Errorf("invalid JSON: %w", err)
	}

	// Some servers wrap the tree in a {"value": ...} envelope
	if m, ok := root.(map[string]interface{}); ok {
		if inner, ok := m["value"].(map[string]interface{}); ok && len(m) <= 2 {
			root = inner
		}
	}

	depth := 0
	node := root
	for node != nil {
		switch n := node.(type) {
		case map[string]interface{}:
			depth++
			children, _ := n["children"].([]interface{})
			if len(children) == 0 {
				return depth, nil
			}
			node = children[0]
		case []interface{}:
			if len(n) == 0 {
				return depth, nil
			}
			node = n[0]
		default:
			return depth, nil
		}
	}
	return depth, nil
}
