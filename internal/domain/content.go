package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Note content is an editor document kept verbatim. The helpers below only
// know the shape the web editor produces:
//
//	{"type": "doc", "content": [{"type": "paragraph", "content": [{"type": "text", "text": "..."}]}]}

// TextDocument builds an editor document with one paragraph per entry.
// Empty paragraphs are kept as empty paragraph nodes.
func TextDocument(paragraphs ...string) map[string]any {
	nodes := make([]any, 0, len(paragraphs))
	for _, p := range paragraphs {
		node := map[string]any{"type": "paragraph"}
		if p != "" {
			node["content"] = []any{
				map[string]any{"type": "text", "text": p},
			}
		}
		nodes = append(nodes, node)
	}
	if len(nodes) == 0 {
		nodes = append(nodes, map[string]any{"type": "paragraph"})
	}
	return map[string]any{"type": "doc", "content": nodes}
}

// PlainText extracts the text nodes of an editor document, joined by spaces
func PlainText(content map[string]any) string {
	var parts []string
	var walk func(v any)
	walk = func(v any) {
		switch node := v.(type) {
		case map[string]any:
			if text, ok := node["text"].(string); ok && text != "" {
				parts = append(parts, text)
			}
			walk(node["content"])
		case []any:
			for _, child := range node {
				walk(child)
			}
		}
	}
	walk(content)
	return strings.Join(parts, " ")
}

// DecodeContent parses a JSON object. Numbers are kept as json.Number so
// integers beyond float64 precision come back unchanged.
func DecodeContent(data []byte) (map[string]any, error) {
	var content map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&content); err != nil {
		return nil, err
	}
	return content, nil
}

// CloneContent deep-copies the nested objects and arrays of content
func CloneContent(content map[string]any) map[string]any {
	if content == nil {
		return nil
	}
	return cloneValue(content).(map[string]any)
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = cloneValue(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = cloneValue(child)
		}
		return out
	default:
		return v
	}
}
