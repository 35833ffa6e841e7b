// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package gateway

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	errNoJSONFound       = errors.New("no JSON object found in content")
	errMultipleJSONFound = errors.New("multiple JSON objects found in content")
)

// extractJSON finds the single JSON object in free-text model output. A
// fenced ```json block wins; otherwise the text is scanned for top-level
// balanced objects. Used only when a response carries no tool call.
func extractJSON(content string) (string, error) {
	if block, ok := fencedJSON(content); ok {
		return block, nil
	}

	objects := objectCandidates(content)
	switch len(objects) {
	case 0:
		return "", errNoJSONFound
	case 1:
		return objects[0], nil
	default:
		return "", errMultipleJSONFound
	}
}

func fencedJSON(content string) (string, bool) {
	const fence = "```"
	rest := content
	for {
		open := strings.Index(rest, fence)
		if open == -1 {
			return "", false
		}
		rest = rest[open+len(fence):]
		nl := strings.IndexByte(rest, '\n')
		if nl == -1 {
			return "", false
		}
		lang := strings.TrimSpace(rest[:nl])
		body := rest[nl+1:]
		end := strings.Index(body, fence)
		if end == -1 {
			return "", false
		}
		if strings.EqualFold(lang, "json") {
			return strings.TrimSpace(body[:end]), true
		}
		rest = body[end+len(fence):]
	}
}

func objectCandidates(content string) []string {
	var objs []string
	start, depth := 0, 0
	inString, escape := false, false

	for i, r := range content {
		switch {
		case escape:
			escape = false
		case r == '\\' && inString:
			escape = true
		case r == '"':
			inString = !inString
		case inString:
		case r == '{':
			if depth == 0 {
				start = i
			}
			depth++
		case r == '}' && depth > 0:
			depth--
			if depth == 0 {
				candidate := content[start : i+1]
				var obj map[string]any
				if json.Unmarshal([]byte(candidate), &obj) == nil {
					objs = append(objs, candidate)
				}
			}
		}
	}
	return objs
}
