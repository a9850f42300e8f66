package provider

import (
	"encoding/json"
	"strings"

	"facturio/internal/domain"
)

// ExtractJSON pulls the first complete JSON object out of a model completion.
// Models wrap output in markdown fences or prose despite instructions, so the
// raw text is scanned for a balanced top-level object. Returns
// domain.ErrMalformedResponse when no parseable object is present.
func ExtractJSON(completion string) (json.RawMessage, error) {
	text := strings.TrimSpace(completion)

	// Strip markdown code fences if present.
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, domain.ErrMalformedResponse
	}

	// Scan for the matching closing brace, skipping braces inside strings.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString:
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				candidate := text[start : i+1]
				if !json.Valid([]byte(candidate)) {
					return nil, domain.ErrMalformedResponse
				}
				return json.RawMessage(candidate), nil
			}
		}
	}

	return nil, domain.ErrMalformedResponse
}
