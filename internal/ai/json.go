package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	jsonStartRe = regexp.MustCompile(`[\[{]`)
)

// ExtractJSON pulls the JSON payload out of a model response that may
// wrap it in prose or markdown code fences.
func ExtractJSON(raw string) string {
	if m := codeFenceRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	loc := jsonStartRe.FindStringIndex(raw)
	if loc == nil {
		return strings.TrimSpace(raw)
	}
	open := raw[loc[0]]
	var closer byte = '}'
	if open == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(raw, closer)
	if end < loc[0] {
		return strings.TrimSpace(raw[loc[0]:])
	}
	return raw[loc[0] : end+1]
}

// Parse decodes a model response into T after stripping any wrapping.
func Parse[T any](raw string) (T, error) {
	var out T
	payload := ExtractJSON(raw)
	if payload == "" {
		return out, fmt.Errorf("empty response")
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
