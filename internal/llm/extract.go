package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	markedJSON = regexp.MustCompile(`(?s)<<JSON_START>>(.*?)<<JSON_END>>`)
	bareJSON   = regexp.MustCompile(`(?s)\{.*\}`)

	errNoJSON = errors.New("no JSON object in model output")
)

// ExtractJSON finds the JSON object of a model answer. A block between
// <<JSON_START>> and <<JSON_END>> wins; otherwise the span from the first
// '{' to the last '}' is tried.
func ExtractJSON(text string) (map[string]any, error) {
	if m := markedJSON.FindStringSubmatch(text); m != nil {
		var out map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &out); err == nil {
			return out, nil
		}
	}

	if m := bareJSON.FindString(text); m != "" {
		var out map[string]any
		if err := json.Unmarshal([]byte(m), &out); err == nil {
			return out, nil
		}
	}

	return nil, errNoJSON
}
