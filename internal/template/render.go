package template

import (
	"fmt"
	"regexp"
	"strings"
)

// tokenPattern matches {{ IDENTIFIER }} placeholders. Anything else, including
// malformed token syntax, is left verbatim in the output.
var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Result is the outcome of rendering a template body.
type Result struct {
	Text string
	// Missing lists, in order of first appearance, every placeholder that
	// resolved to no usable value. Callers decide whether that blocks sending.
	Missing []string
}

// Render substitutes {{VARNAME}} placeholders in body from vars. A variable
// that is absent, nil, or empty after trimming is replaced with an empty
// string and reported in Missing. Render never fails and is deterministic for
// identical inputs, so a retried dispatch produces identical content.
func Render(body string, vars map[string]any) Result {
	missing := make([]string, 0)
	seenMissing := make(map[string]struct{})

	text := tokenPattern.ReplaceAllStringFunc(body, func(token string) string {
		name := tokenPattern.FindStringSubmatch(token)[1]

		value, ok := resolve(vars, name)
		if !ok {
			if _, dup := seenMissing[name]; !dup {
				seenMissing[name] = struct{}{}
				missing = append(missing, name)
			}
			return ""
		}
		return value
	})

	return Result{Text: text, Missing: missing}
}

func resolve(vars map[string]any, name string) (string, bool) {
	if vars == nil {
		return "", false
	}
	raw, ok := vars[name]
	if !ok || raw == nil {
		return "", false
	}

	var value string
	switch v := raw.(type) {
	case string:
		value = v
	case fmt.Stringer:
		value = v.String()
	default:
		value = fmt.Sprint(v)
	}

	if strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}
