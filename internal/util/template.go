package util

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/hupe1980/statemesh/core"
)

// placeholderRe matches single-brace placeholders such as {user_name}. Double
// braces are left to text/template.
var placeholderRe = regexp.MustCompile(`\{\{|\}\}|\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// missingKeyRe extracts the key from text/template's missingkey=error message.
var missingKeyRe = regexp.MustCompile(`map has no entry for key "([^"]+)"`)

// RenderTemplate substitutes state values into text. Two placeholder styles
// are supported and may be mixed:
//
//	Hello {user_name}            single braces, replaced verbatim
//	{{ upper .user_name }}       Go text/template over State.Native()
//
// Only the template text is parsed; substituted values are never interpreted,
// so state holding "{{" or "{key}" renders literally. A placeholder whose key
// is absent from state fails with *core.TemplateRenderError. Rendering never
// consults defaults.
func RenderTemplate(text string, state core.State) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return substitute(text, state, func(key string) string { return FormatValue(state[key]) })
	}

	// Single-brace placeholders become template actions so their values are
	// written at execution time instead of being parsed.
	src, err := substitute(text, state, func(key string) string {
		return `{{placeholder "` + key + `"}}`
	})
	if err != nil {
		return "", err
	}

	tmpl, err := template.New("prompt").Option("missingkey=error").Funcs(template.FuncMap{
		"placeholder": func(key string) string { return FormatValue(state[key]) },
		"default": func(defaultVal any, val any) any {
			if val == nil || val == "" {
				return defaultVal
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"join": func(sep string, items []any) string {
			strItems := make([]string, len(items))
			for i, item := range items {
				strItems[i] = fmt.Sprintf("%v", item)
			}
			return strings.Join(strItems, sep)
		},
	}).Parse(src)
	if err != nil {
		return "", &core.TemplateRenderError{Err: err}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, state.Native()); err != nil {
		rerr := &core.TemplateRenderError{Err: err}
		if m := missingKeyRe.FindStringSubmatch(err.Error()); m != nil {
			rerr.Key = m[1]
		}
		return "", rerr
	}

	return buf.String(), nil
}

// substitute replaces every {key} in text with replace(key). Each key must be
// present in state.
func substitute(text string, state core.State, replace func(key string) string) (string, error) {
	if !strings.Contains(text, "{") {
		return text, nil
	}
	var (
		b    strings.Builder
		last int
		miss string
	)
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(text, -1) {
		if loc[2] < 0 { // "{{" or "}}"
			continue
		}
		key := text[loc[2]:loc[3]]
		if _, ok := state[key]; !ok {
			miss = key
			break
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString(replace(key))
		last = loc[1]
	}
	if miss != "" {
		return "", &core.TemplateRenderError{Key: miss, Err: errors.New("no state value for placeholder")}
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// FormatValue renders a state value for prompt interpolation. Strings are
// written verbatim; lists and maps as JSON.
func FormatValue(v core.Value) string {
	switch t := v.(type) {
	case core.String:
		return string(t)
	case core.Number:
		return strconv.FormatFloat(float64(t), 'f', -1, 64)
	case core.Bool:
		return strconv.FormatBool(bool(t))
	case nil:
		return ""
	default:
		data, err := json.Marshal(core.Native(v))
		if err != nil {
			return fmt.Sprintf("%v", core.Native(v))
		}
		return string(data)
	}
}
