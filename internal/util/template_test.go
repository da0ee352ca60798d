package util

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/statemesh/core"
)

func TestRenderTemplate(t *testing.T) {
	state := core.State{
		"user_name": core.String("Ada"),
		"reminders": core.List{core.String("buy milk"), core.String("call mom")},
		"count":     core.Number(2),
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "no placeholders", "no placeholders"},
		{"single brace", "Hello {user_name}!", "Hello Ada!"},
		{"list as json", "Reminders: {reminders}", `Reminders: ["buy milk","call mom"]`},
		{"number", "{count} items", "2 items"},
		{"go template", "Hi {{ upper .user_name }}", "Hi ADA"},
		{"mixed", "{user_name} has {{ len .reminders }}", "Ada has 2"},
		{"join", `{{ join ", " .reminders }}`, "buy milk, call mom"},
		{"json braces untouched", `reply as {"a": 1}`, `reply as {"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderTemplate(tt.in, state)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderTemplate_ValuesAreNotParsed(t *testing.T) {
	state := core.State{
		"user_name": core.String("Ann"),
		"reminders": core.List{core.String("write {{ docs"), core.String("{{.user_name}}"), core.String("close }}")},
		"note":      core.String("{user_name}"),
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single brace only", "Hi {user_name}. Reminders: {reminders}", `Hi Ann. Reminders: ["write {{ docs","{{.user_name}}","close }}"]`},
		{"mixed with template", "{{ upper .user_name }}: {reminders}", `ANN: ["write {{ docs","{{.user_name}}","close }}"]`},
		{"placeholder in value", "Note: {note} for {{ .user_name }}", "Note: {user_name} for Ann"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderTemplate(tt.in, state)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderTemplate_MissingKey(t *testing.T) {
	for _, in := range []string{"Hello {missing}", "Hello {{ .missing }}"} {
		_, err := RenderTemplate(in, core.State{"user_name": core.String("Ada")})
		var rerr *core.TemplateRenderError
		require.True(t, errors.As(err, &rerr), "input %q: %v", in, err)
		assert.Equal(t, "missing", rerr.Key)
	}
}

func TestRenderTemplate_ParseError(t *testing.T) {
	_, err := RenderTemplate("{{ .user_name ", core.State{"user_name": core.String("Ada")})
	var rerr *core.TemplateRenderError
	assert.True(t, errors.As(err, &rerr))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "1.5", FormatValue(core.Number(1.5)))
	assert.Equal(t, "true", FormatValue(core.Bool(true)))
	assert.Equal(t, `{"a":"b"}`, FormatValue(core.Map{"a": core.String("b")}))
}
