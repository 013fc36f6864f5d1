package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type named struct{ Name string }

func (n named) String() string { return "name=" + n.Name }

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("text")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	_, err = ParseFormat("table")
	assert.Error(t, err)
}

func TestPrint(t *testing.T) {
	cases := []struct {
		format Format
		data   interface{}
		want   string
	}{
		{FormatJSON, named{"a"}, "{\"Name\":\"a\"}\n"},
		{FormatJSON, json.RawMessage(`{"x":1}`), "{\"x\":1}\n"},
		{FormatPretty, map[string]int{"x": 1}, "{\n  \"x\": 1\n}\n"},
		{FormatText, named{"a"}, "name=a\n"},
		{FormatText, json.RawMessage(`"0x1"`), "\"0x1\"\n"},
		{FormatText, 42, "42\n"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		require.NoError(t, NewFormatter(tc.format, &buf).Print(tc.data))
		assert.Equal(t, tc.want, buf.String(), "format %s", tc.format)
	}
}

func TestMessagesGoToLogWriter(t *testing.T) {
	var out, logs bytes.Buffer
	f := NewFormatter(FormatJSON, &out)
	f.SetLogWriter(&logs)

	f.PrintInfo("connecting")
	f.PrintSuccess("done")
	f.SetSilent(true)
	f.PrintInfo("hidden")
	f.PrintError(errors.New("boom"))

	assert.Empty(t, out.String())
	assert.Contains(t, logs.String(), "connecting")
	assert.Contains(t, logs.String(), "done")
	assert.NotContains(t, logs.String(), "hidden")
	assert.Contains(t, logs.String(), "boom")
}
