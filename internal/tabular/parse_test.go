package tabular

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseString(t *testing.T, input string, opts ParseOptions) (*Result, error) {
	t.Helper()
	return Parse(context.Background(), strings.NewReader(input), opts)
}

func TestParse_HeaderAndTypedRows(t *testing.T) {
	res, err := parseString(t, "Name,Age,Member\nAl,30,true\nBo,25,FALSE\n", ParseOptions{})
	require.NoError(t, err)

	store := res.Store
	assert.Equal(t, []string{"Name", "Age", "Member"}, store.Header())
	require.Equal(t, 2, store.Len())

	first := store.Rows()[0]
	assert.Equal(t, KindString, first["Name"].Kind)
	assert.Equal(t, "Al", first["Name"].Raw)
	assert.Equal(t, KindNumber, first["Age"].Kind)
	assert.Equal(t, 30.0, first["Age"].Num)
	assert.Equal(t, KindBool, first["Member"].Kind)
	assert.True(t, first["Member"].Bool)

	second := store.Rows()[1]
	assert.Equal(t, KindBool, second["Member"].Kind)
	assert.False(t, second["Member"].Bool)
}

func TestParse_HeaderOnly(t *testing.T) {
	res, err := parseString(t, "A,B,C\n", ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, res.Store.Header())
	assert.Equal(t, 0, res.Store.Len())
}

func TestParse_Headerless(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty input", ""},
		{"only newlines", "\n\n\n"},
		{"only BOM", "\xEF\xBB\xBF"},
		{"blank names", ",,\n1,2,3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseString(t, tt.input, ParseOptions{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrHeaderless), "got %v", err)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated quote", "A,B\n\"open,2\n"},
		{"bare quote", "A,B\nx\"y,2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseString(t, tt.input, ParseOptions{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Contains(t, err.Error(), "line 2")
		})
	}
}

func TestParse_InvalidUTF8(t *testing.T) {
	input := "A,B\nok,\x80bad\n"

	_, err := parseString(t, input, ParseOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "invalid UTF-8")

	res, err := parseString(t, input, ParseOptions{SanitizeUTF8: true})
	require.NoError(t, err)
	assert.Equal(t, "?bad", res.Store.Rows()[0]["B"].Raw)
}

func TestParse_RaggedRows(t *testing.T) {
	res, err := parseString(t, "A,B,C\n1\n1,2,3,4,5\n", ParseOptions{})
	require.NoError(t, err)

	rows := res.Store.Rows()
	require.Len(t, rows, 2)

	_, hasB := rows[0]["B"]
	assert.False(t, hasB, "short row must not carry missing keys")
	assert.True(t, rows[0].Get("B").IsAbsent())

	assert.Len(t, rows[1], 3)
	assert.Equal(t, 1, res.ShortRows)
	assert.Equal(t, 2, res.ExtraFields)
}

func TestParse_DuplicateHeaders(t *testing.T) {
	res, err := parseString(t, "A,A,A_1,A\n1,2,3,4\n", ParseOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "A_2", "A_1", "A_3"}, res.Store.Header())
	assert.Equal(t, map[string]string{"A_2": "A", "A_3": "A"}, res.Renamed)
	assert.Equal(t, "4", res.Store.Rows()[0]["A_3"].Raw)
}

func TestParse_SkipsBOMAndBlankLines(t *testing.T) {
	input := "\xEF\xBB\xBF   \nA,B\n\n1,2\n"
	res, err := parseString(t, input, ParseOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, res.Store.Header())
	assert.Equal(t, 1, res.Store.Len())
	assert.Equal(t, 1, res.BlankLines)
}

func TestParse_SingleColumnKeepsEmptyCells(t *testing.T) {
	input := "Name\nAl\n\" \"\n\"\"\nBo\n"
	res, err := parseString(t, input, ParseOptions{})
	require.NoError(t, err)

	rows := res.Store.Rows()
	require.Len(t, rows, 4)
	assert.Equal(t, 0, res.BlankLines)
	assert.Equal(t, "Al", rows[0]["Name"].Raw)
	assert.Equal(t, KindString, rows[1]["Name"].Kind)
	assert.Equal(t, " ", rows[1]["Name"].Raw)
	assert.Equal(t, KindNull, rows[2]["Name"].Kind)
	assert.Equal(t, "Bo", rows[3]["Name"].Raw)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, res.Store.Header(), rows, WriteOptions{}))
	assert.Equal(t, "Name\nAl\n\" \"\n\"\"\nBo\n", buf.String())

	again, err := parseString(t, buf.String(), ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, again.Store.Len())
}

func TestParse_QuotedFields(t *testing.T) {
	input := "A,B\n\"x,y\",\"line1\nline2\"\n\"say \"\"hi\"\"\",2\n"
	res, err := parseString(t, input, ParseOptions{})
	require.NoError(t, err)

	rows := res.Store.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "x,y", rows[0]["A"].Raw)
	assert.Equal(t, "line1\nline2", rows[0]["B"].Raw)
	assert.Equal(t, `say "hi"`, rows[1]["A"].Raw)
}

func TestParse_MaxBytes(t *testing.T) {
	input := "A,B\n" + strings.Repeat("1,2\n", 100)
	_, err := parseString(t, input, ParseOptions{MaxBytes: 32})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestParse_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Parse(ctx, strings.NewReader("A\n1\n"), ParseOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParse_BytesRead(t *testing.T) {
	input := []byte("A,B\n1,2\n")
	res, err := Parse(context.Background(), bytes.NewReader(input), ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(len(input)), res.BytesRead)
}
