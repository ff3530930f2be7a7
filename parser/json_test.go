package parser

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Array Extraction Tests
// =============================================================================

func TestExtractJSON_Array(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "skips record count decoy",
			text: "[12] record(s)\nMy Vault>\n[{\"a\":1}]",
			want: `[{"a":1}]`,
		},
		{
			name: "skips decoy with spaces",
			text: "Decrypted [ 3 ] record(s)\n[{\"uid\":\"x\"}]\n",
			want: `[{"uid":"x"}]`,
		},
		{
			name: "brackets inside strings",
			text: "Syncing...\n[{\"title\":\"a ] tricky [ title\",\"notes\":\"}\"}]\nMy Vault> ",
			want: `[{"title":"a ] tricky [ title","notes":"}"}]`,
		},
		{
			name: "escaped quote inside string",
			text: `[{"title":"say \"hi\" ]"}]`,
			want: `[{"title":"say \"hi\" ]"}]`,
		},
		{
			name: "multi line pretty printed",
			text: "[\n  {\n    \"record_uid\": \"u1\"\n  },\n  {\n    \"record_uid\": \"u2\"\n  }\n]\n",
			want: "[\n  {\n    \"record_uid\": \"u1\"\n  },\n  {\n    \"record_uid\": \"u2\"\n  }\n]",
		},
		{
			name: "empty array",
			text: "Decrypted [0] record(s)\n[]\nMy Vault> ",
			want: "[]",
		},
		{
			name: "array of strings is not data",
			text: "[\"a\",\"b\"]\n[{\"a\":1}]",
			want: `[{"a":1}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.text, KindArray)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON_ArrayRebuiltFromObjects(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "banner interleaved inside array",
			text: "[{\"a\":1},\nSyncing...\n{\"b\":2}]\nMy Vault> ",
			want: `[{"a":1},{"b":2}]`,
		},
		{
			name: "bare objects one per line",
			text: "{\"a\":1}\n{\"b\":{\"c\":[1,2]}}\n",
			want: `[{"a":1},{"b":{"c":[1,2]}}]`,
		},
		{
			name: "two objects on one line",
			text: "{\"a\":1},{\"b\":2}",
			want: `[{"a":1},{"b":2}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.text, KindArray)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, json.Valid([]byte(got)))
		})
	}
}

// =============================================================================
// Object Extraction Tests
// =============================================================================

func TestExtractJSON_Object(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "object after banners",
			text: "Syncing...\n{\"record_uid\":\"u1\",\"title\":\"x\"}\nMy Vault> ",
			want: `{"record_uid":"u1","title":"x"}`,
		},
		{
			name: "skips braces without keys",
			text: "template {name}\n{\"k\":\"v\"}",
			want: `{"k":"v"}`,
		},
		{
			name: "nested object returned whole",
			text: `{"a":{"b":{"c":1}}}`,
			want: `{"a":{"b":{"c":1}}}`,
		},
		{
			name: "empty object",
			text: "{}",
			want: "{}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.text, KindObject)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// Failure Tests
// =============================================================================

func TestExtractJSON_NoJSONFound(t *testing.T) {
	tests := []struct {
		name string
		text string
		kind Kind
	}{
		{"no brackets", "hello world", KindArray},
		{"decoy only", "Decrypted [12] record(s)\nMy Vault> ", KindArray},
		{"unterminated", "[{\"a\":1", KindArray},
		{"invalid json", "[{a:1}]", KindArray},
		{"no object", "[1,2,3]", KindObject},
		{"empty text", "", KindObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.text, tt.kind)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNoJSONFound))
			assert.Empty(t, got)
		})
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExtractInto(t *testing.T) {
	type record struct {
		UID   string `json:"record_uid"`
		Title string `json:"title"`
	}

	var records []record
	err := ExtractInto("Decrypted [2] record(s)\n[{\"record_uid\":\"u1\",\"title\":\"one\"},{\"record_uid\":\"u2\",\"title\":\"two\"}]\nMy Vault> ", KindArray, &records)
	require.NoError(t, err)
	assert.Equal(t, []record{{"u1", "one"}, {"u2", "two"}}, records)

	var one record
	err = ExtractInto("no json here", KindObject, &one)
	assert.ErrorIs(t, err, ErrNoJSONFound)

	var wrongType []int
	err = ExtractInto(`[{"a":1}]`, KindArray, &wrongType)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoJSONFound)
}

func TestExtractJSON_AfterUnclosedBracket(t *testing.T) {
	text := "progress [=====     \n[{\"record_uid\":\"u1\"}]\nMy Vault> "
	got, err := ExtractJSON(text, KindArray)
	require.NoError(t, err)
	assert.Equal(t, `[{"record_uid":"u1"}]`, got)

	got, err = ExtractJSON(`{ broken "x": {"a":1}`, KindObject)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got)
}

func TestExtractJSON_ManyUnclosedBrackets(t *testing.T) {
	garbage := strings.Repeat("[", 1<<18)

	_, err := ExtractJSON(garbage, KindArray)
	assert.ErrorIs(t, err, ErrNoJSONFound)

	got, err := ExtractJSON(strings.Repeat("{", 1<<18)+`{"a":1}`, KindObject)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got)
}

func TestIsNumericDecoy(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"[12]", true},
		{"[ 7 ]", true},
		{"[0] records", true},
		{"[12345678901]", false},
		{"[]", false},
		{"[1,2]", false},
		{"[{", false},
		{"[12", false},
	}

	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			assert.Equal(t, tt.want, isNumericDecoy(tt.s))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "array", KindArray.String())
	assert.Equal(t, "object", KindObject.String())
}
