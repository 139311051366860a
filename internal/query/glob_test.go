package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobToRegexpMatches(t *testing.T) {
	for _, tc := range []struct {
		pattern string
		match   []string
		noMatch []string
	}{
		{"potato", []string{"potato"}, []string{"potatoes", "POTATO"}},
		{"*.txt", []string{"notes.txt", ".txt"}, []string{"notes.txt.bak"}},
		{"notes.???", []string{"notes.txt", "notes.log"}, []string{"notes.c", "notes.text"}},
		{"[Nn]otes.txt", []string{"Notes.txt", "notes.txt"}, []string{"xotes.txt"}},
		{"a.{c,cpp,h}", []string{"a.c", "a.cpp", "a.h"}, []string{"a.py"}},
		{"**", []string{"anything", ""}, nil},
		{`a\*b`, []string{"a*b"}, []string{"axb"}},
	} {
		re, err := globToRegexp(tc.pattern, false)
		require.NoError(t, err, tc.pattern)
		for _, m := range tc.match {
			assert.True(t, re.MatchString(m), "pattern %q should match %q", tc.pattern, m)
		}
		for _, m := range tc.noMatch {
			assert.False(t, re.MatchString(m), "pattern %q should not match %q", tc.pattern, m)
		}
	}
}

func TestGlobToRegexpIgnoreCase(t *testing.T) {
	re, err := globToRegexp("Potato*", true)
	require.NoError(t, err)
	assert.True(t, re.MatchString("potatoes"))
}

func TestGlobToRegexpErrors(t *testing.T) {
	for _, tc := range []struct {
		pattern string
		substr  string
	}{
		{"a***b", "too many stars"},
		{"a]b", "mismatched ']'"},
		{"a[b", "mismatched '[' and ']'"},
		{"a{b{c,d}}", "can't nest"},
		{"a{b,c", "mismatched '{' and '}'"},
		{"a}b", "mismatched '{' and '}'"},
	} {
		_, err := globToRegexp(tc.pattern, false)
		require.Error(t, err, tc.pattern)
		assert.Contains(t, err.Error(), tc.substr, tc.pattern)
	}
}

func TestHasGlobMeta(t *testing.T) {
	assert.False(t, hasGlobMeta("notes.txt"))
	assert.True(t, hasGlobMeta("*.txt"))
	assert.True(t, hasGlobMeta("notes.???"))
	assert.True(t, hasGlobMeta("a{b,c}"))
}

func TestCompileRegexBounds(t *testing.T) {
	_, err := compileRegex("notes\\.txt", false)
	require.NoError(t, err)

	_, err = compileRegex("(", false)
	assert.Error(t, err)
}
