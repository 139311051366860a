package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileExactPattern(t *testing.T) {
	plan, err := Compile(Request{Pattern: "readme.txt"})
	require.NoError(t, err)
	assert.Equal(t, MatchExact, plan.Kind)
	assert.Equal(t, "txt", plan.extTag)
	assert.True(t, plan.matchesName("README.TXT"))
}

func TestCompileExactCaseSensitive(t *testing.T) {
	plan, err := Compile(Request{Pattern: "Readme.txt", CaseSensitive: true})
	require.NoError(t, err)
	assert.False(t, plan.matchesName("readme.txt"))
	assert.True(t, plan.matchesName("Readme.txt"))
}

func TestCompileGlobPattern(t *testing.T) {
	plan, err := Compile(Request{Pattern: "*.js"})
	require.NoError(t, err)
	assert.Equal(t, MatchGlob, plan.Kind)
	assert.Equal(t, "js", plan.extTag)
	assert.True(t, plan.matchesName("index.js"))
	assert.False(t, plan.matchesName("index.ts"))
}

func TestCompileGlobWithNonLiteralExtensionSkipsFastPath(t *testing.T) {
	plan, err := Compile(Request{Pattern: "*.?sv"})
	require.NoError(t, err)
	assert.Equal(t, "", plan.extTag)
	assert.True(t, plan.matchesName("data.csv"))
	assert.True(t, plan.matchesName("data.tsv"))
}

func TestCompileRegexPattern(t *testing.T) {
	plan, err := Compile(Request{Pattern: `^IMG_\d{4}\.jpg$`, Regex: true})
	require.NoError(t, err)
	assert.Equal(t, MatchRegex, plan.Kind)
	assert.True(t, plan.matchesName("IMG_0001.jpg"))
	assert.False(t, plan.matchesName("IMG_1.jpg"))
}

func TestCompileRejectsEmptyPattern(t *testing.T) {
	_, err := Compile(Request{Pattern: ""})
	assert.Error(t, err)
}

func TestCompileRejectsTooManyMaxResults(t *testing.T) {
	_, err := Compile(Request{Pattern: "*", MaxResults: maxMaxResults + 1})
	assert.Error(t, err)
}

func TestCompileRejectsInvertedSizeBounds(t *testing.T) {
	min, max := uint64(100), uint64(10)
	_, err := Compile(Request{Pattern: "*", MinSize: &min, MaxSize: &max})
	assert.Error(t, err)
}

func TestCompileDefaultsMaxResultsAndDeadline(t *testing.T) {
	plan, err := Compile(Request{Pattern: "*"})
	require.NoError(t, err)
	assert.Equal(t, defaultMaxResults, plan.maxResults)
	assert.Equal(t, defaultDeadline, plan.deadline)
}
