package formatter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wordCounter struct{}

func (wordCounter) CountTokens(text string) int {
	return len(strings.Fields(text))
}

func TestComputeStats(t *testing.T) {
	text := "### `a.go`\n```go\npackage a\n```\n"

	s := ComputeStats(1, text, "gpt-4o", wordCounter{})
	assert.Equal(t, Stats{Files: 1, Lines: 4, Bytes: len(text), Model: "gpt-4o", Tokens: 6}, s)
}

func TestComputeStatsWithoutCounter(t *testing.T) {
	s := ComputeStats(2, "one\ntwo", DefaultModel, nil)
	assert.Equal(t, 2, s.Lines)
	assert.Equal(t, -1, s.Tokens)
}

func TestTokenCounter(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4")
	require.NoError(t, err)
	assert.Equal(t, 2, counter.CountTokens("hello world"))
	assert.Equal(t, 0, counter.CountTokens(""))
}

func TestTokenCounterFallsBackForUnknownModel(t *testing.T) {
	counter, err := NewTokenCounter("my-local-model")
	require.NoError(t, err)
	assert.Equal(t, 2, counter.CountTokens("hello world"))
}
