package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmpty(t *testing.T) {
	assert.Nil(t, Split("", 10))
}

func TestSplitShort(t *testing.T) {
	chunks := Split("hello", 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello", chunks[0])
}

func TestSplitExactBoundary(t *testing.T) {
	chunks := Split("abcdefghij", 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, "abcdefghij", chunks[0])
}

func TestSplitLong(t *testing.T) {
	s := strings.Repeat("x", 4500)
	chunks := Split(s, 2000)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 2000)
	assert.Len(t, chunks[1], 2000)
	assert.Len(t, chunks[2], 500)
	assert.Equal(t, s, strings.Join(chunks, ""))
}

func TestSplitMultibyte(t *testing.T) {
	s := strings.Repeat("日", 25)
	chunks := Split(s, 10)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 10)
	}
	assert.Equal(t, s, strings.Join(chunks, ""))
}

func TestSplitDefaultLimit(t *testing.T) {
	s := strings.Repeat("x", 2001)
	chunks := Split(s, 0)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], DiscordMessageLimit)
}
