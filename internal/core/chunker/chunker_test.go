package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestChunk_Empty(t *testing.T) {
	assert.Empty(t, Chunk("", 10, 2).Chunks)
	assert.Empty(t, Chunk("  \n\t ", 10, 2).Chunks)
	assert.False(t, Chunk("", 10, 2).Truncated)
}

func TestChunk_ShortTextIsOneWindow(t *testing.T) {
	res := Chunk("Hello world, this is a test.", DefaultTargetWords, DefaultOverlapWords)

	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "Hello world, this is a test.", res.Chunks[0].Content)
	assert.Equal(t, 0, res.Chunks[0].StartIndex)
	assert.Equal(t, 6, res.Chunks[0].EndIndex)
	assert.Equal(t, 1, res.Total)
}

func TestChunk_Scenario2300Words(t *testing.T) {
	res := Chunk(words(2300), 750, 150)

	require.Len(t, res.Chunks, 4)
	starts := []int{0, 600, 1200, 1800}
	for i, c := range res.Chunks {
		assert.Equal(t, starts[i], c.StartIndex, "window %d", i)
	}
	assert.Equal(t, 2300, res.Chunks[3].EndIndex)
	for i := 0; i < len(res.Chunks)-1; i++ {
		assert.GreaterOrEqual(t, res.Chunks[i+1].StartIndex-res.Chunks[i].StartIndex, 600)
	}
}

func TestChunk_ReconstructsWordSequence(t *testing.T) {
	cases := []struct {
		n, target, overlap int
	}{
		{1, 5, 2},
		{17, 5, 2},
		{100, 10, 9},
		{101, 7, 0},
		{2300, 750, 150},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d/%d/%d", tc.n, tc.target, tc.overlap), func(t *testing.T) {
			text := words(tc.n)
			res := ChunkWithLimit(text, tc.target, tc.overlap, 0)

			var rebuilt []string
			covered := 0
			for _, c := range res.Chunks {
				require.NotEmpty(t, c.Content)
				ws := strings.Fields(c.Content)
				require.Equal(t, c.EndIndex-c.StartIndex, len(ws))
				// keep only the part not already covered by the previous window
				rebuilt = append(rebuilt, ws[covered-c.StartIndex:]...)
				covered = c.EndIndex
			}
			assert.Equal(t, strings.Fields(text), rebuilt)
		})
	}
}

func TestChunk_OverlapClampedStillTerminates(t *testing.T) {
	res := ChunkWithLimit(words(50), 5, 5, 0)

	require.NotEmpty(t, res.Chunks)
	for i := 1; i < len(res.Chunks); i++ {
		assert.Greater(t, res.Chunks[i].StartIndex, res.Chunks[i-1].StartIndex)
	}
	assert.Equal(t, 50, res.Chunks[len(res.Chunks)-1].EndIndex)
}

func TestChunk_NoTrailingDuplicateWindow(t *testing.T) {
	res := ChunkWithLimit(words(10), 5, 0, 0)

	require.Len(t, res.Chunks, 2)
	assert.Equal(t, 10, res.Chunks[1].EndIndex)
}

func TestChunk_CapReportsTruncation(t *testing.T) {
	res := Chunk(words(10000), 10, 0)

	assert.Len(t, res.Chunks, MaxChunks)
	assert.Equal(t, 1000, res.Total)
	assert.True(t, res.Truncated)

	small := ChunkWithLimit(words(30), 10, 0, 2)
	assert.Len(t, small.Chunks, 2)
	assert.Equal(t, 3, small.Total)
}

func TestWordsForTokens(t *testing.T) {
	assert.Equal(t, DefaultTargetWords, WordsForTokens(DefaultTargetTokens))
	assert.Equal(t, DefaultOverlapWords, WordsForTokens(DefaultOverlapTokens))
	assert.Equal(t, 1, WordsForTokens(0))
}
