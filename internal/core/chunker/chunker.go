// Package chunker splits extracted text into overlapping word windows.
package chunker

import "strings"

const (
	// WordsPerToken approximates tokens by words. It is not a tokenizer.
	WordsPerToken = 0.75

	DefaultTargetTokens  = 1000
	DefaultOverlapTokens = 200

	// DefaultTargetWords and DefaultOverlapWords are the token defaults converted with WordsPerToken.
	DefaultTargetWords  = 750
	DefaultOverlapWords = 150

	// MaxChunks caps the windows produced for one text.
	MaxChunks = 200
)

// Window is one chunk of words. StartIndex and EndIndex are word offsets, end exclusive.
type Window struct {
	Content    string
	StartIndex int
	EndIndex   int
}

// Result holds the emitted windows. Total is the number of windows the whole
// text would produce, so Total > len(Chunks) exactly when Truncated is set.
type Result struct {
	Chunks    []Window
	Total     int
	Truncated bool
}

// WordsForTokens converts a token budget into a word count, never below 1.
func WordsForTokens(tokens int) int {
	w := int(float64(tokens) * WordsPerToken)
	if w < 1 {
		return 1
	}
	return w
}

// Chunk splits text with the default MaxChunks cap.
func Chunk(text string, targetWords, overlapWords int) Result {
	return ChunkWithLimit(text, targetWords, overlapWords, MaxChunks)
}

// ChunkWithLimit splits text into windows of targetWords words overlapping by
// overlapWords. A limit <= 0 disables the cap.
func ChunkWithLimit(text string, targetWords, overlapWords, limit int) Result {
	words := strings.Fields(text)
	if len(words) == 0 {
		return Result{}
	}

	if targetWords < 1 {
		targetWords = 1
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	if overlapWords > targetWords-1 {
		overlapWords = targetWords - 1
	}

	var res Result
	start := 0
	for start < len(words) {
		end := min(start+targetWords, len(words))

		res.Total++
		if limit <= 0 || len(res.Chunks) < limit {
			res.Chunks = append(res.Chunks, Window{
				Content:    strings.Join(words[start:end], " "),
				StartIndex: start,
				EndIndex:   end,
			})
		}

		if end == len(words) {
			break
		}

		next := end - overlapWords
		if next <= start {
			next = end
		}
		start = next
	}

	res.Truncated = res.Total > len(res.Chunks)
	return res
}
