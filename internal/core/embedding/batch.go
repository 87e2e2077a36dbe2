package embedding

import (
	"context"
	"fmt"
	"iter"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
)

// EmbeddedChunk is a parsed chunk together with its vector. Index is the chunk ordinal.
type EmbeddedChunk struct {
	Index    int
	Content  string
	Metadata map[string]any
	Vector   []float32
}

// Batch is one group of consecutive embedded chunks. Seq counts batches from zero.
type Batch struct {
	Seq   int
	Items []EmbeddedChunk
}

// EmbedAll embeds every chunk in order and returns the completed list.
func EmbedAll(ctx context.Context, p core.EmbeddingProvider, chunks []core.ParsedChunk) ([]EmbeddedChunk, error) {
	out := make([]EmbeddedChunk, 0, len(chunks))
	for _, c := range chunks {
		ec, err := embedOne(ctx, p, c)
		if err != nil {
			return nil, err
		}
		out = append(out, ec)
	}
	return out, nil
}

// Batches lazily embeds chunks size at a time. Nothing is embedded until the
// caller pulls, and only the current batch is held in memory. Iteration stops
// after the first error.
func Batches(ctx context.Context, p core.EmbeddingProvider, chunks []core.ParsedChunk, size int) iter.Seq2[Batch, error] {
	if size <= 0 {
		size = 1
	}
	return func(yield func(Batch, error) bool) {
		for seq, start := 0, 0; start < len(chunks); seq, start = seq+1, start+size {
			end := min(start+size, len(chunks))

			b := Batch{Seq: seq, Items: make([]EmbeddedChunk, 0, end-start)}
			for _, c := range chunks[start:end] {
				ec, err := embedOne(ctx, p, c)
				if err != nil {
					yield(Batch{Seq: seq}, err)
					return
				}
				b.Items = append(b.Items, ec)
			}

			if !yield(b, nil) {
				return
			}
		}
	}
}

func embedOne(ctx context.Context, p core.EmbeddingProvider, c core.ParsedChunk) (EmbeddedChunk, error) {
	if err := ctx.Err(); err != nil {
		return EmbeddedChunk{}, err
	}
	vec, err := p.Embed(ctx, c.Content)
	if err != nil {
		return EmbeddedChunk{}, fmt.Errorf("embed chunk %d: %w", c.Index, err)
	}
	return EmbeddedChunk{Index: c.Index, Content: c.Content, Metadata: c.Metadata, Vector: vec}, nil
}
