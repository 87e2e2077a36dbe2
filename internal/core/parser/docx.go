// Package parser extracts plain text from uploaded documents and chunks it.
package parser

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core/chunker"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/models"
)

const (
	documentPart = "word/document.xml"

	// MaxFragments bounds the number of text runs scanned in one document.
	MaxFragments = 200000

	// MinTextLength rejects blank or corrupt files.
	MinTextLength = 10

	maxPartBytes = 64 << 20

	docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
)

// Options tunes chunking for both parser engines.
type Options struct {
	TargetWords  int
	OverlapWords int
	MaxChunks    int
}

func (o Options) withDefaults() Options {
	if o.TargetWords <= 0 {
		o.TargetWords = chunker.DefaultTargetWords
		o.OverlapWords = chunker.DefaultOverlapWords
	}
	if o.OverlapWords < 0 {
		o.OverlapWords = 0
	}
	if o.MaxChunks <= 0 {
		o.MaxChunks = chunker.MaxChunks
	}
	return o
}

// DocxParser reads word/document.xml with a streaming tag scanner instead of a DOM.
type DocxParser struct {
	opts Options
}

var _ core.DocumentParser = (*DocxParser)(nil)

func NewDocxParser(opts Options) *DocxParser {
	return &DocxParser{opts: opts.withDefaults()}
}

// NormalizeFormat maps extensions and MIME types onto a declared format name.
func NormalizeFormat(declared string) string {
	f := strings.ToLower(strings.TrimSpace(declared))
	f = strings.TrimPrefix(f, ".")
	if f == docxMIME {
		return models.FileTypeDocx
	}
	return f
}

func (p *DocxParser) Parse(ctx context.Context, data []byte, declaredFormat string) (*core.ParsedDocument, error) {
	if NormalizeFormat(declaredFormat) != models.FileTypeDocx {
		return nil, fmt.Errorf("%w: %q, only docx files are supported", core.ErrUnsupportedFormat, declaredFormat)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open docx container: %v", core.ErrEmptyOrUnreadable, err)
	}

	var part *zip.File
	for _, f := range zr.File {
		if f.Name == documentPart {
			part = f
			break
		}
	}
	if part == nil {
		return nil, fmt.Errorf("%w: %s not found in docx", core.ErrEmptyOrUnreadable, documentPart)
	}

	rc, err := part.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", core.ErrEmptyOrUnreadable, documentPart, err)
	}
	defer rc.Close()

	raw, err := extractText(ctx, &capReader{r: rc, n: maxPartBytes + 1})
	if err != nil {
		return nil, err
	}

	return buildDocument(normalizeWhitespace(raw), models.FileTypeDocx, p.opts)
}

// extractText scans WordprocessingML and keeps only <w:t> run text. Paragraph
// ends and explicit breaks become newlines, tabs become spaces.
func extractText(ctx context.Context, r io.Reader) (string, error) {
	br := bufio.NewReaderSize(r, 64<<10)

	var (
		out       strings.Builder
		run       strings.Builder
		inRun     bool
		fragments int
		tags      int
	)

	for {
		text, err := br.ReadString('<')
		if inRun {
			run.WriteString(strings.TrimSuffix(text, "<"))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", readErr(err)
		}

		tag, err := br.ReadString('>')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", readErr(err)
		}

		tags++
		if tags%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}

		name, closing, selfClosing := tagInfo(tag[:len(tag)-1])
		switch name {
		case "w:t":
			switch {
			case selfClosing:
			case !closing:
				inRun = true
				run.Reset()
			case inRun:
				out.WriteString(entityReplacer.Replace(run.String()))
				inRun = false
				fragments++
				if fragments > MaxFragments {
					return "", fmt.Errorf("%w: more than %d text runs", core.ErrMalformedDocument, MaxFragments)
				}
			}
		case "w:tab":
			if !closing {
				out.WriteByte(' ')
			}
		case "w:br", "w:cr":
			if !closing {
				out.WriteByte('\n')
			}
		case "w:p":
			if closing {
				out.WriteByte('\n')
			}
		}
	}

	return out.String(), nil
}

// tagInfo splits the inside of "<...>" into its element name and shape.
func tagInfo(tag string) (name string, closing, selfClosing bool) {
	if strings.HasPrefix(tag, "/") {
		closing = true
		tag = tag[1:]
	}
	if strings.HasSuffix(tag, "/") {
		selfClosing = true
		tag = tag[:len(tag)-1]
	}
	if i := strings.IndexAny(tag, " \t\r\n"); i >= 0 {
		tag = tag[:i]
	}
	return tag, closing, selfClosing
}

func readErr(err error) error {
	if errors.Is(err, core.ErrMalformedDocument) {
		return err
	}
	return fmt.Errorf("%w: read %s: %v", core.ErrEmptyOrUnreadable, documentPart, err)
}

// normalizeWhitespace collapses horizontal whitespace runs and drops blank lines.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if f := strings.Fields(line); len(f) > 0 {
			kept = append(kept, strings.Join(f, " "))
		}
	}
	return strings.Join(kept, "\n")
}

// buildDocument applies the minimum-content check and chunks the text.
func buildDocument(text, format string, opts Options) (*core.ParsedDocument, error) {
	if len(text) < MinTextLength {
		return nil, fmt.Errorf("%w: no text content found", core.ErrEmptyOrUnreadable)
	}

	res := chunker.ChunkWithLimit(text, opts.TargetWords, opts.OverlapWords, opts.MaxChunks)

	chunks := make([]core.ParsedChunk, len(res.Chunks))
	for i, w := range res.Chunks {
		chunks[i] = core.ParsedChunk{
			Index:   i,
			Content: w.Content,
			Metadata: map[string]any{
				"word_start": w.StartIndex,
				"word_end":   w.EndIndex,
				"format":     format,
			},
		}
	}

	return &core.ParsedDocument{
		FullText:     text,
		Chunks:       chunks,
		TotalWindows: res.Total,
		Truncated:    res.Truncated,
	}, nil
}

// capReader fails once more than n-1 bytes have been read.
type capReader struct {
	r io.Reader
	n int64
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.n <= 0 {
		return 0, fmt.Errorf("%w: %s larger than %d bytes", core.ErrMalformedDocument, documentPart, maxPartBytes)
	}
	if int64(len(p)) > c.n {
		p = p[:c.n]
	}
	n, err := c.r.Read(p)
	c.n -= int64(n)
	if c.n <= 0 && err == nil {
		err = fmt.Errorf("%w: %s larger than %d bytes", core.ErrMalformedDocument, documentPart, maxPartBytes)
	}
	return n, err
}
