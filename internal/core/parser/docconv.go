package parser

import (
	"bytes"
	"context"
	"fmt"

	"code.sajari.com/docconv"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/models"
)

// DocconvParser extracts text with sajari/docconv. It shares the format gate,
// minimum-content check and chunking of DocxParser.
type DocconvParser struct {
	opts           Options
	useReadability bool
}

var _ core.DocumentParser = (*DocconvParser)(nil)

func NewDocconvParser(opts Options, useReadability bool) *DocconvParser {
	return &DocconvParser{opts: opts.withDefaults(), useReadability: useReadability}
}

func (p *DocconvParser) Parse(ctx context.Context, data []byte, declaredFormat string) (*core.ParsedDocument, error) {
	if NormalizeFormat(declaredFormat) != models.FileTypeDocx {
		return nil, fmt.Errorf("%w: %q, only docx files are supported", core.ErrUnsupportedFormat, declaredFormat)
	}

	res, err := docconv.Convert(bytes.NewReader(data), docxMIME, p.useReadability)
	if err != nil {
		return nil, fmt.Errorf("%w: docconv: %v", core.ErrEmptyOrUnreadable, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return buildDocument(normalizeWhitespace(entityReplacer.Replace(res.Body)), models.FileTypeDocx, p.opts)
}
