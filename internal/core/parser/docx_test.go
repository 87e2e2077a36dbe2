package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
)

func createTestDOCX(documentXML string) []byte {
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	contentTypes, _ := w.Create("[Content_Types].xml")
	contentTypes.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="xml" ContentType="application/xml"/>
</Types>`))

	if documentXML != "" {
		doc, _ := w.Create("word/document.xml")
		doc.Write([]byte(documentXML))
	}

	w.Close()
	return buf.Bytes()
}

func wrapBody(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`
}

func newTestParser() *DocxParser {
	return NewDocxParser(Options{TargetWords: 750, OverlapWords: 150, MaxChunks: 200})
}

func TestParse_HelloWorldRoundTrip(t *testing.T) {
	data := createTestDOCX(wrapBody(`<w:p><w:r><w:t>Hello world, this is a test.</w:t></w:r></w:p>`))

	doc, err := newTestParser().Parse(context.Background(), data, "docx")
	require.NoError(t, err)

	assert.Equal(t, "Hello world, this is a test.", doc.FullText)
	require.Len(t, doc.Chunks, 1)
	assert.Equal(t, 0, doc.Chunks[0].Index)
	assert.Equal(t, "Hello world, this is a test.", doc.Chunks[0].Content)
	assert.Equal(t, 0, doc.Chunks[0].Metadata["word_start"])
	assert.Equal(t, 6, doc.Chunks[0].Metadata["word_end"])
	assert.False(t, doc.Truncated)
}

func TestParse_UnsupportedFormat(t *testing.T) {
	for _, format := range []string{"pdf", "txt", "", "doc"} {
		_, err := newTestParser().Parse(context.Background(), []byte("not even a zip"), format)
		assert.ErrorIs(t, err, core.ErrUnsupportedFormat, "format %q", format)
	}
}

func TestParse_StructureAndEntities(t *testing.T) {
	body := `<w:p><w:r><w:t>Tom &amp; Jerry</w:t><w:tab/><w:t xml:space="preserve">say &lt;hi&gt; </w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>line one</w:t><w:br/><w:t>line two &quot;quoted&quot; &apos;x&apos;</w:t></w:r></w:p>`

	doc, err := newTestParser().Parse(context.Background(), createTestDOCX(wrapBody(body)), ".DOCX")
	require.NoError(t, err)

	assert.Equal(t, "Tom & Jerry say <hi>\nline one\nline two \"quoted\" 'x'", doc.FullText)
}

func TestParse_IgnoresMarkupThatLooksLikeRuns(t *testing.T) {
	body := `<w:tbl><w:tr><w:tc><w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr>` +
		`<w:r><w:rPr><w:b/></w:rPr><w:t>cell text here</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`

	doc, err := newTestParser().Parse(context.Background(), createTestDOCX(wrapBody(body)), "docx")
	require.NoError(t, err)

	assert.Equal(t, "cell text here", doc.FullText)
}

func TestParse_SplitRunsAreJoined(t *testing.T) {
	body := `<w:p><w:r><w:t>Hel</w:t></w:r><w:r><w:t>lo everyone out there</w:t></w:r></w:p>`

	doc, err := newTestParser().Parse(context.Background(), createTestDOCX(wrapBody(body)), "docx")
	require.NoError(t, err)

	assert.Equal(t, "Hello everyone out there", doc.FullText)
}

func TestParse_EmptyOrUnreadable(t *testing.T) {
	p := newTestParser()

	_, err := p.Parse(context.Background(), createTestDOCX(wrapBody(`<w:p><w:r><w:t>Hi</w:t></w:r></w:p>`)), "docx")
	assert.ErrorIs(t, err, core.ErrEmptyOrUnreadable)

	_, err = p.Parse(context.Background(), createTestDOCX(""), "docx")
	assert.ErrorIs(t, err, core.ErrEmptyOrUnreadable)

	_, err = p.Parse(context.Background(), []byte("plain bytes"), "docx")
	assert.ErrorIs(t, err, core.ErrEmptyOrUnreadable)
}

func TestParse_TooManyFragments(t *testing.T) {
	body := `<w:p><w:r>` + strings.Repeat(`<w:t>a</w:t>`, MaxFragments+1) + `</w:r></w:p>`

	_, err := newTestParser().Parse(context.Background(), createTestDOCX(wrapBody(body)), "docx")
	assert.ErrorIs(t, err, core.ErrMalformedDocument)
}

func TestParse_ChunksCarryWordOffsets(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 25; i++ {
		sb.WriteString(`<w:p><w:r><w:t>one two three four</w:t></w:r></w:p>`)
	}
	p := NewDocxParser(Options{TargetWords: 40, OverlapWords: 10, MaxChunks: 2})

	doc, err := p.Parse(context.Background(), createTestDOCX(wrapBody(sb.String())), "docx")
	require.NoError(t, err)

	require.Len(t, doc.Chunks, 2)
	assert.Equal(t, 30, doc.Chunks[1].Metadata["word_start"])
	assert.Equal(t, 70, doc.Chunks[1].Metadata["word_end"])
	assert.Equal(t, 3, doc.TotalWindows)
	assert.True(t, doc.Truncated)
}

func TestNormalizeFormat(t *testing.T) {
	assert.Equal(t, "docx", NormalizeFormat(" .Docx "))
	assert.Equal(t, "docx", NormalizeFormat(docxMIME))
	assert.Equal(t, "pdf", NormalizeFormat("PDF"))
}
