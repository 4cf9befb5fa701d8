package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BCT-Dylan/hr-management-system/internal/constants"
)

// buildDOCX 构造一个最小可解析的DOCX文件
func buildDOCX(t *testing.T, paragraphs []string) []byte {
	t.Helper()

	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		fmt.Fprintf(&body, `<w:p><w:r><w:t>%s</w:t></w:r></w:p>`, p)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(body.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func newTestExtractor(t *testing.T) *DocumentExtractor {
	t.Helper()
	extractor, err := NewDocumentExtractor(context.Background())
	require.NoError(t, err, "创建文档提取器失败")
	return extractor
}

func TestExtractTextDOCX(t *testing.T) {
	extractor := newTestExtractor(t)

	data := buildDOCX(t, []string{"張偉", "資深後端工程師", "五年Go開發經驗"})
	text, err := extractor.ExtractText(context.Background(), "resume.docx", "", data)

	require.NoError(t, err)
	assert.Equal(t, "張偉\n資深後端工程師\n五年Go開發經驗", text)
}

func TestExtractTextDOCXByMime(t *testing.T) {
	extractor := newTestExtractor(t)

	// MIME优先于扩展名
	data := buildDOCX(t, []string{"候選人"})
	text, err := extractor.ExtractText(context.Background(), "resume.bin",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document; charset=utf-8", data)

	require.NoError(t, err)
	assert.Equal(t, "候選人", text)
}

func TestExtractTextEmptyFile(t *testing.T) {
	extractor := newTestExtractor(t)

	_, err := extractor.ExtractText(context.Background(), "resume.pdf", "application/pdf", nil)

	var extractErr *ExtractError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, ExtractErrEmpty, extractErr.Kind)
}

func TestExtractTextSizeLimit(t *testing.T) {
	extractor := newTestExtractor(t)

	// 超过上限1字节即拒绝，且大小检查先于解析
	oversized := make([]byte, constants.MaxResumeFileSize+1)
	_, err := extractor.ExtractText(context.Background(), "big.pdf", "application/pdf", oversized)

	var extractErr *ExtractError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, ExtractErrTooLarge, extractErr.Kind)
	assert.Equal(t, int64(constants.MaxResumeFileSize+1), extractErr.FileSize)

	// 恰好等于上限时进入解析流程（内容损坏，得到解析失败而不是大小错误）
	exact := make([]byte, constants.MaxResumeFileSize)
	_, err = extractor.ExtractText(context.Background(), "exact.pdf", "application/pdf", exact)

	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, ExtractErrParseFailure, extractErr.Kind)
}

func TestExtractTextUnsupportedType(t *testing.T) {
	extractor := newTestExtractor(t)

	_, err := extractor.ExtractText(context.Background(), "resume.txt", "text/plain", []byte("純文本"))

	var extractErr *ExtractError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, ExtractErrUnsupported, extractErr.Kind)
}

func TestExtractTextLegacyDocRejected(t *testing.T) {
	extractor := newTestExtractor(t)

	_, err := extractor.ExtractText(context.Background(), "resume.doc", "application/msword", []byte{0xD0, 0xCF, 0x11, 0xE0})

	var extractErr *ExtractError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, ExtractErrUnsupported, extractErr.Kind)
	assert.Contains(t, extractErr.Reason, ".doc")
}

func TestExtractTextCorruptPDF(t *testing.T) {
	extractor := newTestExtractor(t)

	_, err := extractor.ExtractText(context.Background(), "resume.pdf", "application/pdf", []byte("這不是PDF內容"))

	var extractErr *ExtractError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, ExtractErrParseFailure, extractErr.Kind)
}

func TestExtractTextDOCXMissingDocument(t *testing.T) {
	extractor := newTestExtractor(t)

	// 合法ZIP但缺少 word/document.xml
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("other.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<x/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = extractor.ExtractText(context.Background(), "resume.docx", "", buf.Bytes())

	var extractErr *ExtractError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, ExtractErrParseFailure, extractErr.Kind)
}
