package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"

	"github.com/BCT-Dylan/hr-management-system/internal/constants"
)

// ExtractErrorKind 提取失败的分类，调用方据此决定HTTP状态码和提示语
type ExtractErrorKind string

const (
	// ExtractErrUnsupported 不支持的文件类型（含旧版 .doc）
	ExtractErrUnsupported ExtractErrorKind = "unsupported"
	// ExtractErrTooLarge 文件超过大小上限
	ExtractErrTooLarge ExtractErrorKind = "too_large"
	// ExtractErrEmpty 空文件
	ExtractErrEmpty ExtractErrorKind = "empty"
	// ExtractErrParseFailure 文件损坏或无法提取出文本
	ExtractErrParseFailure ExtractErrorKind = "parse_failure"
)

// ExtractError 文本提取的类型化错误
type ExtractError struct {
	Kind     ExtractErrorKind
	FileName string
	FileSize int64
	Reason   string
	Err      error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("提取文件 %s 失败 (%s): %s: %v", e.FileName, e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("提取文件 %s 失败 (%s): %s", e.FileName, e.Kind, e.Reason)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// DocumentExtractor 从上传的简历文件中提取纯文本，支持PDF和DOCX
type DocumentExtractor struct {
	pdfParser *pdf.PDFParser
	logger    *log.Logger
}

// DocumentExtractorOption 提取器的配置选项
type DocumentExtractorOption func(*DocumentExtractor)

// WithExtractorLogger 配置自定义日志记录器
func WithExtractorLogger(logger *log.Logger) DocumentExtractorOption {
	return func(e *DocumentExtractor) {
		e.logger = logger
	}
}

// NewDocumentExtractor 初始化文档文本提取器
// PDF解析按页分割，随后用换行符拼接，保证各页文本之间有明确的边界
func NewDocumentExtractor(ctx context.Context, options ...DocumentExtractorOption) (*DocumentExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: true,
	})
	if err != nil {
		return nil, fmt.Errorf("创建PDF解析器失败: %w", err)
	}

	extractor := &DocumentExtractor{
		pdfParser: p,
		logger:    log.New(os.Stderr, "[文档解析器] ", log.LstdFlags),
	}

	for _, option := range options {
		option(extractor)
	}

	return extractor, nil
}

// ExtractText 从文件内容中提取纯文本
// 先按MIME类型分派，MIME缺失或不可识别时回退到文件扩展名
func (e *DocumentExtractor) ExtractText(ctx context.Context, fileName string, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", &ExtractError{Kind: ExtractErrEmpty, FileName: fileName, Reason: "文件内容为空"}
	}
	if int64(len(data)) > constants.MaxResumeFileSize {
		return "", &ExtractError{
			Kind:     ExtractErrTooLarge,
			FileName: fileName,
			FileSize: int64(len(data)),
			Reason:   fmt.Sprintf("文件大小 %d 字节超过上限 %d 字节", len(data), constants.MaxResumeFileSize),
		}
	}

	mime := normalizeContentType(contentType)
	ext := strings.ToLower(filepath.Ext(fileName))

	switch {
	case mime == "application/pdf" || (!isKnownMime(mime) && ext == ".pdf"):
		return e.extractPDF(ctx, fileName, data)
	case mime == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" ||
		(!isKnownMime(mime) && ext == ".docx"):
		return e.extractDOCX(fileName, data)
	case mime == "application/msword" || (!isKnownMime(mime) && ext == ".doc"):
		return "", &ExtractError{
			Kind:     ExtractErrUnsupported,
			FileName: fileName,
			Reason:   "旧版 .doc 格式不受支持，请转换为 .docx 或 PDF",
		}
	default:
		return "", &ExtractError{
			Kind:     ExtractErrUnsupported,
			FileName: fileName,
			Reason:   fmt.Sprintf("不支持的文件类型 (MIME: %q, 扩展名: %q)", contentType, ext),
		}
	}
}

// normalizeContentType 去掉MIME参数部分并转为小写
func normalizeContentType(contentType string) string {
	mime, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mime))
}

// isKnownMime 判断MIME是否是提取器认识的类型，用于决定是否回退到扩展名
func isKnownMime(mime string) bool {
	switch mime {
	case "application/pdf",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/msword":
		return true
	}
	return false
}

// extractPDF 使用Eino PDF解析器提取文本，按页拼接
func (e *DocumentExtractor) extractPDF(ctx context.Context, fileName string, data []byte) (string, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	docs, err := e.pdfParser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(fileName),
		einoParser.WithExtraMeta(map[string]interface{}{
			"extraction_time": time.Now().Format(time.RFC3339),
		}),
	)

	duration := time.Since(startTime)
	if err != nil {
		e.logger.Printf("PDF解析失败: %s (用时 %.2f秒)", err, duration.Seconds())
		return "", &ExtractError{
			Kind:     ExtractErrParseFailure,
			FileName: fileName,
			FileSize: int64(len(data)),
			Reason:   "PDF解析失败",
			Err:      err,
		}
	}

	pages := make([]string, 0, len(docs))
	for _, doc := range docs {
		pages = append(pages, doc.Content)
	}
	text := strings.Join(pages, "\n")

	if strings.TrimSpace(text) == "" {
		return "", &ExtractError{
			Kind:     ExtractErrParseFailure,
			FileName: fileName,
			FileSize: int64(len(data)),
			Reason:   "PDF中未提取到任何文本",
		}
	}

	e.logger.Printf("PDF提取完成: %d 页, %d 个字符 (用时 %.2f秒)", len(docs), len(text), duration.Seconds())
	return text, nil
}

// extractDOCX 把DOCX视为ZIP归档，展平 word/document.xml 中的段落
// w:p 为段落，w:t 为文本run，w:tab 和 w:br 分别映射为制表符和换行
func (e *DocumentExtractor) extractDOCX(fileName string, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractError{
			Kind:     ExtractErrParseFailure,
			FileName: fileName,
			FileSize: int64(len(data)),
			Reason:   "DOCX不是有效的ZIP归档",
			Err:      err,
		}
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", &ExtractError{
			Kind:     ExtractErrParseFailure,
			FileName: fileName,
			FileSize: int64(len(data)),
			Reason:   "DOCX归档中缺少 word/document.xml",
		}
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", &ExtractError{
			Kind:     ExtractErrParseFailure,
			FileName: fileName,
			FileSize: int64(len(data)),
			Reason:   "打开 word/document.xml 失败",
			Err:      err,
		}
	}
	defer rc.Close()

	text, err := flattenDOCXBody(rc)
	if err != nil {
		return "", &ExtractError{
			Kind:     ExtractErrParseFailure,
			FileName: fileName,
			FileSize: int64(len(data)),
			Reason:   "解析 word/document.xml 失败",
			Err:      err,
		}
	}

	if strings.TrimSpace(text) == "" {
		return "", &ExtractError{
			Kind:     ExtractErrParseFailure,
			FileName: fileName,
			FileSize: int64(len(data)),
			Reason:   "DOCX中未提取到任何文本",
		}
	}

	e.logger.Printf("DOCX提取完成: %d 个字符", len(text))
	return text, nil
}

// flattenDOCXBody 顺序遍历XML token流，把段落展平为以换行分隔的纯文本
func flattenDOCXBody(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var sb strings.Builder
	var inText bool
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}

	return strings.TrimRight(sb.String(), "\n"), nil
}
