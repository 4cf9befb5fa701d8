package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"

	"github.com/BCT-Dylan/hr-management-system/internal/types"
)

// LLMInfoExtractor 使用LLM从简历文本中抽取结构化个人信息。
// 抽取失败不阻断流水线：任何错误都只记录日志并返回零值结构体，
// 由上层用占位姓名补齐展示字段。
type LLMInfoExtractor struct {
	llmModel model.ToolCallingChatModel
	timeout  time.Duration
	logger   *log.Logger
}

// InfoExtractorOption 信息提取器的配置选项
type InfoExtractorOption func(*LLMInfoExtractor)

// WithExtractionTimeout 设置单次提取的超时时间
func WithExtractionTimeout(timeout time.Duration) InfoExtractorOption {
	return func(e *LLMInfoExtractor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// NewLLMInfoExtractor 创建个人信息提取器
func NewLLMInfoExtractor(llmModel model.ToolCallingChatModel, logger *log.Logger, options ...InfoExtractorOption) *LLMInfoExtractor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	extractor := &LLMInfoExtractor{
		llmModel: llmModel,
		timeout:  30 * time.Second,
		logger:   logger,
	}
	for _, opt := range options {
		opt(extractor)
	}
	return extractor
}

const infoExtractionPrompt = `你是一位专业的简历信息提取助手。请从下面的【简历文本】中提取候选人的个人信息，并严格按照指定的JSON格式输出。

**输出格式（必须是合法JSON，禁止输出任何JSON之外的文本或Markdown标记）：**
{
  "name": "候选人姓名",
  "email": "电子邮箱",
  "phone": "联系电话",
  "location": "所在地",
  "languages": [{"language": "语言名称", "level": "basic/intermediate/advanced/native/professional 之一"}],
  "education": [{"school": "学校", "degree": "学位", "major": "专业", "graduationYear": "毕业年份"}],
  "experience": [{"company": "公司", "position": "职位", "duration": "任职时间", "description": "工作内容", "skills": ["技能"]}],
  "skills": ["技能列表"],
  "summary": "个人简介（100字以内）"
}

**提取规则：**
- 简历中没有的信息，字符串字段输出空字符串，数组字段输出空数组。
- 不要编造简历中不存在的内容。
- 语言能力的 level 必须是给定五个枚举值之一。

【简历文本】:
"""
%s
"""`

// ExtractPersonalInfo 提取个人信息，永不返回错误
func (e *LLMInfoExtractor) ExtractPersonalInfo(ctx context.Context, resumeText string) *types.ExtractedInfo {
	info := &types.ExtractedInfo{}
	if e.llmModel == nil {
		e.logger.Printf("[信息提取] LLM模型未配置，跳过提取")
		return info
	}
	if resumeText == "" {
		return info
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	messages := []*einoschema.Message{
		einoschema.SystemMessage("你是一位只输出JSON的简历信息提取助手。"),
		einoschema.UserMessage(fmt.Sprintf(infoExtractionPrompt, resumeText)),
	}

	response, err := e.llmModel.Generate(ctx, messages)
	if err != nil {
		e.logger.Printf("[信息提取] LLM调用失败: %v", err)
		return info
	}
	if response == nil || response.Content == "" {
		e.logger.Printf("[信息提取] LLM返回空响应")
		return info
	}

	jsonStr := cleanModelJSON(response.Content)
	if jsonStr == "" {
		e.logger.Printf("[信息提取] 无法从LLM响应中定位JSON: %.200s", response.Content)
		return info
	}

	if err := json.Unmarshal([]byte(jsonStr), info); err != nil {
		// 修复字符串内部未转义的引号后再试一次
		if retryErr := json.Unmarshal([]byte(sanitizeJSON(jsonStr)), info); retryErr != nil {
			e.logger.Printf("[信息提取] JSON解析失败: %v (修复后: %v)", err, retryErr)
			return &types.ExtractedInfo{}
		}
	}

	return info
}
