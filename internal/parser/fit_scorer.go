package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"

	"github.com/BCT-Dylan/hr-management-system/internal/types"
)

// llmFitScoreResponse LLM评估结果的原始JSON结构
type llmFitScoreResponse struct {
	MatchPercentage int      `json:"matchPercentage"`
	Analysis        string   `json:"analysis"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
}

// degreeDisplayNames 记分规则里学历要求的展示名
var degreeDisplayNames = map[string]string{
	"high_school": "高中",
	"associate":   "專科",
	"bachelor":    "學士",
	"master":      "碩士",
	"doctorate":   "博士",
}

// PersonalInfoExtractor 评分前置的个人信息提取能力
type PersonalInfoExtractor interface {
	ExtractPersonalInfo(ctx context.Context, resumeText string) *types.ExtractedInfo
}

// LLMFitScorer 基于岗位记分规则评估简历适配度。
//
// 每次评估先对简历文本重新执行个人信息提取，把提取结果嵌入
// 评估提示词并随结果一并返回，调用方不应假设这一步是免费的。
//
// Analyze 的返回值永远非nil：内部任何失败都会退化为哨兵结果
// （0分、固定的优劣势占位与人工复核建议）。error 仅在模型调用本身
// 失败（网络、鉴权、超时）时非nil，格式错误的模型回复被吞掉并返回哨兵。
type LLMFitScorer struct {
	llmModel    model.ToolCallingChatModel
	info        PersonalInfoExtractor
	evalTimeout time.Duration
	maxRetries  int
	retryWait   time.Duration
	logger      *log.Logger
}

// FitScorerOption 评分器的配置选项
type FitScorerOption func(*LLMFitScorer)

// WithEvalTimeout 设置单次评估的超时时间
func WithEvalTimeout(timeout time.Duration) FitScorerOption {
	return func(s *LLMFitScorer) {
		if timeout > 0 {
			s.evalTimeout = timeout
		}
	}
}

// WithInfoExtractor 设置评估前置的个人信息提取器
func WithInfoExtractor(info PersonalInfoExtractor) FitScorerOption {
	return func(s *LLMFitScorer) {
		s.info = info
	}
}

// WithScorerRetry 设置传输错误时的重试次数和等待时间
func WithScorerRetry(maxRetries int, wait time.Duration) FitScorerOption {
	return func(s *LLMFitScorer) {
		if maxRetries >= 0 {
			s.maxRetries = maxRetries
		}
		if wait > 0 {
			s.retryWait = wait
		}
	}
}

// NewLLMFitScorer 创建适配度评分器
func NewLLMFitScorer(llmModel model.ToolCallingChatModel, logger *log.Logger, options ...FitScorerOption) *LLMFitScorer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	scorer := &LLMFitScorer{
		llmModel:    llmModel,
		evalTimeout: 60 * time.Second,
		maxRetries:  1,
		retryWait:   2 * time.Second,
		logger:      logger,
	}
	for _, opt := range options {
		opt(scorer)
	}
	return scorer
}

// Configured 评分器是否具备可用的LLM模型
func (s *LLMFitScorer) Configured() bool {
	return s != nil && s.llmModel != nil
}

// Analyze 评估简历与岗位的适配度。先重新提取个人信息，
// 再带着提取结果做评估，两次模型调用。
func (s *LLMFitScorer) Analyze(ctx context.Context, req *types.AnalysisRequest) (*types.AnalysisResult, error) {
	if !s.Configured() {
		err := fmt.Errorf("適配度評分器未配置LLM模型")
		return failureResult(err, nil), err
	}
	if req == nil || req.ResumeText == "" {
		err := fmt.Errorf("評估請求缺少簡歷文本")
		return failureResult(err, nil), err
	}

	// 提取永不失败，最差返回零值结构体
	var info *types.ExtractedInfo
	if s.info != nil {
		info = s.info.ExtractPersonalInfo(ctx, req.ResumeText)
	}

	prompt := s.buildPrompt(req, info)
	messages := []*einoschema.Message{
		einoschema.SystemMessage("你是一位資深的AI招聘專家，專注於分析職位要求與候選人履歷的適配程度，只輸出JSON。"),
		einoschema.UserMessage(prompt),
	}

	response, err := s.generateWithRetry(ctx, messages)
	if err != nil {
		s.logger.Printf("[適配度評分] LLM調用失敗: %v", err)
		return failureResult(err, info), err
	}

	if response == nil || response.Content == "" {
		s.logger.Printf("[適配度評分] LLM返回空響應")
		return failureResult(fmt.Errorf("LLM返回空響應"), info), nil
	}

	jsonStr := cleanModelJSON(response.Content)
	if jsonStr == "" {
		s.logger.Printf("[適配度評分] 無法從響應中定位JSON: %.200s", response.Content)
		return failureResult(fmt.Errorf("響應中未找到JSON"), info), nil
	}
	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	var raw llmFitScoreResponse
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		if retryErr := json.Unmarshal([]byte(sanitizeJSON(jsonStr)), &raw); retryErr != nil {
			s.logger.Printf("[適配度評分] JSON解析失敗: %v (修復後: %v)", err, retryErr)
			return failureResult(fmt.Errorf("JSON解析失敗: %v", err), info), nil
		}
	}

	// 分数不做任何钳制，模型给出什么就存什么
	return &types.AnalysisResult{
		MatchPercentage: raw.MatchPercentage,
		Analysis:        raw.Analysis,
		Strengths:       raw.Strengths,
		Weaknesses:      raw.Weaknesses,
		Recommendations: raw.Recommendations,
		ExtractedInfo:   info,
	}, nil
}

// generateWithRetry 在传输错误时按配置重试模型调用，每次调用都受超时约束
func (s *LLMFitScorer) generateWithRetry(ctx context.Context, messages []*einoschema.Message) (*einoschema.Message, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Printf("[適配度評分] 第 %d 次重試", attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.retryWait):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, s.evalTimeout)
		response, err := s.llmModel.Generate(callCtx, messages)
		cancel()
		if err == nil {
			return response, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// failureResult 评估失败时的哨兵结果，保留记录并提示人工复核。
// 已完成的个人信息提取结果不丢弃。
func failureResult(err error, info *types.ExtractedInfo) *types.AnalysisResult {
	return &types.AnalysisResult{
		MatchPercentage: 0,
		Analysis:        fmt.Sprintf("自動分析失敗: %v", err),
		Strengths:       []string{"履歷格式清晰"},
		Weaknesses:      []string{"無法完成自動分析"},
		Recommendations: []string{"建議人工審核"},
		ExtractedInfo:   info,
	}
}

// buildPrompt 构建评估提示词：岗位信息 + 加权记分规则 + 分数区间指引
func (s *LLMFitScorer) buildPrompt(req *types.AnalysisRequest, info *types.ExtractedInfo) string {
	var sb strings.Builder

	sb.WriteString("請基於下面的【職位描述】、【評分規則】與【候選人履歷】，進行深度對比分析，")
	sb.WriteString("並嚴格按照指定的JSON格式輸出適配度評估。\n\n")

	sb.WriteString("**輸出格式（必須是合法JSON，禁止輸出JSON之外的任何文本或Markdown標記）：**\n")
	sb.WriteString(`{
  "matchPercentage": 0到100的整數,
  "analysis": "整體分析（逐項說明每個評分類別的權重與得分貢獻，例如：工作經驗(權重40%)貢獻32分）",
  "strengths": ["候選人與職位高度匹配的具體優勢"],
  "weaknesses": ["候選人相對職位要求的具體不足"],
  "recommendations": ["針對招聘決策的具體建議"]
}`)
	sb.WriteString("\n\n**評分區間指引：**\n")
	sb.WriteString("- 90-100分: 完全符合，所有關鍵要求均出色滿足\n")
	sb.WriteString("- 80-89分: 高度符合，核心要求高度匹配\n")
	sb.WriteString("- 70-79分: 大致符合，大部分要求滿足\n")
	sb.WriteString("- 60-69分: 部分符合，存在明顯差距\n")
	sb.WriteString("- 50-59分: 勉強符合，僅滿足少數要求\n")
	sb.WriteString("- 0-49分: 不符合，關鍵要求缺失\n\n")

	fmt.Fprintf(&sb, "【職位名稱】: %s\n\n", req.JobTitle)
	fmt.Fprintf(&sb, "【職位描述】:\n\"\"\"\n%s\n\"\"\"\n\n", req.JobDescription)

	detail := strings.TrimSpace(req.JobDescriptionDetail)
	if detail == "" {
		detail = "無額外詳細要求"
	}
	fmt.Fprintf(&sb, "【職位詳細要求】:\n\"\"\"\n%s\n\"\"\"\n\n", detail)

	if rubric := renderRubric(req.Rubric); rubric != "" {
		fmt.Fprintf(&sb, "【評分規則】（各類別按權重加權計分）:\n%s\n", rubric)
	}

	if req.Attachment != "" {
		fmt.Fprintf(&sb, "【HR備註】（僅作參考）:\n%s\n\n", req.Attachment)
	}

	fmt.Fprintf(&sb, "【候選人履歷】:\n\"\"\"\n%s\n\"\"\"\n\n", req.ResumeText)

	if info != nil {
		if infoJSON, err := json.MarshalIndent(info, "", "  "); err == nil {
			fmt.Fprintf(&sb, "【已提取的個人資訊】:\n%s\n\n", infoJSON)
		}
	}

	sb.WriteString("請仔細評估並輸出JSON結果。")

	return sb.String()
}

// renderRubric 渲染加权记分规则，权重为0的类别不参与评估。
// 学历枚举值替换为展示名，未知枚举原样输出。
func renderRubric(rubric *types.ScoringRubric) string {
	if rubric == nil {
		return ""
	}

	var sb strings.Builder
	writeList := func(label string, items []string) {
		if len(items) > 0 {
			fmt.Fprintf(&sb, "  %s: %s\n", label, strings.Join(items, ", "))
		}
	}

	if w := rubric.TechnicalSkills.Weight; w > 0 {
		fmt.Fprintf(&sb, "- 技術技能（權重 %d%%）\n", w)
		writeList("必需技能", rubric.TechnicalSkills.RequiredSkills)
		writeList("加分技能", rubric.TechnicalSkills.PreferredSkills)
	}

	if w := rubric.Experience.Weight; w > 0 {
		fmt.Fprintf(&sb, "- 工作經驗（權重 %d%%）\n", w)
		fmt.Fprintf(&sb, "  最少年資: %d 年\n", rubric.Experience.MinYears)
		writeList("偏好領域", rubric.Experience.PreferredDomains)
	}

	if w := rubric.Education.Weight; w > 0 {
		fmt.Fprintf(&sb, "- 學歷要求（權重 %d%%）\n", w)
		degree := rubric.Education.MinDegree
		if display, ok := degreeDisplayNames[degree]; ok {
			degree = display
		}
		if degree != "" {
			fmt.Fprintf(&sb, "  最低學歷: %s\n", degree)
		}
		writeList("偏好科系", rubric.Education.PreferredMajors)
	}

	if w := rubric.Languages.Weight; w > 0 {
		fmt.Fprintf(&sb, "- 語言能力（權重 %d%%）\n", w)
		writeList("必需語言", rubric.Languages.RequiredLanguages)
	}

	if w := rubric.SoftSkills.Weight; w > 0 {
		fmt.Fprintf(&sb, "- 軟技能（權重 %d%%）\n", w)
		writeList("重視技能", rubric.SoftSkills.PreferredSkills)
	}

	return sb.String()
}
