package parser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BCT-Dylan/hr-management-system/internal/types"
)

// fakeChatModel 模拟LLM模型，返回预设响应或错误，并记录每次收到的消息
type fakeChatModel struct {
	mockResponse string
	// 用于测试的错误
	Err error
	// 记录调用次数
	calls int
	// 记录每次调用的消息列表
	received [][]*schema.Message
}

func (m *fakeChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	m.calls++
	m.received = append(m.received, messages)
	if m.Err != nil {
		return nil, m.Err
	}
	return &schema.Message{
		Role:    "assistant",
		Content: m.mockResponse,
	}, nil
}

func (m *fakeChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func (m *fakeChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

// lastPrompt 返回最后一次调用里的用户消息内容
func (m *fakeChatModel) lastPrompt(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, m.received)
	messages := m.received[len(m.received)-1]
	require.Len(t, messages, 2)
	return messages[1].Content
}

// fakePersonalInfo 模拟个人信息提取器
type fakePersonalInfo struct {
	info  *types.ExtractedInfo
	calls int
}

func (f *fakePersonalInfo) ExtractPersonalInfo(ctx context.Context, resumeText string) *types.ExtractedInfo {
	f.calls++
	if f.info == nil {
		return &types.ExtractedInfo{}
	}
	return f.info
}

func scoringRequest() *types.AnalysisRequest {
	return &types.AnalysisRequest{
		ResumeText:           "五年Go後端開發經驗，熟悉MySQL與Redis。",
		JobTitle:             "資深後端工程師",
		JobDescription:       "負責招聘系統後端服務開發。",
		JobDescriptionDetail: "需要獨立負責微服務模組的設計與交付。",
		Rubric: &types.ScoringRubric{
			TechnicalSkills: types.TechnicalSkillsCriteria{
				Weight:          30,
				RequiredSkills:  []string{"Go", "MySQL"},
				PreferredSkills: []string{"Redis"},
			},
			Experience: types.ExperienceCriteria{
				Weight:           25,
				MinYears:         3,
				PreferredDomains: []string{"招聘系統"},
			},
			Education: types.EducationCriteria{
				Weight:          20,
				MinDegree:       "bachelor",
				PreferredMajors: []string{"資訊工程"},
			},
			Languages: types.LanguagesCriteria{
				Weight:            15,
				RequiredLanguages: []string{"Chinese", "English"},
			},
			SoftSkills: types.SoftSkillsCriteria{
				Weight:          10,
				PreferredSkills: []string{"溝通能力"},
			},
		},
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	mock := &fakeChatModel{mockResponse: "```json\n" + `{
		"matchPercentage": 85,
		"analysis": "技術技能(權重30%)貢獻26分",
		"strengths": ["後端經驗豐富"],
		"weaknesses": ["缺少團隊管理經驗"],
		"recommendations": ["建議進入面試"]
	}` + "\n```"}
	scorer := NewLLMFitScorer(mock, nil)

	result, err := scorer.Analyze(context.Background(), scoringRequest())

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 85, result.MatchPercentage)
	assert.Contains(t, result.Analysis, "技術技能")
	assert.Equal(t, []string{"後端經驗豐富"}, result.Strengths)
	assert.Equal(t, 1, mock.calls)
}

func TestAnalyzeReextractsPersonalInfo(t *testing.T) {
	info := &fakePersonalInfo{info: &types.ExtractedInfo{
		Name:     "張偉",
		Email:    "zhangwei@example.com",
		Location: "台北",
	}}
	mock := &fakeChatModel{mockResponse: `{"matchPercentage": 70, "analysis": "尚可"}`}
	scorer := NewLLMFitScorer(mock, nil, WithInfoExtractor(info))

	result, err := scorer.Analyze(context.Background(), scoringRequest())

	require.NoError(t, err)
	assert.Equal(t, 1, info.calls, "每次評估都要重新執行信息提取")
	require.NotNil(t, result.ExtractedInfo)
	assert.Equal(t, "張偉", result.ExtractedInfo.Name)
	assert.Equal(t, "台北", result.ExtractedInfo.Location)

	prompt := mock.lastPrompt(t)
	assert.Contains(t, prompt, "【已提取的個人資訊】")
	assert.Contains(t, prompt, "zhangwei@example.com")

	_, err = scorer.Analyze(context.Background(), scoringRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, info.calls)
}

func TestAnalyzeScorePassedThrough(t *testing.T) {
	// 分数原样透传，不做任何钳制
	scorer := NewLLMFitScorer(&fakeChatModel{
		mockResponse: `{"matchPercentage": 150, "analysis": "超出範圍"}`,
	}, nil)

	result, err := scorer.Analyze(context.Background(), scoringRequest())
	require.NoError(t, err)
	assert.Equal(t, 150, result.MatchPercentage)

	scorer = NewLLMFitScorer(&fakeChatModel{
		mockResponse: `{"matchPercentage": -5, "analysis": "負分"}`,
	}, nil)

	result, err = scorer.Analyze(context.Background(), scoringRequest())
	require.NoError(t, err)
	assert.Equal(t, -5, result.MatchPercentage)
}

func TestAnalyzeTransportError(t *testing.T) {
	mock := &fakeChatModel{Err: errors.New("connection refused")}
	info := &fakePersonalInfo{info: &types.ExtractedInfo{Name: "張偉"}}
	scorer := NewLLMFitScorer(mock, nil, WithScorerRetry(1, time.Millisecond), WithInfoExtractor(info))

	result, err := scorer.Analyze(context.Background(), scoringRequest())

	// 传输错误：error非nil，结果退化为哨兵，且按配置重试过一次
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.MatchPercentage)
	assert.Contains(t, result.Analysis, "自動分析失敗")
	assert.Equal(t, []string{"履歷格式清晰"}, result.Strengths)
	assert.Equal(t, []string{"無法完成自動分析"}, result.Weaknesses)
	assert.Equal(t, []string{"建議人工審核"}, result.Recommendations)
	assert.Equal(t, 2, mock.calls)

	// 已完成的信息提取结果随哨兵一并返回
	require.NotNil(t, result.ExtractedInfo)
	assert.Equal(t, "張偉", result.ExtractedInfo.Name)
}

func TestAnalyzeMalformedResponse(t *testing.T) {
	scorer := NewLLMFitScorer(&fakeChatModel{mockResponse: "抱歉，我無法完成這項評估。"}, nil)

	result, err := scorer.Analyze(context.Background(), scoringRequest())

	// 格式错误的回复不算失败：error为nil，结果是哨兵
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.MatchPercentage)
	assert.Equal(t, []string{"建議人工審核"}, result.Recommendations)
}

func TestAnalyzeNotConfigured(t *testing.T) {
	scorer := NewLLMFitScorer(nil, nil)
	assert.False(t, scorer.Configured())

	result, err := scorer.Analyze(context.Background(), scoringRequest())
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.MatchPercentage)
}

func TestBuildPromptContainsRubric(t *testing.T) {
	scorer := NewLLMFitScorer(&fakeChatModel{}, nil)
	req := scoringRequest()
	req.Attachment = "內部推薦候選人"

	prompt := scorer.buildPrompt(req, nil)

	assert.Contains(t, prompt, "資深後端工程師")
	assert.Contains(t, prompt, "【職位詳細要求】")
	assert.Contains(t, prompt, "微服務模組的設計與交付")
	assert.Contains(t, prompt, "技術技能（權重 30%）")
	assert.Contains(t, prompt, "必需技能: Go, MySQL")
	assert.Contains(t, prompt, "最少年資: 3 年")
	assert.Contains(t, prompt, "最低學歷: 學士")
	assert.Contains(t, prompt, "必需語言: Chinese, English")
	assert.Contains(t, prompt, "【HR備註】")
	assert.Contains(t, prompt, "內部推薦候選人")
	assert.Contains(t, prompt, "90-100分")
}

func TestBuildPromptDetailFallback(t *testing.T) {
	scorer := NewLLMFitScorer(&fakeChatModel{}, nil)
	req := scoringRequest()
	req.JobDescriptionDetail = "  "

	prompt := scorer.buildPrompt(req, nil)
	assert.Contains(t, prompt, "無額外詳細要求")
}

func TestRenderRubricSkipsZeroWeight(t *testing.T) {
	rubric := &types.ScoringRubric{
		TechnicalSkills: types.TechnicalSkillsCriteria{Weight: 60, RequiredSkills: []string{"Go"}},
		Experience:      types.ExperienceCriteria{Weight: 0, PreferredDomains: []string{"不參與評估"}},
		SoftSkills:      types.SoftSkillsCriteria{Weight: 40},
	}

	rendered := renderRubric(rubric)

	assert.Contains(t, rendered, "技術技能（權重 60%）")
	assert.Contains(t, rendered, "必需技能: Go")
	assert.Contains(t, rendered, "軟技能（權重 40%）")
	assert.NotContains(t, rendered, "工作經驗")
	assert.NotContains(t, rendered, "不參與評估")
	assert.Empty(t, renderRubric(nil))
}

func TestRenderRubricUnknownDegreePassedThrough(t *testing.T) {
	rubric := &types.ScoringRubric{
		Education: types.EducationCriteria{Weight: 100, MinDegree: "postdoc"},
	}
	assert.Contains(t, renderRubric(rubric), "最低學歷: postdoc")
}
