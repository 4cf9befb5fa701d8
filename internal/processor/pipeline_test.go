package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/BCT-Dylan/hr-management-system/internal/constants"
	"github.com/BCT-Dylan/hr-management-system/internal/parser"
	"github.com/BCT-Dylan/hr-management-system/internal/storage/models"
	"github.com/BCT-Dylan/hr-management-system/internal/types"
)

// ----- 测试替身 -----

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractText(ctx context.Context, fileName, contentType string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeInfoExtractor struct {
	info  *types.ExtractedInfo
	calls int
}

func (f *fakeInfoExtractor) ExtractPersonalInfo(ctx context.Context, resumeText string) *types.ExtractedInfo {
	f.calls++
	if f.info == nil {
		return &types.ExtractedInfo{}
	}
	return f.info
}

type fakeScorer struct {
	configured bool
	result     *types.AnalysisResult
	err        error
	calls      int
	lastReq    *types.AnalysisRequest
}

func (f *fakeScorer) Configured() bool {
	return f.configured
}

func (f *fakeScorer) Analyze(ctx context.Context, req *types.AnalysisRequest) (*types.AnalysisResult, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return &types.AnalysisResult{
			MatchPercentage: 0,
			Analysis:        "AI 分析失敗",
			Strengths:       []string{"履歷格式清晰"},
			Weaknesses:      []string{"無法完成自動分析"},
			Recommendations: []string{"建議人工審核"},
		}, f.err
	}
	return f.result, nil
}

type fakeRecords struct {
	mu         sync.Mutex
	jobs       map[string]*models.JobPosting
	applicants map[string]*models.Applicant
	stuck      []models.Applicant
	createErr  error
	updateErr  error
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		jobs:       make(map[string]*models.JobPosting),
		applicants: make(map[string]*models.Applicant),
	}
}

func (f *fakeRecords) GetJobByID(ctx context.Context, jobID string) (*models.JobPosting, error) {
	return f.jobs[jobID], nil
}

func (f *fakeRecords) CreateApplicant(ctx context.Context, applicant *models.Applicant) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if applicant.ApplicantID == "" {
		applicant.ApplicantID = fmt.Sprintf("applicant-%d", len(f.applicants)+1)
	}
	cp := *applicant
	f.applicants[applicant.ApplicantID] = &cp
	return nil
}

func (f *fakeRecords) GetApplicantByID(ctx context.Context, applicantID string) (*models.Applicant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.applicants[applicantID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRecords) UpdateApplicantFields(ctx context.Context, applicantID string, updates map[string]interface{}) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.applicants[applicantID]
	if !ok {
		return nil
	}
	for field, value := range updates {
		switch field {
		case "processing_status":
			a.ProcessingStatus = value.(string)
		case "resume_file_path":
			a.ResumeFilePath = value.(string)
		case "name":
			a.Name = value.(string)
		case "email":
			a.Email = value.(string)
		case "phone":
			a.Phone = value.(string)
		case "location":
			a.Location = value.(string)
		case "extracted_info_json":
			a.ExtractedInfoJSON = value.(datatypes.JSON)
		case "match_percentage":
			v := value.(int)
			a.MatchPercentage = &v
		case "ai_summary":
			a.AISummary = value.(string)
		case "ai_analysis_summary":
			a.AIAnalysisSummary = value.(string)
		case "analysis_completed":
			a.AnalysisCompleted = value.(bool)
		case "analyzed_at":
			v := value.(time.Time)
			a.AnalyzedAt = &v
		}
	}
	return nil
}

func (f *fakeRecords) ListApplicantsByJob(ctx context.Context, jobID string) ([]models.Applicant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Applicant
	for _, a := range f.applicants {
		if a.JobID == jobID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeRecords) ListStuckApplicants(ctx context.Context, threshold time.Duration) ([]models.Applicant, error) {
	return f.stuck, nil
}

type fakeObjects struct {
	uploadErr     error
	uploadedKeys  []string
	parsedUploads int
}

func (f *fakeObjects) UploadResumeFileStreaming(ctx context.Context, applicantID, fileExt string, reader io.Reader, fileSize int64) (string, string, error) {
	if f.uploadErr != nil {
		return "", "", f.uploadErr
	}
	key := fmt.Sprintf("resume/%s/original%s", applicantID, fileExt)
	f.uploadedKeys = append(f.uploadedKeys, key)
	return key, "d41d8cd98f00b204e9800998ecf8427e", nil
}

func (f *fakeObjects) UploadParsedText(ctx context.Context, applicantID string, text string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.parsedUploads++
	return fmt.Sprintf("resume/%s/parsed_text.txt", applicantID), nil
}

type fakeLocker struct {
	held       bool
	acquireErr error
	released   int
}

func (f *fakeLocker) AcquireAnalysisLock(ctx context.Context, applicantID string) (string, error) {
	if f.acquireErr != nil {
		return "", f.acquireErr
	}
	if f.held {
		return "", nil
	}
	return "lock-value-1", nil
}

func (f *fakeLocker) ReleaseAnalysisLock(ctx context.Context, applicantID, lockValue string) (bool, error) {
	f.released++
	return true, nil
}

type fakeStatuses struct {
	status *models.ApplicationStatus
	err    error
}

func (f *fakeStatuses) Default(ctx context.Context) (*models.ApplicationStatus, error) {
	return f.status, f.err
}

// ----- 构造辅助 -----

func testJob(aiEnabled bool) *models.JobPosting {
	return &models.JobPosting{
		JobID:             "job-1",
		Title:             "資深後端工程師",
		Description:       "負責核心服務開發",
		DescriptionDetail: "熟悉高併發與訊息佇列",
		AIAnalysisEnabled: aiEnabled,
	}
}

func goodResult() *types.AnalysisResult {
	return &types.AnalysisResult{
		MatchPercentage: 85,
		Analysis:        "候選人具備扎實的後端經驗",
		Strengths:       []string{"五年Go經驗", "熟悉分散式系統"},
		Weaknesses:      []string{"缺乏前端經驗"},
		Recommendations: []string{"建議安排技術面試"},
	}
}

func newTestProcessor(records *fakeRecords, comps ...ComponentOpt) *ResumeProcessor {
	opts := append([]ComponentOpt{WithcompRecords(records)}, comps...)
	return NewResumeProcessor(opts, nil)
}

func uploadInput() *UploadInput {
	return &UploadInput{
		JobID:       "job-1",
		FileName:    "resume.pdf",
		ContentType: "application/pdf",
		Data:        []byte("%PDF-1.4 fake"),
	}
}

// ----- 上传流水线 -----

func TestProcessUploadFullPipeline(t *testing.T) {
	records := newFakeRecords()
	records.jobs["job-1"] = testJob(true)
	objects := &fakeObjects{}
	scorer := &fakeScorer{configured: true, result: goodResult()}
	statuses := &fakeStatuses{status: &models.ApplicationStatus{StatusID: "status-1", Name: "pending"}}

	rp := newTestProcessor(records,
		WithcompExtractor(&fakeExtractor{text: "張偉 五年Go開發經驗"}),
		WithcompInfoextractor(&fakeInfoExtractor{info: &types.ExtractedInfo{
			Name: "張偉", Email: "zhangwei@example.com", Phone: "0912345678", Location: "台北",
		}}),
		WithcompScorer(scorer),
		WithcompObjects(objects),
		WithcompStatuses(statuses),
	)

	applicant, err := rp.ProcessUpload(context.Background(), uploadInput())
	require.NoError(t, err)
	require.NotNil(t, applicant)

	assert.Equal(t, "張偉", applicant.Name)
	assert.Equal(t, "zhangwei@example.com", applicant.Email)
	assert.Equal(t, "台北", applicant.Location)
	assert.Equal(t, constants.ProcessingStatusCompleted, applicant.ProcessingStatus)
	require.NotNil(t, applicant.MatchPercentage)
	assert.Equal(t, 85, *applicant.MatchPercentage)
	assert.True(t, applicant.AnalysisCompleted)
	require.NotNil(t, applicant.AnalyzedAt)
	require.NotNil(t, applicant.StatusID)
	assert.Equal(t, "status-1", *applicant.StatusID)
	assert.Equal(t, 1, scorer.calls)
	assert.Len(t, objects.uploadedKeys, 1)
	assert.Equal(t, 1, objects.parsedUploads)

	stored, err := records.GetApplicantByID(context.Background(), applicant.ApplicantID)
	require.NoError(t, err)
	assert.Contains(t, stored.AIAnalysisSummary, "適配度: 85%")
	assert.Contains(t, stored.AIAnalysisSummary, "• 五年Go經驗")
	assert.Equal(t, "候選人具備扎實的後端經驗", stored.AISummary)
}

func TestProcessUploadJobNotFound(t *testing.T) {
	records := newFakeRecords()
	rp := newTestProcessor(records, WithcompExtractor(&fakeExtractor{text: "文本"}))

	_, err := rp.ProcessUpload(context.Background(), uploadInput())
	require.ErrorIs(t, err, ErrJobNotFound)
	assert.Empty(t, records.applicants)
}

func TestProcessUploadExtractFailureNoRecord(t *testing.T) {
	records := newFakeRecords()
	records.jobs["job-1"] = testJob(true)
	extractErr := &parser.ExtractError{Kind: parser.ExtractErrParseFailure, FileName: "resume.pdf", Reason: "文件损坏"}
	rp := newTestProcessor(records, WithcompExtractor(&fakeExtractor{err: extractErr}))

	_, err := rp.ProcessUpload(context.Background(), uploadInput())
	var ee *parser.ExtractError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, parser.ExtractErrParseFailure, ee.Kind)
	assert.Empty(t, records.applicants, "提取失败不应建档")
}

func TestProcessUploadScorerTransportError(t *testing.T) {
	records := newFakeRecords()
	records.jobs["job-1"] = testJob(true)
	scorer := &fakeScorer{configured: true, err: errors.New("连接超时")}

	rp := newTestProcessor(records,
		WithcompExtractor(&fakeExtractor{text: "文本"}),
		WithcompScorer(scorer),
	)

	applicant, err := rp.ProcessUpload(context.Background(), uploadInput())
	require.NoError(t, err, "模型调用失败应落库为failed而非向上抛错")
	assert.Equal(t, constants.ProcessingStatusFailed, applicant.ProcessingStatus)
	assert.Contains(t, applicant.AIAnalysisSummary, "AI 分析失敗:")
	assert.Contains(t, applicant.AIAnalysisSummary, "连接超时")
	assert.False(t, applicant.AnalysisCompleted)
	assert.Nil(t, applicant.MatchPercentage)

	stored, getErr := records.GetApplicantByID(context.Background(), applicant.ApplicantID)
	require.NoError(t, getErr)
	require.NotNil(t, stored, "失败的记录必须保留可查")
}

func TestProcessUploadAnalysisDisabled(t *testing.T) {
	records := newFakeRecords()
	records.jobs["job-1"] = testJob(false)
	scorer := &fakeScorer{configured: true, result: goodResult()}
	info := &fakeInfoExtractor{info: &types.ExtractedInfo{Name: "張偉"}}

	rp := newTestProcessor(records,
		WithcompExtractor(&fakeExtractor{text: "文本"}),
		WithcompInfoextractor(info),
		WithcompScorer(scorer),
	)

	applicant, err := rp.ProcessUpload(context.Background(), uploadInput())
	require.NoError(t, err)
	assert.Equal(t, constants.ProcessingStatusCompleted, applicant.ProcessingStatus)
	assert.Nil(t, applicant.MatchPercentage)
	assert.False(t, applicant.AnalysisCompleted)
	assert.Zero(t, scorer.calls)
	assert.Zero(t, info.calls, "关闭AI分析时不做个人信息抽取")
	assert.Equal(t, constants.PlaceholderName, applicant.Name)
}

func TestProcessUploadScorerNotConfigured(t *testing.T) {
	records := newFakeRecords()
	records.jobs["job-1"] = testJob(true)
	scorer := &fakeScorer{configured: false}

	rp := newTestProcessor(records,
		WithcompExtractor(&fakeExtractor{text: "文本"}),
		WithcompScorer(scorer),
	)

	applicant, err := rp.ProcessUpload(context.Background(), uploadInput())
	require.NoError(t, err)
	assert.Equal(t, constants.ProcessingStatusCompleted, applicant.ProcessingStatus)
	assert.Zero(t, scorer.calls)
}

func TestProcessUploadObjectStorageFailureTolerated(t *testing.T) {
	records := newFakeRecords()
	records.jobs["job-1"] = testJob(true)
	objects := &fakeObjects{uploadErr: errors.New("minio不可用")}
	scorer := &fakeScorer{configured: true, result: goodResult()}

	rp := newTestProcessor(records,
		WithcompExtractor(&fakeExtractor{text: "文本"}),
		WithcompScorer(scorer),
		WithcompObjects(objects),
	)

	applicant, err := rp.ProcessUpload(context.Background(), uploadInput())
	require.NoError(t, err, "对象存储故障不应阻断流水线")
	assert.Equal(t, constants.ProcessingStatusCompleted, applicant.ProcessingStatus)
	assert.Empty(t, applicant.ResumeFilePath)
}

func TestProcessUploadDefaultStatusFailureTolerated(t *testing.T) {
	records := newFakeRecords()
	records.jobs["job-1"] = testJob(false)
	statuses := &fakeStatuses{err: errors.New("redis与mysql都不可用")}

	rp := newTestProcessor(records,
		WithcompExtractor(&fakeExtractor{text: "文本"}),
		WithcompStatuses(statuses),
	)

	applicant, err := rp.ProcessUpload(context.Background(), uploadInput())
	require.NoError(t, err)
	assert.Nil(t, applicant.StatusID)
}

func TestProcessUploadNamePlaceholderWhenMissing(t *testing.T) {
	records := newFakeRecords()
	records.jobs["job-1"] = testJob(true)
	scorer := &fakeScorer{configured: true, result: goodResult()}

	rp := newTestProcessor(records,
		WithcompExtractor(&fakeExtractor{text: "文本"}),
		WithcompInfoextractor(&fakeInfoExtractor{info: &types.ExtractedInfo{Name: "  "}}),
		WithcompScorer(scorer),
	)

	applicant, err := rp.ProcessUpload(context.Background(), uploadInput())
	require.NoError(t, err)
	assert.Equal(t, constants.PlaceholderName, applicant.Name)
}

func TestProcessUploadNotesEnterScoringAndSummary(t *testing.T) {
	records := newFakeRecords()
	records.jobs["job-1"] = testJob(true)
	scorer := &fakeScorer{configured: true, result: goodResult()}

	rp := newTestProcessor(records,
		WithcompExtractor(&fakeExtractor{text: "文本"}),
		WithcompScorer(scorer),
	)

	input := uploadInput()
	input.Notes = "內部推薦"
	applicant, err := rp.ProcessUpload(context.Background(), input)
	require.NoError(t, err)

	require.NotNil(t, scorer.lastReq)
	assert.Equal(t, "內部推薦", scorer.lastReq.Attachment)
	assert.Equal(t, "熟悉高併發與訊息佇列", scorer.lastReq.JobDescriptionDetail)
	assert.Equal(t, "內部推薦", applicant.Notes)
	assert.True(t, strings.HasPrefix(applicant.AIAnalysisSummary, "備註: 內部推薦\n\nAI 分析:"))
}

// ----- 摘要组装 -----

func TestComposeSummaryWithHRNotes(t *testing.T) {
	summary := composeSummary("推薦人介紹", goodResult())
	assert.True(t, strings.HasPrefix(summary, "備註: 推薦人介紹\n\nAI 分析:"))
	assert.Contains(t, summary, "適配度: 85%")
	assert.Contains(t, summary, "優勢:\n• 五年Go經驗\n• 熟悉分散式系統")
	assert.Contains(t, summary, "待改善:\n• 缺乏前端經驗")
	assert.Contains(t, summary, "建議:\n• 建議安排技術面試")
}

func TestComposeSummaryWithoutHRNotes(t *testing.T) {
	summary := composeSummary("", goodResult())
	assert.True(t, strings.HasPrefix(summary, "AI 分析:"))
	assert.NotContains(t, summary, "備註:")
}

func TestComposeFailureSummaryKeepsNotes(t *testing.T) {
	summary := composeFailureSummary("內部推薦", errors.New("连接超时"))
	assert.Equal(t, "備註: 內部推薦\n\nAI 分析失敗: 连接超时", summary)

	assert.Equal(t, "AI 分析失敗: 连接超时", composeFailureSummary("", errors.New("连接超时")))
}

func TestFormatAnalysisSummaryOmitsEmptySections(t *testing.T) {
	result := &types.AnalysisResult{
		MatchPercentage: 60,
		Analysis:        "尚可",
		Strengths:       []string{"經驗相符"},
	}
	summary := formatAnalysisSummary(result)
	assert.Contains(t, summary, "適配度: 60%")
	assert.Contains(t, summary, "優勢:")
	assert.NotContains(t, summary, "待改善:")
	assert.NotContains(t, summary, "建議:")
}

// ----- 记分规则解析 -----

func TestParseRubric(t *testing.T) {
	raw := []byte(`{
		"technical_skills": {"weight": 30, "required_skills": ["Go", "MySQL"], "preferred_skills": ["Redis"]},
		"experience": {"weight": 25, "min_years": 3, "preferred_domains": ["招聘系統"]},
		"education": {"weight": 20, "min_degree": "bachelor", "preferred_majors": ["資訊工程"]},
		"languages": {"weight": 15, "required_languages": ["Chinese", "English"]},
		"soft_skills": {"weight": 10, "preferred_skills": ["溝通能力"]}
	}`)
	rubric := parseRubric(raw, nil)
	require.NotNil(t, rubric)
	assert.Equal(t, 30, rubric.TechnicalSkills.Weight)
	assert.Equal(t, []string{"Go", "MySQL"}, rubric.TechnicalSkills.RequiredSkills)
	assert.Equal(t, 25, rubric.Experience.Weight)
	assert.Equal(t, 3, rubric.Experience.MinYears)
	assert.Equal(t, "bachelor", rubric.Education.MinDegree)
	assert.Equal(t, 15, rubric.Languages.Weight)
	assert.Equal(t, 10, rubric.SoftSkills.Weight)
	assert.Equal(t, 100, rubric.TotalWeight(), "五个类别的权重都要存活")

	assert.Nil(t, parseRubric(nil, nil))
	assert.Nil(t, parseRubric([]byte("not json"), nil))
	assert.Nil(t, parseRubric([]byte(`{"technical_skills":{"weight":0}}`), nil), "全零权重按无规则处理")
}

// ----- 重新分析 -----

func seedApplicant(records *fakeRecords, content string) *models.Applicant {
	a := &models.Applicant{
		ApplicantID:       "applicant-1",
		JobID:             "job-1",
		Name:              "張偉",
		ResumeContent:     content,
		ProcessingStatus:  constants.ProcessingStatusFailed,
		Notes:             "內部推薦",
		AIAnalysisSummary: "備註: 內部推薦\n\nAI 分析失敗: 连接超时",
	}
	records.applicants[a.ApplicantID] = a
	return a
}

func TestReanalyzeSuccess(t *testing.T) {
	records := newFakeRecords()
	records.jobs["job-1"] = testJob(true)
	seedApplicant(records, "已存简历文本")
	locker := &fakeLocker{}
	scorer := &fakeScorer{configured: true, result: goodResult()}

	rp := newTestProcessor(records,
		WithcompScorer(scorer),
		WithcompLocker(locker),
	)

	applicant, err := rp.Reanalyze(context.Background(), "applicant-1")
	require.NoError(t, err)
	assert.Equal(t, constants.ProcessingStatusCompleted, applicant.ProcessingStatus)
	require.NotNil(t, applicant.MatchPercentage)
	assert.Equal(t, 85, *applicant.MatchPercentage)
	assert.Equal(t, 1, locker.released, "锁应在分析结束后释放")

	// 摘要整体重写，历史失败段落消失，HR备注保留
	assert.Contains(t, applicant.AIAnalysisSummary, "備註: 內部推薦")
	assert.Contains(t, applicant.AIAnalysisSummary, "適配度: 85%")
	assert.NotContains(t, applicant.AIAnalysisSummary, "AI 分析失敗")
}

func TestReanalyzeRefreshesExtractedInfo(t *testing.T) {
	records := newFakeRecords()
	records.jobs["job-1"] = testJob(true)
	seedApplicant(records, "已存简历文本")
	result := goodResult()
	result.ExtractedInfo = &types.ExtractedInfo{
		Name:     "張偉强",
		Email:    "new@example.com",
		Phone:    "0987654321",
		Location: "新竹",
	}
	scorer := &fakeScorer{configured: true, result: result}

	rp := newTestProcessor(records, WithcompScorer(scorer))

	applicant, err := rp.Reanalyze(context.Background(), "applicant-1")
	require.NoError(t, err)
	assert.Equal(t, "張偉强", applicant.Name)
	assert.Equal(t, "新竹", applicant.Location)

	// 刷新后的提取结果要落库，而不是只改内存里的结构体
	stored, err := records.GetApplicantByID(context.Background(), "applicant-1")
	require.NoError(t, err)
	assert.Equal(t, "張偉强", stored.Name)
	assert.Equal(t, "new@example.com", stored.Email)
	assert.Equal(t, "0987654321", stored.Phone)
	assert.Equal(t, "新竹", stored.Location)
	assert.NotEmpty(t, stored.ExtractedInfoJSON)
}

func TestReanalyzeApplicantNotFound(t *testing.T) {
	records := newFakeRecords()
	rp := newTestProcessor(records, WithcompScorer(&fakeScorer{configured: true}))

	_, err := rp.Reanalyze(context.Background(), "missing")
	require.ErrorIs(t, err, ErrApplicantNotFound)
}

func TestReanalyzeNoStoredContent(t *testing.T) {
	records := newFakeRecords()
	records.jobs["job-1"] = testJob(true)
	seedApplicant(records, "   ")
	scorer := &fakeScorer{configured: true, result: goodResult()}

	rp := newTestProcessor(records, WithcompScorer(scorer))

	_, err := rp.Reanalyze(context.Background(), "applicant-1")
	require.ErrorIs(t, err, ErrNoStoredContent)
	assert.Zero(t, scorer.calls, "缺少文本时不应发起外部调用")
}

func TestReanalyzeAnalysisDisabledRejected(t *testing.T) {
	records := newFakeRecords()
	records.jobs["job-1"] = testJob(false)
	seedApplicant(records, "已存简历文本")

	rp := newTestProcessor(records, WithcompScorer(&fakeScorer{configured: true}))

	_, err := rp.Reanalyze(context.Background(), "applicant-1")
	require.ErrorIs(t, err, ErrAnalysisUnavailable)
}

func TestReanalyzeLockBusy(t *testing.T) {
	records := newFakeRecords()
	records.jobs["job-1"] = testJob(true)
	seedApplicant(records, "已存简历文本")
	locker := &fakeLocker{held: true}
	scorer := &fakeScorer{configured: true, result: goodResult()}

	rp := newTestProcessor(records,
		WithcompScorer(scorer),
		WithcompLocker(locker),
	)

	_, err := rp.Reanalyze(context.Background(), "applicant-1")
	require.ErrorIs(t, err, ErrAnalysisInProgress)
	assert.Zero(t, scorer.calls)
}

func TestReanalyzeLockFailureDegrades(t *testing.T) {
	records := newFakeRecords()
	records.jobs["job-1"] = testJob(true)
	seedApplicant(records, "已存简历文本")
	locker := &fakeLocker{acquireErr: errors.New("redis不可用")}
	scorer := &fakeScorer{configured: true, result: goodResult()}

	rp := newTestProcessor(records,
		WithcompScorer(scorer),
		WithcompLocker(locker),
	)

	applicant, err := rp.Reanalyze(context.Background(), "applicant-1")
	require.NoError(t, err, "Redis故障时应降级为无锁执行")
	assert.Equal(t, 1, scorer.calls)
	assert.Equal(t, constants.ProcessingStatusCompleted, applicant.ProcessingStatus)
}

// ----- 批量重新分析 -----

func TestReanalyzeAllCountsMixedOutcomes(t *testing.T) {
	records := newFakeRecords()
	records.jobs["job-1"] = testJob(true)
	records.applicants["a1"] = &models.Applicant{ApplicantID: "a1", JobID: "job-1", ResumeContent: "文本一"}
	records.applicants["a2"] = &models.Applicant{ApplicantID: "a2", JobID: "job-1", ResumeContent: ""}
	records.applicants["a3"] = &models.Applicant{ApplicantID: "a3", JobID: "job-1", ResumeContent: "文本三"}
	scorer := &fakeScorer{configured: true, result: goodResult()}

	rp := NewResumeProcessor(
		[]ComponentOpt{WithcompRecords(records), WithcompScorer(scorer)},
		[]SettingOpt{WithsetReanalyzedelay(time.Millisecond)},
	)

	result, err := rp.ReanalyzeAll(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed, "没有已存文本的记录计入失败且不中断批次")
}

func TestReanalyzeAllJobNotFound(t *testing.T) {
	records := newFakeRecords()
	rp := newTestProcessor(records)

	_, err := rp.ReanalyzeAll(context.Background(), "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}

// ----- 卡死清理 -----

func TestReconcileStuck(t *testing.T) {
	records := newFakeRecords()
	records.applicants["a1"] = &models.Applicant{ApplicantID: "a1", ProcessingStatus: constants.ProcessingStatusProcessing}
	records.applicants["a2"] = &models.Applicant{ApplicantID: "a2", ProcessingStatus: constants.ProcessingStatusProcessing}
	records.stuck = []models.Applicant{
		{ApplicantID: "a1", ProcessingStatus: constants.ProcessingStatusProcessing},
		{ApplicantID: "a2", ProcessingStatus: constants.ProcessingStatusProcessing},
	}

	rp := newTestProcessor(records)
	fixed, err := rp.ReconcileStuck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)
	assert.Equal(t, constants.ProcessingStatusFailed, records.applicants["a1"].ProcessingStatus)
	assert.Contains(t, records.applicants["a1"].AIAnalysisSummary, "AI 分析失敗:")
	assert.Equal(t, constants.ProcessingStatusFailed, records.applicants["a2"].ProcessingStatus)
}

func TestReconcileStuckNothingToFix(t *testing.T) {
	records := newFakeRecords()
	rp := newTestProcessor(records)

	fixed, err := rp.ReconcileStuck(context.Background())
	require.NoError(t, err)
	assert.Zero(t, fixed)
}
