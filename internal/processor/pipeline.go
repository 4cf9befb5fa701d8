package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/BCT-Dylan/hr-management-system/internal/constants"
	"github.com/BCT-Dylan/hr-management-system/internal/storage/models"
	"github.com/BCT-Dylan/hr-management-system/internal/tracing"
	"github.com/BCT-Dylan/hr-management-system/internal/types"
)

var pipelineTracer = otel.Tracer("hr-management-system/processor")

// Components 聚合流水线的所有功能组件依赖，便于集中管理和测试替换
type Components struct {
	Extractor DocumentExtractor // 文档文本提取接口
	Info      InfoExtractor     // 个人信息提取接口
	Scorer    FitScorer         // 适配度评分接口

	Records  RecordStore           // 关系库
	Objects  ObjectStore           // 对象存储
	Locker   AnalysisLocker        // 重新分析互斥锁
	Statuses DefaultStatusProvider // 默认招聘状态查询
}

// Settings 纯配置项，不包含任何业务逻辑组件
type Settings struct {
	Debug          bool          // 是否开启调试模式
	Logger         *log.Logger   // 日志记录器
	ReanalyzeDelay time.Duration // 批量重新分析的相邻间隔
	StuckThreshold time.Duration // processing状态卡死判定阈值
}

// ResumeProcessor 简历处理流水线，从上传的文件一路处理到AI评分入库
type ResumeProcessor struct {
	Components
	Settings Settings
}

// NewResumeProcessor 创建简历处理流水线
func NewResumeProcessor(compOpts []ComponentOpt, setOpts []SettingOpt) *ResumeProcessor {
	rp := &ResumeProcessor{
		Settings: Settings{
			Logger:         log.New(io.Discard, "[ResumeProcessor] ", log.LstdFlags),
			ReanalyzeDelay: constants.DefaultReanalyzeDelay,
			StuckThreshold: constants.DefaultStuckThreshold,
		},
	}
	for _, opt := range compOpts {
		opt(&rp.Components)
	}
	for _, opt := range setOpts {
		opt(&rp.Settings)
	}
	return rp
}

// UploadInput 一次简历上传的完整输入
type UploadInput struct {
	JobID       string
	FileName    string
	ContentType string
	Data        []byte
	Notes       string // HR填写的备注，原样入库并进入摘要开头
}

// BatchResult 批量重新分析的汇总结果
type BatchResult struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ProcessUpload 处理一次简历上传：提取文本、抽取个人信息、建档、
// 存文件，最后在岗位开启AI分析且评分器可用时执行适配度评估。
// 文本提取失败会直接返回错误且不建档；建档之后的失败都不会丢记录，
// 评分失败以failed状态落库。
func (rp *ResumeProcessor) ProcessUpload(ctx context.Context, input *UploadInput) (*models.Applicant, error) {
	ctx, span := pipelineTracer.Start(ctx, "processor.ProcessUpload",
		trace.WithAttributes(
			attribute.String("job.id", input.JobID),
			attribute.String("file.name", input.FileName),
			attribute.Int("file.size", len(input.Data)),
		))
	defer span.End()

	job, err := rp.Records.GetJobByID(ctx, input.JobID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, NewDatabaseError("", fmt.Sprintf("查询岗位失败: %v", err))
	}
	if job == nil {
		span.SetStatus(codes.Error, "岗位不存在")
		return nil, ErrJobNotFound
	}

	// 提取失败不建档，类型化错误交给上层映射为具体的HTTP状态码
	resumeText, err := rp.Extractor.ExtractText(ctx, input.FileName, input.ContentType, input.Data)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		return nil, err
	}
	rp.logDebug("提取文本完成: %s, %d字符", input.FileName, len(resumeText))

	applicant := &models.Applicant{
		JobID:            input.JobID,
		Name:             constants.PlaceholderName,
		ResumeFileName:   input.FileName,
		ResumeContent:    resumeText,
		ProcessingStatus: constants.ProcessingStatusProcessing,
		Notes:            input.Notes,
	}

	// 个人信息抽取在建档前执行，抽取永不失败，姓名缺失保留占位名
	if job.AIAnalysisEnabled && rp.Info != nil {
		info := rp.Info.ExtractPersonalInfo(ctx, resumeText)
		if name := strings.TrimSpace(info.Name); name != "" {
			applicant.Name = name
		}
		applicant.Email = info.Email
		applicant.Phone = info.Phone
		applicant.Location = info.Location
		if infoJSON, jsonErr := models.SliceToJSON(info); jsonErr != nil {
			rp.logWarn("序列化个人信息失败: %v", jsonErr)
		} else {
			applicant.ExtractedInfoJSON = infoJSON
		}
	}

	if rp.Statuses != nil {
		// 默认状态查不到不阻断上传，记录保持无状态
		if st, stErr := rp.Statuses.Default(ctx); stErr != nil {
			rp.logWarn("查询默认状态失败，申请人将不带状态建档: %v", stErr)
		} else if st != nil {
			applicant.StatusID = &st.StatusID
		}
	}
	if err := rp.Records.CreateApplicant(ctx, applicant); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, NewDatabaseError("", fmt.Sprintf("创建申请人记录失败: %v", err))
	}
	span.SetAttributes(attribute.String("applicant.id", applicant.ApplicantID))

	rp.storeResumeFiles(ctx, applicant, input, resumeText)

	if !job.AIAnalysisEnabled || rp.Scorer == nil || !rp.Scorer.Configured() {
		// 不评分也要出队，直接标记完成，绝不编造分数
		if err := rp.Records.UpdateApplicantFields(ctx, applicant.ApplicantID, map[string]interface{}{
			"processing_status": constants.ProcessingStatusCompleted,
		}); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
			return nil, NewDatabaseError(applicant.ApplicantID, fmt.Sprintf("更新处理状态失败: %v", err))
		}
		applicant.ProcessingStatus = constants.ProcessingStatusCompleted
		rp.logInfo("岗位 %s 未开启AI分析或评分器不可用，申请人 %s 直接完成", job.JobID, applicant.ApplicantID)
		return applicant, nil
	}

	if err := rp.scoreAndPersist(ctx, job, applicant, resumeText); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, err
	}
	return applicant, nil
}

// storeResumeFiles 原始文件与解析文本双写对象存储。对象存储故障
// 不阻断流水线，数据库里的ResumeContent仍可支撑后续重新分析。
func (rp *ResumeProcessor) storeResumeFiles(ctx context.Context, applicant *models.Applicant, input *UploadInput, resumeText string) {
	if rp.Objects == nil {
		return
	}
	fileExt := strings.ToLower(filepath.Ext(input.FileName))
	objectKey, _, err := rp.Objects.UploadResumeFileStreaming(ctx, applicant.ApplicantID, fileExt,
		bytes.NewReader(input.Data), int64(len(input.Data)))
	if err != nil {
		rp.logWarn("上传原始文件失败，申请人 %s 继续处理: %v", applicant.ApplicantID, err)
	} else {
		applicant.ResumeFilePath = objectKey
		if dbErr := rp.Records.UpdateApplicantFields(ctx, applicant.ApplicantID, map[string]interface{}{
			"resume_file_path": objectKey,
		}); dbErr != nil {
			rp.logWarn("回写文件路径失败: %v", dbErr)
		}
	}
	if _, err := rp.Objects.UploadParsedText(ctx, applicant.ApplicantID, resumeText); err != nil {
		rp.logWarn("上传解析文本失败，申请人 %s 继续处理: %v", applicant.ApplicantID, err)
	}
}

// scoreAndPersist 执行适配度评估并落库。模型调用失败时记录转为
// failed状态并把失败原因写入摘要，评估内容异常但调用成功时
// 仍按完成处理（评分器已返回哨兵结果）。
func (rp *ResumeProcessor) scoreAndPersist(ctx context.Context, job *models.JobPosting, applicant *models.Applicant, resumeText string) error {
	ctx, span := pipelineTracer.Start(ctx, "processor.scoreAndPersist",
		trace.WithAttributes(
			attribute.String("applicant.id", applicant.ApplicantID),
			attribute.String("resume.preview", tracing.SafeResumeContent(resumeText)),
		))
	defer span.End()

	req := &types.AnalysisRequest{
		ResumeText:           resumeText,
		JobTitle:             job.Title,
		JobDescription:       job.Description,
		JobDescriptionDetail: job.DescriptionDetail,
		Rubric:               parseRubric(job.ScoringCriteria, rp.Settings.Logger),
		Attachment:           applicant.Notes,
	}
	result, err := rp.Scorer.Analyze(ctx, req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		rp.logError(err, "申请人 %s AI分析失败", applicant.ApplicantID)
		failSummary := composeFailureSummary(applicant.Notes, err)
		if dbErr := rp.Records.UpdateApplicantFields(ctx, applicant.ApplicantID, map[string]interface{}{
			"processing_status":   constants.ProcessingStatusFailed,
			"ai_analysis_summary": failSummary,
		}); dbErr != nil {
			return NewDatabaseError(applicant.ApplicantID, fmt.Sprintf("记录分析失败状态时出错: %v", dbErr))
		}
		applicant.ProcessingStatus = constants.ProcessingStatusFailed
		applicant.AIAnalysisSummary = failSummary
		return nil
	}

	now := time.Now()
	strengths, _ := models.SliceToJSON(result.Strengths)
	weaknesses, _ := models.SliceToJSON(result.Weaknesses)
	recommends, _ := models.SliceToJSON(result.Recommendations)
	summary := composeSummary(applicant.Notes, result)
	updates := map[string]interface{}{
		"match_percentage":    result.MatchPercentage,
		"ai_summary":          result.Analysis,
		"strengths_json":      strengths,
		"weaknesses_json":     weaknesses,
		"recommends_json":     recommends,
		"ai_analysis_summary": summary,
		"analysis_completed":  true,
		"analyzed_at":         now,
		"processing_status":   constants.ProcessingStatusCompleted,
	}
	// 评估时重新提取的个人信息覆盖存量字段，重新分析也能刷新联系方式
	if info := result.ExtractedInfo; info != nil {
		if infoJSON, jsonErr := models.SliceToJSON(info); jsonErr != nil {
			rp.logWarn("序列化个人信息失败: %v", jsonErr)
		} else {
			updates["extracted_info_json"] = infoJSON
			applicant.ExtractedInfoJSON = infoJSON
		}
		if name := strings.TrimSpace(info.Name); name != "" {
			updates["name"] = name
			applicant.Name = name
		}
		updates["email"] = info.Email
		updates["phone"] = info.Phone
		updates["location"] = info.Location
		applicant.Email = info.Email
		applicant.Phone = info.Phone
		applicant.Location = info.Location
	}
	if err := rp.Records.UpdateApplicantFields(ctx, applicant.ApplicantID, updates); err != nil {
		return NewDatabaseError(applicant.ApplicantID, fmt.Sprintf("保存分析结果失败: %v", err))
	}
	span.SetAttributes(attribute.Int("analysis.match_percentage", result.MatchPercentage))

	applicant.MatchPercentage = &result.MatchPercentage
	applicant.AISummary = result.Analysis
	applicant.StrengthsJSON = strengths
	applicant.WeaknessesJSON = weaknesses
	applicant.RecommendsJSON = recommends
	applicant.AIAnalysisSummary = summary
	applicant.AnalysisCompleted = true
	applicant.AnalyzedAt = &now
	applicant.ProcessingStatus = constants.ProcessingStatusCompleted
	rp.logInfo("申请人 %s 分析完成，适配度 %d%%", applicant.ApplicantID, result.MatchPercentage)
	return nil
}

// Reanalyze 对已有申请人重新执行AI分析，依赖数据库里保存的简历文本。
// 通过Redis锁保证同一申请人同时只有一次分析在跑。
func (rp *ResumeProcessor) Reanalyze(ctx context.Context, applicantID string) (*models.Applicant, error) {
	ctx, span := pipelineTracer.Start(ctx, "processor.Reanalyze",
		trace.WithAttributes(attribute.String("applicant.id", applicantID)))
	defer span.End()

	applicant, err := rp.Records.GetApplicantByID(ctx, applicantID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, NewDatabaseError(applicantID, fmt.Sprintf("查询申请人失败: %v", err))
	}
	if applicant == nil {
		span.SetStatus(codes.Error, "申请人不存在")
		return nil, ErrApplicantNotFound
	}
	if strings.TrimSpace(applicant.ResumeContent) == "" {
		return nil, ErrNoStoredContent
	}

	job, err := rp.Records.GetJobByID(ctx, applicant.JobID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, NewDatabaseError(applicantID, fmt.Sprintf("查询岗位失败: %v", err))
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if !job.AIAnalysisEnabled || rp.Scorer == nil || !rp.Scorer.Configured() {
		return nil, ErrAnalysisUnavailable
	}

	if rp.Locker != nil {
		lockValue, lockErr := rp.Locker.AcquireAnalysisLock(ctx, applicantID)
		if lockErr != nil {
			// Redis故障时退化为无锁执行
			rp.logWarn("获取分析锁失败，降级为无锁执行: %v", lockErr)
		} else if lockValue == "" {
			return nil, ErrAnalysisInProgress
		} else {
			defer func() {
				if _, relErr := rp.Locker.ReleaseAnalysisLock(context.WithoutCancel(ctx), applicantID, lockValue); relErr != nil {
					rp.logWarn("释放分析锁失败: %v", relErr)
				}
			}()
		}
	}

	if err := rp.Records.UpdateApplicantFields(ctx, applicantID, map[string]interface{}{
		"processing_status": constants.ProcessingStatusProcessing,
	}); err != nil {
		return nil, NewDatabaseError(applicantID, fmt.Sprintf("更新处理状态失败: %v", err))
	}
	applicant.ProcessingStatus = constants.ProcessingStatusProcessing

	if err := rp.scoreAndPersist(ctx, job, applicant, applicant.ResumeContent); err != nil {
		return nil, err
	}
	return applicant, nil
}

// ReanalyzeAll 对某岗位下的所有申请人顺序执行重新分析，
// 单条失败不会中断批次。没有已存文本的记录计入失败。
func (rp *ResumeProcessor) ReanalyzeAll(ctx context.Context, jobID string) (*BatchResult, error) {
	ctx, span := pipelineTracer.Start(ctx, "processor.ReanalyzeAll",
		trace.WithAttributes(attribute.String("job.id", jobID)))
	defer span.End()

	job, err := rp.Records.GetJobByID(ctx, jobID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, NewDatabaseError("", fmt.Sprintf("查询岗位失败: %v", err))
	}
	if job == nil {
		return nil, ErrJobNotFound
	}

	applicants, err := rp.Records.ListApplicantsByJob(ctx, jobID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return nil, NewDatabaseError("", fmt.Sprintf("查询申请人列表失败: %v", err))
	}

	result := &BatchResult{Total: len(applicants)}
	for i := range applicants {
		if i > 0 && rp.Settings.ReanalyzeDelay > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(rp.Settings.ReanalyzeDelay):
			}
		}
		if _, err := rp.Reanalyze(ctx, applicants[i].ApplicantID); err != nil {
			rp.logWarn("申请人 %s 重新分析失败: %v", applicants[i].ApplicantID, err)
			result.Failed++
			continue
		}
		result.Succeeded++
	}
	span.SetAttributes(
		attribute.Int("batch.total", result.Total),
		attribute.Int("batch.succeeded", result.Succeeded),
		attribute.Int("batch.failed", result.Failed),
	)
	return result, nil
}

// ReconcileStuck 把停留在processing状态超过阈值的记录改判为failed，
// 防止进程崩溃后记录永久卡住。返回改判的条数。
func (rp *ResumeProcessor) ReconcileStuck(ctx context.Context) (int, error) {
	ctx, span := pipelineTracer.Start(ctx, "processor.ReconcileStuck")
	defer span.End()

	stuck, err := rp.Records.ListStuckApplicants(ctx, rp.Settings.StuckThreshold)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return 0, NewDatabaseError("", fmt.Sprintf("查询卡住记录失败: %v", err))
	}
	fixed := 0
	for i := range stuck {
		if err := rp.Records.UpdateApplicantFields(ctx, stuck[i].ApplicantID, map[string]interface{}{
			"processing_status":   constants.ProcessingStatusFailed,
			"ai_analysis_summary": composeFailureSummary(stuck[i].Notes, fmt.Errorf("处理超时，已自动标记失败，请手动重新分析")),
		}); err != nil {
			rp.logWarn("改判卡住记录 %s 失败: %v", stuck[i].ApplicantID, err)
			continue
		}
		fixed++
	}
	if fixed > 0 {
		rp.logInfo("清理了 %d 条卡在processing状态的记录", fixed)
	}
	span.SetAttributes(attribute.Int("reconcile.fixed", fixed))
	return fixed, nil
}

// parseRubric 解析岗位的加权记分规则，解析失败按无规则处理
func parseRubric(raw []byte, logger *log.Logger) *types.ScoringRubric {
	if len(raw) == 0 {
		return nil
	}
	var rubric types.ScoringRubric
	if err := json.Unmarshal(raw, &rubric); err != nil {
		if logger != nil {
			logger.Printf("[WARN] 记分规则JSON解析失败，按默认权重评估: %v", err)
		}
		return nil
	}
	if rubric.TotalWeight() == 0 {
		return nil
	}
	return &rubric
}

// composeSummary 组装人读摘要：HR备注在前，AI分析段落在后
func composeSummary(hrNotes string, result *types.AnalysisResult) string {
	return prependNotes(hrNotes, formatAnalysisSummary(result))
}

// composeFailureSummary 分析失败时在摘要里留痕，HR备注不丢
func composeFailureSummary(hrNotes string, err error) string {
	return prependNotes(hrNotes, fmt.Sprintf("AI 分析失敗: %v", err))
}

func prependNotes(hrNotes, body string) string {
	hrNotes = strings.TrimSpace(hrNotes)
	if hrNotes == "" {
		return body
	}
	return fmt.Sprintf("備註: %s\n\n%s", hrNotes, body)
}

// formatAnalysisSummary 把分析结果渲染成确定性的人读文本，空段落省略
func formatAnalysisSummary(result *types.AnalysisResult) string {
	var b strings.Builder
	b.WriteString("AI 分析:\n")
	b.WriteString(fmt.Sprintf("適配度: %d%%", result.MatchPercentage))
	writeBulletSection(&b, "優勢", result.Strengths)
	writeBulletSection(&b, "待改善", result.Weaknesses)
	writeBulletSection(&b, "建議", result.Recommendations)
	return b.String()
}

func writeBulletSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(title)
	b.WriteString(":")
	for _, item := range items {
		b.WriteString("\n• ")
		b.WriteString(item)
	}
}
