package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/BCT-Dylan/hr-management-system/internal/logger"
	"github.com/BCT-Dylan/hr-management-system/internal/parser"
	"github.com/BCT-Dylan/hr-management-system/internal/processor"
	"github.com/BCT-Dylan/hr-management-system/internal/storage"
	"github.com/BCT-Dylan/hr-management-system/internal/storage/models"
	pkgutils "github.com/BCT-Dylan/hr-management-system/pkg/utils"
)

// ResumeHandler 简历相关的HTTP处理器，负责参数解析和错误码映射，
// 业务流程全部委托给流水线。
type ResumeHandler struct {
	pipeline *processor.ResumeProcessor
	redis    *storage.Redis // 文件MD5去重，可为nil
}

// NewResumeHandler 创建简历处理器
func NewResumeHandler(pipeline *processor.ResumeProcessor, redis *storage.Redis) *ResumeHandler {
	return &ResumeHandler{
		pipeline: pipeline,
		redis:    redis,
	}
}

// ApplicantResponse 应聘者记录的API表示
type ApplicantResponse struct {
	ApplicantID       string                 `json:"applicant_id"`
	JobID             string                 `json:"job_id"`
	Name              string                 `json:"name"`
	Email             string                 `json:"email,omitempty"`
	Phone             string                 `json:"phone,omitempty"`
	Location          string                 `json:"location,omitempty"`
	ResumeFileName    string                 `json:"resume_file_name,omitempty"`
	ExtractedInfo     map[string]interface{} `json:"extracted_info,omitempty"`
	MatchPercentage   *int                   `json:"match_percentage,omitempty"`
	AISummary         string                 `json:"ai_summary,omitempty"`
	Strengths         []string               `json:"strengths,omitempty"`
	Weaknesses        []string               `json:"weaknesses,omitempty"`
	Recommendations   []string               `json:"recommendations,omitempty"`
	AIAnalysisSummary string                 `json:"ai_analysis_summary,omitempty"`
	AnalysisCompleted bool                   `json:"analysis_completed"`
	AnalyzedAt        *time.Time             `json:"analyzed_at,omitempty"`
	ProcessingStatus  string                 `json:"processing_status"`
	StatusID          *string                `json:"status_id,omitempty"`
	Notes             string                 `json:"notes,omitempty"`
	UploadedAt        time.Time              `json:"uploaded_at"`
}

func toApplicantResponse(a *models.Applicant) *ApplicantResponse {
	resp := &ApplicantResponse{
		ApplicantID:       a.ApplicantID,
		JobID:             a.JobID,
		Name:              a.Name,
		Email:             a.Email,
		Phone:             a.Phone,
		Location:          a.Location,
		ResumeFileName:    a.ResumeFileName,
		MatchPercentage:   a.MatchPercentage,
		AISummary:         a.AISummary,
		AIAnalysisSummary: a.AIAnalysisSummary,
		AnalysisCompleted: a.AnalysisCompleted,
		AnalyzedAt:        a.AnalyzedAt,
		ProcessingStatus:  a.ProcessingStatus,
		StatusID:          a.StatusID,
		Notes:             a.Notes,
		UploadedAt:        a.UploadedAt,
	}
	if len(a.ExtractedInfoJSON) > 0 {
		_ = json.Unmarshal(a.ExtractedInfoJSON, &resp.ExtractedInfo)
	}
	if len(a.StrengthsJSON) > 0 {
		_ = json.Unmarshal(a.StrengthsJSON, &resp.Strengths)
	}
	if len(a.WeaknessesJSON) > 0 {
		_ = json.Unmarshal(a.WeaknessesJSON, &resp.Weaknesses)
	}
	if len(a.RecommendsJSON) > 0 {
		_ = json.Unmarshal(a.RecommendsJSON, &resp.Recommendations)
	}
	return resp
}

// HandleUpload 处理简历上传
// POST /api/v1/jobs/:job_id/resumes
func (h *ResumeHandler) HandleUpload(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "job_id 不能为空"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
		return
	}
	notes := c.PostForm("notes")

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "读取上传文件内容失败"})
		return
	}

	// 按原始文件MD5去重，Redis故障时去重失效但上传继续
	fileMD5 := pkgutils.CalculateMD5(data)
	dedupAdded := false
	if h.redis != nil {
		exists, dedupErr := h.redis.CheckAndAddFileMD5(ctx, fileMD5)
		if dedupErr != nil {
			logger.Warn().Err(dedupErr).Str("md5", fileMD5).Msg("查询文件MD5去重集合失败，跳过去重")
		} else if exists {
			logger.Info().Str("md5", fileMD5).Str("filename", fileHeader.Filename).Msg("检测到重复的简历文件")
			c.JSON(consts.StatusConflict, utils.H{"error": "该简历文件已上传过", "md5": fileMD5})
			return
		} else {
			dedupAdded = true
		}
	}

	applicant, err := h.pipeline.ProcessUpload(ctx, &processor.UploadInput{
		JobID:       jobID,
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
		Notes:       notes,
	})
	if err != nil {
		// 没有建档就失败的上传允许重新提交同一文件
		if dedupAdded {
			if rmErr := h.redis.RemoveFileMD5(ctx, fileMD5); rmErr != nil {
				logger.Warn().Err(rmErr).Str("md5", fileMD5).Msg("回滚文件MD5记录失败")
			}
		}
		writeResumeError(c, err)
		return
	}

	c.JSON(consts.StatusCreated, toApplicantResponse(applicant))
}

// HandleGetApplicant 查询单个应聘者
// GET /api/v1/applicants/:applicant_id
func (h *ResumeHandler) HandleGetApplicant(ctx context.Context, c *app.RequestContext) {
	applicantID := c.Param("applicant_id")
	applicant, err := h.pipeline.Records.GetApplicantByID(ctx, applicantID)
	if err != nil {
		logger.Error().Err(err).Str("applicant_id", applicantID).Msg("查询应聘者失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询应聘者失败"})
		return
	}
	if applicant == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "应聘者不存在"})
		return
	}
	c.JSON(consts.StatusOK, toApplicantResponse(applicant))
}

// HandleListApplicants 按岗位列出应聘者，最新的在前
// GET /api/v1/jobs/:job_id/applicants
func (h *ResumeHandler) HandleListApplicants(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	applicants, err := h.pipeline.Records.ListApplicantsByJob(ctx, jobID)
	if err != nil {
		logger.Error().Err(err).Str("job_id", jobID).Msg("查询应聘者列表失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询应聘者列表失败"})
		return
	}
	out := make([]*ApplicantResponse, 0, len(applicants))
	for i := range applicants {
		out = append(out, toApplicantResponse(&applicants[i]))
	}
	c.JSON(consts.StatusOK, utils.H{"data": out, "total": len(out)})
}

// HandleReanalyze 重新分析单个应聘者
// POST /api/v1/applicants/:applicant_id/reanalyze
func (h *ResumeHandler) HandleReanalyze(ctx context.Context, c *app.RequestContext) {
	applicantID := c.Param("applicant_id")
	applicant, err := h.pipeline.Reanalyze(ctx, applicantID)
	if err != nil {
		writeResumeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, toApplicantResponse(applicant))
}

// HandleReanalyzeAll 批量重新分析某岗位下的应聘者
// POST /api/v1/jobs/:job_id/reanalyze
func (h *ResumeHandler) HandleReanalyzeAll(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	result, err := h.pipeline.ReanalyzeAll(ctx, jobID)
	if err != nil {
		writeResumeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, result)
}

// writeResumeError 把流水线的类型化错误映射为HTTP状态码
func writeResumeError(c *app.RequestContext, err error) {
	var extractErr *parser.ExtractError
	if errors.As(err, &extractErr) {
		status := consts.StatusBadRequest
		if extractErr.Kind == parser.ExtractErrTooLarge {
			status = consts.StatusRequestEntityTooLarge
		}
		c.JSON(status, utils.H{
			"error": extractErr.Reason,
			"kind":  string(extractErr.Kind),
			"file":  extractErr.FileName,
		})
		return
	}

	switch {
	case errors.Is(err, processor.ErrJobNotFound):
		c.JSON(consts.StatusNotFound, utils.H{"error": "岗位不存在"})
	case errors.Is(err, processor.ErrApplicantNotFound):
		c.JSON(consts.StatusNotFound, utils.H{"error": "应聘者不存在"})
	case errors.Is(err, processor.ErrAnalysisInProgress):
		c.JSON(consts.StatusConflict, utils.H{"error": "该应聘者的分析正在进行中，请稍后重试"})
	case errors.Is(err, processor.ErrNoStoredContent):
		c.JSON(consts.StatusUnprocessableEntity, utils.H{"error": "没有已存储的简历文本，无法重新分析"})
	case errors.Is(err, processor.ErrAnalysisUnavailable):
		c.JSON(consts.StatusUnprocessableEntity, utils.H{"error": "岗位未开启AI分析或评分器未配置"})
	default:
		logger.Error().Err(err).Msg("简历处理失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "简历处理失败"})
	}
}
