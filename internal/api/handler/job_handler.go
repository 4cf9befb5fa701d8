package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"gorm.io/datatypes"

	"github.com/BCT-Dylan/hr-management-system/internal/logger"
	"github.com/BCT-Dylan/hr-management-system/internal/storage"
	"github.com/BCT-Dylan/hr-management-system/internal/storage/models"
	"github.com/BCT-Dylan/hr-management-system/internal/types"
)

// JobHandler 岗位管理的HTTP处理器
type JobHandler struct {
	store *storage.MySQL
}

// NewJobHandler 创建岗位处理器
func NewJobHandler(store *storage.MySQL) *JobHandler {
	return &JobHandler{store: store}
}

type jobRequest struct {
	Title             string               `json:"title"`
	Department        string               `json:"department"`
	Location          string               `json:"location"`
	Description       string               `json:"description"`
	DescriptionDetail string               `json:"description_detail"`
	AIAnalysisEnabled *bool                `json:"ai_analysis_enabled"`
	ScoringCriteria   *types.ScoringRubric `json:"scoring_criteria"`
	Status            string               `json:"status"`
}

// JobResponse 岗位的API表示
type JobResponse struct {
	JobID             string               `json:"job_id"`
	Title             string               `json:"title"`
	Department        string               `json:"department,omitempty"`
	Location          string               `json:"location,omitempty"`
	Description       string               `json:"description"`
	DescriptionDetail string               `json:"description_detail,omitempty"`
	AIAnalysisEnabled bool                 `json:"ai_analysis_enabled"`
	ScoringCriteria   *types.ScoringRubric `json:"scoring_criteria,omitempty"`
	Status            string               `json:"status"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

func toJobResponse(job *models.JobPosting) *JobResponse {
	resp := &JobResponse{
		JobID:             job.JobID,
		Title:             job.Title,
		Department:        job.Department,
		Location:          job.Location,
		Description:       job.Description,
		DescriptionDetail: job.DescriptionDetail,
		AIAnalysisEnabled: job.AIAnalysisEnabled,
		Status:            job.Status,
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
	}
	if len(job.ScoringCriteria) > 0 {
		var rubric types.ScoringRubric
		if err := json.Unmarshal(job.ScoringCriteria, &rubric); err == nil {
			resp.ScoringCriteria = &rubric
		}
	}
	return resp
}

// HandleCreate 创建岗位
// POST /api/v1/jobs
func (h *JobHandler) HandleCreate(ctx context.Context, c *app.RequestContext) {
	var req jobRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
		return
	}
	if req.Title == "" || req.Description == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "title 和 description 不能为空"})
		return
	}

	job := &models.JobPosting{
		Title:             req.Title,
		Department:        req.Department,
		Location:          req.Location,
		Description:       req.Description,
		DescriptionDetail: req.DescriptionDetail,
		AIAnalysisEnabled: true,
		Status:            req.Status,
	}
	if req.AIAnalysisEnabled != nil {
		job.AIAnalysisEnabled = *req.AIAnalysisEnabled
	}
	if req.ScoringCriteria != nil {
		raw, err := json.Marshal(req.ScoringCriteria)
		if err != nil {
			c.JSON(consts.StatusBadRequest, utils.H{"error": "记分规则序列化失败"})
			return
		}
		job.ScoringCriteria = datatypes.JSON(raw)
	}
	if job.Status == "" {
		job.Status = "ACTIVE"
	}

	if err := h.store.CreateJob(ctx, job); err != nil {
		logger.Error().Err(err).Msg("创建岗位失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "创建岗位失败"})
		return
	}
	c.JSON(consts.StatusCreated, toJobResponse(job))
}

// HandleGet 查询单个岗位
// GET /api/v1/jobs/:job_id
func (h *JobHandler) HandleGet(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	job, err := h.store.GetJobByID(ctx, jobID)
	if err != nil {
		logger.Error().Err(err).Str("job_id", jobID).Msg("查询岗位失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询岗位失败"})
		return
	}
	if job == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "岗位不存在"})
		return
	}
	c.JSON(consts.StatusOK, toJobResponse(job))
}

// HandleList 列出全部岗位
// GET /api/v1/jobs
func (h *JobHandler) HandleList(ctx context.Context, c *app.RequestContext) {
	jobs, err := h.store.ListJobs(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("查询岗位列表失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询岗位列表失败"})
		return
	}
	out := make([]*JobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, toJobResponse(&jobs[i]))
	}
	c.JSON(consts.StatusOK, utils.H{"data": out, "total": len(out)})
}

// HandleUpdate 更新岗位信息和记分规则
// PUT /api/v1/jobs/:job_id
func (h *JobHandler) HandleUpdate(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	job, err := h.store.GetJobByID(ctx, jobID)
	if err != nil {
		logger.Error().Err(err).Str("job_id", jobID).Msg("查询岗位失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询岗位失败"})
		return
	}
	if job == nil {
		c.JSON(consts.StatusNotFound, utils.H{"error": "岗位不存在"})
		return
	}

	var req jobRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
		return
	}
	if req.Title != "" {
		job.Title = req.Title
	}
	if req.Department != "" {
		job.Department = req.Department
	}
	if req.Location != "" {
		job.Location = req.Location
	}
	if req.Description != "" {
		job.Description = req.Description
	}
	if req.DescriptionDetail != "" {
		job.DescriptionDetail = req.DescriptionDetail
	}
	if req.Status != "" {
		job.Status = req.Status
	}
	if req.AIAnalysisEnabled != nil {
		job.AIAnalysisEnabled = *req.AIAnalysisEnabled
	}
	if req.ScoringCriteria != nil {
		raw, marshalErr := json.Marshal(req.ScoringCriteria)
		if marshalErr != nil {
			c.JSON(consts.StatusBadRequest, utils.H{"error": "记分规则序列化失败"})
			return
		}
		job.ScoringCriteria = datatypes.JSON(raw)
	}

	if err := h.store.UpdateJob(ctx, job); err != nil {
		logger.Error().Err(err).Str("job_id", jobID).Msg("更新岗位失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "更新岗位失败"})
		return
	}
	c.JSON(consts.StatusOK, toJobResponse(job))
}
