package handler

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/BCT-Dylan/hr-management-system/internal/logger"
	"github.com/BCT-Dylan/hr-management-system/internal/status"
	"github.com/BCT-Dylan/hr-management-system/internal/storage/models"
)

// StatusHandler 招聘流程状态字典的HTTP处理器
type StatusHandler struct {
	service *status.Service
}

// NewStatusHandler 创建状态处理器
func NewStatusHandler(service *status.Service) *StatusHandler {
	return &StatusHandler{service: service}
}

type createStatusRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	IsDefault   bool   `json:"is_default"`
}

type updateStatusRequest struct {
	DisplayName *string `json:"display_name"`
	SortOrder   *int    `json:"sort_order"`
	IsActive    *bool   `json:"is_active"`
	IsDefault   *bool   `json:"is_default"`
}

type reorderStatusRequest struct {
	OrderedIDs []string `json:"ordered_ids"`
}

// StatusResponse 状态字典项的API表示
type StatusResponse struct {
	StatusID    string `json:"status_id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	SortOrder   int    `json:"sort_order"`
	IsActive    bool   `json:"is_active"`
	IsDefault   bool   `json:"is_default"`
}

func toStatusResponse(s *models.ApplicationStatus) *StatusResponse {
	return &StatusResponse{
		StatusID:    s.StatusID,
		Name:        s.Name,
		DisplayName: s.DisplayName,
		SortOrder:   s.SortOrder,
		IsActive:    s.IsActive,
		IsDefault:   s.IsDefault,
	}
}

// HandleList 列出状态，默认只含启用的
// GET /api/v1/statuses?include_inactive=true
func (h *StatusHandler) HandleList(ctx context.Context, c *app.RequestContext) {
	includeInactive := string(c.Query("include_inactive")) == "true"
	statuses, err := h.service.List(ctx, includeInactive)
	if err != nil {
		logger.Error().Err(err).Msg("查询状态列表失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询状态列表失败"})
		return
	}
	out := make([]*StatusResponse, 0, len(statuses))
	for i := range statuses {
		out = append(out, toStatusResponse(&statuses[i]))
	}
	c.JSON(consts.StatusOK, utils.H{"data": out, "total": len(out)})
}

// HandleCreate 创建新状态
// POST /api/v1/statuses
func (h *StatusHandler) HandleCreate(ctx context.Context, c *app.RequestContext) {
	var req createStatusRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
		return
	}
	created, err := h.service.Create(ctx, status.CreateInput{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		IsDefault:   req.IsDefault,
	})
	if err != nil {
		writeStatusError(c, err)
		return
	}
	c.JSON(consts.StatusCreated, toStatusResponse(created))
}

// HandleUpdate 更新状态的显示名、排序、启用和默认标记
// PUT /api/v1/statuses/:status_id
func (h *StatusHandler) HandleUpdate(ctx context.Context, c *app.RequestContext) {
	statusID := c.Param("status_id")
	var req updateStatusRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
		return
	}
	updated, err := h.service.Update(ctx, statusID, status.UpdateInput{
		DisplayName: req.DisplayName,
		SortOrder:   req.SortOrder,
		IsActive:    req.IsActive,
		IsDefault:   req.IsDefault,
	})
	if err != nil {
		writeStatusError(c, err)
		return
	}
	c.JSON(consts.StatusOK, toStatusResponse(updated))
}

// HandleDelete 删除状态，默认状态和仍被引用的状态会被拒绝
// DELETE /api/v1/statuses/:status_id
func (h *StatusHandler) HandleDelete(ctx context.Context, c *app.RequestContext) {
	statusID := c.Param("status_id")
	if err := h.service.Delete(ctx, statusID); err != nil {
		writeStatusError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"deleted": statusID})
}

// HandleReorder 按给定ID顺序重排状态
// PUT /api/v1/statuses/reorder
func (h *StatusHandler) HandleReorder(ctx context.Context, c *app.RequestContext) {
	var req reorderStatusRequest
	if err := c.BindJSON(&req); err != nil || len(req.OrderedIDs) == 0 {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "ordered_ids 不能为空"})
		return
	}
	if err := h.service.Reorder(ctx, req.OrderedIDs); err != nil {
		writeStatusError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"reordered": len(req.OrderedIDs)})
}

// HandleStats 每个状态下的应聘者数量
// GET /api/v1/statuses/stats
func (h *StatusHandler) HandleStats(ctx context.Context, c *app.RequestContext) {
	statuses, err := h.service.List(ctx, true)
	if err != nil {
		logger.Error().Err(err).Msg("查询状态列表失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "查询状态列表失败"})
		return
	}
	type statusStat struct {
		StatusID    string `json:"status_id"`
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
		Count       int64  `json:"count"`
	}
	stats := make([]statusStat, 0, len(statuses))
	for i := range statuses {
		count, usageErr := h.service.Usage(ctx, statuses[i].StatusID)
		if usageErr != nil {
			logger.Warn().Err(usageErr).Str("status_id", statuses[i].StatusID).Msg("统计状态引用数失败")
			continue
		}
		stats = append(stats, statusStat{
			StatusID:    statuses[i].StatusID,
			Name:        statuses[i].Name,
			DisplayName: statuses[i].DisplayName,
			Count:       count,
		})
	}
	c.JSON(consts.StatusOK, utils.H{"data": stats})
}

// writeStatusError 把状态服务的类型化错误映射为HTTP状态码
func writeStatusError(c *app.RequestContext, err error) {
	switch {
	case errors.Is(err, status.ErrNotFound):
		c.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
	case errors.Is(err, status.ErrNameInvalid):
		c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
	case errors.Is(err, status.ErrNameTaken):
		c.JSON(consts.StatusConflict, utils.H{"error": err.Error()})
	case errors.Is(err, status.ErrReferenced), errors.Is(err, status.ErrDefaultUndeletable):
		c.JSON(consts.StatusConflict, utils.H{"error": err.Error()})
	default:
		logger.Error().Err(err).Msg("状态操作失败")
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "状态操作失败"})
	}
}
