package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"

	"github.com/BCT-Dylan/hr-management-system/internal/api/handler"
	"github.com/BCT-Dylan/hr-management-system/internal/config"
)

// RegisterRoutes 注册 API 路由
// 读接口开放，写接口在配置了 server.api_key 时要求 X-API-Key 头
func RegisterRoutes(
	h *server.Hertz,
	cfg *config.Config,
	resumeHandler *handler.ResumeHandler,
	statusHandler *handler.StatusHandler,
	jobHandler *handler.JobHandler,
) {
	h.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	api := h.Group("/api/v1")

	// 读接口
	api.GET("/jobs", jobHandler.HandleList)
	api.GET("/jobs/:job_id", jobHandler.HandleGet)
	api.GET("/jobs/:job_id/applicants", resumeHandler.HandleListApplicants)
	api.GET("/applicants/:applicant_id", resumeHandler.HandleGetApplicant)
	api.GET("/statuses", statusHandler.HandleList)
	api.GET("/statuses/stats", statusHandler.HandleStats)

	// 写接口
	mutating := h.Group("/api/v1")
	if cfg.Server.APIKey != "" {
		mutating.Use(apiKeyGuard(cfg.Server.APIKey))
	}
	mutating.POST("/jobs", jobHandler.HandleCreate)
	mutating.PUT("/jobs/:job_id", jobHandler.HandleUpdate)
	mutating.POST("/jobs/:job_id/resumes", resumeHandler.HandleUpload)
	mutating.POST("/jobs/:job_id/reanalyze", resumeHandler.HandleReanalyzeAll)
	mutating.POST("/applicants/:applicant_id/reanalyze", resumeHandler.HandleReanalyze)
	mutating.POST("/statuses", statusHandler.HandleCreate)
	mutating.PUT("/statuses/reorder", statusHandler.HandleReorder)
	mutating.PUT("/statuses/:status_id", statusHandler.HandleUpdate)
	mutating.DELETE("/statuses/:status_id", statusHandler.HandleDelete)
}

func apiKeyGuard(expected string) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:X-API-Key", ""),
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
			return key == expected, nil
		}),
		keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
			c.JSON(consts.StatusUnauthorized, utils.H{"error": "无效的API密钥"})
			c.Abort()
		}),
	)
}
