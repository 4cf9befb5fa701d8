package processor

import (
	"context"
	"io"
	"time"

	"github.com/BCT-Dylan/hr-management-system/internal/parser"
	"github.com/BCT-Dylan/hr-management-system/internal/status"
	"github.com/BCT-Dylan/hr-management-system/internal/storage"
	"github.com/BCT-Dylan/hr-management-system/internal/storage/models"
	"github.com/BCT-Dylan/hr-management-system/internal/types"
)

//
// 文档提取相关接口
//

// DocumentExtractor 文档文本提取接口，负责类型分发和大小校验
type DocumentExtractor interface {
	// ExtractText 从上传的文件内容提取纯文本
	ExtractText(ctx context.Context, fileName string, contentType string, data []byte) (string, error)
}

// InfoExtractor 个人信息提取接口。实现永不返回错误，
// 提取失败时返回零值结构体。
type InfoExtractor interface {
	ExtractPersonalInfo(ctx context.Context, resumeText string) *types.ExtractedInfo
}

// FitScorer 适配度评分接口
type FitScorer interface {
	// Configured 评分器是否具备可用的LLM模型
	Configured() bool

	// Analyze 评估简历与岗位的适配度。返回值永远非nil，
	// error仅在模型调用本身失败时非nil。
	Analyze(ctx context.Context, req *types.AnalysisRequest) (*types.AnalysisResult, error)
}

//
// 存储相关接口
//

// RecordStore 流水线需要的关系库能力
type RecordStore interface {
	GetJobByID(ctx context.Context, jobID string) (*models.JobPosting, error)
	CreateApplicant(ctx context.Context, applicant *models.Applicant) error
	GetApplicantByID(ctx context.Context, applicantID string) (*models.Applicant, error)
	UpdateApplicantFields(ctx context.Context, applicantID string, updates map[string]interface{}) error
	ListApplicantsByJob(ctx context.Context, jobID string) ([]models.Applicant, error)
	ListStuckApplicants(ctx context.Context, threshold time.Duration) ([]models.Applicant, error)
}

// ObjectStore 流水线需要的对象存储能力
type ObjectStore interface {
	UploadResumeFileStreaming(ctx context.Context, applicantID, fileExt string, reader io.Reader, fileSize int64) (string, string, error)
	UploadParsedText(ctx context.Context, applicantID string, text string) (string, error)
}

// AnalysisLocker 重新分析的互斥锁能力
type AnalysisLocker interface {
	AcquireAnalysisLock(ctx context.Context, applicantID string) (string, error)
	ReleaseAnalysisLock(ctx context.Context, applicantID string, lockValue string) (bool, error)
}

// DefaultStatusProvider 默认招聘状态的查询能力
type DefaultStatusProvider interface {
	Default(ctx context.Context) (*models.ApplicationStatus, error)
}

// 确保具体实现满足流水线接口
var (
	_ DocumentExtractor     = (*parser.DocumentExtractor)(nil)
	_ InfoExtractor         = (*parser.LLMInfoExtractor)(nil)
	_ FitScorer             = (*parser.LLMFitScorer)(nil)
	_ RecordStore           = (*storage.MySQL)(nil)
	_ ObjectStore           = (*storage.MinIO)(nil)
	_ AnalysisLocker        = (*storage.Redis)(nil)
	_ DefaultStatusProvider = (*status.Service)(nil)
)
