package processor

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrJobNotFound         = errors.New("岗位不存在")
	ErrApplicantNotFound   = errors.New("应聘者不存在")
	ErrNoStoredContent     = errors.New("没有已存储的简历文本，无法重新分析")
	ErrAnalysisInProgress  = errors.New("该应聘者的分析正在进行中")
	ErrAnalysisUnavailable = errors.New("岗位未开启AI分析或评分器未配置")
	ErrDatabaseFailed      = errors.New("数据库操作失败")
	ErrStoreFileFailed     = errors.New("上传简历文件失败")
)

// PipelineError 包含详细错误信息的自定义错误
type PipelineError struct {
	ApplicantID string
	Op          string
	BaseErr     error
	Detail      string
}

func (e *PipelineError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 应聘者:%s): %s", e.BaseErr, e.Op, e.ApplicantID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 应聘者:%s)", e.BaseErr, e.Op, e.ApplicantID)
}

func (e *PipelineError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// NewDatabaseError 数据库操作失败
func NewDatabaseError(applicantID, detail string) error {
	return &PipelineError{
		ApplicantID: applicantID,
		Op:          "database",
		BaseErr:     ErrDatabaseFailed,
		Detail:      detail,
	}
}

// NewStoreFileError 对象存储失败
func NewStoreFileError(applicantID, detail string) error {
	return &PipelineError{
		ApplicantID: applicantID,
		Op:          "store",
		BaseErr:     ErrStoreFileFailed,
		Detail:      detail,
	}
}
