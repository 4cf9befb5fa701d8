package constants

import "time"

// 简历处理状态
const (
	ProcessingStatusPending    = "pending"
	ProcessingStatusProcessing = "processing"
	ProcessingStatusCompleted  = "completed"
	ProcessingStatusFailed     = "failed"
)

const (
	// MaxResumeFileSize 简历文件大小上限，超过即拒绝（恰好等于上限可接受）
	MaxResumeFileSize = 10 * 1024 * 1024

	// PlaceholderName LLM未能提取到姓名时的占位显示名
	PlaceholderName = "待提取"

	// DefaultStatusName 流水线为新申请人查找的默认状态名
	DefaultStatusName = "pending"

	// DefaultReanalyzeDelay 批量重新分析时相邻两次调用之间的默认间隔
	DefaultReanalyzeDelay = 1 * time.Second

	// DefaultStuckThreshold 申请人停留在processing状态超过该时长即视为卡住
	DefaultStuckThreshold = 30 * time.Minute
)
