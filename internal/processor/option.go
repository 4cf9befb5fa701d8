package processor

import (
	"fmt"
	"io"
	"log"
	"time"
)

// ComponentOpt 组件选项类型，仅改变 Components 结构体内的字段
type ComponentOpt func(*Components)

// SettingOpt 设置选项类型，仅改变 Settings 结构体内的字段
type SettingOpt func(*Settings)

// ----- 组件选项 -----

// WithcompExtractor 设置文档文本提取器组件
func WithcompExtractor(extractor DocumentExtractor) ComponentOpt {
	return func(c *Components) {
		c.Extractor = extractor
	}
}

// WithcompInfoextractor 设置个人信息提取器组件
func WithcompInfoextractor(info InfoExtractor) ComponentOpt {
	return func(c *Components) {
		c.Info = info
	}
}

// WithcompScorer 设置适配度评分器组件
func WithcompScorer(scorer FitScorer) ComponentOpt {
	return func(c *Components) {
		c.Scorer = scorer
	}
}

// WithcompRecords 设置关系库组件
func WithcompRecords(records RecordStore) ComponentOpt {
	return func(c *Components) {
		c.Records = records
	}
}

// WithcompObjects 设置对象存储组件
func WithcompObjects(objects ObjectStore) ComponentOpt {
	return func(c *Components) {
		c.Objects = objects
	}
}

// WithcompLocker 设置分析锁组件
func WithcompLocker(locker AnalysisLocker) ComponentOpt {
	return func(c *Components) {
		c.Locker = locker
	}
}

// WithcompStatuses 设置默认状态提供者组件
func WithcompStatuses(statuses DefaultStatusProvider) ComponentOpt {
	return func(c *Components) {
		c.Statuses = statuses
	}
}

// ----- 设置选项 -----

// WithsetDebug 设置调试模式
func WithsetDebug(debug bool) SettingOpt {
	return func(s *Settings) {
		s.Debug = debug
	}
}

// WithsetLogger 设置日志记录器
func WithsetLogger(logger *log.Logger) SettingOpt {
	return func(s *Settings) {
		if logger != nil {
			s.Logger = logger
		} else {
			// 提供一个 discard logger 以防万一
			s.Logger = log.New(io.Discard, "[NilLoggerFallback] ", log.LstdFlags)
		}
	}
}

// WithsetReanalyzedelay 设置批量重新分析时相邻两条之间的等待间隔
func WithsetReanalyzedelay(delay time.Duration) SettingOpt {
	return func(s *Settings) {
		if delay > 0 {
			s.ReanalyzeDelay = delay
		}
	}
}

// WithsetStuckthreshold 设置卡死记录的判定阈值
func WithsetStuckthreshold(threshold time.Duration) SettingOpt {
	return func(s *Settings) {
		if threshold > 0 {
			s.StuckThreshold = threshold
		}
	}
}

// ----- 日志包装方法 -----

// logDebug 记录调试级别日志
func (rp *ResumeProcessor) logDebug(format string, args ...interface{}) {
	if rp.Settings.Debug && rp.Settings.Logger != nil {
		rp.Settings.Logger.Printf(format, args...)
	}
}

// logInfo 记录信息级别日志
func (rp *ResumeProcessor) logInfo(format string, args ...interface{}) {
	if rp.Settings.Logger != nil {
		rp.Settings.Logger.Printf(format, args...)
	}
}

// logWarn 记录警告级别日志
func (rp *ResumeProcessor) logWarn(format string, args ...interface{}) {
	if rp.Settings.Logger != nil {
		rp.Settings.Logger.Printf("[WARN] "+format, args...)
	}
}

// logError 记录错误级别日志
func (rp *ResumeProcessor) logError(err error, format string, args ...interface{}) {
	if rp.Settings.Logger != nil {
		// 如果提供了错误对象，先添加错误信息
		if err != nil {
			format = fmt.Sprintf("ERROR: %v - %s", err, format)
		} else {
			format = "ERROR: " + format
		}
		rp.Settings.Logger.Printf(format, args...)
	}
}
