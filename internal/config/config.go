package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig holds configuration for Redis
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// 连接池设置
	PoolSize     int `yaml:"pool_size"`      // 连接池大小
	MinIdleConns int `yaml:"min_idle_conns"` // 最小空闲连接数
	// 超时设置
	DialTimeoutSeconds  int `yaml:"dial_timeout_seconds"`  // 连接超时(秒)
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`  // 读取超时(秒)
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"` // 写入超时(秒)
	// 重试设置
	MaxRetries        int `yaml:"max_retries"`          // 最大重试次数
	MinRetryBackoffMS int `yaml:"min_retry_backoff_ms"` // 最小重试间隔(毫秒)
	MaxRetryBackoffMS int `yaml:"max_retry_backoff_ms"` // 最大重试间隔(毫秒)
	// 连接生命周期
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`  // 连接最大生命周期(分钟)
	ConnMaxIdleTimeMinutes int `yaml:"conn_max_idle_time_minutes"` // 空闲连接最大生命周期(分钟)
	// MD5记录过期时间(天)
	MD5RecordExpireDays int `yaml:"md5_record_expire_days"`
	// 分析锁过期时间(秒)
	AnalysisLockTTLSeconds int `yaml:"analysis_lock_ttl_seconds"`
}

// Config 应用程序配置
type Config struct {
	OpenAI struct {
		APIKey     string            `yaml:"api_key"`
		APIURL     string            `yaml:"api_url"`
		Model      string            `yaml:"model"`
		TaskModels map[string]string `yaml:"task_models"` // 任务专用模型
		QPM        int               `yaml:"qpm"`         // 每分钟请求上限，0表示不限流
	} `yaml:"openai"`

	// MinIO配置
	MinIO MinIOConfig `yaml:"minio"`

	// MySQL配置
	MySQL MySQLConfig `yaml:"mysql"`

	// Redis配置
	Redis RedisConfig `yaml:"redis"`

	// 服务器配置
	Server ServerConfig `yaml:"server"`

	// 信息提取器配置
	InfoExtractor InfoExtractorConfig `yaml:"info_extractor"`

	// 适配度评分器配置
	FitScorer FitScorerConfig `yaml:"fit_scorer"`

	// 流水线配置
	Pipeline PipelineConfig `yaml:"pipeline"`

	// 日志配置
	Logger LoggerConfig `yaml:"logger"`

	// 链路追踪配置
	Tracing TracingConfig `yaml:"tracing"`
}

// MinIOConfig MinIO配置结构
type MinIOConfig struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UseSSL          bool   `yaml:"useSSL"`
	Location        string `yaml:"location"` // 可选，存储桶区域
	// 对象存储桶名称
	OriginalsBucket  string `yaml:"originalsBucket"`  // 原始简历存储桶
	ParsedTextBucket string `yaml:"parsedTextBucket"` // 解析文本存储桶
	// 对象生命周期管理
	OriginalFileExpireDays int  `yaml:"original_file_expire_days"` // 原始文件过期天数
	ParsedTextExpireDays   int  `yaml:"parsed_text_expire_days"`   // 解析文本过期天数
	EnableTestLogging      bool `yaml:"enable_test_logging,omitempty"`
}

// MySQLConfig MySQL配置结构
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	// 连接池设置
	MaxIdleConns int `yaml:"max_idle_conns"` // 最大空闲连接数
	MaxOpenConns int `yaml:"max_open_conns"` // 最大打开连接数
	// 连接生命周期
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`  // 连接最大生命周期(分钟)
	ConnMaxIdleTimeMinutes int `yaml:"conn_max_idle_time_minutes"` // 空闲连接最大生命周期(分钟)
	// 超时设置
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"` // 连接超时(秒)
	ReadTimeoutSeconds    int `yaml:"read_timeout_seconds"`    // 读取超时(秒)
	WriteTimeoutSeconds   int `yaml:"write_timeout_seconds"`   // 写入超时(秒)
	// 日志设置
	LogLevel int `yaml:"log_level"` // 日志级别(1-4)
}

// ServerConfig 定义服务器配置
type ServerConfig struct {
	Address string `yaml:"address"` // 例如 ":8080" or "0.0.0.0:8080"
	APIKey  string `yaml:"api_key"` // 写操作接口的静态API Key，为空时不启用鉴权
}

// InfoExtractorConfig 定义个人信息提取器的配置
type InfoExtractorConfig struct {
	ModelName         string `yaml:"modelName"`
	ExtractionTimeout string `yaml:"extractionTimeout"` // 提取超时，例如 "30s"
}

// FitScorerConfig 定义适配度评分器的配置
type FitScorerConfig struct {
	ModelName        string `yaml:"modelName"`
	EvalTimeout      string `yaml:"evalTimeout"`      // 单次评估超时
	MaxRetries       int    `yaml:"maxRetries"`       // 传输错误时的最大重试次数
	RetryWaitSeconds int    `yaml:"retryWaitSeconds"` // 重试等待时间(秒)
}

// PipelineConfig 定义简历处理流水线的配置
type PipelineConfig struct {
	ReanalyzeDelay string `yaml:"reanalyze_delay"` // 批量重新分析的间隔，例如 "1s"
	StuckThreshold string `yaml:"stuck_threshold"` // processing状态卡住判定阈值
	SweepInterval  string `yaml:"sweep_interval"`  // 卡住记录巡检间隔
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	Format       string `yaml:"format"`        // json, pretty
	TimeFormat   string `yaml:"time_format"`   // 时间格式
	ReportCaller bool   `yaml:"report_caller"` // 是否报告调用位置
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"` // 例如 "localhost:4317"
	ServiceName  string `yaml:"service_name"`
}

// LoadConfig 从文件加载配置
func LoadConfig(configPath string) (*Config, error) {
	// 如果未指定配置文件路径，则尝试在默认位置查找
	if configPath == "" {
		searchPaths := []string{
			"config.yaml",
			"./config.yaml",
			"../config.yaml",
			"../../config.yaml",
			filepath.Join(os.Getenv("HOME"), ".hr-management", "config.yaml"),
		}

		// 可执行文件所在目录及其上级目录
		execPath, err := os.Executable()
		if err == nil {
			execDir := filepath.Dir(execPath)
			searchPaths = append(searchPaths, filepath.Join(execDir, "config.yaml"))
			searchPaths = append(searchPaths, filepath.Join(execDir, "..", "config.yaml"))
		}

		for _, path := range searchPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}

		// 仍找不到配置文件时，测试环境返回默认配置，其余场景使用默认路径
		if configPath == "" {
			if inTestEnv() {
				return createDefaultConfig(), nil
			}
			configPath = "config.yaml"
		}
	}

	// 检查文件是否存在
	_, err := os.Stat(configPath)
	if err != nil {
		if inTestEnv() {
			return createDefaultConfig(), nil
		}
		return nil, fmt.Errorf("配置文件不存在: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 从环境变量覆盖配置（如果存在）
	if envKey := os.Getenv("OPENAI_API_KEY"); envKey != "" {
		config.OpenAI.APIKey = envKey
	}
	if envURL := os.Getenv("OPENAI_API_URL"); envURL != "" {
		config.OpenAI.APIURL = envURL
	}
	if envModel := os.Getenv("OPENAI_MODEL"); envModel != "" {
		config.OpenAI.Model = envModel
	}

	applyDefaults(&config)

	return &config, nil
}

// inTestEnv 通过命令行参数粗略判断是否运行在go test中
func inTestEnv() bool {
	for _, arg := range os.Args {
		if strings.Contains(arg, "test") {
			return true
		}
	}
	return false
}

// applyDefaults 填充缺失的默认值
func applyDefaults(config *Config) {
	if config.Server.Address == "" {
		config.Server.Address = ":8080"
	}
	if config.Pipeline.ReanalyzeDelay == "" {
		config.Pipeline.ReanalyzeDelay = "1s"
	}
	if config.Pipeline.StuckThreshold == "" {
		config.Pipeline.StuckThreshold = "30m"
	}
	if config.Pipeline.SweepInterval == "" {
		config.Pipeline.SweepInterval = "5m"
	}
	if config.FitScorer.EvalTimeout == "" {
		config.FitScorer.EvalTimeout = "60s"
	}
	if config.InfoExtractor.ExtractionTimeout == "" {
		config.InfoExtractor.ExtractionTimeout = "30s"
	}
}

// 创建一个默认配置，用于测试环境
func createDefaultConfig() *Config {
	config := &Config{}
	config.OpenAI.APIURL = "https://api.openai.com/v1/chat/completions"
	config.OpenAI.Model = "gpt-4o-mini"

	// MinIO默认配置
	config.MinIO.Endpoint = "localhost:9000"
	config.MinIO.AccessKeyID = "minioadmin"
	config.MinIO.SecretAccessKey = "minioadmin123"
	config.MinIO.UseSSL = false
	config.MinIO.OriginalsBucket = "resume-originals"
	config.MinIO.ParsedTextBucket = "resume-parsed-text"
	config.MinIO.Location = ""
	config.MinIO.OriginalFileExpireDays = 1095 // 默认3年过期
	config.MinIO.ParsedTextExpireDays = 1095
	config.MinIO.EnableTestLogging = false

	// MySQL默认配置
	config.MySQL.Host = "localhost"
	config.MySQL.Port = 3306
	config.MySQL.Username = "root"
	config.MySQL.Password = "password"
	config.MySQL.Database = "hr_management"
	config.MySQL.MaxIdleConns = 10
	config.MySQL.MaxOpenConns = 100
	config.MySQL.ConnMaxLifetimeMinutes = 60
	config.MySQL.ConnMaxIdleTimeMinutes = 30
	config.MySQL.ConnectTimeoutSeconds = 10
	config.MySQL.ReadTimeoutSeconds = 30
	config.MySQL.WriteTimeoutSeconds = 30
	config.MySQL.LogLevel = 4 // Info级别

	// Redis默认配置
	config.Redis.Address = "localhost:6379"
	config.Redis.Password = ""
	config.Redis.DB = 0
	config.Redis.PoolSize = 10
	config.Redis.MinIdleConns = 2
	config.Redis.DialTimeoutSeconds = 5
	config.Redis.ReadTimeoutSeconds = 3
	config.Redis.WriteTimeoutSeconds = 3
	config.Redis.MaxRetries = 3
	config.Redis.MinRetryBackoffMS = 8
	config.Redis.MaxRetryBackoffMS = 512
	config.Redis.ConnMaxLifetimeMinutes = 60
	config.Redis.ConnMaxIdleTimeMinutes = 30
	config.Redis.MD5RecordExpireDays = 365 // 默认1年过期
	config.Redis.AnalysisLockTTLSeconds = 300

	// 获取环境变量
	if envKey := os.Getenv("OPENAI_API_KEY"); envKey != "" {
		config.OpenAI.APIKey = envKey
	} else {
		config.OpenAI.APIKey = "test_api_key"
	}

	// 日志默认配置
	config.Logger.Level = "info"
	config.Logger.Format = "pretty" // 开发环境默认使用美化输出
	config.Logger.TimeFormat = "2006-01-02 15:04:05"
	config.Logger.ReportCaller = true

	// 追踪默认关闭
	config.Tracing.Enabled = false
	config.Tracing.ServiceName = "hr-management-system"

	applyDefaults(config)

	return config
}

// CreateSampleConfig 创建一个示例配置文件
func CreateSampleConfig(filePath string) error {
	if _, err := os.Stat(filePath); err == nil {
		return fmt.Errorf("文件 '%s' 已存在，不会覆盖", filePath)
	}

	config := createDefaultConfig()

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	err = os.WriteFile(filePath, data, 0644)
	if err != nil {
		return fmt.Errorf("写入示例配置文件 '%s' 失败: %w", filePath, err)
	}

	fmt.Printf("示例配置文件已创建: %s\n", filePath)
	return nil
}

// GetModelForTask 根据任务名称获取合适的模型
// 如果任务专用模型存在则返回专用模型，否则返回默认模型
func (c *Config) GetModelForTask(taskName string) string {
	if c.OpenAI.TaskModels != nil {
		if model, ok := c.OpenAI.TaskModels[taskName]; ok && model != "" {
			return model
		}
	}
	return c.OpenAI.Model
}

// GetDuration utility to parse duration strings from config
func GetDuration(durationStr string, defaultDuration time.Duration) time.Duration {
	if durationStr == "" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return defaultDuration
	}
	return d
}
