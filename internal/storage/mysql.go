package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofrs/uuid/v5"
	googleuuid "github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BCT-Dylan/hr-management-system/internal/config"
	"github.com/BCT-Dylan/hr-management-system/internal/constants"
	"github.com/BCT-Dylan/hr-management-system/internal/storage/models"
)

var mysqlTracer = otel.Tracer("hr-management-system/storage/mysql")

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	dbSystem       string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	// 为所有CRUD操作注册Before和After回调
	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		sqlStatement := db.Statement.SQL.String()
		if sqlStatement != "" {
			opts = append(opts, trace.WithAttributes(
				attribute.String("db.statement", sqlStatement),
			))
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)

		// 将span保存在DB上下文中，以便在after回调中使用
		db.Statement.Context = context.WithValue(newCtx, "otel-span", span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value("otel-span").(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		if db.Statement.RowsAffected > 0 {
			span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
		} else {
			span.SetAttributes(attribute.Int64("db.rows_affected", 0))
		}

		// ErrRecordNotFound 是业务逻辑正常情况的一部分，不应作为错误处理
		if db.Error != nil {
			if db.Error == gorm.ErrRecordNotFound {
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				span.SetAttributes(attribute.String("error.type", "database_error"))
				span.SetAttributes(attribute.String("error.message", db.Error.Error()))
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		dbSystem:       "mysql",
		disableErrSkip: true,
	}
}

// WithDisableErrSkip 设置是否禁用错误跳过
func (p *GormTracingPlugin) WithDisableErrSkip(disable bool) *GormTracingPlugin {
	p.disableErrSkip = disable
	return p
}

// MySQL 提供关系数据库功能
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	// 构建DSN，添加超时设置
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	case 4:
		logLevel = logger.Info
	default:
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true, // 禁用自动外键创建
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true, // 开启预编译语句缓存
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}

	// 设置连接池参数
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{
		db:  db,
		cfg: cfg,
	}

	// 注册OpenTelemetry追踪插件
	tracingPlugin := NewGormTracingPlugin(cfg.Database).WithDisableErrSkip(true)
	if err := db.Use(tracingPlugin); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if err := m.autoMigrateSchema(); err != nil {
		if sqlDB != nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	log.Println("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	currentLogger := m.db.Logger

	// 创建一个静默的logger以关闭SQL日志打印
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	err := silentDB.AutoMigrate(
		&models.JobPosting{},
		&models.Applicant{},
		&models.ApplicationStatus{},
	)

	m.db = m.db.Session(&gorm.Session{Logger: currentLogger})

	if err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	log.Println("GORM数据库结构迁移成功")
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// GetJobByID 通过 JobID 获取岗位记录，不存在时返回 (nil, nil)
func (m *MySQL) GetJobByID(ctx context.Context, jobID string) (*models.JobPosting, error) {
	var job models.JobPosting
	if err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// CreateJob 创建岗位记录，JobID为空时自动生成UUIDv7
func (m *MySQL) CreateJob(ctx context.Context, job *models.JobPosting) error {
	if job.JobID == "" {
		newUUID, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("生成UUIDv7失败: %w", err)
		}
		job.JobID = newUUID.String()
	}
	return m.db.WithContext(ctx).Create(job).Error
}

// UpdateJob 更新岗位记录
func (m *MySQL) UpdateJob(ctx context.Context, job *models.JobPosting) error {
	return m.db.WithContext(ctx).Save(job).Error
}

// ListJobs 列出所有岗位，按创建时间倒序
func (m *MySQL) ListJobs(ctx context.Context) ([]models.JobPosting, error) {
	var jobs []models.JobPosting
	err := m.db.WithContext(ctx).Order("created_at DESC").Find(&jobs).Error
	return jobs, err
}

// CreateApplicant 创建应聘者记录，ApplicantID为空时自动生成UUIDv7
func (m *MySQL) CreateApplicant(ctx context.Context, applicant *models.Applicant) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.CreateApplicant", trace.WithAttributes(
		attribute.String("applicant.job_id", applicant.JobID),
	))
	defer span.End()

	if applicant.ApplicantID == "" {
		newUUID, err := uuid.NewV7()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to generate UUIDv7")
			return fmt.Errorf("生成UUIDv7失败: %w", err)
		}
		applicant.ApplicantID = newUUID.String()
	}
	if applicant.ProcessingStatus == "" {
		applicant.ProcessingStatus = constants.ProcessingStatusPending
	}
	if applicant.UploadedAt.IsZero() {
		applicant.UploadedAt = time.Now()
	}

	if err := m.db.WithContext(ctx).Create(applicant).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create applicant")
		return fmt.Errorf("创建应聘者记录失败: %w", err)
	}

	span.SetAttributes(attribute.String("applicant.id", applicant.ApplicantID))
	return nil
}

// GetApplicantByID 通过ID获取应聘者记录，不存在时返回 (nil, nil)
func (m *MySQL) GetApplicantByID(ctx context.Context, applicantID string) (*models.Applicant, error) {
	var applicant models.Applicant
	if err := m.db.WithContext(ctx).Where("applicant_id = ?", applicantID).First(&applicant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &applicant, nil
}

// UpdateApplicantFields 更新应聘者记录的多个字段
func (m *MySQL) UpdateApplicantFields(ctx context.Context, applicantID string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return m.db.WithContext(ctx).Model(&models.Applicant{}).
		Where("applicant_id = ?", applicantID).Updates(updates).Error
}

// ListApplicantsByJob 列出某岗位下的所有应聘者，最新投递在前
func (m *MySQL) ListApplicantsByJob(ctx context.Context, jobID string) ([]models.Applicant, error) {
	var applicants []models.Applicant
	err := m.db.WithContext(ctx).Where("job_id = ?", jobID).
		Order("uploaded_at DESC").Find(&applicants).Error
	return applicants, err
}

// ListStuckApplicants 列出卡在processing状态超过阈值的应聘者记录
func (m *MySQL) ListStuckApplicants(ctx context.Context, threshold time.Duration) ([]models.Applicant, error) {
	var applicants []models.Applicant
	cutoff := time.Now().Add(-threshold)
	err := m.db.WithContext(ctx).
		Where("processing_status = ? AND updated_at < ?", constants.ProcessingStatusProcessing, cutoff).
		Find(&applicants).Error
	return applicants, err
}

// CountApplicantsByProcessingStatus 统计各处理状态的应聘者数量
func (m *MySQL) CountApplicantsByProcessingStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		ProcessingStatus string
		Total            int64
	}
	var rows []row
	err := m.db.WithContext(ctx).Model(&models.Applicant{}).
		Select("processing_status, COUNT(*) AS total").
		Group("processing_status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.ProcessingStatus] = r.Total
	}
	return counts, nil
}

// GetStatusByID 通过ID获取招聘状态
func (m *MySQL) GetStatusByID(ctx context.Context, statusID string) (*models.ApplicationStatus, error) {
	var status models.ApplicationStatus
	if err := m.db.WithContext(ctx).Where("status_id = ?", statusID).First(&status).Error; err != nil {
		return nil, err
	}
	return &status, nil
}

// GetStatusByName 通过机读名获取招聘状态，未找到返回nil
func (m *MySQL) GetStatusByName(ctx context.Context, name string) (*models.ApplicationStatus, error) {
	var status models.ApplicationStatus
	err := m.db.WithContext(ctx).Where("name = ?", name).First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// GetDefaultStatus 获取默认招聘状态，未配置返回nil
func (m *MySQL) GetDefaultStatus(ctx context.Context) (*models.ApplicationStatus, error) {
	var status models.ApplicationStatus
	err := m.db.WithContext(ctx).Where("is_default = ?", true).First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// ListStatuses 按排序值列出招聘状态
func (m *MySQL) ListStatuses(ctx context.Context, includeInactive bool) ([]models.ApplicationStatus, error) {
	var statuses []models.ApplicationStatus
	query := m.db.WithContext(ctx).Order("sort_order ASC")
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	err := query.Find(&statuses).Error
	return statuses, err
}

// MaxStatusSortOrder 返回当前最大的状态排序值，无状态时返回0
func (m *MySQL) MaxStatusSortOrder(ctx context.Context) (int, error) {
	var max *int
	err := m.db.WithContext(ctx).Model(&models.ApplicationStatus{}).
		Select("MAX(sort_order)").Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// CreateStatus 创建招聘状态
func (m *MySQL) CreateStatus(ctx context.Context, status *models.ApplicationStatus) error {
	if status.StatusID == "" {
		status.StatusID = googleuuid.NewString()
	}
	return m.db.WithContext(ctx).Create(status).Error
}

// UpdateStatusFields 更新招聘状态的多个字段
func (m *MySQL) UpdateStatusFields(ctx context.Context, statusID string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return m.db.WithContext(ctx).Model(&models.ApplicationStatus{}).
		Where("status_id = ?", statusID).Updates(updates).Error
}

// SetDefaultStatus 将指定状态设为默认，并在同一事务里清除旧默认
func (m *MySQL) SetDefaultStatus(ctx context.Context, statusID string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ApplicationStatus{}).
			Where("is_default = ? AND status_id <> ?", true, statusID).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.ApplicationStatus{}).
			Where("status_id = ?", statusID).
			Update("is_default", true).Error
	})
}

// DeleteStatus 删除招聘状态记录
func (m *MySQL) DeleteStatus(ctx context.Context, statusID string) error {
	return m.db.WithContext(ctx).Where("status_id = ?", statusID).
		Delete(&models.ApplicationStatus{}).Error
}

// CountApplicantsWithStatus 统计引用某状态的应聘者数量
func (m *MySQL) CountApplicantsWithStatus(ctx context.Context, statusID string) (int64, error) {
	var count int64
	err := m.db.WithContext(ctx).Model(&models.Applicant{}).
		Where("status_id = ?", statusID).Count(&count).Error
	return count, err
}
