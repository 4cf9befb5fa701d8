package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// JobPosting 岗位信息表
type JobPosting struct {
	JobID             string         `gorm:"type:char(36);primaryKey"`
	Title             string         `gorm:"type:varchar(255);not null"`
	Department        string         `gorm:"type:varchar(255)"`
	Location          string         `gorm:"type:varchar(255)"`
	Description       string         `gorm:"type:text;not null"`
	DescriptionDetail string         `gorm:"type:text"` // 详细JD补充，进入评估提示词
	AIAnalysisEnabled bool           `gorm:"default:true"`
	ScoringCriteria   datatypes.JSON `gorm:"type:json"` // 加权记分规则，空则按默认权重评估
	Status            string         `gorm:"type:varchar(50);default:'ACTIVE';index:idx_jobs_status"`
	CreatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (JobPosting) TableName() string {
	return "job_postings"
}

// Applicant 应聘者表，一行对应一份投递的简历
type Applicant struct {
	ApplicantID       string         `gorm:"type:char(36);primaryKey"`
	JobID             string         `gorm:"type:char(36);not null;index:idx_applicants_job_id"`
	Name              string         `gorm:"type:varchar(255);not null"`
	Email             string         `gorm:"type:varchar(255)"`
	Phone             string         `gorm:"type:varchar(50)"`
	Location          string         `gorm:"type:varchar(255)"`
	ResumeFilePath    string         `gorm:"type:varchar(1024)"` // MinIO对象路径
	ResumeFileName    string         `gorm:"type:varchar(255)"`
	ResumeContent     string         `gorm:"type:mediumtext"` // 提取出的纯文本，重新分析依赖它
	ExtractedInfoJSON datatypes.JSON `gorm:"type:json"`
	MatchPercentage   *int           `gorm:"type:int"`
	AISummary         string         `gorm:"type:text"`
	StrengthsJSON     datatypes.JSON `gorm:"type:json"`
	WeaknessesJSON    datatypes.JSON `gorm:"type:json"`
	RecommendsJSON    datatypes.JSON `gorm:"type:json"`
	AIAnalysisSummary string         `gorm:"type:text"` // 人读摘要，HR备注在前AI段落在后
	AnalysisCompleted bool           `gorm:"default:false"`
	AnalyzedAt        *time.Time     `gorm:"type:datetime(6)"`
	ProcessingStatus  string         `gorm:"type:varchar(50);default:'pending';index:idx_applicants_processing_status"`
	StatusID          *string        `gorm:"type:char(36);index:idx_applicants_status_id"` // 弱引用招聘状态，不建外键
	Notes             string         `gorm:"type:text"`
	UploadedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_applicants_uploaded_at"`
	CreatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Job *JobPosting `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Applicant) TableName() string {
	return "applicants"
}

// ApplicationStatus 招聘流程状态字典表
type ApplicationStatus struct {
	StatusID    string    `gorm:"type:char(36);primaryKey"`
	Name        string    `gorm:"type:varchar(100);uniqueIndex:idx_statuses_name;not null"` // 小写加下划线的机读名
	DisplayName string    `gorm:"type:varchar(255);not null"`
	SortOrder   int       `gorm:"not null;index:idx_statuses_sort_order"`
	IsActive    bool      `gorm:"default:true"`
	IsDefault   bool      `gorm:"default:false"`
	CreatedAt   time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt   time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (ApplicationStatus) TableName() string {
	return "application_statuses"
}

// StringToJSON Helper function to convert string to datatypes.JSON
func StringToJSON(s string) datatypes.JSON {
	return datatypes.JSON(s)
}

// MapToJSON Helper function to convert map[string]interface{} to datatypes.JSON
func MapToJSON(m map[string]interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}

// SliceToJSON Helper function to convert a value (typically a slice) to datatypes.JSON
func SliceToJSON(v interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
