package status

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/BCT-Dylan/hr-management-system/internal/constants"
	"github.com/BCT-Dylan/hr-management-system/internal/logger"
	"github.com/BCT-Dylan/hr-management-system/internal/storage"
	"github.com/BCT-Dylan/hr-management-system/internal/storage/models"
)

// 确保存储实现满足服务依赖的接口
var (
	_ Store = (*storage.MySQL)(nil)
	_ Cache = (*storage.Redis)(nil)
)

var (
	// ErrNotFound 状态不存在
	ErrNotFound = errors.New("状态不存在")
	// ErrNameInvalid 状态机读名不符合命名规则
	ErrNameInvalid = errors.New("状态名必须是小写字母开头，仅含小写字母、数字和下划线")
	// ErrNameTaken 状态机读名已被占用
	ErrNameTaken = errors.New("状态名已存在")
	// ErrReferenced 状态仍被应聘者记录引用，不能删除
	ErrReferenced = errors.New("状态仍被应聘者引用，无法删除")
	// ErrDefaultUndeletable 默认状态不能删除
	ErrDefaultUndeletable = errors.New("默认状态无法删除")
)

// 机读名规则: 小写字母开头，仅含小写字母、数字和下划线
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// defaultStatusCacheTTL 默认状态缓存的过期时间
const defaultStatusCacheTTL = 5 * time.Minute

// Store 状态服务需要的持久层能力
type Store interface {
	GetStatusByID(ctx context.Context, statusID string) (*models.ApplicationStatus, error)
	GetStatusByName(ctx context.Context, name string) (*models.ApplicationStatus, error)
	GetDefaultStatus(ctx context.Context) (*models.ApplicationStatus, error)
	ListStatuses(ctx context.Context, includeInactive bool) ([]models.ApplicationStatus, error)
	MaxStatusSortOrder(ctx context.Context) (int, error)
	CreateStatus(ctx context.Context, status *models.ApplicationStatus) error
	UpdateStatusFields(ctx context.Context, statusID string, updates map[string]interface{}) error
	SetDefaultStatus(ctx context.Context, statusID string) error
	DeleteStatus(ctx context.Context, statusID string) error
	CountApplicantsWithStatus(ctx context.Context, statusID string) (int64, error)
}

// Cache 默认状态的缓存能力，可为nil
type Cache interface {
	GetDefaultStatusCache(ctx context.Context) (*models.ApplicationStatus, error)
	SetDefaultStatusCache(ctx context.Context, status *models.ApplicationStatus, ttl time.Duration) error
	InvalidateDefaultStatusCache(ctx context.Context) error
}

// Service 招聘流程状态的管理服务
type Service struct {
	store Store
	cache Cache
}

// NewService 创建状态服务，cache可以为nil
func NewService(store Store, cache Cache) *Service {
	return &Service{
		store: store,
		cache: cache,
	}
}

// CreateInput 创建状态的入参
type CreateInput struct {
	Name        string
	DisplayName string
	IsDefault   bool
}

// Create 创建一个新状态，排序值自动排到末尾
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.ApplicationStatus, error) {
	if !namePattern.MatchString(input.Name) {
		return nil, fmt.Errorf("%w: %q", ErrNameInvalid, input.Name)
	}

	existing, err := s.store.GetStatusByName(ctx, input.Name)
	if err != nil {
		return nil, fmt.Errorf("查询状态名失败: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %q", ErrNameTaken, input.Name)
	}

	maxOrder, err := s.store.MaxStatusSortOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询最大排序值失败: %w", err)
	}

	displayName := input.DisplayName
	if displayName == "" {
		displayName = input.Name
	}

	status := &models.ApplicationStatus{
		Name:        input.Name,
		DisplayName: displayName,
		SortOrder:   maxOrder + 1,
		IsActive:    true,
	}
	if err := s.store.CreateStatus(ctx, status); err != nil {
		return nil, fmt.Errorf("创建状态失败: %w", err)
	}

	if input.IsDefault {
		if err := s.store.SetDefaultStatus(ctx, status.StatusID); err != nil {
			return nil, fmt.Errorf("设置默认状态失败: %w", err)
		}
		status.IsDefault = true
	}

	s.invalidateCache(ctx)
	return status, nil
}

// UpdateInput 更新状态的入参，nil字段表示不变更
type UpdateInput struct {
	DisplayName *string
	SortOrder   *int
	IsActive    *bool
	IsDefault   *bool
}

// Update 更新状态属性。把IsDefault设为true会自动清除旧默认；
// 默认状态允许停用，停用后流水线将不再为新申请人挂默认状态。
func (s *Service) Update(ctx context.Context, statusID string, input UpdateInput) (*models.ApplicationStatus, error) {
	current, err := s.store.GetStatusByID(ctx, statusID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, statusID)
	}

	updates := map[string]interface{}{}
	if input.DisplayName != nil {
		updates["display_name"] = *input.DisplayName
	}
	if input.SortOrder != nil {
		updates["sort_order"] = *input.SortOrder
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if input.IsDefault != nil && !*input.IsDefault {
		updates["is_default"] = false
	}

	if len(updates) > 0 {
		if err := s.store.UpdateStatusFields(ctx, statusID, updates); err != nil {
			return nil, fmt.Errorf("更新状态失败: %w", err)
		}
	}

	if input.IsDefault != nil && *input.IsDefault && !current.IsDefault {
		if err := s.store.SetDefaultStatus(ctx, statusID); err != nil {
			return nil, fmt.Errorf("设置默认状态失败: %w", err)
		}
	}

	s.invalidateCache(ctx)
	return s.store.GetStatusByID(ctx, statusID)
}

// Delete 删除状态。默认状态和仍被引用的状态会被拒绝。
func (s *Service) Delete(ctx context.Context, statusID string) error {
	current, err := s.store.GetStatusByID(ctx, statusID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, statusID)
	}
	if current.IsDefault {
		return ErrDefaultUndeletable
	}

	count, err := s.store.CountApplicantsWithStatus(ctx, statusID)
	if err != nil {
		return fmt.Errorf("统计状态引用数失败: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %d 条记录", ErrReferenced, count)
	}

	if err := s.store.DeleteStatus(ctx, statusID); err != nil {
		return fmt.Errorf("删除状态失败: %w", err)
	}

	s.invalidateCache(ctx)
	return nil
}

// Reorder 按给定的ID顺序重排所有状态的排序值
func (s *Service) Reorder(ctx context.Context, orderedIDs []string) error {
	for i, statusID := range orderedIDs {
		if err := s.store.UpdateStatusFields(ctx, statusID, map[string]interface{}{
			"sort_order": i + 1,
		}); err != nil {
			return fmt.Errorf("重排状态 %s 失败: %w", statusID, err)
		}
	}
	return nil
}

// List 按排序值列出状态
func (s *Service) List(ctx context.Context, includeInactive bool) ([]models.ApplicationStatus, error) {
	return s.store.ListStatuses(ctx, includeInactive)
}

// Get 通过ID获取状态
func (s *Service) Get(ctx context.Context, statusID string) (*models.ApplicationStatus, error) {
	status, err := s.store.GetStatusByID(ctx, statusID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, statusID)
	}
	return status, nil
}

// GetByName 通过机读名获取状态，未找到返回nil而不是错误
func (s *Service) GetByName(ctx context.Context, name string) (*models.ApplicationStatus, error) {
	return s.store.GetStatusByName(ctx, name)
}

// Default 获取当前默认状态，优先读缓存。未配置默认状态时返回nil。
func (s *Service) Default(ctx context.Context) (*models.ApplicationStatus, error) {
	if s.cache != nil {
		cached, err := s.cache.GetDefaultStatusCache(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("读取默认状态缓存失败，回退到数据库")
		} else if cached != nil {
			return cached, nil
		}
	}

	status, err := s.store.GetDefaultStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询默认状态失败: %w", err)
	}
	if status == nil {
		// 没有标记默认时退回按机读名pending查找
		status, err = s.store.GetStatusByName(ctx, constants.DefaultStatusName)
		if err != nil {
			return nil, fmt.Errorf("按机读名查询默认状态失败: %w", err)
		}
	}

	if status != nil && s.cache != nil {
		if err := s.cache.SetDefaultStatusCache(ctx, status, defaultStatusCacheTTL); err != nil {
			logger.Warn().Err(err).Msg("写入默认状态缓存失败")
		}
	}
	return status, nil
}

// Usage 统计某状态被多少应聘者记录引用
func (s *Service) Usage(ctx context.Context, statusID string) (int64, error) {
	return s.store.CountApplicantsWithStatus(ctx, statusID)
}

func (s *Service) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateDefaultStatusCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("清除默认状态缓存失败")
	}
}
