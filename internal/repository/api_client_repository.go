package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/payin/internal/models"

	"gorm.io/gorm"
)

// APIClientRepository 接入方数据访问接口
type APIClientRepository interface {
	GetByClientKey(ctx context.Context, clientKey string) (*models.APIClient, error)
	GetByID(ctx context.Context, id uint) (*models.APIClient, error)
	Create(ctx context.Context, client *models.APIClient) error
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
	UpdateStatus(ctx context.Context, id uint, status string) (*models.APIClient, error)
	UpdateRole(ctx context.Context, id uint, role string) (*models.APIClient, error)
	List(ctx context.Context, filter APIClientListFilter) ([]models.APIClient, int64, error)
}

// APIClientListFilter 接入方列表筛选
type APIClientListFilter struct {
	Role     string
	Status   string
	Page     int
	PageSize int
}

// GormAPIClientRepository GORM 实现
type GormAPIClientRepository struct {
	db *gorm.DB
}

// NewAPIClientRepository 创建接入方仓库
func NewAPIClientRepository(db *gorm.DB) *GormAPIClientRepository {
	return &GormAPIClientRepository{db: db}
}

// GetByClientKey 根据接入方标识获取
func (r *GormAPIClientRepository) GetByClientKey(ctx context.Context, clientKey string) (*models.APIClient, error) {
	var client models.APIClient
	if err := r.db.WithContext(ctx).Where("client_key = ?", clientKey).First(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &client, nil
}

// GetByID 根据 ID 获取接入方
func (r *GormAPIClientRepository) GetByID(ctx context.Context, id uint) (*models.APIClient, error) {
	var client models.APIClient
	if err := r.db.WithContext(ctx).First(&client, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &client, nil
}

// Create 创建接入方
func (r *GormAPIClientRepository) Create(ctx context.Context, client *models.APIClient) error {
	return r.db.WithContext(ctx).Create(client).Error
}

// TouchLastLogin 记录最后换取 Token 时间
func (r *GormAPIClientRepository) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.APIClient{}).Where("id = ?", id).Update("last_login_at", at).Error
}

// UpdateStatus 更新接入方状态，不存在时返回 nil
func (r *GormAPIClientRepository) UpdateStatus(ctx context.Context, id uint, status string) (*models.APIClient, error) {
	return r.updateColumn(ctx, id, "status", status)
}

// UpdateRole 更新接入方主角色
func (r *GormAPIClientRepository) UpdateRole(ctx context.Context, id uint, role string) (*models.APIClient, error) {
	return r.updateColumn(ctx, id, "role", role)
}

func (r *GormAPIClientRepository) updateColumn(ctx context.Context, id uint, column string, value interface{}) (*models.APIClient, error) {
	result := r.db.WithContext(ctx).Model(&models.APIClient{}).Where("id = ?", id).Update(column, value)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

// List 分页列出接入方
func (r *GormAPIClientRepository) List(ctx context.Context, filter APIClientListFilter) ([]models.APIClient, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.APIClient{})
	if role := strings.TrimSpace(filter.Role); role != "" {
		query = query.Where("role = ?", role)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var clients []models.APIClient
	if err := applyPagination(query, filter.Page, filter.PageSize).Order("id ASC").Find(&clients).Error; err != nil {
		return nil, 0, err
	}
	return clients, total, nil
}
