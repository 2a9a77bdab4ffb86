package logic

import (
	"errors"
	"fmt"

	"github.com/blues/crowdsync/internal/logger"
	"github.com/blues/crowdsync/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProjectLogic 项目业务逻辑
type ProjectLogic struct {
	db *gorm.DB
}

// NewProjectLogic 创建项目业务逻辑
func NewProjectLogic(db *gorm.DB) *ProjectLogic {
	return &ProjectLogic{db: db}
}

// EnsureFromChain 按链上项目ID幂等创建项目
// 事件重放时同一项目只会落一行，已存在则直接返回现有记录
func (p *ProjectLogic) EnsureFromChain(project *model.ProjectModel) error {
	if project.ChainProjectId == 0 {
		return fmt.Errorf("%w: chain project id is required", ErrValidation)
	}
	if project.CreatorAddress == "" {
		return fmt.Errorf("%w: creator address is required", ErrValidation)
	}

	if project.Status == "" {
		project.Status = model.ProjectStatusActive
	}

	// chain_project_id 唯一索引保证幂等
	err := p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain_project_id"}},
		DoNothing: true,
	}).Create(project).Error
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// GetProject 获取项目详情
func (p *ProjectLogic) GetProject(id int64) (*model.ProjectModel, error) {
	var project model.ProjectModel
	if err := p.db.First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &project, nil
}

// GetProjectByChainId 按链上项目ID获取项目
func (p *ProjectLogic) GetProjectByChainId(chainProjectId int64) (*model.ProjectModel, error) {
	var project model.ProjectModel
	if err := p.db.Where("chain_project_id = ?", chainProjectId).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &project, nil
}

// GetProjects 获取项目列表
func (p *ProjectLogic) GetProjects() ([]model.ProjectModel, error) {
	var projects []model.ProjectModel
	if err := p.db.Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return projects, nil
}

// MarkWithdrawn 将项目置为已提现
func (p *ProjectLogic) MarkWithdrawn(id int64) error {
	result := p.db.Model(&model.ProjectModel{}).
		Where("id = ?", id).
		Update("status", model.ProjectStatusWithdrawn)
	if result.Error != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrProjectNotFound
	}

	return nil
}

// MarkExpired 将仍在进行中的项目置为已过期
// 已达标、已提现或已过期的项目不受影响
func (p *ProjectLogic) MarkExpired(id int64) error {
	result := p.db.Model(&model.ProjectModel{}).
		Where("id = ? AND status = ?", id, model.ProjectStatusActive).
		Update("status", model.ProjectStatusExpired)
	if result.Error != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		logger.Debug("Project %d not active, skipping expire", id)
	}

	return nil
}
