package logic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blues/crowdsync/internal/model"
	"gorm.io/gorm"
)

// ContributeRecordLogic 贡献记录业务逻辑
// 确认后的转账在这里落库：一笔交易恰好产生一条贡献记录，
// 并在同一个数据库事务内重算项目聚合字段
type ContributeRecordLogic struct {
	db *gorm.DB
}

// NewContributeRecordLogic 创建贡献记录业务逻辑
func NewContributeRecordLogic(db *gorm.DB) *ContributeRecordLogic {
	return &ContributeRecordLogic{db: db}
}

// Record 幂等记录一笔已确认的贡献
// tx_hash 唯一索引是唯一的去重机制：并发调用同一 tx_hash 时
// 恰好一个成功，其余返回 ErrDuplicateTransaction，聚合不会被重复计入
func (c *ContributeRecordLogic) Record(record *model.ContributeRecordModel) error {
	// 验证贡献数据
	if err := c.validateRecord(record); err != nil {
		return err
	}

	// 开始事务
	tx := c.db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// 检查项目是否存在
	var project model.ProjectModel
	if err := tx.First(&project, record.ProjectId).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// 检查交易是否已记录
	var count int64
	if err := tx.Model(&model.ContributeRecordModel{}).
		Where("tx_hash = ?", record.TxHash).Count(&count).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count > 0 {
		tx.Rollback()
		return ErrDuplicateTransaction
	}

	// 创建贡献记录，唯一索引在并发下兜底
	if err := tx.Create(record).Error; err != nil {
		tx.Rollback()
		if isDuplicateKeyError(err) {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// 从全量贡献记录重算聚合字段
	var agg struct {
		Total        int64
		Contributors int64
	}
	if err := tx.Model(&model.ContributeRecordModel{}).
		Where("project_id = ?", record.ProjectId).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(DISTINCT address) AS contributors").
		Scan(&agg).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	updates := map[string]interface{}{
		"total_raised":      agg.Total,
		"contributor_count": agg.Contributors,
	}

	// 达到目标金额时置为 funded；funded 不会回退到 active
	if agg.Total >= project.TargetAmount && project.Status == model.ProjectStatusActive {
		updates["status"] = model.ProjectStatusFunded
	}

	if err := tx.Model(&model.ProjectModel{}).Where("id = ?", project.Id).Updates(updates).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// 提交事务
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// GetProjectContributeRecords 获取项目贡献记录
func (c *ContributeRecordLogic) GetProjectContributeRecords(projectId int64, page, pageSize int) ([]model.ContributeRecordModel, int64, error) {
	var contributions []model.ContributeRecordModel
	var total int64

	// 获取总数
	if err := c.db.Model(&model.ContributeRecordModel{}).Where("project_id = ?", projectId).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 获取数据
	offset := (page - 1) * pageSize
	if err := c.db.Where("project_id = ?", projectId).
		Offset(offset).
		Limit(pageSize).
		Order("created_at DESC").
		Find(&contributions).Error; err != nil {
		return nil, 0, err
	}

	return contributions, total, nil
}

// GetContributeStats 获取贡献统计信息
func (c *ContributeRecordLogic) GetContributeStats(projectId int64) (map[string]interface{}, error) {
	var stats struct {
		TotalContributions int64 `json:"total_contributions"`
		TotalAmount        int64 `json:"total_amount"`
		UniqueContributors int64 `json:"unique_contributors"`
	}

	// 总贡献记录数
	if err := c.db.Model(&model.ContributeRecordModel{}).Where("project_id = ?", projectId).Count(&stats.TotalContributions).Error; err != nil {
		return nil, fmt.Errorf("failed to count contributions: %w", err)
	}

	// 总贡献金额
	if err := c.db.Model(&model.ContributeRecordModel{}).Where("project_id = ?", projectId).Select("COALESCE(SUM(amount), 0)").Scan(&stats.TotalAmount).Error; err != nil {
		return nil, fmt.Errorf("failed to sum contribution amounts: %w", err)
	}

	// 唯一贡献者数量
	if err := c.db.Model(&model.ContributeRecordModel{}).Where("project_id = ?", projectId).Select("COUNT(DISTINCT address)").Scan(&stats.UniqueContributors).Error; err != nil {
		return nil, fmt.Errorf("failed to count unique contributors: %w", err)
	}

	return map[string]interface{}{
		"total_contributions": stats.TotalContributions,
		"total_amount":        stats.TotalAmount,
		"unique_contributors": stats.UniqueContributors,
	}, nil
}

// validateRecord 验证贡献数据
func (c *ContributeRecordLogic) validateRecord(record *model.ContributeRecordModel) error {
	if record.ProjectId == 0 {
		return fmt.Errorf("%w: project id is required", ErrValidation)
	}
	if record.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if record.Address == "" {
		return fmt.Errorf("%w: contributor address is required", ErrValidation)
	}
	if record.TxHash == "" {
		return fmt.Errorf("%w: tx hash is required", ErrValidation)
	}
	return nil
}

// isDuplicateKeyError 判断是否为唯一键冲突
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// 驱动未翻译时的兜底判断
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
