package logic

import (
	"fmt"

	"github.com/blues/crowdsync/internal/model"
	"gorm.io/gorm"
)

// RefundRecordLogic 退款记录业务逻辑
type RefundRecordLogic struct {
	db *gorm.DB
}

// NewRefundRecordLogic 创建退款记录业务逻辑
func NewRefundRecordLogic(db *gorm.DB) *RefundRecordLogic {
	return &RefundRecordLogic{db: db}
}

// CreateRefundRecord 创建退款记录，按 tx_hash 幂等
func (r *RefundRecordLogic) CreateRefundRecord(record *model.RefundRecordModel) error {
	if record.ProjectId == 0 {
		return fmt.Errorf("%w: project id is required", ErrValidation)
	}
	if record.TxHash == "" {
		return fmt.Errorf("%w: tx hash is required", ErrValidation)
	}

	if err := r.db.Create(record).Error; err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// GetProjectRefundRecords 获取项目退款记录
func (r *RefundRecordLogic) GetProjectRefundRecords(projectId int64) ([]model.RefundRecordModel, error) {
	var records []model.RefundRecordModel
	if err := r.db.Where("project_id = ?", projectId).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return records, nil
}
