package logic

import (
	"fmt"

	"github.com/blues/crowdsync/internal/model"
	"gorm.io/gorm"
)

// SettlementRecordLogic 结算记录业务逻辑
type SettlementRecordLogic struct {
	db *gorm.DB
}

// NewSettlementRecordLogic 创建结算记录业务逻辑
func NewSettlementRecordLogic(db *gorm.DB) *SettlementRecordLogic {
	return &SettlementRecordLogic{db: db}
}

// CreateSettlementRecord 创建提现结算记录，按 tx_hash 幂等
func (s *SettlementRecordLogic) CreateSettlementRecord(record *model.SettlementRecordModel) error {
	if record.ProjectId == 0 {
		return fmt.Errorf("%w: project id is required", ErrValidation)
	}
	if record.TxHash == "" {
		return fmt.Errorf("%w: tx hash is required", ErrValidation)
	}

	if err := s.db.Create(record).Error; err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}
