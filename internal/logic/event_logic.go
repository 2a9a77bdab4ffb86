package logic

import (
	"errors"
	"fmt"

	"github.com/blues/crowdsync/internal/model"
	"gorm.io/gorm"
)

// EventLogic 事件业务逻辑
// 每条被重放的链上事件都先落一条审计记录
type EventLogic struct {
	db *gorm.DB
}

// NewEventLogic 创建事件业务逻辑
func NewEventLogic(db *gorm.DB) *EventLogic {
	return &EventLogic{db: db}
}

// CreateEvent 创建事件记录
func (e *EventLogic) CreateEvent(event *model.EventModel) error {
	if event.EventType == "" {
		return fmt.Errorf("%w: event type is required", ErrValidation)
	}
	if event.TxHash == "" {
		return fmt.Errorf("%w: tx hash is required", ErrValidation)
	}

	if err := e.db.Create(event).Error; err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// GetEventByTxLog 按交易哈希和日志序号获取事件，不存在时返回 nil
func (e *EventLogic) GetEventByTxLog(txHash string, logIndex int64) (*model.EventModel, error) {
	var event model.EventModel
	err := e.db.Where("tx_hash = ? AND log_index = ?", txHash, logIndex).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &event, nil
}

// CheckEventExists 检查事件是否已存在
func (e *EventLogic) CheckEventExists(txHash string, logIndex int64) (bool, error) {
	var count int64
	err := e.db.Model(&model.EventModel{}).
		Where("tx_hash = ? AND log_index = ?", txHash, logIndex).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count > 0, nil
}

// UpdateEventProcessed 更新事件处理状态
func (e *EventLogic) UpdateEventProcessed(id int64, processed bool) error {
	if err := e.db.Model(&model.EventModel{}).Where("id = ?", id).Update("processed", processed).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// GetEvents 获取事件列表
func (e *EventLogic) GetEvents(projectId int64, eventType string, page, pageSize int) ([]model.EventModel, int64, error) {
	var events []model.EventModel
	var total int64

	// 构建查询条件
	query := e.db.Model(&model.EventModel{})
	if projectId > 0 {
		query = query.Where("project_id = ?", projectId)
	}
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}

	// 获取总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// 分页查询
	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).
		Order("block_num DESC, log_index DESC").
		Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return events, total, nil
}
