package model

import (
	"time"
)

// RefundRecordModel 退款记录
type RefundRecordModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectId    int64  `json:"project_id" gorm:"not null"`
	Amount       int64  `json:"amount" gorm:"not null"`
	Address      string `json:"address" gorm:"not null"`
	TxHash       string `json:"tx_hash" gorm:"uniqueIndex"`
	BlockNum     int64  `json:"block_num"`
	RefundReason string `json:"refund_reason" gorm:"type:text"`
}

// TableName 自定义表名
func (RefundRecordModel) TableName() string {
	return "refund_record"
}
