package model

import (
	"time"
)

// TransactionModel 链上交易记录
// 创建后只允许一次终态变迁：pending -> confirmed 或 pending -> failed
// 记录永不删除，作为审计轨迹
type TransactionModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TxHash       string            `json:"tx_hash" gorm:"uniqueIndex;not null"`
	Kind         TransactionKind   `json:"kind" gorm:"not null"`
	Initiator    string            `json:"initiator" gorm:"not null"`
	ProjectId    int64             `json:"project_id"`
	Status       TransactionStatus `json:"status" gorm:"default:'pending'"`
	ErrorMessage string            `json:"error_message" gorm:"type:text"`
}

// TransactionKind 交易类型
type TransactionKind string

const (
	TransactionKindCreateProject TransactionKind = "create_project" // 创建项目
	TransactionKindContribute    TransactionKind = "contribute"     // 贡献
	TransactionKindWithdraw      TransactionKind = "withdraw"       // 提现
	TransactionKindRefund        TransactionKind = "refund"         // 退款
)

// TransactionStatus 交易状态
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"   // 等待确认
	TransactionStatusConfirmed TransactionStatus = "confirmed" // 已确认
	TransactionStatusFailed    TransactionStatus = "failed"    // 已失败
)

// IsTerminal 是否为终态
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusConfirmed || s == TransactionStatusFailed
}

// TableName 自定义表名
func (TransactionModel) TableName() string {
	return "transaction_record"
}
