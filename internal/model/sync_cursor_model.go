package model

import (
	"time"
)

// SyncCursorModel 同步游标，单行记录
// 只有同步引擎自己的循环会推进它（单写者）
type SyncCursorModel struct {
	Id              int64     `json:"id" gorm:"primaryKey"`
	LastSyncedBlock int64     `json:"last_synced_block" gorm:"not null;default:0"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName 自定义表名
func (SyncCursorModel) TableName() string {
	return "sync_cursor"
}
