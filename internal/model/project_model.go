package model

import (
	"time"
)

// ProjectModel 众筹项目模型
type ProjectModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 基本信息
	Title       string `json:"title" gorm:"not null" binding:"required"`
	Description string `json:"description" gorm:"type:text"`
	Category    string `json:"category"`

	// 链上项目ID，由合约分配，用于幂等创建
	ChainProjectId int64 `json:"chain_project_id" gorm:"uniqueIndex"`

	// 众筹信息（最小货币单位）
	TargetAmount     int64 `json:"target_amount" gorm:"not null" binding:"required,min=0"`
	TotalRaised      int64 `json:"total_raised" gorm:"default:0"`
	ContributorCount int64 `json:"contributor_count" gorm:"default:0"`

	// 状态
	Status ProjectStatus `json:"status" gorm:"default:'active'"`

	// 创建者信息
	CreatorAddress string `json:"creator_address" gorm:"not null"`

	// 区块链信息
	TxHash   string `json:"tx_hash"`
	BlockNum int64  `json:"block_num"`
}

// ProjectStatus 项目状态
type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"    // 进行中
	ProjectStatusFunded    ProjectStatus = "funded"    // 已达标
	ProjectStatusExpired   ProjectStatus = "expired"   // 已过期
	ProjectStatusWithdrawn ProjectStatus = "withdrawn" // 已提现
)

// TableName 自定义表名
func (ProjectModel) TableName() string {
	return "project"
}
