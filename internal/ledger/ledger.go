package ledger

import (
	"context"
	"math/big"
)

// 链上事件类型
const (
	EventProjectCreated   = "ProjectCreated"
	EventContributionMade = "ContributionMade"
	EventFundsWithdrawn   = "FundsWithdrawn"
	EventRefundProcessed  = "RefundProcessed"
)

// TxStatus 交易终态查询结果
// Finalized 为 false 时交易还在等待确认
type TxStatus struct {
	Finalized bool `json:"finalized"`
	Success   bool `json:"success"`
}

// Event 解析后的链上事件
type Event struct {
	Type      string   `json:"type"`
	BlockNum  int64    `json:"block_num"`
	LogIndex  int64    `json:"log_index"`
	TxHash    string   `json:"tx_hash"`
	ProjectId int64    `json:"project_id"` // 合约分配的项目ID
	Address   string   `json:"address"`    // 创建者/贡献者/接收者/退款人
	Amount    *big.Int `json:"amount"`
	Title     string   `json:"title"`
	Reason    string   `json:"reason"`
}

// Ledger 外部账本
// 接受已签名的转账，提供按交易哈希的状态查询和事件拉取
type Ledger interface {
	// Submit 广播已签名的原始交易，返回交易哈希
	Submit(ctx context.Context, rawTx []byte) (string, error)

	// QueryStatus 查询交易状态，交易尚未被索引时返回零值 TxStatus
	QueryStatus(ctx context.Context, txHash string) (TxStatus, error)

	// FetchEvents 拉取 sinceBlock 之后（不含）的事件，不保证顺序
	FetchEvents(ctx context.Context, sinceBlock int64) ([]Event, error)

	// CurrentBlock 当前最新区块号
	CurrentBlock(ctx context.Context) (int64, error)
}
