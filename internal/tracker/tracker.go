package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blues/crowdsync/internal/config"
	"github.com/blues/crowdsync/internal/ledger"
	"github.com/blues/crowdsync/internal/logger"
	"github.com/blues/crowdsync/internal/model"
	"github.com/blues/crowdsync/internal/retry"
	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// errStillPending 轮询尚未到达终态，驱动退避重试
var errStillPending = errors.New("transaction still pending")

// maxAttemptsMessage 后台轮询耗尽时持久化的错误信息
const maxAttemptsMessage = "Max polling attempts reached"

// Tracker 交易追踪器
// 把一个交易哈希映射到终态（confirmed 或 failed），处理链上最终性的异步性
// 每个 txHash 的轮询相互独立，可为大量在途交易并发运行
type Tracker struct {
	ledger       ledger.Ledger
	db           *gorm.DB
	pool         *ants.Pool
	pollInterval time.Duration
	maxAttempts  int
	observers    observerRegistry
}

// New 创建交易追踪器
func New(l ledger.Ledger, db *gorm.DB, cfg config.TrackConfig) (*Tracker, error) {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 32
	}

	// 后台轮询协程池
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracker pool: %w", err)
	}

	pollInterval := cfg.PollIntervalDuration()
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Tracker{
		ledger:       l,
		db:           db,
		pool:         pool,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
	}, nil
}

// Close 释放协程池
func (t *Tracker) Close() {
	t.pool.Release()
}

// Subscribe 订阅状态变迁，返回取消订阅函数
func (t *Tracker) Subscribe(fn StatusObserver) func() {
	return t.observers.subscribe(fn)
}

// Track 为已提交的交易创建 pending 记录，按 tx_hash 幂等
func (t *Tracker) Track(txHash string, kind model.TransactionKind, initiator string, projectId int64) (*model.TransactionModel, error) {
	if txHash == "" {
		return nil, fmt.Errorf("tx hash is required")
	}

	record := &model.TransactionModel{
		TxHash:    txHash,
		Kind:      kind,
		Initiator: initiator,
		ProjectId: projectId,
		Status:    model.TransactionStatusPending,
	}

	if err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}},
		DoNothing: true,
	}).Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to create transaction record: %w", err)
	}

	return t.GetTransaction(txHash)
}

// GetTransaction 按交易哈希获取交易记录
func (t *Tracker) GetTransaction(txHash string) (*model.TransactionModel, error) {
	var record model.TransactionModel
	if err := t.db.Where("tx_hash = ?", txHash).First(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", txHash, err)
	}
	return &record, nil
}

// PollOnce 单次查询链上状态
// 查询失败按乐观策略当作 pending，瞬时网络错误不会冒泡
func (t *Tracker) PollOnce(ctx context.Context, txHash string) model.TransactionStatus {
	status, err := t.ledger.QueryStatus(ctx, txHash)
	if err != nil {
		logger.Debug("Status query for tx %s failed, treating as pending: %v", txHash, err)
		return model.TransactionStatusPending
	}

	if !status.Finalized {
		return model.TransactionStatusPending
	}
	if status.Success {
		return model.TransactionStatusConfirmed
	}
	return model.TransactionStatusFailed
}

// WaitUntilTerminal 阻塞等待交易到达终态，永不返回 pending
// 超时后做最后一次状态检查，仍为 pending 则把本地记录置为 failed
// （链上记录不受影响，这是本地缓存语义，见超时即失败策略）
func (t *Tracker) WaitUntilTerminal(ctx context.Context, txHash string, timeout, pollInterval time.Duration) (model.TransactionStatus, error) {
	if pollInterval <= 0 {
		pollInterval = t.pollInterval
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status := t.PollOnce(ctx, txHash)
		if status.IsTerminal() {
			t.persistStatus(txHash, status, "")
			return status, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			// 超时：最后再查一次
			status := t.PollOnce(ctx, txHash)
			if status.IsTerminal() {
				t.persistStatus(txHash, status, "")
				return status, nil
			}
			msg := fmt.Sprintf("confirmation timed out after %s", timeout)
			t.persistStatus(txHash, model.TransactionStatusFailed, msg)
			return model.TransactionStatusFailed, nil
		case <-ticker.C:
		}
	}
}

// PollAndPersist 以指数退避轮询直到终态并持久化
// maxAttempts 耗尽仍为 pending 时，持久化 failed 及说明信息
func (t *Tracker) PollAndPersist(ctx context.Context, txHash string, maxAttempts int) (model.TransactionStatus, error) {
	if maxAttempts <= 0 {
		maxAttempts = t.maxAttempts
	}

	var status model.TransactionStatus
	err := retry.Do(ctx, fmt.Sprintf("poll transaction %s", txHash), func() error {
		status = t.PollOnce(ctx, txHash)
		if status.IsTerminal() {
			return nil
		}
		return errStillPending
	}, retry.Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: t.pollInterval,
	})

	if err != nil {
		if errors.Is(err, errStillPending) {
			t.persistStatus(txHash, model.TransactionStatusFailed, maxAttemptsMessage)
			return model.TransactionStatusFailed, nil
		}
		// 上下文取消
		return "", err
	}

	errMsg := ""
	if status == model.TransactionStatusFailed {
		errMsg = "transaction rejected by ledger"
	}
	t.persistStatus(txHash, status, errMsg)
	return status, nil
}

// TrackAsync 提交后台轮询任务，立即返回
func (t *Tracker) TrackAsync(txHash string, maxAttempts int) error {
	return t.pool.Submit(func() {
		if _, err := t.PollAndPersist(context.Background(), txHash, maxAttempts); err != nil {
			logger.Error("Background polling for tx %s aborted: %v", txHash, err)
		}
	})
}

// persistStatus 持久化状态变迁并广播给观察者
// 只允许 pending 记录变迁，终态记录不会被改写（append-then-mutate 一次）
func (t *Tracker) persistStatus(txHash string, status model.TransactionStatus, errMessage string) {
	result := t.db.Model(&model.TransactionModel{}).
		Where("tx_hash = ? AND status = ?", txHash, model.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errMessage,
		})

	if result.Error != nil {
		logger.Error("Failed to persist status %s for tx %s: %v", status, txHash, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		// 记录不存在或已是终态，没有发生变迁
		logger.Debug("No status transition for tx %s (already terminal or unknown)", txHash)
		return
	}

	logger.Info("Transaction %s transitioned to %s", txHash, status)
	t.observers.notify(txHash, status, errMessage)
}
