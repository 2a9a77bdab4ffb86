package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blues/crowdsync/internal/config"
	"github.com/blues/crowdsync/internal/ledger"
	"github.com/blues/crowdsync/internal/logger"
	"github.com/blues/crowdsync/internal/logic"
	"github.com/blues/crowdsync/internal/model"
	"github.com/blues/crowdsync/internal/retry"
	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// cursorRowId 游标表单行记录的主键
const cursorRowId = 1

// Result 一次同步的统计结果
type Result struct {
	ProjectsSynced      int      `json:"projects_synced"`
	ContributionsSynced int      `json:"contributions_synced"`
	WithdrawalsSynced   int      `json:"withdrawals_synced"`
	RefundsSynced       int      `json:"refunds_synced"`
	Errors              []string `json:"errors"`
}

// Engine 同步引擎
// 从持久化游标之后拉取链上事件，按 (区块号, 日志序号) 全序重放，
// 作为请求时确认路径之外的对账兜底
type Engine struct {
	ledger      ledger.Ledger
	db          *gorm.DB
	startBlock  int64
	interval    time.Duration
	maxAttempts int

	users         *logic.UserLogic
	projects      *logic.ProjectLogic
	contributions *logic.ContributeRecordLogic
	refunds       *logic.RefundRecordLogic
	settlements   *logic.SettlementRecordLogic
	events        *logic.EventLogic

	scheduler gocron.Scheduler
	mu        sync.Mutex // 串行化同步周期，游标单写者
	running   atomic.Bool
	errObs    errorRegistry
}

// New 创建同步引擎
func New(l ledger.Ledger, db *gorm.DB, chainCfg config.ChainConfig, syncCfg config.SyncConfig) *Engine {
	interval := time.Duration(syncCfg.Interval) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}

	maxAttempts := syncCfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	return &Engine{
		ledger:        l,
		db:            db,
		startBlock:    chainCfg.StartBlock,
		interval:      interval,
		maxAttempts:   maxAttempts,
		users:         logic.NewUserLogic(db),
		projects:      logic.NewProjectLogic(db),
		contributions: logic.NewContributeRecordLogic(db),
		refunds:       logic.NewRefundRecordLogic(db),
		settlements:   logic.NewSettlementRecordLogic(db),
		events:        logic.NewEventLogic(db),
	}
}

// SubscribeErrors 订阅同步错误，返回取消订阅函数
func (e *Engine) SubscribeErrors(fn ErrorObserver) func() {
	return e.errObs.subscribe(fn)
}

// Start 立即执行一次全量同步，然后按固定周期调度
func (e *Engine) Start() error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create sync scheduler: %w", err)
	}
	e.scheduler = s

	_, err = s.NewJob(
		gocron.DurationJob(e.interval),
		gocron.NewTask(e.runScheduledCycle),
		gocron.WithName("chain_sync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to register sync job: %w", err)
	}

	s.Start()
	e.running.Store(true)

	logger.Info("Sync engine started, interval %s", e.interval)
	return nil
}

// Stop 停止调度，等待在途同步周期结束后返回
func (e *Engine) Stop() {
	if e.scheduler == nil {
		return
	}
	if err := e.scheduler.Shutdown(); err != nil {
		logger.Error("Failed to shutdown sync scheduler: %v", err)
	}

	// 拿到锁说明在途周期已经结束，游标不会停在半批次之后
	e.mu.Lock()
	e.mu.Unlock()
	e.running.Store(false)

	logger.Info("Sync engine stopped")
}

// runScheduledCycle 周期回调
// 周期级失败不中断调度，下个周期从同一游标重试
func (e *Engine) runScheduledCycle() {
	if _, err := e.SyncAll(context.Background()); err != nil {
		logger.Error("Scheduled sync cycle failed, will retry next interval: %v", err)
	}
}

// SyncAll 同步全部事件类型
func (e *Engine) SyncAll(ctx context.Context) (Result, error) {
	return e.syncWithRetry(ctx, "syncAll",
		ledger.EventProjectCreated,
		ledger.EventContributionMade,
		ledger.EventFundsWithdrawn,
		ledger.EventRefundProcessed,
	)
}

// SyncProjects 只同步项目创建事件
func (e *Engine) SyncProjects(ctx context.Context) (Result, error) {
	return e.syncWithRetry(ctx, "syncProjects", ledger.EventProjectCreated)
}

// SyncContributions 只同步贡献事件
func (e *Engine) SyncContributions(ctx context.Context) (Result, error) {
	return e.syncWithRetry(ctx, "syncContributions", ledger.EventContributionMade)
}

// SyncWithdrawals 只同步提现事件
func (e *Engine) SyncWithdrawals(ctx context.Context) (Result, error) {
	return e.syncWithRetry(ctx, "syncWithdrawals", ledger.EventFundsWithdrawn)
}

// SyncRefunds 只同步退款事件
func (e *Engine) SyncRefunds(ctx context.Context) (Result, error) {
	return e.syncWithRetry(ctx, "syncRefunds", ledger.EventRefundProcessed)
}

// syncWithRetry 对整个同步周期做指数退避重试
// 重试耗尽后记录结构化上下文并广播给错误观察者，但不向上 panic
func (e *Engine) syncWithRetry(ctx context.Context, operation string, types ...string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var result Result
	err := retry.Do(ctx, operation, func() error {
		r, err := e.syncCycle(ctx, types...)
		if err == nil {
			result = r
		}
		return err
	}, retry.Config{
		MaxAttempts:  e.maxAttempts,
		InitialDelay: time.Second,
		MaxDelay:     8 * time.Second,
		Multiplier:   2,
	})

	if err != nil {
		cursor := e.currentCursor()
		logger.Error("%s failed after %d attempts: last_synced_block=%d error=%v",
			operation, e.maxAttempts, cursor, err)
		result.Errors = append(result.Errors, err.Error())
		e.errObs.notify(SyncError{
			Operation:       operation,
			Timestamp:       time.Now(),
			LastSyncedBlock: cursor,
			Err:             err,
		})
		return result, err
	}

	return result, nil
}

// syncCycle 一次同步周期：拉取 -> 排序 -> 重放 -> 推进游标
// 中途任何失败都不推进游标，下个周期重新拉取同一区间
func (e *Engine) syncCycle(ctx context.Context, types ...string) (Result, error) {
	var result Result

	cursor, err := e.loadCursor()
	if err != nil {
		return result, err
	}

	events, err := e.ledger.FetchEvents(ctx, cursor)
	if err != nil {
		return result, fmt.Errorf("failed to fetch events after block %d: %w", cursor, err)
	}

	wanted := make(map[string]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	filtered := events[:0:0]
	// 类型范围外事件的最低区块，0表示没有
	var minSkipped int64
	for _, ev := range events {
		if wanted[ev.Type] {
			filtered = append(filtered, ev)
		} else if minSkipped == 0 || ev.BlockNum < minSkipped {
			minSkipped = ev.BlockNum
		}
	}
	if len(filtered) == 0 {
		return result, nil
	}

	// (区块号, 日志序号) 升序是聚合更新必须遵守的因果顺序，
	// 与事件拉取到的顺序无关
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].BlockNum != filtered[j].BlockNum {
			return filtered[i].BlockNum < filtered[j].BlockNum
		}
		return filtered[i].LogIndex < filtered[j].LogIndex
	})

	maxBlock := cursor
	for i := range filtered {
		ev := &filtered[i]
		if err := e.applyEvent(ev, &result); err != nil {
			return result, fmt.Errorf("failed to apply %s event (block %d, log %d): %w",
				ev.Type, ev.BlockNum, ev.LogIndex, err)
		}
		if ev.BlockNum > maxBlock {
			maxBlock = ev.BlockNum
		}
	}

	// 类型范围外还有未处理事件时，共享游标最多推进到其最低区块之前，
	// 否则后续全量同步会永久跳过这些事件
	if minSkipped > 0 && minSkipped-1 < maxBlock {
		maxBlock = minSkipped - 1
	}

	// 全部成功才推进游标
	if maxBlock > cursor {
		if err := e.saveCursor(maxBlock); err != nil {
			return result, err
		}
		logger.Info("Sync cursor advanced to block %d (%d events replayed)", maxBlock, len(filtered))
	}

	return result, nil
}

// Status 同步引擎状态
// 不取周期锁，同步进行中（含退避等待）也能立刻返回
func (e *Engine) Status() map[string]interface{} {
	return map[string]interface{}{
		"last_synced_block": e.currentCursor(),
		"interval_seconds":  int(e.interval.Seconds()),
		"running":           e.running.Load(),
	}
}

// loadCursor 读取持久化游标，首次运行时用配置的起始区块初始化
func (e *Engine) loadCursor() (int64, error) {
	var cursor model.SyncCursorModel
	err := e.db.Where(model.SyncCursorModel{Id: cursorRowId}).
		Attrs(model.SyncCursorModel{LastSyncedBlock: e.startBlock}).
		FirstOrCreate(&cursor).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load sync cursor: %w", err)
	}
	return cursor.LastSyncedBlock, nil
}

// currentCursor 游标当前值，读取失败时返回0（仅用于日志和状态）
func (e *Engine) currentCursor() int64 {
	var cursor model.SyncCursorModel
	if err := e.db.First(&cursor, cursorRowId).Error; err != nil {
		return 0
	}
	return cursor.LastSyncedBlock
}

// saveCursor 推进游标
func (e *Engine) saveCursor(block int64) error {
	err := e.db.Model(&model.SyncCursorModel{}).
		Where("id = ?", cursorRowId).
		Update("last_synced_block", block).Error
	if err != nil {
		return fmt.Errorf("failed to save sync cursor: %w", err)
	}
	return nil
}
