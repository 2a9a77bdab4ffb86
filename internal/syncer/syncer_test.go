package syncer

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/blues/crowdsync/internal/config"
	"github.com/blues/crowdsync/internal/ledger"
	"github.com/blues/crowdsync/internal/logic"
	"github.com/blues/crowdsync/internal/model"
	"github.com/blues/crowdsync/internal/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// fakeLedger 返回固定事件集，可注入拉取错误
type fakeLedger struct {
	mu       sync.Mutex
	events   []ledger.Event
	fetchErr error
	statuses []ledger.TxStatus
	calls    int
}

func (f *fakeLedger) Submit(ctx context.Context, rawTx []byte) (string, error) {
	return "0xsubmitted", nil
}

func (f *fakeLedger) QueryStatus(ctx context.Context, txHash string) (ledger.TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.calls
	f.calls++
	if len(f.statuses) == 0 {
		return ledger.TxStatus{}, nil
	}
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	return f.statuses[idx], nil
}

func (f *fakeLedger) FetchEvents(ctx context.Context, sinceBlock int64) ([]ledger.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	var out []ledger.Event
	for _, ev := range f.events {
		if ev.BlockNum > sinceBlock {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeLedger) CurrentBlock(ctx context.Context) (int64, error) {
	return 100, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
		NamingStrategy: &schema.NamingStrategy{
			SingularTable: true,
		},
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, repository.Migrate(db))
	return db
}

// newTestEngine 重试次数设为1，失败测试不用等退避
func newTestEngine(t *testing.T, fake *fakeLedger, db *gorm.DB) *Engine {
	t.Helper()

	return New(fake, db, config.ChainConfig{StartBlock: 0}, config.SyncConfig{
		Interval:    60,
		MaxAttempts: 1,
	})
}

func projectCreated(block, logIndex, chainId int64, creator string, target int64) ledger.Event {
	return ledger.Event{
		Type:      ledger.EventProjectCreated,
		BlockNum:  block,
		LogIndex:  logIndex,
		TxHash:    txHashFor(block, logIndex),
		ProjectId: chainId,
		Address:   creator,
		Amount:    big.NewInt(target),
		Title:     "Synced Project",
	}
}

func contributionMade(block, logIndex, chainId int64, contributor string, amount int64) ledger.Event {
	return ledger.Event{
		Type:      ledger.EventContributionMade,
		BlockNum:  block,
		LogIndex:  logIndex,
		TxHash:    txHashFor(block, logIndex),
		ProjectId: chainId,
		Address:   contributor,
		Amount:    big.NewInt(amount),
	}
}

func txHashFor(block, logIndex int64) string {
	return "tx-" + string(rune('a'+block)) + "-" + string(rune('0'+logIndex))
}

func cursorValue(t *testing.T, db *gorm.DB) int64 {
	t.Helper()

	var cursor model.SyncCursorModel
	require.NoError(t, db.First(&cursor, cursorRowId).Error)
	return cursor.LastSyncedBlock
}

func TestReplayOrdering(t *testing.T) {
	db := newTestDB(t)
	// 乱序投递：贡献事件在项目创建之前到达
	fake := &fakeLedger{events: []ledger.Event{
		contributionMade(5, 1, 7, "0xbob", 200),
		projectCreated(3, 0, 7, "0xcreator", 10_000),
		contributionMade(5, 0, 7, "0xalice", 100),
	}}
	engine := newTestEngine(t, fake, db)

	result, err := engine.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProjectsSynced)
	assert.Equal(t, 2, result.ContributionsSynced)

	// 审计记录的落库顺序即重放顺序：(3,0) -> (5,0) -> (5,1)
	var audits []model.EventModel
	require.NoError(t, db.Order("id ASC").Find(&audits).Error)
	require.Len(t, audits, 3)
	assert.Equal(t, []int64{3, 5, 5}, []int64{audits[0].BlockNum, audits[1].BlockNum, audits[2].BlockNum})
	assert.Equal(t, []int64{0, 0, 1}, []int64{audits[0].LogIndex, audits[1].LogIndex, audits[2].LogIndex})

	// 聚合随重放保持一致
	var project model.ProjectModel
	require.NoError(t, db.Where("chain_project_id = ?", 7).First(&project).Error)
	assert.Equal(t, int64(300), project.TotalRaised)
	assert.Equal(t, int64(2), project.ContributorCount)

	assert.Equal(t, int64(5), cursorValue(t, db))
}

func TestCursorNotAdvancedOnPartialFailure(t *testing.T) {
	db := newTestDB(t)
	// 第2个事件引用不存在的项目，重放中途失败
	fake := &fakeLedger{events: []ledger.Event{
		projectCreated(1, 0, 1, "0xcreator", 10_000),
		contributionMade(2, 0, 99, "0xalice", 100),
		contributionMade(3, 0, 1, "0xbob", 200),
	}}
	engine := newTestEngine(t, fake, db)

	_, err := engine.SyncAll(context.Background())
	require.Error(t, err)

	// 游标停在原地，下个周期重新拉取同一区间
	assert.Equal(t, int64(0), cursorValue(t, db))

	// 修复缺失的项目后重跑，第1个事件幂等地安全重放
	require.NoError(t, logic.NewProjectLogic(db).EnsureFromChain(&model.ProjectModel{
		ChainProjectId: 99,
		Title:          "Recovered",
		TargetAmount:   1_000,
		CreatorAddress: "0xc",
	}))

	_, err = engine.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), cursorValue(t, db))

	var count int64
	require.NoError(t, db.Model(&model.ProjectModel{}).Where("chain_project_id = ?", 1).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, db.Model(&model.ContributeRecordModel{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestReplayIdempotentWithRequestPath(t *testing.T) {
	db := newTestDB(t)

	// 请求时路径已经记录过这笔贡献
	projects := logic.NewProjectLogic(db)
	require.NoError(t, projects.EnsureFromChain(&model.ProjectModel{
		ChainProjectId: 7,
		Title:          "P",
		TargetAmount:   10_000,
		CreatorAddress: "0xc",
	}))
	project, err := projects.GetProjectByChainId(7)
	require.NoError(t, err)

	ev := contributionMade(5, 0, 7, "0xalice", 100)
	require.NoError(t, logic.NewContributeRecordLogic(db).Record(&model.ContributeRecordModel{
		ProjectId: project.Id,
		Amount:    100,
		Address:   "0xalice",
		TxHash:    ev.TxHash,
		BlockNum:  5,
	}))

	fake := &fakeLedger{events: []ledger.Event{ev}}
	engine := newTestEngine(t, fake, db)

	// 重放同一交易，靠 tx_hash 幂等性安全跳过
	_, err = engine.SyncAll(context.Background())
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&model.ContributeRecordModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var got model.ProjectModel
	require.NoError(t, db.First(&got, project.Id).Error)
	assert.Equal(t, int64(100), got.TotalRaised)
	assert.Equal(t, int64(1), got.ContributorCount)
}

func TestWithdrawalAndRefundStatusTransitions(t *testing.T) {
	db := newTestDB(t)
	fake := &fakeLedger{events: []ledger.Event{
		projectCreated(1, 0, 1, "0xcreator", 1_000),
		projectCreated(1, 1, 2, "0xcreator", 1_000),
		{Type: ledger.EventFundsWithdrawn, BlockNum: 2, LogIndex: 0, TxHash: "tx-w-1",
			ProjectId: 1, Address: "0xcreator", Amount: big.NewInt(500)},
		{Type: ledger.EventRefundProcessed, BlockNum: 3, LogIndex: 0, TxHash: "tx-r-1",
			ProjectId: 2, Address: "0xalice", Amount: big.NewInt(100), Reason: "goal not reached"},
	}}
	engine := newTestEngine(t, fake, db)

	result, err := engine.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.WithdrawalsSynced)
	assert.Equal(t, 1, result.RefundsSynced)

	var p1, p2 model.ProjectModel
	require.NoError(t, db.Where("chain_project_id = ?", 1).First(&p1).Error)
	require.NoError(t, db.Where("chain_project_id = ?", 2).First(&p2).Error)
	assert.Equal(t, model.ProjectStatusWithdrawn, p1.Status)
	assert.Equal(t, model.ProjectStatusExpired, p2.Status)

	// 审计用的结算和退款记录也已落库
	var settlements, refunds int64
	require.NoError(t, db.Model(&model.SettlementRecordModel{}).Count(&settlements).Error)
	require.NoError(t, db.Model(&model.RefundRecordModel{}).Count(&refunds).Error)
	assert.Equal(t, int64(1), settlements)
	assert.Equal(t, int64(1), refunds)
}

func TestScopedSyncOnlyProcessesItsType(t *testing.T) {
	db := newTestDB(t)
	fake := &fakeLedger{events: []ledger.Event{
		projectCreated(1, 0, 1, "0xcreator", 1_000),
		contributionMade(2, 0, 1, "0xalice", 100),
	}}
	engine := newTestEngine(t, fake, db)

	result, err := engine.SyncProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProjectsSynced)
	assert.Equal(t, 0, result.ContributionsSynced)

	// 区块2的贡献事件被跳过，游标不能越过它
	assert.Equal(t, int64(1), cursorValue(t, db))

	var count int64
	require.NoError(t, db.Model(&model.ContributeRecordModel{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	// 随后的全量同步补上贡献事件
	_, err = engine.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), cursorValue(t, db))

	require.NoError(t, db.Model(&model.ContributeRecordModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestScopedSyncDoesNotSkipOtherTypeEvents(t *testing.T) {
	db := newTestDB(t)
	// 贡献事件夹在两个项目创建事件之间
	fake := &fakeLedger{events: []ledger.Event{
		projectCreated(1, 0, 1, "0xcreator", 1_000),
		contributionMade(2, 0, 1, "0xalice", 100),
		projectCreated(3, 0, 2, "0xcreator", 1_000),
	}}
	engine := newTestEngine(t, fake, db)

	result, err := engine.SyncProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.ProjectsSynced)

	// 区块2的贡献事件还没处理，共享游标不能越过它
	assert.Equal(t, int64(1), cursorValue(t, db))

	result, err = engine.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ContributionsSynced)
	assert.Equal(t, int64(3), cursorValue(t, db))

	var project model.ProjectModel
	require.NoError(t, db.Where("chain_project_id = ?", 1).First(&project).Error)
	assert.Equal(t, int64(100), project.TotalRaised)
	assert.Equal(t, int64(1), project.ContributorCount)
}

func TestOverflowingAmountFailsEvent(t *testing.T) {
	db := newTestDB(t)
	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	fake := &fakeLedger{events: []ledger.Event{
		projectCreated(1, 0, 1, "0xcreator", 1_000),
		{Type: ledger.EventContributionMade, BlockNum: 2, LogIndex: 0, TxHash: "tx-huge",
			ProjectId: 1, Address: "0xalice", Amount: huge},
	}}
	engine := newTestEngine(t, fake, db)

	_, err := engine.SyncAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overflows int64")

	// 回绕后的金额不能入库，游标也不推进
	var count int64
	require.NoError(t, db.Model(&model.ContributeRecordModel{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	assert.Equal(t, int64(0), cursorValue(t, db))
}

func TestStatusDoesNotBlockDuringSyncCycle(t *testing.T) {
	db := newTestDB(t)
	engine := newTestEngine(t, &fakeLedger{}, db)

	// 模拟同步周期持有周期锁
	engine.mu.Lock()
	defer engine.mu.Unlock()

	done := make(chan map[string]interface{}, 1)
	go func() { done <- engine.Status() }()

	select {
	case status := <-done:
		assert.Equal(t, false, status["running"])
	case <-time.After(2 * time.Second):
		t.Fatal("Status blocked while a sync cycle held the lock")
	}
}

func TestErrorObserversNotified(t *testing.T) {
	db := newTestDB(t)
	fake := &fakeLedger{fetchErr: assert.AnError}
	engine := newTestEngine(t, fake, db)

	var mu sync.Mutex
	var got []SyncError
	engine.SubscribeErrors(func(syncErr SyncError) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, syncErr)
	})

	// 第一个观察者 panic 不影响后续投递
	unsubscribe := engine.SubscribeErrors(func(syncErr SyncError) {
		panic("misbehaving observer")
	})
	_ = unsubscribe

	_, err := engine.SyncAll(context.Background())
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "syncAll", got[0].Operation)
	assert.ErrorIs(t, got[0].Err, assert.AnError)
	assert.WithinDuration(t, time.Now(), got[0].Timestamp, 5*time.Second)
}

func TestUnsubscribeErrorObserver(t *testing.T) {
	db := newTestDB(t)
	fake := &fakeLedger{fetchErr: assert.AnError}
	engine := newTestEngine(t, fake, db)

	called := false
	unsubscribe := engine.SubscribeErrors(func(syncErr SyncError) {
		called = true
	})
	unsubscribe()

	_, err := engine.SyncAll(context.Background())
	require.Error(t, err)
	assert.False(t, called)
}

func TestCycleRetriesTransientFailure(t *testing.T) {
	db := newTestDB(t)
	fake := &fakeLedger{
		fetchErr: assert.AnError,
		events:   []ledger.Event{projectCreated(1, 0, 1, "0xcreator", 1_000)},
	}

	// 两次尝试：第一次拉取失败，重试前故障恢复
	engine := New(fake, db, config.ChainConfig{StartBlock: 0}, config.SyncConfig{
		Interval:    60,
		MaxAttempts: 2,
	})

	go func() {
		time.Sleep(100 * time.Millisecond)
		fake.mu.Lock()
		fake.fetchErr = nil
		fake.mu.Unlock()
	}()

	result, err := engine.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProjectsSynced)
	assert.Equal(t, int64(1), cursorValue(t, db))
}
