package logic

import (
	"testing"

	"github.com/blues/crowdsync/internal/model"
	"github.com/blues/crowdsync/internal/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

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

	// 内存库只允许单连接，避免连接池拿到不同的库
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, repository.Migrate(db))
	return db
}

func createTestProject(t *testing.T, db *gorm.DB, targetAmount int64) *model.ProjectModel {
	t.Helper()

	project := &model.ProjectModel{
		ChainProjectId: 7,
		Title:          "Test Project",
		TargetAmount:   targetAmount,
		Status:         model.ProjectStatusActive,
		CreatorAddress: "0xcreator",
	}
	require.NoError(t, db.Create(project).Error)
	return project
}

func TestRecordIdempotence(t *testing.T) {
	db := newTestDB(t)
	project := createTestProject(t, db, 10_000_000)
	recorder := NewContributeRecordLogic(db)

	first := &model.ContributeRecordModel{
		ProjectId: project.Id,
		Amount:    1_000_000,
		Address:   "0xalice",
		TxHash:    "tx-A",
		BlockNum:  5,
	}
	require.NoError(t, recorder.Record(first))

	// 同一交易哈希再记录一次，金额不同也必须被拒绝
	second := &model.ContributeRecordModel{
		ProjectId: project.Id,
		Amount:    999,
		Address:   "0xalice",
		TxHash:    "tx-A",
	}
	err := recorder.Record(second)
	require.ErrorIs(t, err, ErrDuplicateTransaction)

	var count int64
	require.NoError(t, db.Model(&model.ContributeRecordModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var got model.ProjectModel
	require.NoError(t, db.First(&got, project.Id).Error)
	assert.Equal(t, int64(1_000_000), got.TotalRaised)
	assert.Equal(t, int64(1), got.ContributorCount)
}

func TestRecordConcurrentDuplicateFallsBackToUniqueIndex(t *testing.T) {
	db := newTestDB(t)
	project := createTestProject(t, db, 10_000)
	recorder := NewContributeRecordLogic(db)

	// 在预检查之后、INSERT 执行之前插入同 tx_hash 的竞争记录，
	// 复现两个并发调用同时通过预检查的时序；
	// 此时只有唯一索引能保证恰好一个成功
	injected := false
	err := db.Callback().Create().Before("gorm:create").Register("rival_insert", func(tx *gorm.DB) {
		if injected || tx.Statement.Schema == nil || tx.Statement.Schema.Table != "contribute_record" {
			return
		}
		injected = true
		rival := &model.ContributeRecordModel{
			ProjectId: project.Id,
			Amount:    50,
			Address:   "0xrival",
			TxHash:    "tx-race",
			BlockNum:  1,
		}
		require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).Create(rival).Error)
	})
	require.NoError(t, err)

	err = recorder.Record(&model.ContributeRecordModel{
		ProjectId: project.Id,
		Amount:    100,
		Address:   "0xalice",
		TxHash:    "tx-race",
		BlockNum:  1,
	})
	require.True(t, injected)
	require.ErrorIs(t, err, ErrDuplicateTransaction)

	// 输掉竞争的一方不能留下任何部分更新
	var got model.ProjectModel
	require.NoError(t, db.First(&got, project.Id).Error)
	assert.Equal(t, int64(0), got.TotalRaised)
	assert.Equal(t, int64(0), got.ContributorCount)
}

func TestAggregateConsistency(t *testing.T) {
	db := newTestDB(t)
	project := createTestProject(t, db, 100_000_000)
	recorder := NewContributeRecordLogic(db)

	contributions := []struct {
		address string
		amount  int64
		txHash  string
	}{
		{"0xalice", 100, "tx-1"},
		{"0xbob", 200, "tx-2"},
		{"0xalice", 300, "tx-3"}, // 同一贡献者第二笔
		{"0xcarol", 400, "tx-4"},
	}

	var wantTotal int64
	wantContributors := map[string]bool{}
	for _, c := range contributions {
		err := recorder.Record(&model.ContributeRecordModel{
			ProjectId: project.Id,
			Amount:    c.amount,
			Address:   c.address,
			TxHash:    c.txHash,
		})
		require.NoError(t, err)

		wantTotal += c.amount
		wantContributors[c.address] = true

		// 每次成功记录后聚合都必须精确等于全量重算
		var got model.ProjectModel
		require.NoError(t, db.First(&got, project.Id).Error)
		assert.Equal(t, wantTotal, got.TotalRaised)
		assert.Equal(t, int64(len(wantContributors)), got.ContributorCount)
	}
}

func TestFundedStatusMonotonic(t *testing.T) {
	db := newTestDB(t)
	project := createTestProject(t, db, 100)
	recorder := NewContributeRecordLogic(db)

	require.NoError(t, recorder.Record(&model.ContributeRecordModel{
		ProjectId: project.Id, Amount: 60, Address: "0xalice", TxHash: "tx-1",
	}))

	var got model.ProjectModel
	require.NoError(t, db.First(&got, project.Id).Error)
	assert.Equal(t, model.ProjectStatusActive, got.Status)

	require.NoError(t, recorder.Record(&model.ContributeRecordModel{
		ProjectId: project.Id, Amount: 50, Address: "0xbob", TxHash: "tx-2",
	}))
	require.NoError(t, db.First(&got, project.Id).Error)
	assert.Equal(t, model.ProjectStatusFunded, got.Status)

	// 达标后继续贡献，状态不会回退
	require.NoError(t, recorder.Record(&model.ContributeRecordModel{
		ProjectId: project.Id, Amount: 10, Address: "0xcarol", TxHash: "tx-3",
	}))
	require.NoError(t, db.First(&got, project.Id).Error)
	assert.Equal(t, model.ProjectStatusFunded, got.Status)
	assert.Equal(t, int64(120), got.TotalRaised)
}

func TestRecordProjectNotFound(t *testing.T) {
	db := newTestDB(t)
	recorder := NewContributeRecordLogic(db)

	err := recorder.Record(&model.ContributeRecordModel{
		ProjectId: 12345, Amount: 100, Address: "0xalice", TxHash: "tx-1",
	})
	require.ErrorIs(t, err, ErrProjectNotFound)
}

func TestRecordValidation(t *testing.T) {
	db := newTestDB(t)
	project := createTestProject(t, db, 100)
	recorder := NewContributeRecordLogic(db)

	cases := []struct {
		name   string
		record model.ContributeRecordModel
	}{
		{"zero amount", model.ContributeRecordModel{ProjectId: project.Id, Amount: 0, Address: "0xa", TxHash: "tx-1"}},
		{"negative amount", model.ContributeRecordModel{ProjectId: project.Id, Amount: -5, Address: "0xa", TxHash: "tx-2"}},
		{"missing address", model.ContributeRecordModel{ProjectId: project.Id, Amount: 10, TxHash: "tx-3"}},
		{"missing tx hash", model.ContributeRecordModel{ProjectId: project.Id, Amount: 10, Address: "0xa"}},
		{"missing project id", model.ContributeRecordModel{Amount: 10, Address: "0xa", TxHash: "tx-4"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := recorder.Record(&tc.record)
			require.ErrorIs(t, err, ErrValidation)
		})
	}

	// 校验失败不应有任何落库
	var count int64
	require.NoError(t, db.Model(&model.ContributeRecordModel{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestEnsureFromChainIdempotent(t *testing.T) {
	db := newTestDB(t)
	projects := NewProjectLogic(db)

	p1 := &model.ProjectModel{ChainProjectId: 42, Title: "Once", TargetAmount: 100, CreatorAddress: "0xc"}
	require.NoError(t, projects.EnsureFromChain(p1))

	p2 := &model.ProjectModel{ChainProjectId: 42, Title: "Twice", TargetAmount: 200, CreatorAddress: "0xc"}
	require.NoError(t, projects.EnsureFromChain(p2))

	var count int64
	require.NoError(t, db.Model(&model.ProjectModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// 已存在的行不会被覆盖
	got, err := projects.GetProjectByChainId(42)
	require.NoError(t, err)
	assert.Equal(t, "Once", got.Title)
}

func TestMarkExpiredOnlyWhenActive(t *testing.T) {
	db := newTestDB(t)
	projects := NewProjectLogic(db)

	project := createTestProject(t, db, 100)
	require.NoError(t, db.Model(project).Update("status", model.ProjectStatusFunded).Error)

	// 已达标的项目不会被置为过期
	require.NoError(t, projects.MarkExpired(project.Id))

	var got model.ProjectModel
	require.NoError(t, db.First(&got, project.Id).Error)
	assert.Equal(t, model.ProjectStatusFunded, got.Status)
}

func TestEnsureUserIdempotent(t *testing.T) {
	db := newTestDB(t)
	users := NewUserLogic(db)

	require.NoError(t, users.EnsureUser("0xalice"))
	require.NoError(t, users.EnsureUser("0xalice"))

	var count int64
	require.NoError(t, db.Model(&model.UserModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
