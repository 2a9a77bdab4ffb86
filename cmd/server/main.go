package main

import (
	"github.com/blues/crowdsync/internal/config"
	"github.com/blues/crowdsync/internal/ledger"
	"github.com/blues/crowdsync/internal/logger"
	"github.com/blues/crowdsync/internal/repository"
	"github.com/blues/crowdsync/internal/router"
	"github.com/blues/crowdsync/internal/syncer"
	"github.com/blues/crowdsync/internal/tracker"
	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化日志
	logger.Init(cfg.Log)
	defer logger.Sync()

	// 初始化数据库
	db, err := repository.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// 初始化账本客户端
	chainLedger, err := ledger.NewEthereumLedger(cfg.Chain, cfg.Sync.BatchBlocks)
	if err != nil {
		logger.Fatal("Failed to initialize ledger client: %v", err)
	}

	// 初始化交易追踪器
	txTracker, err := tracker.New(chainLedger, db, cfg.Track)
	if err != nil {
		logger.Fatal("Failed to initialize transaction tracker: %v", err)
	}
	defer txTracker.Close()

	// 初始化并启动同步引擎
	syncEngine := syncer.New(chainLedger, db, cfg.Chain, cfg.Sync)
	if err := syncEngine.Start(); err != nil {
		logger.Fatal("Failed to start sync engine: %v", err)
	}
	defer syncEngine.Stop()

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(db, chainLedger, txTracker, syncEngine, cfg)

	// 启动服务器
	logger.Info("Server starting on port %s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}
