package router

import (
	"github.com/blues/crowdsync/internal/config"
	"github.com/blues/crowdsync/internal/handler"
	"github.com/blues/crowdsync/internal/ledger"
	"github.com/blues/crowdsync/internal/logic"
	"github.com/blues/crowdsync/internal/syncer"
	"github.com/blues/crowdsync/internal/tracker"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Setup 初始化路由
// 所有组件在进程启动时构造一次，显式传入，不使用全局单例
func Setup(db *gorm.DB, l ledger.Ledger, tr *tracker.Tracker, engine *syncer.Engine, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	// 中间件
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "crowdsync",
		})
	})

	projectHandler := handler.NewProjectHandler(logic.NewProjectLogic(db))
	contributeHandler := handler.NewContributeHandler(logic.NewContributeRecordLogic(db))
	transactionHandler := handler.NewTransactionHandler(l, tr, cfg.Track)
	syncHandler := handler.NewSyncHandler(engine)

	// API版本组
	v1 := r.Group("/api/v1")
	{
		// 项目相关路由
		projects := v1.Group("/projects")
		{
			projects.GET("", projectHandler.GetProjects)
			projects.GET("/:id", projectHandler.GetProject)
			projects.POST("/:id/contributions", contributeHandler.RecordContribution)
			projects.GET("/:id/contributions", contributeHandler.GetProjectContributeRecords)
			projects.GET("/:id/stats", contributeHandler.GetContributeStats)
		}

		// 交易相关路由
		transactions := v1.Group("/transactions")
		{
			transactions.POST("", transactionHandler.SubmitTransaction)
			transactions.GET("/:txHash", transactionHandler.GetTransaction)
			transactions.POST("/:txHash/wait", transactionHandler.WaitTransaction)
		}

		// 同步相关路由
		sync := v1.Group("/sync")
		{
			sync.POST("", syncHandler.TriggerSync)
			sync.GET("/status", syncHandler.GetSyncStatus)
		}
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
