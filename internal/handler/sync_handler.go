package handler

import (
	"net/http"

	"github.com/blues/crowdsync/internal/syncer"
	"github.com/gin-gonic/gin"
)

// SyncHandler 同步处理器，供运维工具触发窄范围重同步
type SyncHandler struct {
	engine *syncer.Engine
}

// NewSyncHandler 创建同步处理器
func NewSyncHandler(engine *syncer.Engine) *SyncHandler {
	return &SyncHandler{engine: engine}
}

// TriggerSync 触发一次同步
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	var req TriggerSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()

	var result syncer.Result
	var err error
	switch req.Scope {
	case "", "all":
		result, err = h.engine.SyncAll(ctx)
	case "projects":
		result, err = h.engine.SyncProjects(ctx)
	case "contributions":
		result, err = h.engine.SyncContributions(ctx)
	case "withdrawals":
		result, err = h.engine.SyncWithdrawals(ctx)
	case "refunds":
		result, err = h.engine.SyncRefunds(ctx)
	default:
		ErrorResponse(c, http.StatusBadRequest, "unknown sync scope: "+req.Scope)
		return
	}

	if err != nil {
		// 重试已耗尽，结果里带着错误详情
		SuccessResponse(c, http.StatusOK, "sync completed with errors", result)
		return
	}

	SuccessResponse(c, http.StatusOK, "sync completed", result)
}

// GetSyncStatus 获取同步引擎状态
func (h *SyncHandler) GetSyncStatus(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, "ok", h.engine.Status())
}
