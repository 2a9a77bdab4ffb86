package handler

import (
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/blues/crowdsync/internal/config"
	"github.com/blues/crowdsync/internal/ledger"
	"github.com/blues/crowdsync/internal/model"
	"github.com/blues/crowdsync/internal/tracker"
	"github.com/gin-gonic/gin"
)

// TransactionHandler 交易处理器
type TransactionHandler struct {
	ledger  ledger.Ledger
	tracker *tracker.Tracker
	cfg     config.TrackConfig
}

// NewTransactionHandler 创建交易处理器
func NewTransactionHandler(l ledger.Ledger, t *tracker.Tracker, cfg config.TrackConfig) *TransactionHandler {
	return &TransactionHandler{
		ledger:  l,
		tracker: t,
		cfg:     cfg,
	}
}

// SubmitTransaction 广播已签名交易并开始后台追踪
func (h *TransactionHandler) SubmitTransaction(c *gin.Context) {
	var req SubmitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	rawTx, err := hex.DecodeString(strings.TrimPrefix(req.RawTx, "0x"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "raw_tx must be hex encoded")
		return
	}

	txHash, err := h.ledger.Submit(c.Request.Context(), rawTx)
	if err != nil {
		ErrorResponse(c, http.StatusBadGateway, "failed to broadcast transaction")
		return
	}

	record, err := h.tracker.Track(txHash, model.TransactionKind(req.Kind), req.Initiator, req.ProjectId)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "internal server error")
		return
	}

	// 后台轮询到终态
	if err := h.tracker.TrackAsync(txHash, h.cfg.MaxAttempts); err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "failed to schedule tracking")
		return
	}

	SuccessResponse(c, http.StatusAccepted, "transaction submitted", ToTransactionResponse(record))
}

// GetTransaction 获取交易记录
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	txHash := c.Param("txHash")

	record, err := h.tracker.GetTransaction(txHash)
	if err != nil {
		ErrorResponse(c, http.StatusNotFound, "transaction not found")
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", ToTransactionResponse(record))
}

// WaitTransaction 同步等待交易终态
func (h *TransactionHandler) WaitTransaction(c *gin.Context) {
	txHash := c.Param("txHash")

	// 确保记录存在，kind 未知时按 contribute 记录
	if _, err := h.tracker.GetTransaction(txHash); err != nil {
		if _, err := h.tracker.Track(txHash, model.TransactionKindContribute, "", 0); err != nil {
			ErrorResponse(c, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	timeout := h.cfg.TimeoutDuration()
	if v := c.Query("timeout_ms"); v != "" {
		if d, err := time.ParseDuration(v + "ms"); err == nil && d > 0 {
			timeout = d
		}
	}

	status, err := h.tracker.WaitUntilTerminal(c.Request.Context(), txHash, timeout, h.cfg.PollIntervalDuration())
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "internal server error")
		return
	}

	record, err := h.tracker.GetTransaction(txHash)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "internal server error")
		return
	}

	SuccessResponse(c, http.StatusOK, "transaction "+string(status), ToTransactionResponse(record))
}
