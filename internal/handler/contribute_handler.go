package handler

import (
	"net/http"
	"strconv"

	"github.com/blues/crowdsync/internal/logic"
	"github.com/blues/crowdsync/internal/model"
	"github.com/gin-gonic/gin"
)

// ContributeHandler 贡献处理器
type ContributeHandler struct {
	contributeLogic *logic.ContributeRecordLogic
}

// NewContributeHandler 创建贡献处理器
func NewContributeHandler(contributeLogic *logic.ContributeRecordLogic) *ContributeHandler {
	return &ContributeHandler{
		contributeLogic: contributeLogic,
	}
}

// RecordContribution 记录一笔已确认的贡献
func (h *ContributeHandler) RecordContribution(c *gin.Context) {
	projectId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid project id")
		return
	}

	var req RecordContributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	record := &model.ContributeRecordModel{
		ProjectId: projectId,
		Amount:    req.Amount,
		Address:   req.Address,
		TxHash:    req.TxHash,
		BlockNum:  req.BlockNum,
	}

	if err := h.contributeLogic.Record(record); err != nil {
		LogicErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "contribution recorded", ToContributeRecordResponse(record))
}

// GetProjectContributeRecords 获取项目贡献记录
func (h *ContributeHandler) GetProjectContributeRecords(c *gin.Context) {
	projectId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid project id")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	// 调用logic层获取项目贡献记录
	records, total, err := h.contributeLogic.GetProjectContributeRecords(projectId, page, pageSize)
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}

	pagination := Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}

	SuccessResponse(c, http.StatusOK, "ok", GetProjectContributeRecordsResponse{
		Records:    ToContributeRecordResponseList(records),
		Pagination: pagination,
	})
}

// GetContributeStats 获取贡献统计信息
func (h *ContributeHandler) GetContributeStats(c *gin.Context) {
	projectId, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid project id")
		return
	}

	stats, err := h.contributeLogic.GetContributeStats(projectId)
	if err != nil {
		LogicErrorResponse(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", stats)
}
