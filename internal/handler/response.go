package handler

import (
	"errors"
	"net/http"

	"github.com/blues/crowdsync/internal/logic"
	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Pagination 分页信息
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"page_size"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"total_page"`
}

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// LogicErrorResponse 把业务错误分类映射为HTTP状态码
// 冲突和未找到原样透出，存储故障只返回笼统信息，细节留在服务端日志
func LogicErrorResponse(c *gin.Context, err error) {
	switch {
	case errors.Is(err, logic.ErrProjectNotFound):
		ErrorResponse(c, http.StatusNotFound, "project not found")
	case errors.Is(err, logic.ErrDuplicateTransaction):
		ErrorResponse(c, http.StatusConflict, "transaction already recorded")
	case errors.Is(err, logic.ErrValidation):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	default:
		ErrorResponse(c, http.StatusInternalServerError, "internal server error")
	}
}
