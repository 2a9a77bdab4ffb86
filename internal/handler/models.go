package handler

import (
	"time"

	"github.com/blues/crowdsync/internal/model"
)

// SubmitTransactionRequest 提交已签名交易请求
type SubmitTransactionRequest struct {
	RawTx     string `json:"raw_tx" binding:"required"` // 十六进制编码的已签名交易
	Kind      string `json:"kind" binding:"required"`
	Initiator string `json:"initiator" binding:"required"`
	ProjectId int64  `json:"project_id"`
}

// RecordContributionRequest 记录贡献请求
type RecordContributionRequest struct {
	Address  string `json:"address" binding:"required"`
	Amount   int64  `json:"amount" binding:"required"`
	TxHash   string `json:"tx_hash" binding:"required"`
	BlockNum int64  `json:"block_num"`
}

// TriggerSyncRequest 触发同步请求
type TriggerSyncRequest struct {
	Scope string `json:"scope"` // all | projects | contributions | withdrawals | refunds
}

// TransactionResponse 交易记录响应
type TransactionResponse struct {
	TxHash       string    `json:"tx_hash"`
	Kind         string    `json:"kind"`
	Initiator    string    `json:"initiator"`
	ProjectId    int64     `json:"project_id,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ToTransactionResponse 转换交易记录
func ToTransactionResponse(record *model.TransactionModel) TransactionResponse {
	return TransactionResponse{
		TxHash:       record.TxHash,
		Kind:         string(record.Kind),
		Initiator:    record.Initiator,
		ProjectId:    record.ProjectId,
		Status:       string(record.Status),
		ErrorMessage: record.ErrorMessage,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

// ContributeRecordResponse 贡献记录响应
type ContributeRecordResponse struct {
	Id        int64     `json:"id"`
	ProjectId int64     `json:"project_id"`
	Amount    int64     `json:"amount"`
	Address   string    `json:"address"`
	TxHash    string    `json:"tx_hash"`
	BlockNum  int64     `json:"block_num"`
	CreatedAt time.Time `json:"created_at"`
}

// ToContributeRecordResponse 转换贡献记录
func ToContributeRecordResponse(record *model.ContributeRecordModel) ContributeRecordResponse {
	return ContributeRecordResponse{
		Id:        record.Id,
		ProjectId: record.ProjectId,
		Amount:    record.Amount,
		Address:   record.Address,
		TxHash:    record.TxHash,
		BlockNum:  record.BlockNum,
		CreatedAt: record.CreatedAt,
	}
}

// ToContributeRecordResponseList 转换贡献记录列表
func ToContributeRecordResponseList(records []model.ContributeRecordModel) []ContributeRecordResponse {
	result := make([]ContributeRecordResponse, 0, len(records))
	for i := range records {
		result = append(result, ToContributeRecordResponse(&records[i]))
	}
	return result
}

// ProjectResponse 项目响应
type ProjectResponse struct {
	Id               int64     `json:"id"`
	ChainProjectId   int64     `json:"chain_project_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	TargetAmount     int64     `json:"target_amount"`
	TotalRaised      int64     `json:"total_raised"`
	ContributorCount int64     `json:"contributor_count"`
	Status           string    `json:"status"`
	CreatorAddress   string    `json:"creator_address"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ToProjectResponse 转换项目
func ToProjectResponse(project *model.ProjectModel) ProjectResponse {
	return ProjectResponse{
		Id:               project.Id,
		ChainProjectId:   project.ChainProjectId,
		Title:            project.Title,
		Description:      project.Description,
		TargetAmount:     project.TargetAmount,
		TotalRaised:      project.TotalRaised,
		ContributorCount: project.ContributorCount,
		Status:           string(project.Status),
		CreatorAddress:   project.CreatorAddress,
		CreatedAt:        project.CreatedAt,
		UpdatedAt:        project.UpdatedAt,
	}
}

// ToProjectResponseList 转换项目列表
func ToProjectResponseList(projects []model.ProjectModel) []ProjectResponse {
	result := make([]ProjectResponse, 0, len(projects))
	for i := range projects {
		result = append(result, ToProjectResponse(&projects[i]))
	}
	return result
}

// GetProjectContributeRecordsResponse 项目贡献记录列表响应
type GetProjectContributeRecordsResponse struct {
	Records    []ContributeRecordResponse `json:"records"`
	Pagination Pagination                 `json:"pagination"`
}
