package syncer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/blues/crowdsync/internal/ledger"
	"github.com/blues/crowdsync/internal/logger"
	"github.com/blues/crowdsync/internal/logic"
	"github.com/blues/crowdsync/internal/model"
)

// applyEvent 重放单条事件
// 先落审计记录，处理成功后标记 processed；
// 已处理过的事件直接跳过，落库路径本身也都是幂等的
func (e *Engine) applyEvent(ev *ledger.Event, result *Result) error {
	audit, err := e.ensureAuditRecord(ev)
	if err != nil {
		return err
	}
	if audit.Processed {
		logger.Debug("Event (block %d, log %d) already processed, skipping", ev.BlockNum, ev.LogIndex)
		return nil
	}

	switch ev.Type {
	case ledger.EventProjectCreated:
		err = e.processProjectCreated(ev)
		if err == nil {
			result.ProjectsSynced++
		}
	case ledger.EventContributionMade:
		err = e.processContributionMade(ev)
		if err == nil {
			result.ContributionsSynced++
		}
	case ledger.EventFundsWithdrawn:
		err = e.processFundsWithdrawn(ev)
		if err == nil {
			result.WithdrawalsSynced++
		}
	case ledger.EventRefundProcessed:
		err = e.processRefundProcessed(ev)
		if err == nil {
			result.RefundsSynced++
		}
	default:
		logger.Warn("Unknown event type: %s", ev.Type)
		return nil
	}
	if err != nil {
		return err
	}

	return e.events.UpdateEventProcessed(audit.Id, true)
}

// ensureAuditRecord 确保事件审计记录存在
func (e *Engine) ensureAuditRecord(ev *ledger.Event) (*model.EventModel, error) {
	existing, err := e.events.GetEventByTxLog(ev.TxHash, ev.LogIndex)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	audit := &model.EventModel{
		EventType: ev.Type,
		ProjectId: ev.ProjectId,
		TxHash:    ev.TxHash,
		BlockNum:  ev.BlockNum,
		LogIndex:  ev.LogIndex,
		Data:      string(data),
	}
	if err := e.events.CreateEvent(audit); err != nil {
		// 并发写入时另一方已落库，重新读取
		if errors.Is(err, logic.ErrDuplicateTransaction) {
			return e.events.GetEventByTxLog(ev.TxHash, ev.LogIndex)
		}
		return nil, err
	}
	return audit, nil
}

// processProjectCreated 处理项目创建事件
// 先确保创建者的用户记录存在，再按链上项目ID幂等落项目行
func (e *Engine) processProjectCreated(ev *ledger.Event) error {
	if err := e.users.EnsureUser(ev.Address); err != nil {
		return err
	}

	title := ev.Title
	if title == "" {
		title = fmt.Sprintf("Project #%d", ev.ProjectId)
	}

	target, err := amountOf(ev)
	if err != nil {
		return err
	}

	project := &model.ProjectModel{
		ChainProjectId: ev.ProjectId,
		Title:          title,
		TargetAmount:   target,
		Status:         model.ProjectStatusActive,
		CreatorAddress: ev.Address,
		TxHash:         ev.TxHash,
		BlockNum:       ev.BlockNum,
	}
	if err := e.projects.EnsureFromChain(project); err != nil {
		return err
	}

	logger.Info("Synced project %d created by %s at block %d", ev.ProjectId, ev.Address, ev.BlockNum)
	return nil
}

// processContributionMade 处理贡献事件
// 依赖贡献记录的 tx_hash 幂等性，请求时路径已记录过的交易在这里安全跳过
func (e *Engine) processContributionMade(ev *ledger.Event) error {
	if err := e.users.EnsureUser(ev.Address); err != nil {
		return err
	}

	project, err := e.projects.GetProjectByChainId(ev.ProjectId)
	if err != nil {
		return err
	}

	amount, err := amountOf(ev)
	if err != nil {
		return err
	}

	record := &model.ContributeRecordModel{
		ProjectId: project.Id,
		Amount:    amount,
		Address:   ev.Address,
		TxHash:    ev.TxHash,
		BlockNum:  ev.BlockNum,
	}
	if err := e.contributions.Record(record); err != nil {
		if errors.Is(err, logic.ErrDuplicateTransaction) {
			logger.Debug("Contribution %s already recorded, replay skipped", ev.TxHash)
			return nil
		}
		return err
	}

	logger.Info("Synced contribution of %d to project %d from %s", record.Amount, project.Id, ev.Address)
	return nil
}

// processFundsWithdrawn 处理提现事件
func (e *Engine) processFundsWithdrawn(ev *ledger.Event) error {
	project, err := e.projects.GetProjectByChainId(ev.ProjectId)
	if err != nil {
		return err
	}

	amount, err := amountOf(ev)
	if err != nil {
		return err
	}

	if err := e.projects.MarkWithdrawn(project.Id); err != nil {
		return err
	}

	settlement := &model.SettlementRecordModel{
		ProjectId: project.Id,
		Amount:    amount,
		Address:   ev.Address,
		TxHash:    ev.TxHash,
		BlockNum:  ev.BlockNum,
	}
	if err := e.settlements.CreateSettlementRecord(settlement); err != nil && !errors.Is(err, logic.ErrDuplicateTransaction) {
		return err
	}

	logger.Info("Synced withdrawal for project %d at block %d", project.Id, ev.BlockNum)
	return nil
}

// processRefundProcessed 处理退款事件
// 仍在进行中的项目置为已过期，其余状态不变
func (e *Engine) processRefundProcessed(ev *ledger.Event) error {
	project, err := e.projects.GetProjectByChainId(ev.ProjectId)
	if err != nil {
		return err
	}

	amount, err := amountOf(ev)
	if err != nil {
		return err
	}

	if err := e.projects.MarkExpired(project.Id); err != nil {
		return err
	}

	refund := &model.RefundRecordModel{
		ProjectId:    project.Id,
		Amount:       amount,
		Address:      ev.Address,
		TxHash:       ev.TxHash,
		BlockNum:     ev.BlockNum,
		RefundReason: ev.Reason,
	}
	if err := e.refunds.CreateRefundRecord(refund); err != nil && !errors.Is(err, logic.ErrDuplicateTransaction) {
		return err
	}

	logger.Info("Synced refund for project %d at block %d", project.Id, ev.BlockNum)
	return nil
}

// amountOf 事件金额，缺失时为0
// 超出 int64 表示范围的金额不能截断入库，按事件处理失败处理
func amountOf(ev *ledger.Event) (int64, error) {
	if ev.Amount == nil {
		return 0, nil
	}
	if !ev.Amount.IsInt64() {
		return 0, fmt.Errorf("event amount %s overflows int64", ev.Amount.String())
	}
	return ev.Amount.Int64(), nil
}
