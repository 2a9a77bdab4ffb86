package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/blues/crowdsync/internal/config"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// 众筹合约ABI定义（简化版）
const contractABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "projectId", "type": "uint256"},
			{"indexed": true, "name": "creator", "type": "address"},
			{"indexed": false, "name": "title", "type": "string"},
			{"indexed": false, "name": "targetAmount", "type": "uint256"}
		],
		"name": "ProjectCreated",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "projectId", "type": "uint256"},
			{"indexed": true, "name": "contributor", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		],
		"name": "ContributionMade",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "projectId", "type": "uint256"},
			{"indexed": true, "name": "recipient", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		],
		"name": "FundsWithdrawn",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "projectId", "type": "uint256"},
			{"indexed": true, "name": "refundee", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"},
			{"indexed": false, "name": "reason", "type": "string"}
		],
		"name": "RefundProcessed",
		"type": "event"
	}
]`

// EthereumLedger 以太坊账本客户端
type EthereumLedger struct {
	client        *ethclient.Client
	contractAddr  common.Address
	contractABI   abi.ABI
	confirmations int
	batchBlocks   int64
}

// NewEthereumLedger 创建以太坊账本客户端
func NewEthereumLedger(cfg config.ChainConfig, batchBlocks int64) (*EthereumLedger, error) {
	// 连接以太坊客户端
	client, err := ethclient.Dial(cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ethereum client: %w", err)
	}

	// 解析ABI
	parsedABI, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}

	if batchBlocks <= 0 {
		batchBlocks = 500
	}

	return &EthereumLedger{
		client:        client,
		contractAddr:  common.HexToAddress(cfg.ContractAddress),
		contractABI:   parsedABI,
		confirmations: cfg.Confirmations,
		batchBlocks:   batchBlocks,
	}, nil
}

// Submit 广播已签名的原始交易
func (l *EthereumLedger) Submit(ctx context.Context, rawTx []byte) (string, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(rawTx); err != nil {
		return "", fmt.Errorf("failed to decode signed transaction: %w", err)
	}

	if err := l.client.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	return tx.Hash().Hex(), nil
}

// QueryStatus 查询交易状态
// 回执尚不存在时返回零值状态（等待确认），不视为错误
func (l *EthereumLedger) QueryStatus(ctx context.Context, txHash string) (TxStatus, error) {
	receipt, err := l.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return TxStatus{}, nil
		}
		return TxStatus{}, fmt.Errorf("failed to query transaction receipt: %w", err)
	}

	latest, err := l.CurrentBlock(ctx)
	if err != nil {
		return TxStatus{}, err
	}

	// 确认数不足时仍视为未终态
	if latest < receipt.BlockNumber.Int64()+int64(l.confirmations) {
		return TxStatus{}, nil
	}

	return TxStatus{
		Finalized: true,
		Success:   receipt.Status == types.ReceiptStatusSuccessful,
	}, nil
}

// CurrentBlock 获取当前最新区块号
func (l *EthereumLedger) CurrentBlock(ctx context.Context) (int64, error) {
	header, err := l.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block header: %w", err)
	}
	return header.Number.Int64(), nil
}

// FetchEvents 拉取 sinceBlock 之后的合约事件
// 每次最多拉取 batchBlocks 个区块，避免RPC限流
func (l *EthereumLedger) FetchEvents(ctx context.Context, sinceBlock int64) ([]Event, error) {
	latest, err := l.CurrentBlock(ctx)
	if err != nil {
		return nil, err
	}

	fromBlock := sinceBlock + 1
	if fromBlock > latest {
		return nil, nil
	}

	toBlock := fromBlock + l.batchBlocks - 1
	if toBlock > latest {
		toBlock = latest
	}

	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
		Addresses: []common.Address{l.contractAddr},
	}

	logs, err := l.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs for blocks %d-%d: %w", fromBlock, toBlock, err)
	}

	events := make([]Event, 0, len(logs))
	for _, lg := range logs {
		event, err := l.parseLog(lg)
		if err != nil {
			// 未知事件签名直接跳过，合约可能发出本服务不关心的事件
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

// parseLog 解析单条日志
func (l *EthereumLedger) parseLog(lg types.Log) (Event, error) {
	if len(lg.Topics) == 0 {
		return Event{}, fmt.Errorf("log without topics")
	}

	event := Event{
		BlockNum: int64(lg.BlockNumber),
		LogIndex: int64(lg.Index),
		TxHash:   lg.TxHash.Hex(),
	}

	switch lg.Topics[0] {
	case l.contractABI.Events["ProjectCreated"].ID:
		event.Type = EventProjectCreated
	case l.contractABI.Events["ContributionMade"].ID:
		event.Type = EventContributionMade
	case l.contractABI.Events["FundsWithdrawn"].ID:
		event.Type = EventFundsWithdrawn
	case l.contractABI.Events["RefundProcessed"].ID:
		event.Type = EventRefundProcessed
	default:
		return Event{}, fmt.Errorf("unknown event signature: %s", lg.Topics[0].Hex())
	}

	// 索引参数：projectId 和地址
	if len(lg.Topics) < 3 {
		return Event{}, fmt.Errorf("invalid %s event: insufficient topics", event.Type)
	}
	event.ProjectId = new(big.Int).SetBytes(lg.Topics[1].Bytes()).Int64()
	event.Address = common.BytesToAddress(lg.Topics[2].Bytes()).Hex()

	// 非索引参数
	data := make(map[string]interface{})
	if len(lg.Data) > 0 {
		if err := l.contractABI.UnpackIntoMap(data, event.Type, lg.Data); err != nil {
			return Event{}, fmt.Errorf("failed to unpack %s event data: %w", event.Type, err)
		}
	}

	if amount, ok := data["amount"].(*big.Int); ok {
		event.Amount = amount
	}
	if target, ok := data["targetAmount"].(*big.Int); ok {
		event.Amount = target
	}
	if title, ok := data["title"].(string); ok {
		event.Title = title
	}
	if reason, ok := data["reason"].(string); ok {
		event.Reason = reason
	}

	return event, nil
}
