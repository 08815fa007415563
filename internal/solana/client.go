package solana

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Client 包装Solana客户端功能
type Client struct {
	rpcClient  *rpc.Client
	commitment rpc.CommitmentType
}

// New 创建新的Solana客户端
func New(endpoint string) *Client {
	return &Client{
		rpcClient:  rpc.New(endpoint),
		commitment: rpc.CommitmentConfirmed,
	}
}

// Close 关闭客户端连接
func (c *Client) Close() error {
	return c.rpcClient.Close()
}

// GetLatestBlockhash 获取最新的区块哈希
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	recent, err := c.rpcClient.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, err
	}
	return recent.Value.Blockhash, nil
}

// AccountExists 账户是否已在链上创建
func (c *Client) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	_, err := c.rpcClient.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{Commitment: c.commitment})
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetTokenAccountBalance 获取代币账户余额（最小单位）
func (c *Client) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	res, err := c.rpcClient.GetTokenAccountBalance(ctx, account, c.commitment)
	if err != nil {
		return 0, err
	}
	if res == nil || res.Value == nil {
		return 0, fmt.Errorf("代币账户 %s 没有余额信息", account)
	}
	return strconv.ParseUint(res.Value.Amount, 10, 64)
}

// SimulateTransaction 模拟交易
func (c *Client) SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResult, error) {
	res, err := c.rpcClient.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:  false,
		Commitment: c.commitment,
	})
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// SendTransaction 发送交易
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return c.rpcClient.SendTransaction(ctx, tx)
}

// GetTransaction 查询已确认的交易，不存在时返回 rpc.ErrNotFound
func (c *Client) GetTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	maxVersion := uint64(0)
	return c.rpcClient.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
}
