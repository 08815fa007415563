package chainTx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"token_purchase/internal/common"
	"token_purchase/internal/sale"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found on-chain")
	ErrTransactionFailed   = errors.New("transaction failed")
)

// Sender 发送已签名交易
type Sender interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// RecordCompletion 由托管方签名并发送 complete_purchase 交易
func (b *Builder) RecordCompletion(ctx context.Context, buyer solana.PublicKey, lamports uint64, lockDurationMonths uint8, transactionSignature string) (solana.Signature, error) {
	ix, err := BuildCompletePurchaseInstruction(b.cfg.ProgramID, buyer, lamports, lockDurationMonths, transactionSignature)
	if err != nil {
		return solana.Signature{}, err
	}

	blockhash, err := b.client.GetLatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("获取区块哈希失败: %w", err)
	}

	tx, err := solana.NewTransaction([]solana.Instruction{ix}, blockhash, solana.TransactionPayer(b.Custodian()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("创建交易失败: %w", err)
	}
	if _, err := tx.Sign(b.custodianKey); err != nil {
		return solana.Signature{}, fmt.Errorf("签名交易失败: %w", err)
	}

	sig, err := b.client.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("发送交易失败: %w", err)
	}

	common.Log.WithFields(logrus.Fields{
		"buyer":     buyer.String(),
		"reference": transactionSignature,
		"signature": sig.String(),
	}).Info("complete_purchase 已发送")
	return sig, nil
}

// VerifyTransaction 确认交易已上链且执行成功
func (b *Builder) VerifyTransaction(ctx context.Context, signature string) error {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("无效的交易签名: %w", err)
	}

	res, err := b.client.GetTransaction(ctx, sig)
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && res == nil) {
		return ErrTransactionNotFound
	}
	if err != nil {
		return fmt.Errorf("查询交易失败: %w", err)
	}
	if res.Meta != nil && res.Meta.Err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionFailed, decodeTransactionError(res.Meta.Err))
	}
	return nil
}

// Simulator 模拟执行交易
type Simulator interface {
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResult, error)
}

// Simulate 模拟执行交易，返回程序日志
func (b *Builder) Simulate(ctx context.Context, tx *solana.Transaction) ([]string, error) {
	return SimulateTransaction(ctx, b.client, tx)
}

// SimulateTransaction 程序返回的自定义错误码还原为对应的程序错误
func SimulateTransaction(ctx context.Context, sim Simulator, tx *solana.Transaction) ([]string, error) {
	res, err := sim.SimulateTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("模拟交易失败: %w", err)
	}
	if res == nil {
		return nil, nil
	}
	if res.Err != nil {
		return res.Logs, decodeTransactionError(res.Err)
	}
	return res.Logs, nil
}

// decodeTransactionError 把 {"InstructionError":[0,{"Custom":6000}]} 还原成程序错误
func decodeTransactionError(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%v", v)
	}

	var ie struct {
		InstructionError []json.RawMessage `json:"InstructionError"`
	}
	if json.Unmarshal(raw, &ie) == nil && len(ie.InstructionError) == 2 {
		var custom struct {
			Custom *uint32 `json:"Custom"`
		}
		if json.Unmarshal(ie.InstructionError[1], &custom) == nil && custom.Custom != nil {
			if perr := sale.ErrorFromCode(*custom.Custom); perr != nil {
				return perr
			}
			return fmt.Errorf("custom program error %d", *custom.Custom)
		}
	}
	return errors.New(string(raw))
}

// SignAndSend 买家补签服务端返回的交易并发送
func SignAndSend(ctx context.Context, sender Sender, encoded string, key solana.PrivateKey) (solana.Signature, error) {
	tx, err := DecodeTransaction(encoded)
	if err != nil {
		return solana.Signature{}, err
	}

	pub := key.PublicKey()
	_, err = tx.PartialSign(func(pubkey solana.PublicKey) *solana.PrivateKey {
		if pubkey.Equals(pub) {
			return &key
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("签名交易失败: %w", err)
	}
	if err := tx.VerifySignatures(); err != nil {
		return solana.Signature{}, fmt.Errorf("交易签名不完整: %w", err)
	}

	sig, err := sender.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("发送交易失败: %w", err)
	}
	return sig, nil
}
