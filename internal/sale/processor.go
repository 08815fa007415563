package sale

import (
	"context"
	"fmt"

	"token_purchase/internal/common"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// TransferLeg 一笔账户间转账
type TransferLeg struct {
	From      solana.PublicKey
	To        solana.PublicKey
	Amount    uint64
	Authority solana.PublicKey
}

// NativeLedger 原生币账本，单笔转账要么全部成功要么不生效
type NativeLedger interface {
	Transfer(ctx context.Context, leg TransferLeg) error
}

// TokenLedger 代币账本
type TokenLedger interface {
	// EnsureAssociatedAccount 返回 owner 在 mint 下的关联账户，不存在时由 payer 创建
	EnsureAssociatedAccount(ctx context.Context, owner, mint, payer solana.PublicKey) (solana.PublicKey, error)
	Transfer(ctx context.Context, leg TransferLeg) error
}

// GovernanceAccounts 治理程序使用的账户槽位，购买流程只携带不读写
type GovernanceAccounts struct {
	Realm                  solana.PublicKey
	RealmConfig            solana.PublicKey
	GoverningTokenHolding  solana.PublicKey
	GovernanceTokenAccount solana.PublicKey
	TokenOwnerRecord       solana.PublicKey
	Program                solana.PublicKey
}

// Governance 治理锁仓能力。Processor 可以持有，但购买流程不会调用
type Governance interface {
	DepositGoverningTokens(ctx context.Context, accounts GovernanceAccounts, owner solana.PublicKey, amount uint64, lockMonths uint8) error
}

// Accounts 购买涉及的账户
type Accounts struct {
	Buyer                 solana.PublicKey
	Custodian             solana.PublicKey
	Treasury              solana.PublicKey
	Mint                  solana.PublicKey
	CustodianTokenAccount solana.PublicKey
	// BuyerTokenAccount 为空时按 (Buyer, Mint) 推导
	BuyerTokenAccount solana.PublicKey
	Governance        GovernanceAccounts
}

// Invocation 一次购买调用
type Invocation struct {
	Accounts           Accounts
	Signers            []solana.PublicKey
	SolAmount          uint64
	LockDurationMonths uint8
}

func (inv *Invocation) signedBy(key solana.PublicKey) bool {
	for _, s := range inv.Signers {
		if s.Equals(key) {
			return true
		}
	}
	return false
}

// Processor 购买处理器
type Processor struct {
	native     NativeLedger
	tokens     TokenLedger
	governance Governance

	compensate        bool
	treasuryAuthority solana.PublicKey
}

type Option func(*Processor)

// WithCompensation 代币转账失败时由 treasuryAuthority 签名把款项退回买家
func WithCompensation(treasuryAuthority solana.PublicKey) Option {
	return func(p *Processor) {
		p.compensate = true
		p.treasuryAuthority = treasuryAuthority
	}
}

func WithGovernance(g Governance) Option {
	return func(p *Processor) {
		p.governance = g
	}
}

func NewProcessor(native NativeLedger, tokens TokenLedger, opts ...Option) *Processor {
	p := &Processor{
		native: native,
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Governance 返回配置的治理能力，可能为 nil
func (p *Processor) Governance() Governance {
	return p.governance
}

// Execute 校验 -> 原生币转账 -> 计算代币数量 -> 代币转账，返回买家获得的代币数量
func (p *Processor) Execute(ctx context.Context, inv Invocation) (uint64, error) {
	quote, err := Quote(inv.SolAmount, inv.LockDurationMonths)
	if err != nil {
		return 0, err
	}
	if err := p.checkAccounts(&inv); err != nil {
		return 0, err
	}

	acc := inv.Accounts
	logger := common.Log.WithFields(logrus.Fields{
		"buyer":    acc.Buyer.String(),
		"lamports": inv.SolAmount,
		"lock":     inv.LockDurationMonths,
	})

	// 步骤1: 买家 -> 国库
	err = p.native.Transfer(ctx, TransferLeg{
		From:      acc.Buyer,
		To:        acc.Treasury,
		Amount:    inv.SolAmount,
		Authority: acc.Buyer,
	})
	if err != nil {
		logger.WithError(err).Warn("原生币转账失败")
		return 0, fmt.Errorf("native transfer: %w", err)
	}

	// 步骤2: 奖励计算
	total := quote.TotalTokens

	// 步骤3: 托管账户 -> 买家关联账户，由托管方签名
	dest, err := p.tokens.EnsureAssociatedAccount(ctx, acc.Buyer, acc.Mint, acc.Buyer)
	if err == nil {
		err = p.tokens.Transfer(ctx, TransferLeg{
			From:      acc.CustodianTokenAccount,
			To:        dest,
			Amount:    total,
			Authority: acc.Custodian,
		})
	}
	if err != nil {
		logger.WithError(err).Error("代币转账失败，原生币转账已提交")
		return 0, p.afterTokenFailure(ctx, acc, inv.SolAmount, err)
	}

	logger.WithFields(logrus.Fields{
		"tokens":     total,
		"multiplier": quote.Multiplier,
	}).Info("购买完成")
	return total, nil
}

// checkAccounts 签名与关联账户检查，必须在任何转账之前完成
func (p *Processor) checkAccounts(inv *Invocation) error {
	acc := inv.Accounts
	if !inv.signedBy(acc.Buyer) {
		return fmt.Errorf("%w: buyer %s", ErrMissingSignature, acc.Buyer)
	}
	if !inv.signedBy(acc.Custodian) {
		return fmt.Errorf("%w: custodian %s", ErrMissingSignature, acc.Custodian)
	}

	custodianATA, _, err := solana.FindAssociatedTokenAddress(acc.Custodian, acc.Mint)
	if err != nil {
		return fmt.Errorf("derive custodian token account: %w", err)
	}
	if !acc.CustodianTokenAccount.Equals(custodianATA) {
		return fmt.Errorf("%w: custodian token account %s", ErrTokenAccountMismatch, acc.CustodianTokenAccount)
	}

	if !acc.BuyerTokenAccount.IsZero() {
		buyerATA, _, err := solana.FindAssociatedTokenAddress(acc.Buyer, acc.Mint)
		if err != nil {
			return fmt.Errorf("derive buyer token account: %w", err)
		}
		if !acc.BuyerTokenAccount.Equals(buyerATA) {
			return fmt.Errorf("%w: buyer token account %s", ErrTokenAccountMismatch, acc.BuyerTokenAccount)
		}
	}
	return nil
}

func (p *Processor) afterTokenFailure(ctx context.Context, acc Accounts, lamports uint64, cause error) error {
	failure := &PartialFailureError{
		Buyer:    acc.Buyer.String(),
		Lamports: lamports,
		Err:      cause,
	}
	if !p.compensate {
		return failure
	}

	err := p.native.Transfer(ctx, TransferLeg{
		From:      acc.Treasury,
		To:        acc.Buyer,
		Amount:    lamports,
		Authority: p.treasuryAuthority,
	})
	if err != nil {
		common.Log.WithError(err).WithField("buyer", acc.Buyer.String()).Error("退款失败")
		failure.RefundErr = err
		return failure
	}

	common.Log.WithFields(logrus.Fields{
		"buyer":    acc.Buyer.String(),
		"lamports": lamports,
	}).Warn("代币转账失败，已退款")
	failure.Refunded = true
	return failure
}

// RecordPurchase 仅供链下观察者确认购买，不做校验也不修改任何状态
func (p *Processor) RecordPurchase(ctx context.Context, buyer solana.PublicKey, solAmount uint64, lockDurationMonths uint8, transactionSignature string) error {
	common.Log.WithFields(logrus.Fields{
		"buyer":     buyer.String(),
		"lamports":  solAmount,
		"lock":      lockDurationMonths,
		"signature": transactionSignature,
	}).Debug("记录购买")
	return nil
}
