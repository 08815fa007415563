package ledger

import (
	"context"
	"fmt"

	"token_purchase/internal/sale"

	"github.com/gagliardetto/solana-go"
)

// Sandbox 用内存账本在进程内运行购买处理器，托管方由沙盒代为签名
type Sandbox struct {
	Native    *NativeLedger
	Tokens    *TokenLedger
	Processor *sale.Processor

	custodian             solana.PublicKey
	treasury              solana.PublicKey
	mint                  solana.PublicKey
	custodianTokenAccount solana.PublicKey
}

// NewSandbox 创建沙盒并给托管方增发 supply 个代币。opts 追加在默认的退款补偿之后
func NewSandbox(custodian, treasury, mint solana.PublicKey, supply uint64, opts ...sale.Option) (*Sandbox, error) {
	s := &Sandbox{
		Native:    NewNativeLedger(),
		Tokens:    NewTokenLedger(),
		custodian: custodian,
		treasury:  treasury,
		mint:      mint,
	}

	ata, err := s.Tokens.MintTo(custodian, mint, supply)
	if err != nil {
		return nil, fmt.Errorf("mint custodian supply: %w", err)
	}
	s.custodianTokenAccount = ata

	opts = append([]sale.Option{sale.WithCompensation(treasury)}, opts...)
	s.Processor = sale.NewProcessor(s.Native, s.Tokens, opts...)
	return s, nil
}

// Airdrop 给买家充值 lamports
func (s *Sandbox) Airdrop(buyer solana.PublicKey, lamports uint64) error {
	return s.Native.Fund(buyer, lamports)
}

// Accounts 构造 buyer 的购买账户
func (s *Sandbox) Accounts(buyer solana.PublicKey) sale.Accounts {
	return sale.Accounts{
		Buyer:                 buyer,
		Custodian:             s.custodian,
		Treasury:              s.treasury,
		Mint:                  s.mint,
		CustodianTokenAccount: s.custodianTokenAccount,
	}
}

// Purchase 以买家和托管方的签名执行一次购买
func (s *Sandbox) Purchase(ctx context.Context, buyer solana.PublicKey, lamports uint64, lockDurationMonths uint8) (uint64, error) {
	return s.Processor.Execute(ctx, sale.Invocation{
		Accounts:           s.Accounts(buyer),
		Signers:            []solana.PublicKey{buyer, s.custodian},
		SolAmount:          lamports,
		LockDurationMonths: lockDurationMonths,
	})
}

// Balances 返回 owner 的 lamports 与代币余额
func (s *Sandbox) Balances(owner solana.PublicKey) (lamports uint64, tokens uint64) {
	return s.Native.Balance(owner), s.Tokens.BalanceOf(owner, s.mint)
}

// CustodianBalance 托管账户剩余代币
func (s *Sandbox) CustodianBalance() uint64 {
	return s.Tokens.Balance(s.custodianTokenAccount)
}

func (s *Sandbox) Treasury() solana.PublicKey {
	return s.treasury
}
