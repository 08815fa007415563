package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"

	"token_purchase/internal/sale"

	"github.com/gagliardetto/solana-go"
)

// TokenAccount 代币账户
type TokenAccount struct {
	Address solana.PublicKey
	Owner   solana.PublicKey
	Mint    solana.PublicKey
	Amount  uint64
}

// TokenLedger 内存版代币账本，账户地址按关联账户规则推导
type TokenLedger struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*TokenAccount
}

func NewTokenLedger() *TokenLedger {
	return &TokenLedger{
		accounts: make(map[solana.PublicKey]*TokenAccount),
	}
}

// EnsureAssociatedAccount 返回 owner 的关联账户，不存在则创建
func (l *TokenLedger) EnsureAssociatedAccount(ctx context.Context, owner, mint, payer solana.PublicKey) (solana.PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return solana.PublicKey{}, err
	}
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token account: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[addr]; !ok {
		l.accounts[addr] = &TokenAccount{Address: addr, Owner: owner, Mint: mint}
	}
	return addr, nil
}

// MintTo 给 owner 的关联账户增发代币
func (l *TokenLedger) MintTo(owner, mint solana.PublicKey, amount uint64) (solana.PublicKey, error) {
	addr, err := l.EnsureAssociatedAccount(context.Background(), owner, mint, owner)
	if err != nil {
		return solana.PublicKey{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.accounts[addr]
	if acc.Amount > math.MaxUint64-amount {
		return solana.PublicKey{}, ErrBalanceOverflow
	}
	acc.Amount += amount
	return addr, nil
}

// Transfer 原子转账。数量为 0 的转账同样需要通过账户与权限检查
func (l *TokenLedger) Transfer(ctx context.Context, leg sale.TransferLeg) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	from, ok := l.accounts[leg.From]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, leg.From)
	}
	to, ok := l.accounts[leg.To]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, leg.To)
	}
	if !from.Mint.Equals(to.Mint) {
		return ErrMintMismatch
	}
	if !leg.Authority.Equals(from.Owner) {
		return fmt.Errorf("%w: %s", ErrOwnerMismatch, leg.From)
	}
	if from.Amount < leg.Amount {
		return fmt.Errorf("%w: %s has %d tokens, needs %d", ErrInsufficientFunds, leg.From, from.Amount, leg.Amount)
	}
	if from == to {
		return nil
	}
	if to.Amount > math.MaxUint64-leg.Amount {
		return ErrBalanceOverflow
	}

	from.Amount -= leg.Amount
	to.Amount += leg.Amount
	return nil
}

// Balance 账户余额，账户不存在时为 0
func (l *TokenLedger) Balance(address solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if acc, ok := l.accounts[address]; ok {
		return acc.Amount
	}
	return 0
}

// Account 返回账户快照
func (l *TokenLedger) Account(address solana.PublicKey) (TokenAccount, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[address]
	if !ok {
		return TokenAccount{}, false
	}
	return *acc, true
}

// BalanceOf owner 在 mint 下的关联账户余额
func (l *TokenLedger) BalanceOf(owner, mint solana.PublicKey) uint64 {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0
	}
	return l.Balance(addr)
}
