package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"token_purchase/internal/sale"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
	ErrOwnerMismatch     = errors.New("authority does not control source account")
	ErrMintMismatch      = errors.New("token accounts belong to different mints")
	ErrZeroAmount        = errors.New("transfer amount must be greater than 0")
	ErrBalanceOverflow   = errors.New("balance overflow")
)

// NativeLedger 内存版原生币账本。系统账户的控制密钥就是账户地址本身
type NativeLedger struct {
	mu       sync.Mutex
	balances map[solana.PublicKey]uint64
}

func NewNativeLedger() *NativeLedger {
	return &NativeLedger{
		balances: make(map[solana.PublicKey]uint64),
	}
}

// Fund 直接增加余额（空投）
func (l *NativeLedger) Fund(account solana.PublicKey, lamports uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[account] > math.MaxUint64-lamports {
		return ErrBalanceOverflow
	}
	l.balances[account] += lamports
	return nil
}

func (l *NativeLedger) Balance(account solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// Transfer 原子转账，失败时不修改任何余额
func (l *NativeLedger) Transfer(ctx context.Context, leg sale.TransferLeg) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if leg.Amount == 0 {
		return ErrZeroAmount
	}
	if !leg.Authority.Equals(leg.From) {
		return fmt.Errorf("%w: %s", ErrOwnerMismatch, leg.From)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	from := l.balances[leg.From]
	if from < leg.Amount {
		return fmt.Errorf("%w: %s has %d lamports, needs %d", ErrInsufficientFunds, leg.From, from, leg.Amount)
	}
	if leg.From.Equals(leg.To) {
		return nil
	}
	to := l.balances[leg.To]
	if to > math.MaxUint64-leg.Amount {
		return ErrBalanceOverflow
	}

	l.balances[leg.From] = from - leg.Amount
	l.balances[leg.To] = to + leg.Amount
	return nil
}
