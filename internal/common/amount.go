package common

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// SolToLamports 将 SOL 数量精确换算为 lamports，不允许超过 9 位小数或负数
func SolToLamports(sol decimal.Decimal) (uint64, error) {
	if sol.IsNegative() {
		return 0, fmt.Errorf("SOL数量不能为负数: %s", sol.String())
	}
	lamports := sol.Shift(SOL_DECIMALS)
	if !lamports.IsInteger() {
		return 0, fmt.Errorf("SOL数量精度超过%d位小数: %s", SOL_DECIMALS, sol.String())
	}
	n := lamports.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("SOL数量超出范围: %s", sol.String())
	}
	return n.Uint64(), nil
}

// LamportsToSol lamports 转 SOL
func LamportsToSol(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -SOL_DECIMALS)
}
