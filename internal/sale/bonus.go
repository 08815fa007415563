package sale

import "math/bits"

// LockDuration 锁仓月数
type LockDuration uint8

const (
	LockOneMonth     LockDuration = 1
	LockThreeMonths  LockDuration = 3
	LockSixMonths    LockDuration = 6
	LockTwelveMonths LockDuration = 12
)

// 兑换比例：每 1_000_000_000 lamports 兑换 100 个代币
const (
	TokensPerSol    = 100
	LamportsPerSol  = 1_000_000_000
	multiplierScale = 100
)

// BonusMultiplier 返回锁仓期对应的奖励倍数（百分比），未知期限直接拒绝
func BonusMultiplier(months uint8) (uint64, error) {
	switch LockDuration(months) {
	case LockOneMonth:
		return 102, nil
	case LockThreeMonths:
		return 106, nil
	case LockSixMonths:
		return 112, nil
	case LockTwelveMonths:
		return 125, nil
	default:
		return 0, ErrInvalidLockDuration
	}
}

// LockDurations 所有合法的锁仓期
func LockDurations() []LockDuration {
	return []LockDuration{LockOneMonth, LockThreeMonths, LockSixMonths, LockTwelveMonths}
}

// BaseTokenAmount lamports*100/1e9，截断。乘积用 128 位计算，不会溢出
func BaseTokenAmount(lamports uint64) uint64 {
	hi, lo := bits.Mul64(lamports, TokensPerSol)
	q, _ := bits.Div64(hi, lo, LamportsPerSol)
	return q
}

// TokenAmount base*multiplier/100，截断
func TokenAmount(lamports uint64, multiplier uint64) uint64 {
	hi, lo := bits.Mul64(BaseTokenAmount(lamports), multiplier)
	q, _ := bits.Div64(hi, lo, multiplierScale)
	return q
}

// QuoteResult 一次购买的报价
type QuoteResult struct {
	Lamports           uint64 `json:"lamports"`
	LockDurationMonths uint8  `json:"lockDurationMonths"`
	BaseTokens         uint64 `json:"baseTokens"`
	Multiplier         uint64 `json:"multiplier"`
	BonusPercent       uint64 `json:"bonusPercent"`
	TotalTokens        uint64 `json:"totalTokens"`
}

// Quote 校验输入并计算代币数量。先校验锁仓期，再校验金额
func Quote(lamports uint64, months uint8) (QuoteResult, error) {
	multiplier, err := BonusMultiplier(months)
	if err != nil {
		return QuoteResult{}, err
	}
	if lamports == 0 {
		return QuoteResult{}, ErrInvalidAmount
	}

	return QuoteResult{
		Lamports:           lamports,
		LockDurationMonths: months,
		BaseTokens:         BaseTokenAmount(lamports),
		Multiplier:         multiplier,
		BonusPercent:       multiplier - multiplierScale,
		TotalTokens:        TokenAmount(lamports, multiplier),
	}, nil
}
