package model

import (
	"encoding/json"
	"fmt"
	"time"

	"token_purchase/internal/common"

	"github.com/google/uuid"
)

// PurchaseMetadata 创建交易时返回给买家的预览信息
type PurchaseMetadata struct {
	TokenAmount uint64    `json:"tokenAmount"` // 含奖励的代币数量
	UnlockDate  time.Time `json:"unlockDate"`  // 解锁时间
	IsLocked    bool      `json:"isLocked"`    // 是否进入治理锁仓
	RealmID     string    `json:"realmId"`     // 治理 realm
}

// PurchaseRecord 一条已完成的购买记录
type PurchaseRecord struct {
	ID                   string    `json:"id"`
	UserPublicKey        string    `json:"userPublicKey"`        // 买家钱包
	Amount               uint64    `json:"amount"`               // 代币数量
	Lamports             uint64    `json:"lamports"`             // 支付的 lamports
	LockDurationMonths   uint8     `json:"lockDurationMonths"`   // 锁仓月数
	PurchasedAt          time.Time `json:"purchasedAt"`          // 购买时间(UTC)
	UnlockDate           time.Time `json:"unlockDate"`           // 解锁时间(UTC)
	TransactionSignature string    `json:"transactionSignature"` // 链上交易签名
}

// UnlockDate 购买时间加上锁仓月数
func UnlockDate(from time.Time, lockDurationMonths uint8) time.Time {
	return from.AddDate(0, int(lockDurationMonths), 0)
}

// NewPurchaseMetadata 低于最小锁仓数量的购买不锁仓
func NewPurchaseMetadata(now time.Time, tokenAmount uint64, lockDurationMonths uint8, realmID string) PurchaseMetadata {
	return PurchaseMetadata{
		TokenAmount: tokenAmount,
		UnlockDate:  UnlockDate(now, lockDurationMonths),
		IsLocked:    tokenAmount >= common.MIN_LOCK_TOKEN_AMOUNT,
		RealmID:     realmID,
	}
}

func NewPurchaseRecord(now time.Time, wallet string, lamports, tokenAmount uint64, lockDurationMonths uint8, signature string) *PurchaseRecord {
	now = now.UTC()
	return &PurchaseRecord{
		ID:                   "purchase_" + uuid.NewString(),
		UserPublicKey:        wallet,
		Amount:               tokenAmount,
		Lamports:             lamports,
		LockDurationMonths:   lockDurationMonths,
		PurchasedAt:          now,
		UnlockDate:           UnlockDate(now, lockDurationMonths),
		TransactionSignature: signature,
	}
}

// IsLocked 在 at 时刻代币是否仍在锁仓期内
func (r *PurchaseRecord) IsLocked(at time.Time) bool {
	return at.Before(r.UnlockDate)
}

// FormatPurchaseRecord 格式化显示购买记录
func FormatPurchaseRecord(data []byte) string {
	var record PurchaseRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Sprintf("解析消息失败: %v\n原始消息: %s", err, string(data))
	}

	return fmt.Sprintf(`
		==== 购买记录 ====
		id: %s
		userPublicKey: %s
		amount: %d
		sol: %s
		lockDurationMonths: %d
		purchasedAt: %s
		unlockDate: %s
		transactionSignature: %s
		==================
`,
		record.ID,
		record.UserPublicKey,
		record.Amount,
		common.LamportsToSol(record.Lamports).String(),
		record.LockDurationMonths,
		record.PurchasedAt.Format(time.RFC3339),
		record.UnlockDate.Format(time.RFC3339),
		record.TransactionSignature,
	)
}
