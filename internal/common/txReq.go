package common

import "github.com/shopspring/decimal"

// PurchaseReq 创建购买交易请求，solAmount 以 SOL 计
type PurchaseReq struct {
	WalletAddress      string           `json:"walletAddress"`
	SolAmount          *decimal.Decimal `json:"solAmount"`
	LockDurationMonths int              `json:"lockDurationMonths"`
}

// CompletePurchaseReq 购买完成通知
type CompletePurchaseReq struct {
	WalletAddress        string           `json:"walletAddress"`
	SolAmount            *decimal.Decimal `json:"solAmount"`
	LockDurationMonths   int              `json:"lockDurationMonths"`
	TransactionSignature string           `json:"transactionSignature"`
}

// SandboxReq 沙盒请求（空投 / 购买），solAmount 以 SOL 计
type SandboxReq struct {
	WalletAddress      string           `json:"walletAddress"`
	SolAmount          *decimal.Decimal `json:"solAmount"`
	LockDurationMonths int              `json:"lockDurationMonths,omitempty"`
}
