package common

import "github.com/gagliardetto/solana-go"

// PurchaseInstructionAccounts create_purchase_transaction 指令的账户，顺序与链上程序一致
type PurchaseInstructionAccounts struct {
	User                   solana.PublicKey
	Admin                  solana.PublicKey
	Treasury               solana.PublicKey
	CommunityMint          solana.PublicKey
	AdminTokenAccount      solana.PublicKey
	UserTokenAccount       solana.PublicKey
	Realm                  solana.PublicKey
	RealmConfig            solana.PublicKey
	GoverningTokenHolding  solana.PublicKey
	GovernanceTokenAccount solana.PublicKey
	TokenOwnerRecord       solana.PublicKey
	SystemProgram          solana.PublicKey
	TokenProgram           solana.PublicKey
	AssociatedTokenProgram solana.PublicKey
	GovernanceProgram      solana.PublicKey
	Program                solana.PublicKey
}

// PurchaseArgs 定义购买指令的输入数据
type PurchaseArgs struct {
	SolAmount          uint64
	LockDurationMonths uint8
}

// CompletePurchaseArgs 定义记录指令的输入数据
type CompletePurchaseArgs struct {
	SolAmount            uint64
	LockDurationMonths   uint8
	TransactionSignature string
}
