package chainTx

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"token_purchase/internal/common"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Anchor 指令标识：sha256("global:<指令名>") 的前 8 字节
var (
	createPurchaseDiscriminator   = anchorDiscriminator("create_purchase_transaction")
	completePurchaseDiscriminator = anchorDiscriminator("complete_purchase")
)

func anchorDiscriminator(name string) [8]byte {
	var out [8]byte
	sum := sha256.Sum256([]byte("global:" + name))
	copy(out[:], sum[:8])
	return out
}

// encodeInstructionData 指令标识 + borsh 编码的参数
func encodeInstructionData(discriminator [8]byte, args interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(discriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
		return nil, fmt.Errorf("编码指令参数失败: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildCreatePurchaseInstruction 构造 create_purchase_transaction 指令
func BuildCreatePurchaseInstruction(accounts common.PurchaseInstructionAccounts, solAmount uint64, lockDurationMonths uint8) (solana.Instruction, error) {
	data, err := encodeInstructionData(createPurchaseDiscriminator, &common.PurchaseArgs{
		SolAmount:          solAmount,
		LockDurationMonths: lockDurationMonths,
	})
	if err != nil {
		return nil, err
	}

	// 账户顺序必须与链上程序的定义一致
	insAccounts := []*solana.AccountMeta{
		{PublicKey: accounts.User, IsSigner: true, IsWritable: true},
		{PublicKey: accounts.Admin, IsSigner: true, IsWritable: true},
		{PublicKey: accounts.Treasury, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.CommunityMint, IsSigner: false, IsWritable: false},
		{PublicKey: accounts.AdminTokenAccount, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.UserTokenAccount, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.Realm, IsSigner: false, IsWritable: false},
		{PublicKey: accounts.RealmConfig, IsSigner: false, IsWritable: false},
		{PublicKey: accounts.GoverningTokenHolding, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.GovernanceTokenAccount, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.TokenOwnerRecord, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.SystemProgram, IsSigner: false, IsWritable: false},
		{PublicKey: accounts.TokenProgram, IsSigner: false, IsWritable: false},
		{PublicKey: accounts.AssociatedTokenProgram, IsSigner: false, IsWritable: false},
		{PublicKey: accounts.GovernanceProgram, IsSigner: false, IsWritable: false},
	}

	return solana.NewInstruction(accounts.Program, insAccounts, data), nil
}

// BuildCompletePurchaseInstruction 构造 complete_purchase 指令，user 只读且无需签名
func BuildCompletePurchaseInstruction(programID, user solana.PublicKey, solAmount uint64, lockDurationMonths uint8, transactionSignature string) (solana.Instruction, error) {
	data, err := encodeInstructionData(completePurchaseDiscriminator, &common.CompletePurchaseArgs{
		SolAmount:            solAmount,
		LockDurationMonths:   lockDurationMonths,
		TransactionSignature: transactionSignature,
	})
	if err != nil {
		return nil, err
	}

	insAccounts := []*solana.AccountMeta{
		{PublicKey: user, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	}

	return solana.NewInstruction(programID, insAccounts, data), nil
}
