package chainTx

import (
	"context"
	"encoding/base64"
	"fmt"

	"token_purchase/internal/common"
	"token_purchase/internal/sale"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

// ChainClient 交易构造需要的链上查询与发送能力
type ChainClient interface {
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResult, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error)
}

// Config 部署参数
type Config struct {
	Mode              common.PurchaseMode
	ProgramID         solana.PublicKey
	Treasury          solana.PublicKey
	Mint              solana.PublicKey
	GovernanceProgram solana.PublicKey
	Realm             solana.PublicKey
}

// Builder 构造由托管方预签名、买家补签的购买交易
type Builder struct {
	client    ChainClient
	custodian solana.PrivateKey
	cfg       Config
}

func NewBuilder(client ChainClient, custodian solana.PrivateKey, cfg Config) *Builder {
	if cfg.Mode == "" {
		cfg.Mode = common.PROGRAM_MODE
	}
	return &Builder{
		client:    client,
		custodian: custodian,
		cfg:       cfg,
	}
}

// PurchaseTx 待买家签名的购买交易
type PurchaseTx struct {
	Transaction *solana.Transaction
	Encoded     string
	Quote       sale.QuoteResult
	Accounts    common.PurchaseInstructionAccounts
}

func (b *Builder) Custodian() solana.PublicKey {
	return b.custodian.PublicKey()
}

func (b *Builder) Config() Config {
	return b.cfg
}

// Accounts 推导买家购买所需的全部账户
func (b *Builder) Accounts(buyer solana.PublicKey) (common.PurchaseInstructionAccounts, error) {
	admin := b.Custodian()
	adminATA, _, err := solana.FindAssociatedTokenAddress(admin, b.cfg.Mint)
	if err != nil {
		return common.PurchaseInstructionAccounts{}, fmt.Errorf("推导托管代币账户失败: %w", err)
	}
	userATA, _, err := solana.FindAssociatedTokenAddress(buyer, b.cfg.Mint)
	if err != nil {
		return common.PurchaseInstructionAccounts{}, fmt.Errorf("推导买家代币账户失败: %w", err)
	}
	gov, err := DeriveGovernanceAddresses(b.cfg.GovernanceProgram, b.cfg.Realm, b.cfg.Mint, buyer)
	if err != nil {
		return common.PurchaseInstructionAccounts{}, err
	}

	return common.PurchaseInstructionAccounts{
		User:                   buyer,
		Admin:                  admin,
		Treasury:               b.cfg.Treasury,
		CommunityMint:          b.cfg.Mint,
		AdminTokenAccount:      adminATA,
		UserTokenAccount:       userATA,
		Realm:                  gov.Realm,
		RealmConfig:            gov.RealmConfig,
		GoverningTokenHolding:  gov.GoverningTokenHolding,
		GovernanceTokenAccount: gov.GovernanceTokenAccount,
		TokenOwnerRecord:       gov.TokenOwnerRecord,
		SystemProgram:          solana.SystemProgramID,
		TokenProgram:           solana.TokenProgramID,
		AssociatedTokenProgram: common.AssociatedTokenProgramID,
		GovernanceProgram:      gov.Program,
		Program:                b.cfg.ProgramID,
	}, nil
}

// BuildPurchase 校验参数后构造购买交易，手续费由买家支付，托管方已签名
func (b *Builder) BuildPurchase(ctx context.Context, buyer solana.PublicKey, lamports uint64, lockDurationMonths uint8) (*PurchaseTx, error) {
	quote, err := sale.Quote(lamports, lockDurationMonths)
	if err != nil {
		return nil, err
	}

	accounts, err := b.Accounts(buyer)
	if err != nil {
		return nil, err
	}

	var instructions []solana.Instruction
	switch b.cfg.Mode {
	case common.PROGRAM_MODE:
		ix, err := BuildCreatePurchaseInstruction(accounts, lamports, lockDurationMonths)
		if err != nil {
			return nil, err
		}
		instructions = []solana.Instruction{ix}
	case common.DIRECT_MODE:
		instructions, err = b.directInstructions(ctx, accounts, quote)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("未知的购买模式: %s", b.cfg.Mode)
	}

	blockhash, err := b.client.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取区块哈希失败: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(buyer))
	if err != nil {
		return nil, fmt.Errorf("创建交易失败: %w", err)
	}

	// 托管方先签名，买家的签名位留空
	if _, err := tx.PartialSign(b.custodianKey); err != nil {
		return nil, fmt.Errorf("托管方签名失败: %w", err)
	}

	encoded, err := EncodeTransaction(tx)
	if err != nil {
		return nil, err
	}

	common.Log.WithFields(logrus.Fields{
		"buyer":        buyer.String(),
		"mode":         b.cfg.Mode,
		"instructions": len(tx.Message.Instructions),
		"accounts":     len(tx.Message.AccountKeys),
		"signatures":   len(tx.Signatures),
		"tokens":       quote.TotalTokens,
	}).Info("购买交易已创建")

	return &PurchaseTx{
		Transaction: tx,
		Encoded:     encoded,
		Quote:       quote,
		Accounts:    accounts,
	}, nil
}

// directInstructions 把两笔转账放进同一笔交易：SOL 转账、按需创建买家代币账户、代币转账
func (b *Builder) directInstructions(ctx context.Context, accounts common.PurchaseInstructionAccounts, quote sale.QuoteResult) ([]solana.Instruction, error) {
	balance, err := b.client.GetTokenAccountBalance(ctx, accounts.AdminTokenAccount)
	if err != nil {
		return nil, fmt.Errorf("查询托管代币余额失败: %w", err)
	}
	if balance < quote.TotalTokens {
		return nil, fmt.Errorf("%w: 可用 %d, 需要 %d", sale.ErrInsufficientTreasuryBalance, balance, quote.TotalTokens)
	}

	instructions := []solana.Instruction{
		system.NewTransferInstruction(quote.Lamports, accounts.User, accounts.Treasury).Build(),
	}

	exists, err := b.client.AccountExists(ctx, accounts.UserTokenAccount)
	if err != nil {
		return nil, fmt.Errorf("查询买家代币账户失败: %w", err)
	}
	if !exists {
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(accounts.User, accounts.User, accounts.CommunityMint).Build())
	}

	instructions = append(instructions,
		token.NewTransferInstruction(
			quote.TotalTokens,
			accounts.AdminTokenAccount,
			accounts.UserTokenAccount,
			accounts.Admin,
			[]solana.PublicKey{},
		).Build())
	return instructions, nil
}

// custodianKey 私钥查找函数，只提供托管方的私钥
func (b *Builder) custodianKey(pubkey solana.PublicKey) *solana.PrivateKey {
	if pubkey.Equals(b.custodian.PublicKey()) {
		return &b.custodian
	}
	return nil
}

// EncodeTransaction 序列化为 base64，允许缺少签名
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("序列化交易失败: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTransaction 解析 base64 交易
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("解码交易失败: %w", err)
	}
	tx, err := solana.TransactionFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("解析交易失败: %w", err)
	}
	return tx, nil
}
