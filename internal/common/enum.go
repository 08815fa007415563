package common

import "github.com/gagliardetto/solana-go"

type PurchaseMode string

const (
	// PROGRAM_MODE 调用链上 token_purchase 程序，由程序完成两笔转账
	PROGRAM_MODE PurchaseMode = "program"
	// DIRECT_MODE 在同一笔交易里直接组合 system / spl-token 指令
	DIRECT_MODE PurchaseMode = "direct"
)

// 默认部署参数（devnet）
const (
	DEFAULT_RPC_URL               = "https://api.devnet.solana.com"
	DEFAULT_PROGRAM_ID            = "9HgVgT5AQ9WdCcZPMgzG8j26892YBjvHFEFL33xk4tb7"
	DEFAULT_TREASURY_ADDRESS      = "4WpsT2QvtjuYh4y9ggDRBPVDJseF98f26ke3DSXptCXt"
	DEFAULT_GOVERNANCE_PROGRAM_ID = "GovER5Lthms3bLBqWub97yVrMmEogzX7xNjdXpPPCVZw"
	DEFAULT_REALM_ID              = "5Zjr7Be8fdrbfG9B2uZYxqyrwawFBpPy1Zkgd3RxwEUk"
	DEFAULT_COMMUNITY_MINT        = "JCTnoqWEEoWz4cBuPEF6KgK1Zc8YyBoHSm5u2FBQvHHA"
)

// SOL 精度
const LAMPORTS_PER_SOL = 1_000_000_000
const SOL_DECIMALS = 9

// MIN_LOCK_TOKEN_AMOUNT 低于该数量的购买只转账，不进入治理锁仓
const MIN_LOCK_TOKEN_AMOUNT = 1

var ExplorerTxURL = "https://solscan.io/tx/%s?cluster=devnet"

// AssociatedTokenProgramID ATA 程序
var AssociatedTokenProgramID = solana.SPLAssociatedTokenAccountProgramID
