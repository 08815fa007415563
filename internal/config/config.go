package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"token_purchase/internal/chainTx"
	"token_purchase/internal/common"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
)

var ErrMissingCustodianKey = errors.New("未配置托管方私钥: 设置 SOLANA_PRIVATE_KEY 或 ADMIN_KEYPAIR")

// Config 服务配置
type Config struct {
	Port     string
	RPCURL   string
	LogLevel string
	LogDir   string

	Mode              common.PurchaseMode
	ProgramID         solana.PublicKey
	Treasury          solana.PublicKey
	GovernanceProgram solana.PublicKey
	Realm             solana.PublicKey
	CommunityMint     solana.PublicKey

	// 托管方私钥：base58 字符串优先，否则读取 solana-keygen 生成的文件
	PrivateKey  string
	KeypairPath string

	Sandbox       bool
	SandboxSupply uint64
}

// Load 先加载 .env（不存在时忽略），再读取环境变量
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv 只读取环境变量
func FromEnv() (Config, error) {
	cfg := Config{
		Port:          getenv("SERVER_PORT", "8080"),
		RPCURL:        getenv("SOLANA_RPC_URL", common.DEFAULT_RPC_URL),
		LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogDir:        strings.TrimSpace(getenv("LOG_DIR", "")),
		PrivateKey:    strings.TrimSpace(getenv("SOLANA_PRIVATE_KEY", "")),
		KeypairPath:   getenv("ADMIN_KEYPAIR", "./admin-keypair.json"),
		Sandbox:       getenvBool("SANDBOX", false),
		SandboxSupply: getenvUint64("SANDBOX_SUPPLY", 1_000_000),
	}

	mode, err := parseMode(getenv("PURCHASE_MODE", string(common.PROGRAM_MODE)))
	if err != nil {
		return Config{}, err
	}
	cfg.Mode = mode

	keys := []struct {
		env    string
		def    string
		target *solana.PublicKey
	}{
		{"PROGRAM_ID", common.DEFAULT_PROGRAM_ID, &cfg.ProgramID},
		{"TREASURY_ADDRESS", common.DEFAULT_TREASURY_ADDRESS, &cfg.Treasury},
		{"GOVERNANCE_PROGRAM_ID", common.DEFAULT_GOVERNANCE_PROGRAM_ID, &cfg.GovernanceProgram},
		{"REALM_ID", common.DEFAULT_REALM_ID, &cfg.Realm},
		{"COMMUNITY_MINT", common.DEFAULT_COMMUNITY_MINT, &cfg.CommunityMint},
	}
	for _, k := range keys {
		pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(getenv(k.env, k.def)))
		if err != nil {
			return Config{}, fmt.Errorf("%s 不是有效的地址: %w", k.env, err)
		}
		*k.target = pk
	}
	return cfg, nil
}

// CustodianKey 加载托管方私钥
func (c Config) CustodianKey() (solana.PrivateKey, error) {
	if c.PrivateKey != "" {
		key, err := solana.PrivateKeyFromBase58(c.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("解析 SOLANA_PRIVATE_KEY 失败: %w", err)
		}
		return key, nil
	}
	if c.KeypairPath == "" {
		return nil, ErrMissingCustodianKey
	}
	if _, err := os.Stat(c.KeypairPath); errors.Is(err, os.ErrNotExist) {
		return nil, ErrMissingCustodianKey
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(c.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("读取密钥文件 %s 失败: %w", c.KeypairPath, err)
	}
	return key, nil
}

// ChainConfig 交易构造参数
func (c Config) ChainConfig() chainTx.Config {
	return chainTx.Config{
		Mode:              c.Mode,
		ProgramID:         c.ProgramID,
		Treasury:          c.Treasury,
		Mint:              c.CommunityMint,
		GovernanceProgram: c.GovernanceProgram,
		Realm:             c.Realm,
	}
}

func (c Config) Addr() string {
	return ":" + c.Port
}

func parseMode(raw string) (common.PurchaseMode, error) {
	switch common.PurchaseMode(strings.ToLower(strings.TrimSpace(raw))) {
	case common.PROGRAM_MODE:
		return common.PROGRAM_MODE, nil
	case common.DIRECT_MODE:
		return common.DIRECT_MODE, nil
	}
	return "", fmt.Errorf("PURCHASE_MODE 只能是 %s 或 %s: %q", common.PROGRAM_MODE, common.DIRECT_MODE, raw)
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v, err := strconv.ParseBool(getenv(key, ""))
	if err != nil {
		return def
	}
	return v
}

func getenvUint64(key string, def uint64) uint64 {
	v, err := strconv.ParseUint(getenv(key, ""), 10, 64)
	if err != nil {
		return def
	}
	return v
}
