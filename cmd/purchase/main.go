package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"token_purchase/internal/chainTx"
	"token_purchase/internal/common"
	"token_purchase/internal/model"
	solanaclient "token_purchase/internal/solana"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// 命令行参数
var (
	privateKey string
	amount     string
	lockMonths int
	apiURL     string
	rpcURL     string
	simulate   bool
	status     bool
)

func init() {
	flag.StringVar(&privateKey, "privatekey", os.Getenv("SOLANA_PRIVATE_KEY"), "买家私钥（base58格式）")
	flag.StringVar(&amount, "amount", "0.1", "支付的SOL数量")
	flag.IntVar(&lockMonths, "lock", 1, "锁仓月数 (1, 3, 6, 12)")
	flag.StringVar(&apiURL, "api", "http://localhost:8080", "购买服务地址")
	flag.StringVar(&rpcURL, "rpc", common.DEFAULT_RPC_URL, "Solana RPC URL")
	flag.BoolVar(&simulate, "simulate", false, "只模拟执行，不发送交易")
	flag.BoolVar(&status, "status", false, "只查询购买记录")
}

type createResponse struct {
	Success     bool                   `json:"success"`
	Message     string                 `json:"message"`
	Error       string                 `json:"error"`
	Transaction string                 `json:"transaction"`
	Metadata    model.PurchaseMetadata `json:"metadata"`
}

type completeResponse struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	PurchaseRecord json.RawMessage `json:"purchaseRecord"`
}

type statusResponse struct {
	Success   bool              `json:"success"`
	Purchases []json.RawMessage `json:"purchases"`
}

func main() {
	// 解析命令行参数
	flag.Parse()

	if privateKey == "" {
		fmt.Println("必须提供买家私钥")
		flag.PrintDefaults()
		os.Exit(1)
	}

	key, err := solana.PrivateKeyFromBase58(privateKey)
	if err != nil {
		common.Log.Fatalf("无效的私钥: %v", err)
	}
	wallet := key.PublicKey().String()
	apiURL = strings.TrimRight(apiURL, "/")

	if status {
		printStatus(wallet)
		return
	}

	sol, err := decimal.NewFromString(amount)
	if err != nil {
		common.Log.Fatalf("无效的SOL数量: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// 步骤1: 获取托管方已签名的交易
	common.Log.Info("步骤1: 从API获取购买交易")
	var created createResponse
	code, err := postJSON(apiURL+"/api/create-purchase-transaction", common.PurchaseReq{
		WalletAddress:      wallet,
		SolAmount:          &sol,
		LockDurationMonths: lockMonths,
	}, &created)
	if err != nil {
		common.Log.Fatalf("请求API失败: %v", err)
	}
	if code != http.StatusOK || !created.Success {
		common.Log.Fatalf("创建交易失败(%d): %s %s", code, created.Message, created.Error)
	}
	common.Log.WithFields(logrus.Fields{
		"tokens":   created.Metadata.TokenAmount,
		"unlock":   created.Metadata.UnlockDate.Format(time.RFC3339),
		"isLocked": created.Metadata.IsLocked,
	}).Info("成功获取交易")

	client := solanaclient.New(rpcURL)
	defer client.Close()

	if simulate {
		tx, err := chainTx.DecodeTransaction(created.Transaction)
		if err != nil {
			common.Log.Fatalf("%v", err)
		}
		logs, err := chainTx.SimulateTransaction(ctx, client, tx)
		for _, line := range logs {
			fmt.Println(line)
		}
		if err != nil {
			common.Log.Fatalf("模拟失败: %v", err)
		}
		fmt.Println("模拟执行成功")
		return
	}

	// 步骤2: 买家补签并发送
	common.Log.Info("步骤2: 签名并发送交易")
	sig, err := chainTx.SignAndSend(ctx, client, created.Transaction, key)
	if err != nil {
		common.Log.Fatalf("发送交易失败: %v", err)
	}
	fmt.Printf("交易已发送! 签名: %s\n", sig)

	// 步骤3: 通知服务端记录购买
	common.Log.Info("步骤3: 通知服务端记录购买")
	var completed completeResponse
	code, err = postJSON(apiURL+"/api/complete-purchase", common.CompletePurchaseReq{
		WalletAddress:        wallet,
		SolAmount:            &sol,
		LockDurationMonths:   lockMonths,
		TransactionSignature: sig.String(),
	}, &completed)
	if err != nil || code != http.StatusOK {
		common.Log.Warnf("记录购买失败(%d): %v", code, err)
	} else {
		fmt.Println(model.FormatPurchaseRecord(completed.PurchaseRecord))
	}

	fmt.Printf("查看交易: %s\n", fmt.Sprintf(common.ExplorerTxURL, sig))
}

func printStatus(wallet string) {
	resp, err := http.Get(apiURL + "/api/purchase-status/" + wallet)
	if err != nil {
		common.Log.Fatalf("请求API失败: %v", err)
	}
	defer resp.Body.Close()

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		common.Log.Fatalf("解析响应失败: %v", err)
	}
	if len(out.Purchases) == 0 {
		fmt.Println("没有购买记录")
		return
	}
	for _, p := range out.Purchases {
		fmt.Println(model.FormatPurchaseRecord(p))
	}
}

func postJSON(url string, body interface{}, out interface{}) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("读取API响应失败: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("解析API响应失败: %w, 原始响应: %s", err, string(raw))
	}
	return resp.StatusCode, nil
}
