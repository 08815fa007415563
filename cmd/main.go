package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"token_purchase/internal/api"
	"token_purchase/internal/chainTx"
	"token_purchase/internal/common"
	"token_purchase/internal/config"
	"token_purchase/internal/ledger"
	"token_purchase/internal/model"
	"token_purchase/internal/queue"
	solanaclient "token_purchase/internal/solana"
	"token_purchase/internal/store"
	"token_purchase/internal/ws"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

func main() {
	// 定义命令行参数
	sandboxMode := flag.Bool("sandbox", false, "启用进程内沙盒接口（覆盖 SANDBOX 环境变量）")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		common.Log.WithError(err).Fatal("加载配置失败")
	}
	if *sandboxMode {
		cfg.Sandbox = true
	}
	if err := common.InitLogger(cfg.LogDir, cfg.LogLevel); err != nil {
		common.Log.WithError(err).Fatal("初始化日志失败")
	}

	custodian, err := cfg.CustodianKey()
	if errors.Is(err, config.ErrMissingCustodianKey) {
		// 没有托管方私钥时使用临时密钥，只能用于演示
		custodian = solana.NewWallet().PrivateKey
		common.Log.WithField("custodian", custodian.PublicKey().String()).Warn("未配置托管方私钥，使用临时密钥")
	} else if err != nil {
		common.Log.WithError(err).Fatal("加载托管方私钥失败")
	}

	client := solanaclient.New(cfg.RPCURL)
	defer client.Close()
	builder := chainTx.NewBuilder(client, custodian, cfg.ChainConfig())

	// 初始化消息队列与推送
	purchases := store.NewPurchaseStore()
	hub := ws.NewHub()
	events := queue.NewMessageQueue("purchase_events", 100)
	events.RegisterHandler(hub)
	events.RegisterHandler(queue.HandlerFunc(logEvent))
	events.Start()

	opts := []api.Option{}
	if cfg.Sandbox {
		sandbox, err := ledger.NewSandbox(custodian.PublicKey(), cfg.Treasury, cfg.CommunityMint, cfg.SandboxSupply)
		if err != nil {
			common.Log.WithError(err).Fatal("创建沙盒失败")
		}
		opts = append(opts, api.WithSandbox(sandbox))
		common.Log.WithField("supply", cfg.SandboxSupply).Info("沙盒已启用")
	}

	handler := api.NewHandler(builder, purchases, events, opts...)
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(handler, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		common.Log.WithFields(logrus.Fields{
			"addr":      server.Addr,
			"rpc":       cfg.RPCURL,
			"mode":      cfg.Mode,
			"programId": cfg.ProgramID.String(),
			"custodian": custodian.PublicKey().String(),
		}).Info("服务已启动")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			common.Log.WithError(err).Fatal("服务异常退出")
		}
	}()

	fmt.Println("购买服务已启动. 按CTRL+C退出.")

	// 等待终止信号
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	fmt.Println("正在关闭购买服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		common.Log.WithError(err).Warn("关闭HTTP服务失败")
	}
	events.Stop()
	hub.Close()

	fmt.Println("购买服务已正常关闭.")
}

func logEvent(msg *model.QueueMessage) {
	if msg.Type != model.MessageTypePurchaseCompleted || msg.Record == nil {
		return
	}
	common.Log.WithFields(logrus.Fields{
		"id":     msg.Record.ID,
		"wallet": msg.Record.UserPublicKey,
		"tokens": msg.Record.Amount,
		"unlock": msg.Record.UnlockDate,
	}).Info("新的购买记录")
}
