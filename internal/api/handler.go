package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"token_purchase/internal/chainTx"
	"token_purchase/internal/common"
	"token_purchase/internal/ledger"
	"token_purchase/internal/model"
	"token_purchase/internal/sale"
	"token_purchase/internal/store"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TxBuilder 链上交易构造与确认
type TxBuilder interface {
	Config() chainTx.Config
	BuildPurchase(ctx context.Context, buyer solana.PublicKey, lamports uint64, lockDurationMonths uint8) (*chainTx.PurchaseTx, error)
	RecordCompletion(ctx context.Context, buyer solana.PublicKey, lamports uint64, lockDurationMonths uint8, transactionSignature string) (solana.Signature, error)
	VerifyTransaction(ctx context.Context, signature string) error
}

// Publisher 购买事件出口
type Publisher interface {
	SendMessage(msg *model.QueueMessage) bool
}

type Handler struct {
	builder TxBuilder
	store   *store.PurchaseStore
	events  Publisher
	sandbox *ledger.Sandbox
	now     func() time.Time
}

type Option func(*Handler)

// WithSandbox 启用进程内沙盒接口
func WithSandbox(s *ledger.Sandbox) Option {
	return func(h *Handler) {
		h.sandbox = s
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

func NewHandler(builder TxBuilder, s *store.PurchaseStore, events Publisher, opts ...Option) *Handler {
	h := &Handler{
		builder: builder,
		store:   s,
		events:  events,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type purchaseInput struct {
	buyer    solana.PublicKey
	lamports uint64
	months   uint8
}

// parsePurchase 缺少或格式错误的字段返回 errBadRequest，取值不合法时返回程序错误
func parsePurchase(wallet string, sol *decimal.Decimal, lockDurationMonths int) (purchaseInput, sale.QuoteResult, error) {
	var in purchaseInput
	if strings.TrimSpace(wallet) == "" || sol == nil || lockDurationMonths == 0 {
		return in, sale.QuoteResult{}, fmt.Errorf("%w: walletAddress, solAmount and lockDurationMonths are required", errBadRequest)
	}

	buyer, err := solana.PublicKeyFromBase58(strings.TrimSpace(wallet))
	if err != nil {
		return in, sale.QuoteResult{}, fmt.Errorf("%w: invalid walletAddress: %v", errBadRequest, err)
	}
	lamports, err := common.SolToLamports(*sol)
	if err != nil {
		return in, sale.QuoteResult{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if lockDurationMonths < 0 || lockDurationMonths > 255 {
		return in, sale.QuoteResult{}, sale.ErrInvalidLockDuration
	}

	in = purchaseInput{buyer: buyer, lamports: lamports, months: uint8(lockDurationMonths)}
	quote, err := sale.Quote(in.lamports, in.months)
	if err != nil {
		return in, sale.QuoteResult{}, err
	}
	return in, quote, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", errBadRequest, err)
	}
	return nil
}

type createPurchaseResponse struct {
	Success     bool                   `json:"success"`
	Message     string                 `json:"message"`
	Transaction string                 `json:"transaction"`
	TxID        string                 `json:"txid"`
	Quote       sale.QuoteResult       `json:"quote"`
	Metadata    model.PurchaseMetadata `json:"metadata"`
}

// CreatePurchaseTransaction 构造待买家签名的购买交易
func (h *Handler) CreatePurchaseTransaction(w http.ResponseWriter, r *http.Request) {
	var req common.PurchaseReq
	if err := decodeBody(r, &req); err != nil {
		respondError(w, statusFor(err), "Invalid request", err)
		return
	}

	in, _, err := parsePurchase(req.WalletAddress, req.SolAmount, req.LockDurationMonths)
	if err != nil {
		respondError(w, statusFor(err), "Invalid purchase parameters", err)
		return
	}

	logger := common.Log.WithFields(logrus.Fields{
		"wallet":   in.buyer.String(),
		"lamports": in.lamports,
		"lock":     in.months,
	})

	ptx, err := h.builder.BuildPurchase(r.Context(), in.buyer, in.lamports, in.months)
	if err != nil {
		logger.WithError(err).Error("创建购买交易失败")
		observePurchase(stageFailed, in.months)
		status := statusFor(err)
		if status != http.StatusInternalServerError {
			respondError(w, status, "Failed to create token purchase transaction", err)
			return
		}
		cfg := h.builder.Config()
		respondJSON(w, status, errorResponse{
			Message: "Failed to create token purchase transaction",
			Error:   err.Error(),
			Details: map[string]string{
				"programId": cfg.ProgramID.String(),
				"treasury":  cfg.Treasury.String(),
				"realm":     cfg.Realm.String(),
			},
		})
		return
	}

	metadata := model.NewPurchaseMetadata(h.now(), ptx.Quote.TotalTokens, in.months, h.builder.Config().Realm.String())
	observePurchase(stageCreated, in.months)
	h.events.SendMessage(model.NewCreatedMessage(in.buyer.String(), metadata))
	logger.WithField("tokens", metadata.TokenAmount).Info("购买交易已返回")

	respondJSON(w, http.StatusOK, createPurchaseResponse{
		Success:     true,
		Message:     "Transaction created successfully",
		Transaction: ptx.Encoded,
		TxID:        "pending",
		Quote:       ptx.Quote,
		Metadata:    metadata,
	})
}

type completePurchaseResponse struct {
	Success        bool                  `json:"success"`
	Message        string                `json:"message"`
	Verified       bool                  `json:"verified"`
	Recorded       bool                  `json:"recorded"`
	PurchaseRecord *model.PurchaseRecord `json:"purchaseRecord"`
}

// CompletePurchase 买家发送交易后通知服务端记录购买。链上不存在的交易直接拒绝，其余确认失败与 complete_purchase 失败只告警
func (h *Handler) CompletePurchase(w http.ResponseWriter, r *http.Request) {
	var req common.CompletePurchaseReq
	if err := decodeBody(r, &req); err != nil {
		respondError(w, statusFor(err), "Invalid request", err)
		return
	}
	if strings.TrimSpace(req.TransactionSignature) == "" {
		err := fmt.Errorf("%w: transactionSignature is required", errBadRequest)
		respondError(w, statusFor(err), "Invalid request", err)
		return
	}

	in, quote, err := parsePurchase(req.WalletAddress, req.SolAmount, req.LockDurationMonths)
	if err != nil {
		respondError(w, statusFor(err), "Invalid purchase parameters", err)
		return
	}

	logger := common.Log.WithFields(logrus.Fields{
		"wallet":    in.buyer.String(),
		"signature": req.TransactionSignature,
	})

	resp := completePurchaseResponse{Success: true, Message: "Purchase completion recorded"}
	err = h.builder.VerifyTransaction(r.Context(), req.TransactionSignature)
	switch {
	case errors.Is(err, chainTx.ErrTransactionNotFound):
		logger.WithError(err).Warn("链上找不到交易，拒绝记录")
		respondError(w, statusFor(err), "Transaction not found on-chain", err)
		return
	case err != nil:
		logger.WithError(err).Warn("链上交易确认失败，继续记录")
	default:
		resp.Verified = true
	}
	if _, err := h.builder.RecordCompletion(r.Context(), in.buyer, in.lamports, in.months, req.TransactionSignature); err != nil {
		logger.WithError(err).Warn("complete_purchase 调用失败，继续记录")
	} else {
		resp.Recorded = true
	}

	record := model.NewPurchaseRecord(h.now(), in.buyer.String(), in.lamports, quote.TotalTokens, in.months, req.TransactionSignature)
	stored, added := h.store.Add(record)
	resp.PurchaseRecord = stored
	if !added {
		resp.Message = "Purchase already recorded"
		respondJSON(w, http.StatusOK, resp)
		return
	}

	observePurchase(stageCompleted, in.months)
	tokensIssuedTotal.Add(float64(quote.TotalTokens))
	lamportsReceivedTotal.Add(float64(in.lamports))
	h.events.SendMessage(model.NewCompletedMessage(stored))
	logger.WithField("record", stored.ID).Info("购买已记录")

	respondJSON(w, http.StatusOK, resp)
}

type purchaseStatusResponse struct {
	Success   bool                    `json:"success"`
	Purchases []*model.PurchaseRecord `json:"purchases"`
}

// PurchaseStatus 查询钱包的购买记录
func (h *Handler) PurchaseStatus(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["publicKey"]
	if _, err := solana.PublicKeyFromBase58(wallet); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid public key", err)
		return
	}

	respondJSON(w, http.StatusOK, purchaseStatusResponse{
		Success:   true,
		Purchases: h.store.ListByWallet(wallet),
	})
}

type quoteResponse struct {
	Success    bool             `json:"success"`
	SolAmount  string           `json:"solAmount"`
	Quote      sale.QuoteResult `json:"quote"`
	UnlockDate time.Time        `json:"unlockDate"`
	IsLocked   bool             `json:"isLocked"`
}

// Quote 预览奖励后的代币数量，不构造交易
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sol, err := decimal.NewFromString(q.Get("solAmount"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid solAmount", err)
		return
	}
	lamports, err := common.SolToLamports(sol)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid solAmount", err)
		return
	}
	months, err := strconv.ParseUint(q.Get("lockDurationMonths"), 10, 8)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "Invalid lockDurationMonths", sale.ErrInvalidLockDuration)
		return
	}

	quote, err := sale.Quote(lamports, uint8(months))
	if err != nil {
		respondError(w, statusFor(err), "Invalid purchase parameters", err)
		return
	}

	metadata := model.NewPurchaseMetadata(h.now(), quote.TotalTokens, quote.LockDurationMonths, "")
	respondJSON(w, http.StatusOK, quoteResponse{
		Success:    true,
		SolAmount:  common.LamportsToSol(lamports).String(),
		Quote:      quote,
		UnlockDate: metadata.UnlockDate,
		IsLocked:   metadata.IsLocked,
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
