package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"token_purchase/internal/common"
	"token_purchase/internal/model"
	"token_purchase/internal/sale"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type balancesResponse struct {
	Success       bool   `json:"success"`
	WalletAddress string `json:"walletAddress"`
	Lamports      uint64 `json:"lamports"`
	Sol           string `json:"sol"`
	Tokens        uint64 `json:"tokens"`
}

func (h *Handler) balances(owner solana.PublicKey) balancesResponse {
	lamports, tokens := h.sandbox.Balances(owner)
	return balancesResponse{
		Success:       true,
		WalletAddress: owner.String(),
		Lamports:      lamports,
		Sol:           common.LamportsToSol(lamports).String(),
		Tokens:        tokens,
	}
}

// SandboxAirdrop 给钱包充值沙盒 SOL
func (h *Handler) SandboxAirdrop(w http.ResponseWriter, r *http.Request) {
	var req common.SandboxReq
	if err := decodeBody(r, &req); err != nil {
		respondError(w, statusFor(err), "Invalid request", err)
		return
	}
	if strings.TrimSpace(req.WalletAddress) == "" || req.SolAmount == nil {
		respondError(w, http.StatusBadRequest, "walletAddress and solAmount are required", nil)
		return
	}
	owner, err := solana.PublicKeyFromBase58(strings.TrimSpace(req.WalletAddress))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid walletAddress", err)
		return
	}
	lamports, err := common.SolToLamports(*req.SolAmount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid solAmount", err)
		return
	}
	if lamports == 0 {
		respondError(w, http.StatusUnprocessableEntity, "Airdrop amount must be greater than 0", sale.ErrInvalidAmount)
		return
	}

	if err := h.sandbox.Airdrop(owner, lamports); err != nil {
		respondError(w, statusFor(err), "Airdrop failed", err)
		return
	}
	common.Log.WithFields(logrus.Fields{
		"wallet":   owner.String(),
		"lamports": lamports,
	}).Info("沙盒空投")
	respondJSON(w, http.StatusOK, h.balances(owner))
}

type sandboxPurchaseResponse struct {
	Success     bool                   `json:"success"`
	Message     string                 `json:"message"`
	TokenAmount uint64                 `json:"tokenAmount"`
	Quote       sale.QuoteResult       `json:"quote"`
	Metadata    model.PurchaseMetadata `json:"metadata"`
	Balances    balancesResponse       `json:"balances"`
	Treasury    uint64                 `json:"treasuryLamports"`
	Custodian   uint64                 `json:"custodianTokens"`
}

type partialFailureResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Error     string `json:"error"`
	Refunded  bool   `json:"refunded"`
	RefundErr string `json:"refundError,omitempty"`
}

// SandboxPurchase 在内存账本上执行购买处理器
func (h *Handler) SandboxPurchase(w http.ResponseWriter, r *http.Request) {
	var req common.SandboxReq
	if err := decodeBody(r, &req); err != nil {
		respondError(w, statusFor(err), "Invalid request", err)
		return
	}

	in, quote, err := parsePurchase(req.WalletAddress, req.SolAmount, req.LockDurationMonths)
	if err != nil {
		respondError(w, statusFor(err), "Invalid purchase parameters", err)
		return
	}

	tokens, err := h.sandbox.Purchase(r.Context(), in.buyer, in.lamports, in.months)
	if err != nil {
		observePurchase(stageFailed, in.months)
		h.events.SendMessage(model.NewFailedMessage(in.buyer.String(), err))

		var partial *sale.PartialFailureError
		if errors.As(err, &partial) {
			resp := partialFailureResponse{
				Message:  "Token transfer failed after payment",
				Error:    partial.Err.Error(),
				Refunded: partial.Refunded,
			}
			if partial.RefundErr != nil {
				resp.RefundErr = partial.RefundErr.Error()
			}
			respondJSON(w, statusFor(err), resp)
			return
		}
		respondError(w, statusFor(err), "Sandbox purchase failed", err)
		return
	}

	now := h.now()
	metadata := model.NewPurchaseMetadata(now, tokens, in.months, h.builder.Config().Realm.String())
	record := model.NewPurchaseRecord(now, in.buyer.String(), in.lamports, tokens, in.months, "")
	record, _ = h.store.Add(record)
	observePurchase(stageSandbox, in.months)
	h.events.SendMessage(model.NewCompletedMessage(record))

	respondJSON(w, http.StatusOK, sandboxPurchaseResponse{
		Success:     true,
		Message:     fmt.Sprintf("Purchased %d tokens", tokens),
		TokenAmount: tokens,
		Quote:       quote,
		Metadata:    metadata,
		Balances:    h.balances(in.buyer),
		Treasury:    h.sandbox.Native.Balance(h.sandbox.Treasury()),
		Custodian:   h.sandbox.CustodianBalance(),
	})
}

// SandboxBalances 查询沙盒余额
func (h *Handler) SandboxBalances(w http.ResponseWriter, r *http.Request) {
	owner, err := solana.PublicKeyFromBase58(mux.Vars(r)["publicKey"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid public key", err)
		return
	}
	respondJSON(w, http.StatusOK, h.balances(owner))
}
