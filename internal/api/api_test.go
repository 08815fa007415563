package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"token_purchase/internal/chainTx"
	"token_purchase/internal/common"
	"token_purchase/internal/ledger"
	"token_purchase/internal/model"
	"token_purchase/internal/sale"
	"token_purchase/internal/store"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC)

type fakeBuilder struct {
	cfg          chainTx.Config
	buildErr     error
	verifyErr    error
	recordErr    error
	mu           sync.Mutex
	completions  []string
	verifiedSigs []string
}

func (f *fakeBuilder) Config() chainTx.Config {
	return f.cfg
}

func (f *fakeBuilder) BuildPurchase(_ context.Context, buyer solana.PublicKey, lamports uint64, months uint8) (*chainTx.PurchaseTx, error) {
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	quote, err := sale.Quote(lamports, months)
	if err != nil {
		return nil, err
	}
	return &chainTx.PurchaseTx{Encoded: "c2lnbmVkLWJ5LWN1c3RvZGlhbg==", Quote: quote}, nil
}

func (f *fakeBuilder) RecordCompletion(_ context.Context, _ solana.PublicKey, _ uint64, _ uint8, sig string) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, sig)
	return solana.Signature{}, f.recordErr
}

func (f *fakeBuilder) VerifyTransaction(_ context.Context, sig string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifiedSigs = append(f.verifiedSigs, sig)
	return f.verifyErr
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*model.QueueMessage
}

func (p *fakePublisher) SendMessage(msg *model.QueueMessage) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return true
}

type testServer struct {
	router  http.Handler
	builder *fakeBuilder
	events  *fakePublisher
	store   *store.PurchaseStore
	sandbox *ledger.Sandbox
}

func newTestServer(t *testing.T, withSandbox bool) *testServer {
	t.Helper()
	ts := &testServer{
		builder: &fakeBuilder{cfg: chainTx.Config{
			ProgramID: solana.MustPublicKeyFromBase58(common.DEFAULT_PROGRAM_ID),
			Treasury:  solana.MustPublicKeyFromBase58(common.DEFAULT_TREASURY_ADDRESS),
			Realm:     solana.MustPublicKeyFromBase58(common.DEFAULT_REALM_ID),
		}},
		events: &fakePublisher{},
		store:  store.NewPurchaseStore(),
	}

	opts := []Option{WithClock(func() time.Time { return fixedNow })}
	if withSandbox {
		sb, err := ledger.NewSandbox(
			solana.NewWallet().PublicKey(),
			ts.builder.cfg.Treasury,
			solana.MustPublicKeyFromBase58(common.DEFAULT_COMMUNITY_MINT),
			1_000,
		)
		require.NoError(t, err)
		ts.sandbox = sb
		opts = append(opts, WithSandbox(sb))
	}

	ts.router = NewRouter(NewHandler(ts.builder, ts.store, ts.events, opts...), nil)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestCreatePurchaseTransaction(t *testing.T) {
	ts := newTestServer(t, false)
	wallet := solana.NewWallet().PublicKey().String()

	rec, out := ts.do(t, http.MethodPost, "/api/create-purchase-transaction", map[string]interface{}{
		"walletAddress":      wallet,
		"solAmount":          "1",
		"lockDurationMonths": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "pending", out["txid"])
	assert.Equal(t, "c2lnbmVkLWJ5LWN1c3RvZGlhbg==", out["transaction"])

	metadata := out["metadata"].(map[string]interface{})
	assert.Equal(t, float64(102), metadata["tokenAmount"])
	assert.Equal(t, true, metadata["isLocked"])
	assert.Equal(t, common.DEFAULT_REALM_ID, metadata["realmId"])
	assert.Equal(t, "2025-02-15T12:00:00Z", metadata["unlockDate"])

	require.Len(t, ts.events.msgs, 1)
	assert.Equal(t, model.MessageTypePurchaseCreated, ts.events.msgs[0].Type)
	assert.Equal(t, wallet, ts.events.msgs[0].WalletAddress)
}

func TestCreatePurchaseTransactionErrors(t *testing.T) {
	wallet := solana.NewWallet().PublicKey().String()

	tests := []struct {
		name     string
		body     interface{}
		buildErr error
		wantCode int
		wantErr  string
	}{
		{name: "JSON格式错误", body: "{", wantCode: http.StatusBadRequest},
		{name: "缺少钱包", body: map[string]interface{}{"solAmount": "1", "lockDurationMonths": 1}, wantCode: http.StatusBadRequest},
		{name: "缺少锁仓期", body: map[string]interface{}{"walletAddress": wallet, "solAmount": "1"}, wantCode: http.StatusBadRequest},
		{name: "钱包地址无效", body: map[string]interface{}{"walletAddress": "xyz", "solAmount": "1", "lockDurationMonths": 1}, wantCode: http.StatusBadRequest},
		{name: "小数位过多", body: map[string]interface{}{"walletAddress": wallet, "solAmount": "0.0000000001", "lockDurationMonths": 1}, wantCode: http.StatusBadRequest},
		{name: "非法锁仓期", body: map[string]interface{}{"walletAddress": wallet, "solAmount": "1", "lockDurationMonths": 2}, wantCode: http.StatusUnprocessableEntity, wantErr: "InvalidLockDuration"},
		{name: "锁仓期越界", body: map[string]interface{}{"walletAddress": wallet, "solAmount": "1", "lockDurationMonths": 300}, wantCode: http.StatusUnprocessableEntity, wantErr: "InvalidLockDuration"},
		{name: "金额为0", body: map[string]interface{}{"walletAddress": wallet, "solAmount": "0", "lockDurationMonths": 1}, wantCode: http.StatusUnprocessableEntity, wantErr: "InvalidAmount"},
		{name: "托管余额不足", body: map[string]interface{}{"walletAddress": wallet, "solAmount": "1", "lockDurationMonths": 1}, buildErr: sale.ErrInsufficientTreasuryBalance, wantCode: http.StatusUnprocessableEntity, wantErr: "InsufficientTreasuryBalance"},
		{name: "RPC失败", body: map[string]interface{}{"walletAddress": wallet, "solAmount": "1", "lockDurationMonths": 1}, buildErr: errors.New("rpc down"), wantCode: http.StatusInternalServerError, wantErr: "rpc down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, false)
			ts.builder.buildErr = tt.buildErr

			rec, out := ts.do(t, http.MethodPost, "/api/create-purchase-transaction", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, false, out["success"])
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, out["error"])
			}
			if tt.wantCode == http.StatusInternalServerError {
				details := out["details"].(map[string]interface{})
				assert.Equal(t, common.DEFAULT_PROGRAM_ID, details["programId"])
			}
		})
	}
}

func TestCompletePurchase(t *testing.T) {
	ts := newTestServer(t, false)
	wallet := solana.NewWallet().PublicKey().String()
	body := map[string]interface{}{
		"walletAddress":        wallet,
		"solAmount":            "0.5",
		"lockDurationMonths":   6,
		"transactionSignature": "5sig",
	}

	rec, out := ts.do(t, http.MethodPost, "/api/complete-purchase", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Purchase completion recorded", out["message"])
	assert.Equal(t, true, out["verified"])
	assert.Equal(t, true, out["recorded"])

	record := out["purchaseRecord"].(map[string]interface{})
	assert.Equal(t, float64(56), record["amount"])
	assert.Equal(t, float64(500_000_000), record["lamports"])
	assert.Equal(t, wallet, record["userPublicKey"])
	assert.Equal(t, "2025-07-15T12:00:00Z", record["unlockDate"])
	assert.Equal(t, []string{"5sig"}, ts.builder.completions)
	assert.Equal(t, []string{"5sig"}, ts.builder.verifiedSigs)

	require.Len(t, ts.events.msgs, 1)
	assert.Equal(t, model.MessageTypePurchaseCompleted, ts.events.msgs[0].Type)

	// 重复通知不会产生第二条记录
	rec, out = ts.do(t, http.MethodPost, "/api/complete-purchase", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Purchase already recorded", out["message"])
	assert.Equal(t, record["id"], out["purchaseRecord"].(map[string]interface{})["id"])
	assert.Len(t, ts.events.msgs, 1)

	rec, out = ts.do(t, http.MethodGet, "/api/purchase-status/"+wallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["purchases"], 1)
}

func TestCompletePurchaseContinuesOnChainFailure(t *testing.T) {
	ts := newTestServer(t, false)
	ts.builder.verifyErr = errors.New("rpc timeout")
	ts.builder.recordErr = errors.New("program unavailable")

	rec, out := ts.do(t, http.MethodPost, "/api/complete-purchase", map[string]interface{}{
		"walletAddress":        solana.NewWallet().PublicKey().String(),
		"solAmount":            "1",
		"lockDurationMonths":   12,
		"transactionSignature": "sig",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["verified"])
	assert.Equal(t, false, out["recorded"])
	assert.Equal(t, float64(125), out["purchaseRecord"].(map[string]interface{})["amount"])
	assert.Equal(t, 1, ts.store.Count())
}

func TestCompletePurchaseRejectsMissingTransaction(t *testing.T) {
	ts := newTestServer(t, false)
	ts.builder.verifyErr = fmt.Errorf("查询交易: %w", chainTx.ErrTransactionNotFound)

	rec, out := ts.do(t, http.MethodPost, "/api/complete-purchase", map[string]interface{}{
		"walletAddress":        solana.NewWallet().PublicKey().String(),
		"solAmount":            "1000",
		"lockDurationMonths":   12,
		"transactionSignature": "fabricated",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Transaction not found on-chain", out["message"])
	assert.Zero(t, ts.store.Count())
	assert.Empty(t, ts.builder.completions)
	assert.Empty(t, ts.events.msgs)
}

func TestCompletePurchaseValidation(t *testing.T) {
	ts := newTestServer(t, false)
	wallet := solana.NewWallet().PublicKey().String()

	rec, _ := ts.do(t, http.MethodPost, "/api/complete-purchase", map[string]interface{}{
		"walletAddress": wallet, "solAmount": "1", "lockDurationMonths": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out := ts.do(t, http.MethodPost, "/api/complete-purchase", map[string]interface{}{
		"walletAddress": wallet, "solAmount": "1", "lockDurationMonths": 5, "transactionSignature": "sig",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, float64(6000), out["code"])
	assert.Zero(t, ts.store.Count())
	assert.Empty(t, ts.builder.completions)
}

func TestPurchaseStatusInvalidKey(t *testing.T) {
	ts := newTestServer(t, false)
	rec, out := ts.do(t, http.MethodGet, "/api/purchase-status/not-a-key", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, out["success"])

	rec, out = ts.do(t, http.MethodGet, "/api/purchase-status/"+solana.NewWallet().PublicKey().String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, out["purchases"])
}

func TestQuote(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantCode   int
		wantTokens float64
		wantLocked bool
	}{
		{name: "1 SOL 锁12个月", query: "solAmount=1&lockDurationMonths=12", wantCode: http.StatusOK, wantTokens: 125, wantLocked: true},
		{name: "0.5 SOL 锁6个月", query: "solAmount=0.5&lockDurationMonths=6", wantCode: http.StatusOK, wantTokens: 56, wantLocked: true},
		{name: "1 lamport", query: "solAmount=0.000000001&lockDurationMonths=3", wantCode: http.StatusOK, wantTokens: 0, wantLocked: false},
		{name: "非法锁仓期", query: "solAmount=1&lockDurationMonths=2", wantCode: http.StatusUnprocessableEntity},
		{name: "锁仓期不是数字", query: "solAmount=1&lockDurationMonths=x", wantCode: http.StatusUnprocessableEntity},
		{name: "金额为0", query: "solAmount=0&lockDurationMonths=1", wantCode: http.StatusUnprocessableEntity},
		{name: "金额格式错误", query: "solAmount=abc&lockDurationMonths=1", wantCode: http.StatusBadRequest},
	}

	ts := newTestServer(t, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := ts.do(t, http.MethodGet, "/api/quote?"+tt.query, nil)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}
			quote := out["quote"].(map[string]interface{})
			assert.Equal(t, tt.wantTokens, quote["totalTokens"])
			assert.Equal(t, tt.wantLocked, out["isLocked"])
		})
	}
}

func TestSandboxPurchaseFlow(t *testing.T) {
	ts := newTestServer(t, true)
	wallet := solana.NewWallet().PublicKey().String()

	rec, out := ts.do(t, http.MethodPost, "/api/sandbox/airdrop", map[string]interface{}{
		"walletAddress": wallet,
		"solAmount":     "2",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2_000_000_000), out["lamports"])

	rec, out = ts.do(t, http.MethodPost, "/api/sandbox/purchase", map[string]interface{}{
		"walletAddress":      wallet,
		"solAmount":          "1",
		"lockDurationMonths": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(102), out["tokenAmount"])
	assert.Equal(t, float64(1_000_000_000), out["treasuryLamports"])
	assert.Equal(t, float64(898), out["custodianTokens"])
	balances := out["balances"].(map[string]interface{})
	assert.Equal(t, float64(1_000_000_000), balances["lamports"])
	assert.Equal(t, float64(102), balances["tokens"])

	rec, out = ts.do(t, http.MethodGet, "/api/sandbox/balances/"+wallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", out["sol"])
	assert.Equal(t, float64(102), out["tokens"])

	// 沙盒购买同样进入购买历史
	rec, out = ts.do(t, http.MethodGet, "/api/purchase-status/"+wallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	purchases := out["purchases"].([]interface{})
	require.Len(t, purchases, 1)
	purchase := purchases[0].(map[string]interface{})
	assert.Equal(t, float64(102), purchase["amount"])
	assert.Equal(t, float64(1_000_000_000), purchase["lamports"])
	assert.Equal(t, "", purchase["transactionSignature"])

	require.Len(t, ts.events.msgs, 1)
	assert.Equal(t, model.MessageTypePurchaseCompleted, ts.events.msgs[0].Type)
}

func TestSandboxPurchaseFailures(t *testing.T) {
	ts := newTestServer(t, true)
	wallet := solana.NewWallet().PublicKey()

	// 没有余额：原生币转账失败，代币不动
	rec, _ := ts.do(t, http.MethodPost, "/api/sandbox/purchase", map[string]interface{}{
		"walletAddress": wallet.String(), "solAmount": "1", "lockDurationMonths": 1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, uint64(1_000), ts.sandbox.CustodianBalance())

	// 托管代币不足：原生币已转入国库后代币转账失败，沙盒退款
	require.NoError(t, ts.sandbox.Airdrop(wallet, 100_000_000_000))
	rec, out := ts.do(t, http.MethodPost, "/api/sandbox/purchase", map[string]interface{}{
		"walletAddress": wallet.String(), "solAmount": "20", "lockDurationMonths": 12,
	})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["refunded"])
	lamports, tokens := ts.sandbox.Balances(wallet)
	assert.Equal(t, uint64(100_000_000_000), lamports)
	assert.Zero(t, tokens)

	require.Len(t, ts.events.msgs, 2)
	assert.Equal(t, model.MessageTypePurchaseFailed, ts.events.msgs[1].Type)
	assert.Zero(t, ts.store.Count())
}

func TestSandboxDisabled(t *testing.T) {
	ts := newTestServer(t, false)
	rec, _ := ts.do(t, http.MethodGet, "/api/sandbox/balances/"+solana.NewWallet().PublicKey().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, false)

	tests := []struct {
		name          string
		requestMethod string
		wantStatus    int
	}{
		{"允许的方法", http.MethodPost, http.StatusNoContent},
		{"不允许的方法", http.MethodDelete, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/create-purchase-transaction", nil)
			req.Header.Set("Origin", "https://app.example.com")
			req.Header.Set("Access-Control-Request-Method", tt.requestMethod)
			req.Header.Set("Access-Control-Request-Headers", "Content-Type")
			rec := httptest.NewRecorder()
			ts.router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusNoContent {
				assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
				assert.Zero(t, rec.Body.Len())
			}
		})
	}
}

func TestCORSSimpleRequest(t *testing.T) {
	ts := newTestServer(t, false)
	req := httptest.NewRequest(http.MethodGet, "/api/quote?solAmount=1&lockDurationMonths=1", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, false)
	rec, out := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])

	ts.do(t, http.MethodGet, "/api/quote?solAmount=1&lockDurationMonths=1", nil)
	rec, _ = ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `purchase_http_requests_total{endpoint="/api/quote",method="GET",status="200"}`)
}
