package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// cors 放行所有来源，预检请求直接返回 204
func cors() mux.MiddlewareFunc {
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.OptionStatusCode(http.StatusNoContent),
	)
}

// NewRouter 注册全部路由。hub 为空时不提供 WebSocket 推送
func NewRouter(h *Handler, hub http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(cors())

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	if hub != nil {
		r.Handle("/ws/purchases", hub).Methods(http.MethodGet)
	}

	routes := r.PathPrefix("/api").Subrouter()
	routes.Use(instrument)
	routes.HandleFunc("/create-purchase-transaction", h.CreatePurchaseTransaction).Methods(http.MethodPost, http.MethodOptions)
	routes.HandleFunc("/complete-purchase", h.CompletePurchase).Methods(http.MethodPost, http.MethodOptions)
	routes.HandleFunc("/purchase-status/{publicKey}", h.PurchaseStatus).Methods(http.MethodGet, http.MethodOptions)
	routes.HandleFunc("/quote", h.Quote).Methods(http.MethodGet, http.MethodOptions)

	if h.sandbox != nil {
		sandbox := routes.PathPrefix("/sandbox").Subrouter()
		sandbox.HandleFunc("/airdrop", h.SandboxAirdrop).Methods(http.MethodPost, http.MethodOptions)
		sandbox.HandleFunc("/purchase", h.SandboxPurchase).Methods(http.MethodPost, http.MethodOptions)
		sandbox.HandleFunc("/balances/{publicKey}", h.SandboxBalances).Methods(http.MethodGet, http.MethodOptions)
	}
	return r
}
