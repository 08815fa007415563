package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"token_purchase/internal/chainTx"
	"token_purchase/internal/common"
	"token_purchase/internal/ledger"
	"token_purchase/internal/sale"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Error   string            `json:"error,omitempty"`
	Code    uint32            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		common.Log.WithError(err).Warn("写入响应失败")
	}
}

func respondError(w http.ResponseWriter, code int, message string, err error) {
	resp := errorResponse{Message: message}
	if err != nil {
		resp.Error = err.Error()
		var perr *sale.ProgramError
		if errors.As(err, &perr) {
			resp.Error = perr.Name
			resp.Code = perr.Code
			resp.Message = message + ": " + perr.Msg
		}
	}
	respondJSON(w, code, resp)
}

// statusFor 错误到 HTTP 状态码
func statusFor(err error) int {
	var perr *sale.ProgramError
	var partial *sale.PartialFailureError
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &partial):
		return http.StatusConflict
	case errors.As(err, &perr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, chainTx.ErrTransactionNotFound):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
