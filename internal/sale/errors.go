package sale

import (
	"errors"
	"fmt"
)

// ProgramError 购买程序的错误类型，Code 与链上程序的自定义错误码一致
type ProgramError struct {
	Code uint32
	Name string
	Msg  string
}

func (e *ProgramError) Error() string {
	return e.Msg
}

// 链上自定义错误码从 6000 开始
const customErrorBase = 6000

var (
	ErrInvalidLockDuration = &ProgramError{Code: customErrorBase, Name: "InvalidLockDuration", Msg: "invalid lock duration: must be 1, 3, 6, or 12 months"}
	ErrInvalidAmount       = &ProgramError{Code: customErrorBase + 1, Name: "InvalidAmount", Msg: "invalid amount: amount must be greater than 0"}
	// ErrInsufficientTreasuryBalance 处理器自身从不返回，由交易构造的余额预检使用
	ErrInsufficientTreasuryBalance = &ProgramError{Code: customErrorBase + 2, Name: "InsufficientTreasuryBalance", Msg: "insufficient token balance in treasury"}
)

var programErrors = []*ProgramError{ErrInvalidLockDuration, ErrInvalidAmount, ErrInsufficientTreasuryBalance}

// ErrorFromCode 根据自定义错误码找到对应错误，未知返回 nil
func ErrorFromCode(code uint32) error {
	for _, e := range programErrors {
		if e.Code == code {
			return e
		}
	}
	return nil
}

// 平台层面的账户检查错误
var (
	ErrMissingSignature     = errors.New("missing required signature")
	ErrTokenAccountMismatch = errors.New("token account is not the associated account of its owner")
)

// PartialFailureError 原生转账已提交但代币转账失败
type PartialFailureError struct {
	Buyer     string
	Lamports  uint64
	Refunded  bool
	Err       error
	RefundErr error
}

func (e *PartialFailureError) Error() string {
	switch {
	case e.Refunded:
		return fmt.Sprintf("token transfer failed, %d lamports refunded to %s: %v", e.Lamports, e.Buyer, e.Err)
	case e.RefundErr != nil:
		return fmt.Sprintf("token transfer failed and refund of %d lamports to %s failed (%v): %v", e.Lamports, e.Buyer, e.RefundErr, e.Err)
	default:
		return fmt.Sprintf("token transfer failed after %d lamports were paid by %s: %v", e.Lamports, e.Buyer, e.Err)
	}
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}
