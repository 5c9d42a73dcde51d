package errors

import (
	stderrors "errors"
	"fmt"
)

// Category sentinels. Every Reject unwraps to exactly one of them.
var (
	ErrInsufficient = stderrors.New("insufficient balance")
	ErrPolicy       = stderrors.New("policy violation")
	ErrMissingData  = stderrors.New("missing data")
	ErrInvalid      = stderrors.New("invalid request")
)

// Code is the machine-checkable reject code surfaced with a failed transaction.
type Code string

const (
	RejectInvalid        Code = "REJECT_INVALID"
	RejectDust           Code = "REJECT_DUST"
	ReadAccountFail      Code = "READ_ACCOUNT_FAIL"
	ReadSysParamFail     Code = "READ_SYS_PARAM_FAIL"
	ReadPricePointFail   Code = "READ_PRICE_POINT_FAIL"
	UpdateAccountFail    Code = "UPDATE_ACCOUNT_FAIL"
	UpdateCdpFail        Code = "UPDATE_CDP_FAIL"
	CdpLiquidateFail     Code = "CDP_LIQUIDATE_FAIL"
	CreateSysOrderFailed Code = "CREATE_SYS_ORDER_FAILED"
	ReadCdpFail          Code = "READ_CDP_FAIL"
	RejectModulePaused   Code = "REJECT_MODULE_PAUSED"
	WriteAccountFail     Code = "WRITE_ACCOUNT_FAIL"
)

// Reject describes why a transaction was refused.
type Reject struct {
	Code     Code
	Reason   string // short kebab-case reason, e.g. "cdp-not-exist"
	Msg      string
	category error
}

func (r *Reject) Error() string {
	if r.Msg == "" {
		return fmt.Sprintf("%s: %s", r.Code, r.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", r.Code, r.Reason, r.Msg)
}

// Unwrap exposes the category sentinel to errors.Is.
func (r *Reject) Unwrap() error { return r.category }

func newReject(category error, code Code, reason, format string, args ...any) *Reject {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Reject{Code: code, Reason: reason, Msg: msg, category: category}
}

// Insufficient builds a reject for a bucket that cannot cover a debit.
func Insufficient(code Code, reason, format string, args ...any) *Reject {
	return newReject(ErrInsufficient, code, reason, format, args...)
}

// Policy builds a reject for a ratio, floor, ceiling or minimum violation.
func Policy(code Code, reason, format string, args ...any) *Reject {
	return newReject(ErrPolicy, code, reason, format, args...)
}

// MissingData builds a reject for unknown records, parameters or prices.
func MissingData(code Code, reason, format string, args ...any) *Reject {
	return newReject(ErrMissingData, code, reason, format, args...)
}

// Invalid builds a reject for malformed input.
func Invalid(code Code, reason, format string, args ...any) *Reject {
	return newReject(ErrInvalid, code, reason, format, args...)
}

// AsReject extracts the Reject carried by err, if any.
func AsReject(err error) (*Reject, bool) {
	var r *Reject
	if stderrors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// ReasonOf returns the reject reason of err or an empty string.
func ReasonOf(err error) string {
	if r, ok := AsReject(err); ok {
		return r.Reason
	}
	return ""
}

// CodeOf returns the reject code of err, defaulting to RejectInvalid for
// plain errors.
func CodeOf(err error) Code {
	if r, ok := AsReject(err); ok {
		return r.Code
	}
	return RejectInvalid
}
