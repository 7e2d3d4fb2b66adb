// Package apperr 定義業務錯誤的分類，讓呼叫端不需要比對錯誤訊息字串就能分辨錯誤種類
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation 請求本身不合法，例如金額不符合出價規則
	KindValidation
	// KindConflict 與目前狀態衝突，例如拍賣已結束、餘額不足、狀態不符
	KindConflict
	KindNotFound
	KindForbidden
	// KindIntegrity 資料完整性異常，需要人工介入
	KindIntegrity
	// KindTimeout 交易逾時已回滾，可安全重試
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindIntegrity:
		return "integrity"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error 帶有分類與對使用者顯示訊息的錯誤
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func Validation(reason string) *Error { return New(KindValidation, reason) }
func Conflict(reason string) *Error   { return New(KindConflict, reason) }
func NotFound(reason string) *Error   { return New(KindNotFound, reason) }
func Forbidden(reason string) *Error  { return New(KindForbidden, reason) }
func Integrity(reason string) *Error  { return New(KindIntegrity, reason) }

// KindOf 取出錯誤鏈上第一個 *Error 的分類
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ReasonOf 取出可以顯示給使用者的訊息，非業務錯誤回傳空字串
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// Is 判斷錯誤是否屬於指定分類
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
