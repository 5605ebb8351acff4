// Package apperr はゲートウェイ全体で共有するエラー分類を提供する。
//
// 各層は自由に fmt.Errorf でラップしてよいが、HTTPレスポンスに変換する際は
// KindOf で分類を取り出し、HTTPStatus でステータスコードに写像する。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind はエラーの分類を表す。
type Kind string

const (
	// KindValidation は入力の不備（ファイル数不足、パラメータ不正など）。
	KindValidation Kind = "ValidationError"
	// KindUnauthenticated はトークンが無い、または検証に失敗したことを表す。
	KindUnauthenticated Kind = "Unauthenticated"
	// KindForbidden はロールが不足していることを表す。
	KindForbidden Kind = "Forbidden"
	// KindConflict は識別子の重複を表す。
	KindConflict Kind = "Conflict"
	// KindWrongPassword は保護解除時のパスワード不一致を表す。
	KindWrongPassword Kind = "WrongPassword"
	// KindExternalTool は外部ツールの異常終了を表す。
	KindExternalTool Kind = "ExternalToolError"
	// KindUnsupported は対応表に存在しない操作種別を表す。
	KindUnsupported Kind = "UnsupportedOperation"
	// KindInternal は想定外の内部エラーを表す。
	KindInternal Kind = "InternalError"
)

// Error は分類付きのエラー。
// Message は呼び出し元にそのまま返してよい文言であり、秘密情報を含めてはならない。
type Error struct {
	// Kind はエラーの分類。
	Kind Kind
	// Message は利用者向けの診断メッセージ。
	Message string
	// Err は原因となったエラー。ログ出力専用でレスポンスには含めない。
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// New は原因を持たない分類付きエラーを生成する。
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap は原因エラーに分類とメッセージを付与する。
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation はKindValidationのエラーを生成する。
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// KindOf はエラーチェーンから分類を取り出す。
// 分類が付与されていないエラーはKindInternalとして扱う。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf は利用者に返してよいメッセージを取り出す。
// 分類されていないエラーの詳細は外部に出さない。
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "内部エラーが発生しました"
}

// HTTPStatus は分類に対応するHTTPステータスコードを返す。
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindUnsupported:
		return http.StatusBadRequest
	case KindUnauthenticated, KindWrongPassword:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
