// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, post, system
	Action   string            // ユーザー向け対処方法
	Fields   map[string]string // バリデーションエラー時のフィールド別メッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodePostNotFound       = "POST_NOT_FOUND"
	ErrCodePageNotFound       = "PAGE_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
)

// データ整合性エラー。
// 記事の作成者Stateが欠落・重複している状態は黙って無視せず、ログに記録して500として扱う。
var (
	ErrAuthorshipMissing    = errors.New("authorship state is missing for post")
	ErrAuthorshipDuplicated = errors.New("authorship state is duplicated for post")
)

// ErrMailDelivery はメール送信の失敗を表す。
// 処理自体は継続し、ユーザーにはメッセージで通知する。
var ErrMailDelivery = errors.New("mail delivery failed")

// IsIntegrityError はerrがデータ整合性エラーかどうかを判定する。
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrAuthorshipMissing) || errors.Is(err, ErrAuthorshipDuplicated)
}

// NewPostNotFoundError は記事未検出エラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("post not found: %s", postID),
		Category: "post",
		Action:   "Check the post link and try again.",
	}
}

// NewPageNotFoundError は記事一覧の範囲外ページ指定エラーを生成する。
func NewPageNotFoundError(page int) *APIError {
	return &APIError{
		Code:     ErrCodePageNotFound,
		Message:  fmt.Sprintf("page %d does not exist", page),
		Category: "post",
		Action:   "Go back to the first page.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "user not found",
		Category: "auth",
		Action:   "Please log in again.",
	}
}

// NewForbiddenError は作成者以外による記事の変更操作エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "you are not allowed to modify this post",
		Category: "auth",
		Action:   "Only the author of a post can update or delete it.",
	}
}

// NewValidationError はフォーム入力のバリデーションエラーを生成する。
// fieldsにはフィールド名ごとのエラーメッセージを指定する。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "the submitted form is invalid",
		Category: "validation",
		Action:   "Correct the highlighted fields and submit again.",
		Fields:   fields,
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// ユーザー名とパスワードのどちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "You logged in fail. Please try again!",
		Category: "auth",
		Action:   "Check your username and password.",
	}
}

// NewUnsupportedFileError は許可されていない拡張子の画像アップロードエラーを生成する。
func NewUnsupportedFileError(field, ext string) *APIError {
	return NewValidationError(map[string]string{
		field: fmt.Sprintf("file type %q is not allowed (jpg, jpeg, png)", ext),
	})
}
