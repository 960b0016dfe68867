package handler

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"
)

// フォームのバリデーションメッセージ
const (
	msgRequired      = "This field is required."
	msgInvalidEmail  = "Invalid email address."
	msgPasswordMatch = "Field must be equal to password."
)

// 入力値の制約
const (
	usernameMinLen = 2
	usernameMaxLen = 20
	passwordMinLen = 6
	titleMaxLen    = 100
	bioMaxLen      = 500
)

// formErrors はフィールド別のエラーメッセージを収集する。
// 同じフィールドには最初のエラーのみを記録する。
type formErrors map[string]string

func (e formErrors) add(field, message string) {
	if _, exists := e[field]; !exists {
		e[field] = message
	}
}

func (e formErrors) required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		e.add(field, msgRequired)
		return false
	}
	return true
}

func (e formErrors) length(field, value string, minLen, maxLen int) {
	n := utf8.RuneCountInString(value)
	switch {
	case minLen > 0 && maxLen > 0 && (n < minLen || n > maxLen):
		e.add(field, fmt.Sprintf("Field must be between %d and %d characters long.", minLen, maxLen))
	case minLen > 0 && n < minLen:
		e.add(field, fmt.Sprintf("Field must be at least %d characters long.", minLen))
	case maxLen > 0 && n > maxLen:
		e.add(field, fmt.Sprintf("Field cannot be longer than %d characters.", maxLen))
	}
}

func (e formErrors) email(field, value string) {
	if !e.required(field, value) {
		return
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		e.add(field, msgInvalidEmail)
	}
}

func (e formErrors) username(field, value string) {
	if e.required(field, value) {
		e.length(field, value, usernameMinLen, usernameMaxLen)
	}
}

// passwordPair は新しいパスワードと確認用パスワードを検証する。
func (e formErrors) passwordPair(password, confirm string) {
	if e.required("password", password) {
		e.length("password", password, passwordMinLen, 0)
	}
	if e.required("confirm_password", confirm) && confirm != password {
		e.add("confirm_password", msgPasswordMatch)
	}
}

// formValues はフォームから指定フィールドの値を取り出す。前後の空白は除去する。
func formValues(form url.Values, fields ...string) map[string]string {
	values := make(map[string]string, len(fields))
	for _, f := range fields {
		values[f] = strings.TrimSpace(form.Get(f))
	}
	return values
}

func validateSignup(v map[string]string, password, confirm string) formErrors {
	errs := formErrors{}
	errs.username("username", v["username"])
	errs.email("email", v["email"])
	errs.passwordPair(password, confirm)
	return errs
}

func validateLogin(v map[string]string, password string) formErrors {
	errs := formErrors{}
	errs.required("username", v["username"])
	errs.required("password", password)
	return errs
}

func validatePost(v map[string]string) formErrors {
	errs := formErrors{}
	if errs.required("title", v["title"]) {
		errs.length("title", v["title"], 1, titleMaxLen)
	}
	errs.required("content", v["content"])
	return errs
}

func validateAccount(v map[string]string) formErrors {
	errs := formErrors{}
	errs.username("username", v["username"])
	errs.email("email", v["email"])
	errs.length("bio", v["bio"], 0, bioMaxLen)
	return errs
}

// safeRedirect はログイン後の遷移先として自サイト内のパスのみを許可する。
func safeRedirect(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return next
}
