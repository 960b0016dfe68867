package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/blogman/internal/auth"
	"github.com/hitoshi/blogman/internal/metrics"
	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
)

// 認証フローのフラッシュメッセージ
const (
	flashSignedUp       = "Your account has been created. You are now able to login."
	flashResetMailSent  = "An email has been sent with instructions to reset your password"
	flashResetMailError = "We could not send the reset email right now. Please try again later."
	flashInvalidToken   = "This is an invalid or expired token!"
	flashPasswordReset  = "Your password has been updated. You are now able to login"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, in auth.SignupInput) (*model.User, error)
	Login(ctx context.Context, username, password string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	RequestPasswordReset(ctx context.Context, email string, resetURL func(token string) string) error
	VerifyResetToken(ctx context.Context, token string) (*model.User, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はユーザー登録・ログイン・パスワードリセットのHTTPハンドラー。
type AuthHandler struct {
	*pages
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, ui UI) *AuthHandler {
	return &AuthHandler{
		pages:   newPages(ui),
		service: service,
		config:  config,
	}
}

// SignupForm は登録フォームを表示する。
// GET /signup
func (h *AuthHandler) SignupForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "sign_up.html", h.newPage(w, r, "Sign Up"))
}

// Signup はユーザーを登録し、ログインページへリダイレクトする。
// POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	values := formValues(r.PostForm, "username", "email")
	password := r.PostFormValue("password")

	errs := validateSignup(values, password, r.PostFormValue("confirm_password"))
	if len(errs) == 0 {
		_, err := h.service.Signup(r.Context(), auth.SignupInput{
			Username: values["username"],
			Email:    values["email"],
			Password: password,
		})
		if err == nil {
			h.metrics.RecordSignup()
			h.redirectWithFlash(w, r, middleware.FlashInfo, flashSignedUp, "/login")
			return
		}
		fields, ok := validationFields(err)
		if !ok {
			h.handleServiceError(w, r, err)
			return
		}
		errs = fields
	}

	page := h.newPage(w, r, "Sign Up")
	page.Form = values
	page.Errors = errs
	h.render(w, http.StatusUnprocessableEntity, "sign_up.html", page)
}

// LoginForm はログインフォームを表示する。
// GET /login
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	page := h.newPage(w, r, "Log In")
	page.Form["next"] = r.URL.Query().Get("next")
	h.render(w, http.StatusOK, "log_in.html", page)
}

// Login はユーザー名とパスワードでログインし、セッションCookieを設定する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	values := formValues(r.PostForm, "username", "next")
	password := r.PostFormValue("password")

	page := h.newPage(w, r, "Log In")
	page.Form = values

	if errs := validateLogin(values, password); len(errs) > 0 {
		page.Errors = errs
		h.render(w, http.StatusUnprocessableEntity, "log_in.html", page)
		return
	}

	session, err := h.service.Login(r.Context(), values["username"], password)
	if err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCredentials {
			h.handleServiceError(w, r, err)
			return
		}
		h.metrics.RecordLogin(metrics.ResultFailure)
		page.Flashes = append(page.Flashes, middleware.Flash{Category: middleware.FlashAlert, Message: apiErr.Message})
		h.render(w, http.StatusUnauthorized, "log_in.html", page)
		return
	}

	h.metrics.RecordLogin(metrics.ResultSuccess)
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, safeRedirect(values["next"]), http.StatusSeeOther)
}

// Logout はセッションを破棄してトップページへリダイレクトする。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ResetRequestForm はリセットメール送信フォームを表示する。
// GET /reset_password
func (h *AuthHandler) ResetRequestForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "reset_request.html", h.newPage(w, r, "Reset Password"))
}

// ResetRequest はパスワードリセットメールを送信し、ログインページへリダイレクトする。
// 未登録のメールアドレスでも同じ応答を返す。
// POST /reset_password
func (h *AuthHandler) ResetRequest(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	values := formValues(r.PostForm, "email")

	errs := formErrors{}
	errs.email("email", values["email"])
	if len(errs) > 0 {
		page := h.newPage(w, r, "Reset Password")
		page.Form = values
		page.Errors = errs
		h.render(w, http.StatusUnprocessableEntity, "reset_request.html", page)
		return
	}

	err := h.service.RequestPasswordReset(r.Context(), values["email"], h.resetURL)
	switch {
	case err == nil:
		h.metrics.RecordResetMail(metrics.ResultSuccess)
		h.redirectWithFlash(w, r, middleware.FlashInfo, flashResetMailSent, "/login")
	case errors.Is(err, model.ErrMailDelivery):
		h.metrics.RecordResetMail(metrics.ResultFailure)
		h.redirectWithFlash(w, r, middleware.FlashAlert, flashResetMailError, "/login")
	default:
		h.handleServiceError(w, r, err)
	}
}

// ResetPasswordForm はトークンを検証して新しいパスワードの入力フォームを表示する。
// GET /reset_password/{token}
func (h *AuthHandler) ResetPasswordForm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if !h.requireValidToken(w, r, token) {
		return
	}

	page := h.newPage(w, r, "Reset Password")
	page.Data = token
	h.render(w, http.StatusOK, "reset_password.html", page)
}

// ResetPassword は新しいパスワードを設定し、ログインページへリダイレクトする。
// POST /reset_password/{token}
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if !h.requireValidToken(w, r, token) || !h.parseForm(w, r) {
		return
	}

	password := r.PostFormValue("password")
	errs := formErrors{}
	errs.passwordPair(password, r.PostFormValue("confirm_password"))
	if len(errs) > 0 {
		page := h.newPage(w, r, "Reset Password")
		page.Data = token
		page.Errors = errs
		h.render(w, http.StatusUnprocessableEntity, "reset_password.html", page)
		return
	}

	err := h.service.ResetPassword(r.Context(), token, password)
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, middleware.FlashInfo, flashPasswordReset, "/login")
	case errors.Is(err, auth.ErrInvalidResetToken):
		h.redirectWithFlash(w, r, middleware.FlashAlert, flashInvalidToken, "/reset_password")
	default:
		h.handleServiceError(w, r, err)
	}
}

// requireValidToken はトークンが無効な場合にリセット要求ページへリダイレクトしてfalseを返す。
func (h *AuthHandler) requireValidToken(w http.ResponseWriter, r *http.Request, token string) bool {
	user, err := h.service.VerifyResetToken(r.Context(), token)
	if err != nil {
		h.handleServiceError(w, r, err)
		return false
	}
	if user == nil {
		h.redirectWithFlash(w, r, middleware.FlashAlert, flashInvalidToken, "/reset_password")
		return false
	}
	return true
}

// resetURL はリセットメールに記載する絶対URLを組み立てる。
func (h *AuthHandler) resetURL(token string) string {
	return strings.TrimRight(h.config.BaseURL, "/") + "/reset_password/" + url.PathEscape(token)
}
