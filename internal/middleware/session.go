// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/blogman/internal/model"
)

// SessionCookieName はログインセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// LoginRequiredMessage は未ログインで保護ページにアクセスした際のフラッシュメッセージ。
const LoginRequiredMessage = "Please log in to access this page."

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userContextKey      = contextKey("user")
	csrfTokenContextKey = contextKey("csrf_token")
)

// UserLoader はセッションIDから現在のユーザーを取得するインターフェース。
// auth.Serviceが実装する。セッションが無効な場合はnil, nilを返す。
type UserLoader interface {
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// ログイン中のユーザーをリクエストコンテキストに注入するミドルウェアを返す。
// 未ログインのリクエストはそのまま通過させる。ログインの要否はRequireLoginで判定する。
func NewSessionMiddleware(loader UserLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := loader.GetCurrentUser(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to load session user",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if user == nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// RequireLogin は未ログインのリクエストをログインページへリダイレクトするミドルウェアを返す。
// 元のパスはnextクエリパラメータで引き継ぐ。
func RequireLogin(flashes *Flashes) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := UserFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			if flashes != nil {
				flashes.Add(w, r, FlashInfo, LoginRequiredMessage)
			}
			target := "/login?next=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusSeeOther)
		})
	}
}

// UserFromContext はリクエストコンテキストからログイン中のユーザーを取得する。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

// UserIDFromContext はログイン中のユーザーIDを返す。未ログインなら空文字列。
func UserIDFromContext(ctx context.Context) string {
	if user, ok := UserFromContext(ctx); ok {
		return user.ID
	}
	return ""
}

// ContextWithUser はコンテキストにユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
