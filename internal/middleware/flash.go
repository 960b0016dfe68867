package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
)

// フラッシュメッセージのカテゴリ。テンプレートのCSSクラスにも使われる。
const (
	FlashInfo  = "info"
	FlashAlert = "alert"
)

const flashSessionName = "blogman_flash"

// Flash は次のリクエストで1度だけ表示するメッセージ。
type Flash struct {
	Category string
	Message  string
}

// FlashConfig はフラッシュ用Cookieの設定。
type FlashConfig struct {
	Secret       []byte
	CookieSecure bool
	CookieDomain string
}

// Flashes は署名付きCookieにフラッシュメッセージを保存する。
type Flashes struct {
	store sessions.Store
}

// NewFlashes はgorilla/sessionsのCookieStoreを使うFlashesを生成する。
func NewFlashes(config FlashConfig) *Flashes {
	store := sessions.NewCookieStore(config.Secret)
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   0,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Flashes{store: store}
}

// Add はフラッシュメッセージを追加する。レスポンスボディを書き込む前に呼ぶ必要がある。
func (f *Flashes) Add(w http.ResponseWriter, r *http.Request, category, message string) {
	session, err := f.store.Get(r, flashSessionName)
	if err != nil {
		// 署名が不正なCookieは破棄して新しいセッションを使う
		slog.Debug("discarding invalid flash cookie", slog.String("error", err.Error()))
	}
	session.AddFlash(message, category)
	if err := session.Save(r, w); err != nil {
		slog.Error("failed to save flash message", slog.String("error", err.Error()))
	}
}

// Pop は保存されているフラッシュメッセージを取り出して削除する。
func (f *Flashes) Pop(w http.ResponseWriter, r *http.Request) []Flash {
	session, err := f.store.Get(r, flashSessionName)
	if err != nil || session.IsNew {
		return nil
	}

	var flashes []Flash
	for _, category := range []string{FlashInfo, FlashAlert} {
		for _, v := range session.Flashes(category) {
			if msg, ok := v.(string); ok {
				flashes = append(flashes, Flash{Category: category, Message: msg})
			}
		}
	}
	if len(flashes) == 0 {
		return nil
	}
	if err := session.Save(r, w); err != nil {
		slog.Error("failed to clear flash messages", slog.String("error", err.Error()))
	}
	return flashes
}
