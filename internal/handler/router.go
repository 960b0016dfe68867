package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/blogman/internal/metrics"
	"github.com/hitoshi/blogman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	UserLoader     middleware.UserLoader
	RateLimiter    *middleware.RateLimiter
	Logger         *slog.Logger
	CookieSecure   bool
	CookieDomain   string
	UploadMaxBytes int64

	// ページ描画
	UI UI

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 記事
	PostService PostServiceInterface

	// アカウント
	UserService  UserServiceInterface
	PictureStore PictureStore

	// RSS
	RecentPosts   RecentPostLister
	FeedItemLimit int

	// 運用
	DB              Pinger
	MetricsGatherer http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestSize → Recovery → SecurityHeaders → Metrics → Session → Logging → RateLimit(General) → CSRF
//
// /health と /metrics はセッションやCSRFを経由しない。
// 405ページもCSRF検証を経由せずに返す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	if deps.UploadMaxBytes > 0 {
		r.Use(chimw.RequestSize(deps.UploadMaxBytes))
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(metrics.NewHTTPMiddleware(deps.UI.Metrics))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.UI)
	postHandler := NewPostHandler(deps.PostService, deps.UI)
	userHandler := NewUserHandler(deps.UserService, deps.UI)
	pictureHandler := NewPictureHandler(deps.PictureStore)
	feedHandler := NewFeedHandler(deps.RecentPosts, deps.AuthConfig.BaseURL, deps.FeedItemLimit)
	healthHandler := NewHealthHandler(deps.DB)
	fallback := newPages(deps.UI)

	// 405はCSRF検証より前に判定する。ページ描画にログインユーザーが要るためセッションのみ通す
	r.MethodNotAllowed(middleware.NewSessionMiddleware(deps.UserLoader)(http.HandlerFunc(fallback.MethodNotAllowed)).ServeHTTP)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsGatherer)
	}

	// --- 画面 ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.UserLoader))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(middleware.CSRFConfig{
			CookieSecure: deps.CookieSecure,
			CookieDomain: deps.CookieDomain,
		}))

		r.NotFound(fallback.NotFound)

		requireLogin := middleware.RequireLogin(deps.UI.Flashes)

		// 公開ページ
		r.Get("/", postHandler.Index)
		r.Get("/index", postHandler.Index)
		r.Get("/post/{id}", postHandler.ShowPost)
		r.Get("/avatar/{file}", pictureHandler.Avatar)
		r.Get("/image_cover/{file}", pictureHandler.ImageCover)
		r.Get("/feed.xml", feedHandler.Feed)
		r.Post("/logout", authHandler.Logout)

		// 認証フォーム（送信時のみ認証用レート制限を追加）
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())

			r.Get("/signup", authHandler.SignupForm)
			r.Post("/signup", authHandler.Signup)
			r.Get("/login", authHandler.LoginForm)
			r.Post("/login", authHandler.Login)
			r.Get("/reset_password", authHandler.ResetRequestForm)
			r.Post("/reset_password", authHandler.ResetRequest)
			r.Get("/reset_password/{token}", authHandler.ResetPasswordForm)
			r.Post("/reset_password/{token}", authHandler.ResetPassword)
		})

		// ログイン必須
		r.Group(func(r chi.Router) {
			r.Use(requireLogin)

			r.Get("/admin", postHandler.Admin)
			r.Get("/account", userHandler.AccountForm)
			r.Post("/account", userHandler.UpdateAccount)
			r.Get("/post/new", postHandler.NewPostForm)
			r.Post("/post/new", postHandler.CreatePost)
			r.Post("/post/{id}", postHandler.AddComment)
			r.Get("/post/{id}/update", postHandler.EditPostForm)
			r.Post("/post/{id}/update", postHandler.UpdatePost)
			r.Post("/post/{id}/delete", postHandler.DeletePost)
		})
	})

	return r
}
