// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/blogman/internal/metrics"
	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/view"
)

// Renderer はHTMLページを描画するインターフェース。
type Renderer interface {
	Render(w http.ResponseWriter, status int, name string, data *view.Page) error
}

// UI はページ描画・フラッシュメッセージ・メトリクスの依存関係をまとめた構造体。
type UI struct {
	Renderer Renderer
	Flashes  *middleware.Flashes
	Metrics  metrics.MetricsCollector
}

// pages はページ描画とフラッシュメッセージを扱う各ハンドラー共通の部品。
type pages struct {
	renderer Renderer
	flashes  *middleware.Flashes
	metrics  metrics.MetricsCollector
}

func newPages(ui UI) *pages {
	return &pages{
		renderer: ui.Renderer,
		flashes:  ui.Flashes,
		metrics:  ui.Metrics,
	}
}

// newPage はリクエストから共通データを詰めたページを生成する。
// フラッシュメッセージはここで取り出されるため、レスポンスボディを書き込む前に呼ぶ。
func (p *pages) newPage(w http.ResponseWriter, r *http.Request, title string) *view.Page {
	user, _ := middleware.UserFromContext(r.Context())
	return &view.Page{
		Title:       title,
		CurrentUser: user,
		Flashes:     p.flashes.Pop(w, r),
		CSRFToken:   middleware.CSRFTokenFromContext(r.Context()),
		Form:        map[string]string{},
		Errors:      map[string]string{},
	}
}

// render はページを描画する。描画に失敗した場合は500を返す。
func (p *pages) render(w http.ResponseWriter, status int, name string, page *view.Page) {
	if err := p.renderer.Render(w, status, name, page); err != nil {
		slog.Error("failed to render page",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// redirectWithFlash はフラッシュメッセージを保存してからリダイレクトする。
func (p *pages) redirectWithFlash(w http.ResponseWriter, r *http.Request, category, message, target string) {
	p.flashes.Add(w, r, category, message)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// parseForm はフォームを解析する。失敗した場合はエラーページを描画してfalseを返す。
func (p *pages) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		p.formParseError(w, r, err)
		return false
	}
	return true
}

// formParseError はフォーム解析エラーを413または400のエラーページに変換する。
func (p *pages) formParseError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		p.renderError(w, r, http.StatusRequestEntityTooLarge, "The submitted data is too large.", "Choose a smaller file and try again.")
		return
	}
	p.renderError(w, r, http.StatusBadRequest, "The submitted form could not be read.", "")
}

// errorData はエラーページに渡すデータ。
type errorData struct {
	Status     int
	StatusText string
	Message    string
	Action     string
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスのエラーページに変換する。
func (p *pages) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		p.renderError(w, r, mapAPIErrorToHTTPStatus(apiErr), apiErr.Message, apiErr.Action)
		return
	}

	if kind, ok := integrityViolationKind(err); ok {
		p.metrics.RecordIntegrityViolation(kind)
		slog.Error("data integrity violation",
			slog.String("path", r.URL.Path),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	} else {
		slog.Error("internal server error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	p.renderError(w, r, http.StatusInternalServerError,
		"Something went wrong on our side.",
		"Please wait a moment and try again.")
}

// integrityViolationKind はerrが作成者Stateの整合性違反であればメトリクスの種別ラベルを返す。
func integrityViolationKind(err error) (string, bool) {
	switch {
	case errors.Is(err, model.ErrAuthorshipMissing):
		return metrics.ViolationMissingAuthor, true
	case errors.Is(err, model.ErrAuthorshipDuplicated):
		return metrics.ViolationDuplicatedAuthor, true
	default:
		return "", false
	}
}

// renderError はエラーページを描画する。
func (p *pages) renderError(w http.ResponseWriter, r *http.Request, status int, message, action string) {
	page := p.newPage(w, r, http.StatusText(status))
	page.Data = errorData{
		Status:     status,
		StatusText: http.StatusText(status),
		Message:    message,
		Action:     action,
	}
	p.render(w, status, "error.html", page)
}

// NotFound はルートが存在しない場合の404ページを描画する。
func (p *pages) NotFound(w http.ResponseWriter, r *http.Request) {
	p.renderError(w, r, http.StatusNotFound, "The page you are looking for does not exist.", "")
}

// MethodNotAllowed は許可されていないメソッドの場合の405ページを描画する。
func (p *pages) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	p.renderError(w, r, http.StatusMethodNotAllowed, "This action is not allowed here.", "")
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodePostNotFound, model.ErrCodePageNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeValidationFailed:
		return http.StatusUnprocessableEntity
	case model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// validationFields はerrがバリデーションエラーの場合にフィールド別メッセージを返す。
func validationFields(err error) (map[string]string, bool) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeValidationFailed {
		return apiErr.Fields, true
	}
	return nil, false
}
