package handler

import (
	"context"
	"html"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
)

// 記事操作のフラッシュメッセージ
const (
	flashPostCreated = "Your post has been created!"
	flashPostUpdated = "Your post has been updated!"
	flashPostDeleted = "Your post has been deleted!"
)

// PostServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	ListPosts(ctx context.Context, page int) (*model.PostPage, error)
	ListAllPosts(ctx context.Context) ([]model.PostWithAuthor, error)
	GetPost(ctx context.Context, postID string) (*model.PostDetail, error)
	CreatePost(ctx context.Context, userID, title, content string) (*model.Post, error)
	RecordComment(ctx context.Context, postID, userID, body string) (*model.Comment, error)
	GetEditablePost(ctx context.Context, userID, postID string) (*model.Post, error)
	UpdatePost(ctx context.Context, userID, postID, title, content string) (*model.Post, error)
	DeletePost(ctx context.Context, userID, postID string) error
}

// PostHandler は記事の一覧・表示・作成・更新・削除とコメント投稿のHTTPハンドラー。
type PostHandler struct {
	*pages
	service PostServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface, ui UI) *PostHandler {
	return &PostHandler{
		pages:   newPages(ui),
		service: service,
	}
}

// postView は記事詳細ページに渡すデータ。
type postView struct {
	Post    *model.PostDetail
	IsOwner bool
}

// Index は記事一覧をページ単位で表示する。
// GET /, /index?page=N
func (h *PostHandler) Index(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		page = 1
	}

	posts, err := h.service.ListPosts(r.Context(), page)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	p := h.newPage(w, r, "")
	p.Data = posts
	h.render(w, http.StatusOK, "index.html", p)
}

// Admin は全記事を新しい順に表示する。
// GET /admin
func (h *PostHandler) Admin(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.ListAllPosts(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	p := h.newPage(w, r, "Admin")
	p.Data = posts
	h.render(w, http.StatusOK, "admin.html", p)
}

// NewPostForm は記事作成フォームを表示する。
// GET /post/new
func (h *PostHandler) NewPostForm(w http.ResponseWriter, r *http.Request) {
	p := h.newPage(w, r, "New Post")
	p.Data = "/post/new"
	h.render(w, http.StatusOK, "new_post.html", p)
}

// CreatePost は記事を作成し、トップページへリダイレクトする。
// POST /post/new
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	user, _ := middleware.UserFromContext(r.Context())
	values := formValues(r.PostForm, "title", "content")

	errs := validatePost(values)
	if len(errs) == 0 {
		_, err := h.service.CreatePost(r.Context(), user.ID, values["title"], values["content"])
		if err == nil {
			h.metrics.RecordPostCreated()
			h.redirectWithFlash(w, r, middleware.FlashInfo, flashPostCreated, "/")
			return
		}
		fields, ok := validationFields(err)
		if !ok {
			h.handleServiceError(w, r, err)
			return
		}
		errs = fields
	}

	p := h.newPage(w, r, "New Post")
	p.Data = "/post/new"
	p.Form = values
	p.Errors = errs
	h.render(w, http.StatusUnprocessableEntity, "new_post.html", p)
}

// ShowPost は記事とコメントを表示する。
// GET /post/{id}
func (h *PostHandler) ShowPost(w http.ResponseWriter, r *http.Request) {
	h.showPost(w, r, http.StatusOK, nil)
}

func (h *PostHandler) showPost(w http.ResponseWriter, r *http.Request, status int, errs map[string]string) {
	detail, err := h.service.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	p := h.newPage(w, r, detail.Title)
	if errs != nil {
		p.Errors = errs
	}
	p.Data = postView{
		Post:    detail,
		IsOwner: p.CurrentUser != nil && p.CurrentUser.ID == detail.AuthorID,
	}
	h.render(w, status, "post.html", p)
}

// AddComment は記事にコメントを追加し、記事ページへリダイレクトする。
// POST /post/{id}
func (h *PostHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	user, _ := middleware.UserFromContext(r.Context())
	postID := chi.URLParam(r, "id")

	_, err := h.service.RecordComment(r.Context(), postID, user.ID, r.PostForm.Get("body"))
	if err != nil {
		if fields, ok := validationFields(err); ok {
			h.showPost(w, r, http.StatusUnprocessableEntity, fields)
			return
		}
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordComment()
	http.Redirect(w, r, "/post/"+postID, http.StatusSeeOther)
}

// EditPostForm は作成者本人に記事編集フォームを表示する。
// GET /post/{id}/update
func (h *PostHandler) EditPostForm(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	postID := chi.URLParam(r, "id")

	post, err := h.service.GetEditablePost(r.Context(), user.ID, postID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	p := h.newPage(w, r, "Update Post")
	p.Data = "/post/" + postID + "/update"
	p.Form["title"] = post.Title
	// 保存済み本文はサニタイズ時にエスケープされているため、入力時の文字に戻す
	p.Form["content"] = html.UnescapeString(post.Content)
	h.render(w, http.StatusOK, "new_post.html", p)
}

// UpdatePost は記事を更新し、記事ページへリダイレクトする。
// 作成者確認を入力検証より先に行い、作成者以外には常に403を返す。
// POST /post/{id}/update
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	user, _ := middleware.UserFromContext(r.Context())
	postID := chi.URLParam(r, "id")

	if _, err := h.service.GetEditablePost(r.Context(), user.ID, postID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	values := formValues(r.PostForm, "title", "content")
	errs := validatePost(values)
	if len(errs) == 0 {
		_, err := h.service.UpdatePost(r.Context(), user.ID, postID, values["title"], values["content"])
		if err == nil {
			h.metrics.RecordPostUpdated()
			h.redirectWithFlash(w, r, middleware.FlashInfo, flashPostUpdated, "/post/"+postID)
			return
		}
		fields, ok := validationFields(err)
		if !ok {
			h.handleServiceError(w, r, err)
			return
		}
		errs = fields
	}

	p := h.newPage(w, r, "Update Post")
	p.Data = "/post/" + postID + "/update"
	p.Form = values
	p.Errors = errs
	h.render(w, http.StatusUnprocessableEntity, "new_post.html", p)
}

// DeletePost は記事を削除し、トップページへリダイレクトする。
// POST /post/{id}/delete
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	if err := h.service.DeletePost(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordPostDeleted()
	h.redirectWithFlash(w, r, middleware.FlashInfo, flashPostDeleted, "/")
}
