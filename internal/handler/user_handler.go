package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/user"
)

const flashAccountUpdated = "You account info has been updated!"

// multipartMemory はマルチパートフォーム解析時にメモリに保持する上限。
const multipartMemory = 8 << 20

// UserServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	UpdateAccount(ctx context.Context, userID string, in user.AccountUpdate) (*model.User, error)
}

// UserHandler はアカウント情報の表示と更新のHTTPハンドラー。
type UserHandler struct {
	*pages
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, ui UI) *UserHandler {
	return &UserHandler{
		pages:   newPages(ui),
		service: service,
	}
}

// AccountForm はログインユーザーのアカウント情報と編集フォームを表示する。
// GET /account
func (h *UserHandler) AccountForm(w http.ResponseWriter, r *http.Request) {
	current, err := h.service.GetUser(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	p := h.newPage(w, r, "Account")
	p.Data = current
	p.Form["username"] = current.Username
	p.Form["email"] = current.Email
	p.Form["bio"] = current.Bio
	h.render(w, http.StatusOK, "account.html", p)
}

// UpdateAccount はアカウント情報と画像を更新する。
// POST /account
func (h *UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.formParseError(w, r, err)
		return
	}
	userID := middleware.UserIDFromContext(r.Context())
	values := formValues(r.PostForm, "username", "email", "bio")

	errs := validateAccount(values)
	if len(errs) == 0 {
		_, err := h.updateAccount(r, userID, values)
		if err == nil {
			h.redirectWithFlash(w, r, middleware.FlashInfo, flashAccountUpdated, "/account")
			return
		}
		fields, ok := validationFields(err)
		if !ok {
			h.handleServiceError(w, r, err)
			return
		}
		errs = fields
	}

	current, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	p := h.newPage(w, r, "Account")
	p.Data = current
	p.Form = values
	p.Errors = errs
	h.render(w, http.StatusUnprocessableEntity, "account.html", p)
}

func (h *UserHandler) updateAccount(r *http.Request, userID string, values map[string]string) (*model.User, error) {
	in := user.AccountUpdate{
		Username: values["username"],
		Email:    values["email"],
		Bio:      values["bio"],
	}

	avatar, closeAvatar, err := formUpload(r, "avatar")
	if err != nil {
		return nil, err
	}
	defer closeAvatar()
	in.Avatar = avatar

	cover, closeCover, err := formUpload(r, "image_cover")
	if err != nil {
		return nil, err
	}
	defer closeCover()
	in.ImageCover = cover

	return h.service.UpdateAccount(r.Context(), userID, in)
}

// formUpload はフォームのファイル項目を取り出す。未選択の場合はnilを返す。
func formUpload(r *http.Request, field string) (*user.Upload, func(), error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, err
	}
	if header.Filename == "" {
		file.Close()
		return nil, func() {}, nil
	}
	return &user.Upload{Filename: header.Filename, Body: file}, closer(file), nil
}

func closer(f multipart.File) func() {
	return func() { f.Close() }
}
