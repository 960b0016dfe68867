package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/blogman/internal/storage"
	"github.com/hitoshi/blogman/internal/view"
)

// PictureStore は画像配信に必要なストレージ操作。
type PictureStore interface {
	Open(ctx context.Context, category, name string) (io.ReadCloser, error)
}

// PictureHandler はローカルストレージに保存されたプロフィール画像を配信する。
type PictureHandler struct {
	store PictureStore
}

// NewPictureHandler はPictureHandlerを生成する。
func NewPictureHandler(store PictureStore) *PictureHandler {
	return &PictureHandler{store: store}
}

// Avatar はアバター画像を配信する。
// GET /avatar/{file}
func (h *PictureHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, storage.CategoryAvatar)
}

// ImageCover はカバー画像を配信する。
// GET /image_cover/{file}
func (h *PictureHandler) ImageCover(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, storage.CategoryImageCover)
}

// serve は画像を返す。ファイルが存在しない場合は既定画像を返す。
func (h *PictureHandler) serve(w http.ResponseWriter, r *http.Request, category string) {
	name := chi.URLParam(r, "file")

	rc, err := h.store.Open(r.Context(), category, name)
	if errors.Is(err, storage.ErrNotFound) {
		h.serveDefault(w, category)
		return
	}
	if err != nil {
		slog.Error("failed to open picture",
			slog.String("category", category),
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", storage.ContentType(name))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("failed to write picture",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
	}
}

func (h *PictureHandler) serveDefault(w http.ResponseWriter, category string) {
	body, err := view.DefaultPicture(category)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(body)
}
