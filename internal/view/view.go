// Package view はHTMLテンプレートの描画を提供する。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*.svg
var staticFS embed.FS

// layoutFile は全ページ共通のレイアウト。
const layoutFile = "templates/layout.html"

// Page はテンプレートに渡す共通データ。
type Page struct {
	Title       string
	CurrentUser *model.User
	Flashes     []middleware.Flash
	CSRFToken   string
	Form        map[string]string // 再表示用の入力値
	Errors      map[string]string // フィールド別エラー
	Data        any
}

// PictureURLFunc は保存済み画像の参照URLを返す関数。
type PictureURLFunc func(category, name string) string

// Renderer はページ名ごとにレイアウトと結合したテンプレートを保持する。
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer は埋め込みテンプレートを解析してRendererを生成する。
func NewRenderer(pictureURL PictureURLFunc) (*Renderer, error) {
	funcs := template.FuncMap{
		"safeHTML":   func(s string) template.HTML { return template.HTML(s) },
		"formatDate": formatDate,
		"pageRange":  pageRange,
		"add":        func(a, b int) int { return a + b },
		"avatarURL": func(name string) string {
			// 作成者が解決できない記事では空になる
			if name == "" {
				name = model.DefaultAvatar
			}
			return pictureURL(storage.CategoryAvatar, name)
		},
		"coverURL": func(name string) string {
			return pictureURL(storage.CategoryImageCover, name)
		},
	}

	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	pages := make(map[string]*template.Template, len(names))
	for _, file := range names {
		if file == layoutFile {
			continue
		}
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, layoutFile, file)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", file, err)
		}
		pages[file[len("templates/"):]] = tmpl
	}

	return &Renderer{pages: pages}, nil
}

// Render はページを描画してステータスコードと共に書き込む。
// 描画に失敗した場合はレスポンスを書き込まずにエラーを返す。
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data *Page) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to execute template %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Debug("failed to write response", slog.String("error", err.Error()))
	}
	return nil
}

// DefaultPicture はカテゴリごとの既定画像（SVG）を返す。
func DefaultPicture(category string) ([]byte, error) {
	file := "static/default_avatar.svg"
	if category == storage.CategoryImageCover {
		file = "static/default_cover.svg"
	}
	return staticFS.ReadFile(file)
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// pageRange は1からnまでのページ番号を返す。
func pageRange(n int) []int {
	pages := make([]int, n)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages
}
