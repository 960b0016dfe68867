// Package storage はプロフィール画像（アバター、カバー画像）の保存先を抽象化する。
package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
)

// 画像のカテゴリ。保存先のディレクトリ名（S3ではキーのプレフィックス）として使う。
const (
	CategoryAvatar     = "avatar"
	CategoryImageCover = "image_cover"
)

// ErrNotFound は指定したファイルが存在しないことを表す。
var ErrNotFound = errors.New("stored file not found")

// Store は画像ファイルの保存と取得のインターフェース。
type Store interface {
	// Save はrの内容をcategory配下に保存し、保存したファイル名を返す。
	// ファイル名はランダムな16桁の16進数にoriginalNameの拡張子を付けたもの。
	Save(ctx context.Context, category, originalName string, r io.Reader) (string, error)

	// Open は保存済みファイルを開く。存在しない場合はErrNotFoundを返す。
	Open(ctx context.Context, category, name string) (io.ReadCloser, error)

	// URL は保存済みファイルを参照するためのURLを返す。
	URL(category, name string) string
}

// AllowedExtensions はアップロードを許可する画像の拡張子。
var AllowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// Ext はファイル名の拡張子を小文字で返す。
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// ContentType は拡張子から画像のContent-Typeを返す。
func ContentType(name string) string {
	if ct, ok := AllowedExtensions[Ext(name)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// NewFileName は保存用のランダムなファイル名を生成する。
func NewFileName(originalName string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate file name: %w", err)
	}
	return hex.EncodeToString(b) + Ext(originalName), nil
}

// validName はカテゴリとファイル名がパス区切りを含まない単純な名前かを検証する。
func validName(category, name string) error {
	switch category {
	case CategoryAvatar, CategoryImageCover:
	default:
		return fmt.Errorf("unknown storage category: %q", category)
	}
	if name == "" || name != path.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid file name: %q", name)
	}
	return nil
}
