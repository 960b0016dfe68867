package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore はローカルファイルシステムに画像を保存する。
// ファイルは dir/{category}/{name} に配置され、/{category}/{name} で配信される。
type LocalStore struct {
	dir string
}

// NewLocalStore はLocalStoreを生成し、カテゴリごとのディレクトリを作成する。
func NewLocalStore(dir string) (*LocalStore, error) {
	for _, category := range []string{CategoryAvatar, CategoryImageCover} {
		if err := os.MkdirAll(filepath.Join(dir, category), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create upload directory: %w", err)
		}
	}
	return &LocalStore{dir: dir}, nil
}

// Save はrの内容をファイルに書き込む。
func (s *LocalStore) Save(_ context.Context, category, originalName string, r io.Reader) (string, error) {
	name, err := NewFileName(originalName)
	if err != nil {
		return "", err
	}
	if err := validName(category, name); err != nil {
		return "", err
	}

	p := filepath.Join(s.dir, category, name)
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(p)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(p)
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return name, nil
}

// Open は保存済みファイルを開く。
func (s *LocalStore) Open(_ context.Context, category, name string) (io.ReadCloser, error) {
	if err := validName(category, name); err != nil {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, category, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// URL はアプリケーション自身が配信するパスを返す。
func (s *LocalStore) URL(category, name string) string {
	return "/" + category + "/" + name
}

var _ Store = (*LocalStore)(nil)
