// Package model はドメインモデルを定義する。
package model

import "time"

const (
	// DefaultAvatar はアバター未設定時に使用する画像ファイル名。
	DefaultAvatar = "default.jpg"
	// DefaultImageCover はカバー画像未設定時に使用する画像ファイル名。
	DefaultImageCover = "default_cover.jpg"
)

// User はブログの利用ユーザーを表す。
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Bio          string
	Avatar       string // ストレージが返したファイル参照
	ImageCover   string // ストレージが返したファイル参照
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
