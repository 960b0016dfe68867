// Package model はドメインモデルを定義する。
package model

import "time"

// Post はブログ記事を表す。
// 作成者はpostsテーブルには保持せず、is_author=trueのStateで表現する。
type Post struct {
	ID        string
	Title     string
	Content   string // サニタイズ済み
	CreatedAt time.Time
	UpdatedAt time.Time
}

// State はユーザーと記事の関係（作成者 or 参加者）を表す結合レコード。
// 1記事につきIsAuthor=trueのレコードは高々1件。
type State struct {
	ID        string
	IsAuthor  bool
	UserID    string
	PostID    string
	CreatedAt time.Time
}

// Comment は記事へのコメントを表す。
// 必ず1件のStateに紐づく（作成者本人のコメントは作成者Stateに紐づく）。
type Comment struct {
	ID        string
	PostID    string
	StateID   string
	UserID    string
	Body      string // サニタイズ済み
	CreatedAt time.Time
}

// CommentWithAuthor はコメントと投稿者情報を結合したモデル。
type CommentWithAuthor struct {
	Comment
	Username string
	Avatar   string
	IsAuthor bool
}

// PostWithAuthor は記事と作成者情報を結合したモデル。
// statesテーブルのis_author=trueレコード経由でusersとJOINして取得される。
type PostWithAuthor struct {
	Post
	AuthorID       string
	AuthorUsername string
	AuthorAvatar   string
	AuthorCount    int // 作成者Stateの件数。正常なら1
}

// HasValidAuthorship は作成者Stateがちょうど1件かどうかを返す。
func (p PostWithAuthor) HasValidAuthorship() bool {
	return p.AuthorCount == 1
}

// PostDetail は記事詳細ページに必要な情報をまとめたモデル。
type PostDetail struct {
	PostWithAuthor
	Comments []CommentWithAuthor
}

// PostPage はページネーションされた記事一覧を表す。
type PostPage struct {
	Posts      []PostWithAuthor
	Page       int
	PerPage    int
	TotalPosts int
	TotalPages int
}

// HasPrev は前ページが存在するかを返す。
func (p PostPage) HasPrev() bool {
	return p.Page > 1
}

// HasNext は次ページが存在するかを返す。
func (p PostPage) HasNext() bool {
	return p.Page < p.TotalPages
}

// AuthorshipViolation は作成者Stateの件数が1件でない記事を表す。
type AuthorshipViolation struct {
	PostID      string
	Title       string
	AuthorCount int
}
