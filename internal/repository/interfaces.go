// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hitoshi/blogman/internal/model"
)

// ユーザー作成・更新時の一意制約違反。
var (
	ErrUsernameTaken = errors.New("username is already taken")
	ErrEmailTaken    = errors.New("email is already taken")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// ユーザー名・メールアドレスの重複はErrUsernameTaken / ErrEmailTakenを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はユーザー名、メールアドレス、自己紹介、画像参照を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// ResetPassword はパスワードハッシュを更新し、そのユーザーの全セッションを削除する。
	// 両方の変更は同一トランザクションで行う。
	ResetPassword(ctx context.Context, userID, passwordHash string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// PostRepository は記事データの永続化インターフェース。
// 作成者はstatesテーブルのis_author=trueレコードとJOINして解決する。
type PostRepository interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)

	// List は作成日時の降順で記事を作成者付きで取得する。
	List(ctx context.Context, limit, offset int) ([]model.PostWithAuthor, error)

	// ListAll は作成日時の降順で全記事を作成者付きで取得する。
	ListAll(ctx context.Context) ([]model.PostWithAuthor, error)

	// Count は記事の総数を返す。
	Count(ctx context.Context) (int, error)

	// CreateWithAuthorship は記事と作成者Stateを同一トランザクションで作成する。
	CreateWithAuthorship(ctx context.Context, post *model.Post, authorship *model.State) error

	// Update はタイトルと本文を更新する。
	Update(ctx context.Context, post *model.Post) error

	// Delete は記事と関連するコメント、Stateを同一トランザクションで削除する。
	Delete(ctx context.Context, id string) error
}

// StateRepository はユーザーと記事の関係（State）の永続化インターフェース。
type StateRepository interface {
	// Create はStateを作成する。
	// 同一記事に2件目の作成者Stateを作成した場合はmodel.ErrAuthorshipDuplicatedを返す。
	Create(ctx context.Context, state *model.State) error

	// ListAuthorships は記事のis_author=trueのStateを全て返す。
	// 正常なデータでは常に1件。件数の検証は呼び出し側で行う。
	ListAuthorships(ctx context.Context, postID string) ([]*model.State, error)

	// ListByPost は記事に紐づく全Stateを作成日時順に返す。
	ListByPost(ctx context.Context, postID string) ([]*model.State, error)

	// FindAuthorshipViolations は作成者Stateが0件または2件以上の記事を返す。
	FindAuthorshipViolations(ctx context.Context) ([]model.AuthorshipViolation, error)
}

// CommentRepository はコメントデータの永続化インターフェース。
type CommentRepository interface {
	// CreateWithState はコメントを作成する。
	// participationがnilでない場合は参加者Stateを同一トランザクションで作成し、
	// コメントをそのStateに紐づける。nilの場合はcomment.StateIDの既存Stateに紐づける。
	CreateWithState(ctx context.Context, comment *model.Comment, participation *model.State) error

	// ListByPost は記事のコメントを投稿者情報付きで古い順に返す。
	ListByPost(ctx context.Context, postID string) ([]model.CommentWithAuthor, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
