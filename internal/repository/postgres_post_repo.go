package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/blogman/internal/model"
)

// postWithAuthorQuery は記事と作成者（is_author=trueのState経由）を結合するSELECT句。
// 作成者Stateが欠落・重複した記事も1行で返し、件数をauthor_countに載せる。
const postWithAuthorQuery = `
	SELECT p.id, p.title, p.content, p.created_at, p.updated_at,
	       COALESCE(a.user_id::text, ''), COALESCE(a.username, ''), COALESCE(a.avatar, ''),
	       COALESCE(a.author_count, 0)
	FROM posts p
	LEFT JOIN LATERAL (
		SELECT s.user_id, u.username, u.avatar, count(*) OVER () AS author_count
		FROM states s
		JOIN users u ON u.id = s.user_id
		WHERE s.post_id = p.id AND s.is_author
		ORDER BY s.created_at, s.id
		LIMIT 1
	) a ON true`

// PostgresPostRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	p := &model.Post{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, content, created_at, updated_at FROM posts WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	return p, nil
}

// List は作成日時の降順で記事を作成者付きで取得する。
func (r *PostgresPostRepo) List(ctx context.Context, limit, offset int) ([]model.PostWithAuthor, error) {
	rows, err := r.db.QueryContext(ctx,
		postWithAuthorQuery+` ORDER BY p.created_at DESC, p.id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return scanPostsWithAuthor(rows)
}

// ListAll は作成日時の降順で全記事を作成者付きで取得する。
func (r *PostgresPostRepo) ListAll(ctx context.Context) ([]model.PostWithAuthor, error) {
	rows, err := r.db.QueryContext(ctx, postWithAuthorQuery+` ORDER BY p.created_at DESC, p.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list all posts: %w", err)
	}
	return scanPostsWithAuthor(rows)
}

func scanPostsWithAuthor(rows *sql.Rows) ([]model.PostWithAuthor, error) {
	defer rows.Close()

	var posts []model.PostWithAuthor
	for rows.Next() {
		var p model.PostWithAuthor
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt,
			&p.AuthorID, &p.AuthorUsername, &p.AuthorAvatar, &p.AuthorCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

// Count は記事の総数を返す。
func (r *PostgresPostRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM posts`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

// CreateWithAuthorship は記事と作成者Stateを同一トランザクションで作成する。
func (r *PostgresPostRepo) CreateWithAuthorship(ctx context.Context, post *model.Post, authorship *model.State) error {
	err := withTx(ctx, r.db, func(tx DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO posts (id, title, content, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
			post.ID, post.Title, post.Content, post.CreatedAt, post.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert post: %w", err)
		}
		return insertState(ctx, tx, authorship)
	})
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

// Update はタイトルと本文を更新する。
func (r *PostgresPostRepo) Update(ctx context.Context, post *model.Post) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET title = $2, content = $3, updated_at = $4 WHERE id = $1`,
		post.ID, post.Title, post.Content, post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	return requireAffected(result, "post", post.ID)
}

// Delete は記事と関連するコメント、Stateを同一トランザクションで削除する。
// 外部キーのCASCADEにも任せられるが、削除順を明示して孤立レコードを残さない。
func (r *PostgresPostRepo) Delete(ctx context.Context, id string) error {
	err := withTx(ctx, r.db, func(tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE post_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete comments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM states WHERE post_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete states: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete post row: %w", err)
		}
		return requireAffected(result, "post", id)
	})
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
