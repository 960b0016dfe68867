package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/blogman/internal/model"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// CreateWithState はコメントを作成する。
// participationがnilでない場合は参加者Stateを同一トランザクションで作成する。
func (r *PostgresCommentRepo) CreateWithState(ctx context.Context, comment *model.Comment, participation *model.State) error {
	err := withTx(ctx, r.db, func(tx DBTX) error {
		if participation != nil {
			if err := insertState(ctx, tx, participation); err != nil {
				return err
			}
			comment.StateID = participation.ID
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO comments (id, post_id, state_id, user_id, body, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			comment.ID, comment.PostID, comment.StateID, comment.UserID, comment.Body, comment.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

// ListByPost は記事のコメントを投稿者情報付きで古い順に返す。
func (r *PostgresCommentRepo) ListByPost(ctx context.Context, postID string) ([]model.CommentWithAuthor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.post_id, c.state_id, c.user_id, c.body, c.created_at,
		        u.username, u.avatar, s.is_author
		 FROM comments c
		 JOIN states s ON s.id = c.state_id
		 JOIN users u ON u.id = c.user_id
		 WHERE c.post_id = $1
		 ORDER BY c.created_at, c.id`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []model.CommentWithAuthor
	for rows.Next() {
		var c model.CommentWithAuthor
		if err := rows.Scan(
			&c.ID, &c.PostID, &c.StateID, &c.UserID, &c.Body, &c.CreatedAt,
			&c.Username, &c.Avatar, &c.IsAuthor,
		); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return comments, nil
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
