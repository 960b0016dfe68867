package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/blogman/internal/model"
)

// authorshipIndex は1記事につき作成者Stateを1件に制限する部分ユニークインデックス名。
const authorshipIndex = "states_one_author_per_post"

// PostgresStateRepo はPostgreSQLを使用したStateリポジトリ。
type PostgresStateRepo struct {
	db *sql.DB
}

// NewPostgresStateRepo はPostgresStateRepoを生成する。
func NewPostgresStateRepo(db *sql.DB) *PostgresStateRepo {
	return &PostgresStateRepo{db: db}
}

// Create はStateを作成する。
func (r *PostgresStateRepo) Create(ctx context.Context, state *model.State) error {
	return insertState(ctx, r.db, state)
}

// insertState はStateを1件挿入する。トランザクション内からも呼ばれる。
func insertState(ctx context.Context, db DBTX, state *model.State) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO states (id, is_author, user_id, post_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		state.ID, state.IsAuthor, state.UserID, state.PostID, state.CreatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == authorshipIndex {
			return fmt.Errorf("post %s: %w", state.PostID, model.ErrAuthorshipDuplicated)
		}
		return fmt.Errorf("failed to insert state: %w", err)
	}
	return nil
}

// ListAuthorships は記事のis_author=trueのStateを全て返す。
func (r *PostgresStateRepo) ListAuthorships(ctx context.Context, postID string) ([]*model.State, error) {
	return r.list(ctx,
		`SELECT id, is_author, user_id, post_id, created_at
		 FROM states WHERE post_id = $1 AND is_author
		 ORDER BY created_at`,
		postID,
	)
}

// ListByPost は記事に紐づく全Stateを作成日時順に返す。
func (r *PostgresStateRepo) ListByPost(ctx context.Context, postID string) ([]*model.State, error) {
	return r.list(ctx,
		`SELECT id, is_author, user_id, post_id, created_at
		 FROM states WHERE post_id = $1
		 ORDER BY created_at`,
		postID,
	)
}

func (r *PostgresStateRepo) list(ctx context.Context, query, postID string) ([]*model.State, error) {
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	defer rows.Close()

	var states []*model.State
	for rows.Next() {
		s := &model.State{}
		if err := rows.Scan(&s.ID, &s.IsAuthor, &s.UserID, &s.PostID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}
		states = append(states, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate states: %w", err)
	}
	return states, nil
}

// FindAuthorshipViolations は作成者Stateが0件または2件以上の記事を返す。
func (r *PostgresStateRepo) FindAuthorshipViolations(ctx context.Context) ([]model.AuthorshipViolation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.title, count(s.id) AS author_count
		 FROM posts p
		 LEFT JOIN states s ON s.post_id = p.id AND s.is_author
		 GROUP BY p.id, p.title
		 HAVING count(s.id) <> 1
		 ORDER BY p.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query authorship violations: %w", err)
	}
	defer rows.Close()

	var violations []model.AuthorshipViolation
	for rows.Next() {
		var v model.AuthorshipViolation
		if err := rows.Scan(&v.PostID, &v.Title, &v.AuthorCount); err != nil {
			return nil, fmt.Errorf("failed to scan authorship violation: %w", err)
		}
		violations = append(violations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate authorship violations: %w", err)
	}
	return violations, nil
}

// compile-time interface check
var _ StateRepository = (*PostgresStateRepo)(nil)
