// Package post は記事、作成者State、コメントに関するビジネスロジックを提供する。
//
// 記事の作成者はstatesテーブルのis_author=trueレコードで表現し、
// 1記事につき高々1件という不変条件をこのパッケージとDBの部分ユニークインデックスで守る。
package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
	"github.com/hitoshi/blogman/internal/security"
)

// DefaultPerPage は記事一覧1ページあたりの既定件数。
const DefaultPerPage = 5

// Service は記事に関するビジネスロジックを提供する。
type Service struct {
	posts     repository.PostRepository
	states    repository.StateRepository
	comments  repository.CommentRepository
	users     repository.UserRepository
	sanitizer security.ContentSanitizerService
	perPage   int
}

// NewService はServiceを生成する。perPageが0以下の場合はDefaultPerPageを使う。
func NewService(
	posts repository.PostRepository,
	states repository.StateRepository,
	comments repository.CommentRepository,
	users repository.UserRepository,
	sanitizer security.ContentSanitizerService,
	perPage int,
) *Service {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &Service{
		posts:     posts,
		states:    states,
		comments:  comments,
		users:     users,
		sanitizer: sanitizer,
		perPage:   perPage,
	}
}

// RecordAuthorship は記事の作成者Stateを記録する。
// 既に作成者が存在する場合はmodel.ErrAuthorshipDuplicatedを返す。
func (s *Service) RecordAuthorship(ctx context.Context, postID, userID string) (*model.State, error) {
	state := newState(postID, userID, true)
	if err := s.states.Create(ctx, state); err != nil {
		if errors.Is(err, model.ErrAuthorshipDuplicated) {
			slog.Error("duplicate authorship rejected",
				slog.String("post_id", postID),
				slog.String("user_id", userID),
			)
		}
		return nil, err
	}
	return state, nil
}

// FindAuthor は記事の作成者Stateを返す。
// 0件ならmodel.ErrAuthorshipMissing、2件以上ならmodel.ErrAuthorshipDuplicatedを返す。
func (s *Service) FindAuthor(ctx context.Context, postID string) (*model.State, error) {
	authors, err := s.states.ListAuthorships(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to find author: %w", err)
	}

	switch len(authors) {
	case 1:
		return authors[0], nil
	case 0:
		slog.Error("post has no authorship state", slog.String("post_id", postID))
		return nil, fmt.Errorf("post %s: %w", postID, model.ErrAuthorshipMissing)
	default:
		slog.Error("post has multiple authorship states",
			slog.String("post_id", postID),
			slog.Int("author_count", len(authors)),
		)
		return nil, fmt.Errorf("post %s: %w", postID, model.ErrAuthorshipDuplicated)
	}
}

// IsOwner はuserIDが記事の作成者かどうかを返す。
// コメントのみの参加者はfalse。
func (s *Service) IsOwner(ctx context.Context, postID, userID string) (bool, error) {
	author, err := s.FindAuthor(ctx, postID)
	if err != nil {
		return false, err
	}
	return author.UserID == userID, nil
}

// RecordComment は記事にコメントを追加する。
// 作成者本人のコメントは既存の作成者Stateに紐づけ、
// それ以外のユーザーは参加者Stateをコメントと同一トランザクションで作成する。
func (s *Service) RecordComment(ctx context.Context, postID, userID, body string) (*model.Comment, error) {
	body = strings.TrimSpace(s.sanitizer.SanitizeComment(body))
	if body == "" {
		return nil, model.NewValidationError(map[string]string{"body": "This field is required."})
	}

	if _, err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	author, err := s.FindAuthor(ctx, postID)
	if err != nil {
		return nil, err
	}

	comment := &model.Comment{
		ID:        uuid.New().String(),
		PostID:    postID,
		UserID:    userID,
		Body:      body,
		CreatedAt: time.Now(),
	}

	var participation *model.State
	if author.UserID == userID {
		comment.StateID = author.ID
	} else {
		participation = newState(postID, userID, false)
	}

	if err := s.comments.CreateWithState(ctx, comment, participation); err != nil {
		return nil, fmt.Errorf("failed to record comment: %w", err)
	}

	slog.Info("comment recorded",
		slog.String("post_id", postID),
		slog.String("user_id", userID),
		slog.Bool("is_author", participation == nil),
	)
	return comment, nil
}

// CreatePost は記事と作成者Stateを同一トランザクションで作成する。
func (s *Service) CreatePost(ctx context.Context, userID, title, content string) (*model.Post, error) {
	title, content, err := s.cleanInput(title, content)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	post := &model.Post{
		ID:        uuid.New().String(),
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.posts.CreateWithAuthorship(ctx, post, newState(post.ID, userID, true)); err != nil {
		return nil, err
	}

	slog.Info("post created",
		slog.String("post_id", post.ID),
		slog.String("user_id", userID),
	)
	return post, nil
}

// GetPost は記事を作成者とコメント付きで取得する。
func (s *Service) GetPost(ctx context.Context, postID string) (*model.PostDetail, error) {
	post, err := s.requirePost(ctx, postID)
	if err != nil {
		return nil, err
	}

	authorState, err := s.FindAuthor(ctx, postID)
	if err != nil {
		return nil, err
	}
	author, err := s.users.FindByID(ctx, authorState.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find post author: %w", err)
	}
	if author == nil {
		return nil, fmt.Errorf("post %s: author user %s: %w", postID, authorState.UserID, model.ErrAuthorshipMissing)
	}

	comments, err := s.comments.ListByPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	return &model.PostDetail{
		PostWithAuthor: model.PostWithAuthor{
			Post:           *post,
			AuthorID:       author.ID,
			AuthorUsername: author.Username,
			AuthorAvatar:   author.Avatar,
			AuthorCount:    1,
		},
		Comments: comments,
	}, nil
}

// ListPosts は新しい順に記事をページ単位で返す。
// 1ページ目以外で範囲外のページを指定した場合はページ未検出エラーを返す。
func (s *Service) ListPosts(ctx context.Context, page int) (*model.PostPage, error) {
	if page < 1 {
		page = 1
	}

	total, err := s.posts.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count posts: %w", err)
	}
	totalPages := (total + s.perPage - 1) / s.perPage
	if page > 1 && page > totalPages {
		return nil, model.NewPageNotFoundError(page)
	}

	posts, err := s.posts.List(ctx, s.perPage, (page-1)*s.perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	logAuthorshipViolations(posts)

	return &model.PostPage{
		Posts:      posts,
		Page:       page,
		PerPage:    s.perPage,
		TotalPosts: total,
		TotalPages: totalPages,
	}, nil
}

// ListAllPosts は新しい順に全記事を返す。
func (s *Service) ListAllPosts(ctx context.Context) ([]model.PostWithAuthor, error) {
	posts, err := s.posts.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list all posts: %w", err)
	}
	logAuthorshipViolations(posts)
	return posts, nil
}

// ListRecentPosts は新しい順に最大limit件の記事を返す。
func (s *Service) ListRecentPosts(ctx context.Context, limit int) ([]model.PostWithAuthor, error) {
	posts, err := s.posts.List(ctx, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent posts: %w", err)
	}
	logAuthorshipViolations(posts)
	return posts, nil
}

// GetEditablePost は作成者本人が編集するための記事を返す。
// 作成者以外の場合はmodel.NewForbiddenErrorを返す。
func (s *Service) GetEditablePost(ctx context.Context, userID, postID string) (*model.Post, error) {
	post, err := s.requirePost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, postID, userID); err != nil {
		return nil, err
	}
	return post, nil
}

// UpdatePost は記事のタイトルと本文を更新する。作成者本人のみ可能。
func (s *Service) UpdatePost(ctx context.Context, userID, postID, title, content string) (*model.Post, error) {
	post, err := s.GetEditablePost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}

	title, content, err = s.cleanInput(title, content)
	if err != nil {
		return nil, err
	}

	post.Title = title
	post.Content = content
	post.UpdatedAt = time.Now()

	if err := s.posts.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to update post: %w", err)
	}

	slog.Info("post updated",
		slog.String("post_id", postID),
		slog.String("user_id", userID),
	)
	return post, nil
}

// DeletePost は記事と全てのState、コメントを削除する。作成者本人のみ可能。
func (s *Service) DeletePost(ctx context.Context, userID, postID string) error {
	if _, err := s.GetEditablePost(ctx, userID, postID); err != nil {
		return err
	}

	if err := s.posts.Delete(ctx, postID); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}

	slog.Info("post deleted",
		slog.String("post_id", postID),
		slog.String("user_id", userID),
	)
	return nil
}

func (s *Service) requirePost(ctx context.Context, postID string) (*model.Post, error) {
	if _, err := uuid.Parse(postID); err != nil {
		return nil, model.NewPostNotFoundError(postID)
	}
	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(postID)
	}
	return post, nil
}

func (s *Service) requireOwner(ctx context.Context, postID, userID string) error {
	owner, err := s.IsOwner(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !owner {
		slog.Warn("non-owner attempted to modify post",
			slog.String("post_id", postID),
			slog.String("user_id", userID),
		)
		return model.NewForbiddenError()
	}
	return nil
}

// cleanInput はタイトルの前後空白を除去し、本文をサニタイズする。
func (s *Service) cleanInput(title, content string) (string, string, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(s.sanitizer.SanitizePost(content))

	fields := map[string]string{}
	if title == "" {
		fields["title"] = "This field is required."
	}
	if content == "" {
		fields["content"] = "This field is required."
	}
	if len(fields) > 0 {
		return "", "", model.NewValidationError(fields)
	}
	return title, content, nil
}

// logAuthorshipViolations は作成者Stateが1件でない記事を一覧から除かずにERRORで記録する。
// 件数の集計は監査ジョブが行う。
func logAuthorshipViolations(posts []model.PostWithAuthor) {
	for _, p := range posts {
		if p.HasValidAuthorship() {
			continue
		}
		slog.Error("post listed with invalid authorship",
			slog.String("post_id", p.ID),
			slog.Int("author_count", p.AuthorCount),
		)
	}
}

func newState(postID, userID string, isAuthor bool) *model.State {
	return &model.State{
		ID:        uuid.New().String(),
		IsAuthor:  isAuthor,
		UserID:    userID,
		PostID:    postID,
		CreatedAt: time.Now(),
	}
}
