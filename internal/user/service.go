// Package user はアカウント情報の参照と更新を提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
	"github.com/hitoshi/blogman/internal/storage"
)

// Upload はアップロードされた画像ファイルを表す。
type Upload struct {
	Filename string
	Body     io.Reader
}

// AccountUpdate はアカウント更新の入力値。
// Avatar、ImageCoverがnilの場合は現在の画像を維持する。
type AccountUpdate struct {
	Username   string
	Email      string
	Bio        string
	Avatar     *Upload
	ImageCover *Upload
}

// Service はアカウント管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	store    storage.Store
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, store storage.Store) *Service {
	return &Service{
		userRepo: userRepo,
		store:    store,
	}
}

// GetUser は指定IDのユーザーを取得する。
func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// PictureURL は保存済み画像の参照URLを返す。
// 既定画像はストレージに存在しないため、アプリ自身の画像配信パスを返す。
func (s *Service) PictureURL(category, name string) string {
	if name == "" || name == model.DefaultAvatar || name == model.DefaultImageCover {
		if name == "" {
			name = model.DefaultAvatar
			if category == storage.CategoryImageCover {
				name = model.DefaultImageCover
			}
		}
		return "/" + category + "/" + name
	}
	return s.store.URL(category, name)
}

// UpdateAccount はユーザー名、メールアドレス、自己紹介、画像を更新する。
// ユーザー名・メールアドレスは他のユーザーと重複してはならない。
// 画像はjpg, jpeg, pngのみ受け付ける。
func (s *Service) UpdateAccount(ctx context.Context, userID string, in AccountUpdate) (*model.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	if err := s.checkUnique(ctx, user, in, fields); err != nil {
		return nil, err
	}
	for field, up := range map[string]*Upload{"avatar": in.Avatar, "image_cover": in.ImageCover} {
		if up == nil {
			continue
		}
		if _, ok := storage.AllowedExtensions[storage.Ext(up.Filename)]; !ok {
			fields[field] = model.NewUnsupportedFileError(field, storage.Ext(up.Filename)).Fields[field]
		}
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}

	if in.Avatar != nil {
		name, err := s.store.Save(ctx, storage.CategoryAvatar, in.Avatar.Filename, in.Avatar.Body)
		if err != nil {
			return nil, fmt.Errorf("アバター画像の保存に失敗しました: %w", err)
		}
		user.Avatar = name
	}
	if in.ImageCover != nil {
		name, err := s.store.Save(ctx, storage.CategoryImageCover, in.ImageCover.Filename, in.ImageCover.Body)
		if err != nil {
			return nil, fmt.Errorf("カバー画像の保存に失敗しました: %w", err)
		}
		user.ImageCover = name
	}

	user.Username = in.Username
	user.Email = in.Email
	user.Bio = in.Bio
	user.UpdatedAt = time.Now()

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameTaken):
			return nil, model.NewValidationError(map[string]string{"username": usernameTaken})
		case errors.Is(err, repository.ErrEmailTaken):
			return nil, model.NewValidationError(map[string]string{"email": emailTaken})
		}
		return nil, fmt.Errorf("アカウント情報の更新に失敗しました: %w", err)
	}

	slog.Info("account updated", slog.String("user_id", user.ID))
	return user, nil
}

const (
	usernameTaken = "That username is taken. Please choose a different one."
	emailTaken    = "That email is taken. Please choose a different one."
)

// checkUnique は変更後のユーザー名・メールアドレスが他のユーザーに使われていないかを確認する。
func (s *Service) checkUnique(ctx context.Context, user *model.User, in AccountUpdate, fields map[string]string) error {
	if in.Username != user.Username {
		other, err := s.userRepo.FindByUsername(ctx, in.Username)
		if err != nil {
			return fmt.Errorf("ユーザー名の確認に失敗しました: %w", err)
		}
		if other != nil && other.ID != user.ID {
			fields["username"] = usernameTaken
		}
	}
	if in.Email != user.Email {
		other, err := s.userRepo.FindByEmail(ctx, in.Email)
		if err != nil {
			return fmt.Errorf("メールアドレスの確認に失敗しました: %w", err)
		}
		if other != nil && other.ID != user.ID {
			fields["email"] = emailTaken
		}
	}
	return nil
}
