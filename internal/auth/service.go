// Package auth はパスワード認証、セッション管理、パスワードリセットを提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/blogman/internal/mail"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/repository"
)

// ResetMailSubject はパスワードリセットメールの件名。
const ResetMailSubject = "Password Reset Request"

// mailTimeout はメール送信1回あたりのタイムアウト。
const mailTimeout = 10 * time.Second

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int    // セッション有効期間（秒）
	BcryptCost    int    // パスワードハッシュのコスト
	MailSender    string // リセットメールの送信元アドレス
}

// SignupInput はユーザー登録の入力値。
type SignupInput struct {
	Username string
	Email    string
	Password string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	mailer      mail.Sender
	tokens      *ResetTokens
	config      ServiceConfig

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	mailer mail.Sender,
	tokens *ResetTokens,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		mailer:      mailer,
		tokens:      tokens,
		config:      config,
	}
}

// Signup は新規ユーザーを登録する。
// ユーザー名・メールアドレスが使用済みの場合はフィールド別のバリデーションエラーを返す。
func (s *Service) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	fields := map[string]string{}

	existing, err := s.userRepo.FindByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		fields["username"] = "That username is taken. Please choose a different one."
	}

	existing, err = s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		fields["email"] = "That email is taken. Please choose a different one."
	}

	if len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}

	hash, err := HashPassword(in.Password, s.config.BcryptCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Avatar:       model.DefaultAvatar,
		ImageCover:   model.DefaultImageCover,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if apiErr := uniqueFieldError(err); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user signed up",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// uniqueFieldError は同時登録による一意制約違反をバリデーションエラーに変換する。
func uniqueFieldError(err error) *model.APIError {
	switch {
	case errors.Is(err, repository.ErrUsernameTaken):
		return model.NewValidationError(map[string]string{
			"username": "That username is taken. Please choose a different one.",
		})
	case errors.Is(err, repository.ErrEmailTaken):
		return model.NewValidationError(map[string]string{
			"email": "That email is taken. Please choose a different one.",
		})
	}
	return nil
}

// Login はユーザー名とパスワードを検証し、セッションを発行する。
// ユーザーが存在しない場合とパスワードが誤っている場合は同じエラーを返す。
func (s *Service) Login(ctx context.Context, username, password string) (*model.Session, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		// 応答時間からユーザーの存在を推測されないよう、ダミーのハッシュと比較する
		VerifyPassword(password, s.dummyPasswordHash())
		return nil, model.NewInvalidCredentialsError()
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return session, nil
}

func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := HashPassword("blogman-dummy-password", s.config.BcryptCost)
		if err != nil {
			slog.Error("failed to prepare dummy password hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが存在しない・期限切れ・ユーザー不在の場合はnil, nilを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// IssueResetToken はユーザーのパスワードリセットトークンを発行する。
func (s *Service) IssueResetToken(user *model.User) (string, error) {
	return s.tokens.Issue(user)
}

// VerifyResetToken はリセットトークンを検証し、対象ユーザーを返す。
// 不正・期限切れ・使用済み・ユーザー不在のいずれの場合もnil, nilを返す。
// エラーはデータベース障害の場合のみ返す。
func (s *Service) VerifyResetToken(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.tokens.parse(token)
	if err != nil {
		slog.Debug("reset token rejected", slog.String("reason", err.Error()))
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !claims.matches(user) {
		return nil, nil
	}
	return user, nil
}

// RequestPasswordReset はメールアドレスに対応するユーザーへリセットメールを送信する。
// 未登録のメールアドレスはエラーにせず何もしない。
// resetURLはトークンからリセット用URLを組み立てる。
// 送信に失敗した場合はmodel.ErrMailDeliveryを返す。
func (s *Service) RequestPasswordReset(ctx context.Context, email string, resetURL func(token string) string) error {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		slog.Info("password reset requested for unknown email")
		return nil
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return err
	}

	msg := mail.Message{
		From:    s.config.MailSender,
		To:      user.Email,
		Subject: ResetMailSubject,
		Body: fmt.Sprintf(
			"To reset your password, visit the following link:\n%s\n\n"+
				"If you did not make this request then simply ignore this email and no changes will be made.\n",
			resetURL(token),
		),
	}

	sendCtx, cancel := context.WithTimeout(ctx, mailTimeout)
	defer cancel()

	if err := s.mailer.Send(sendCtx, msg); err != nil {
		slog.Error("failed to send password reset mail",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %v", model.ErrMailDelivery, err)
	}

	slog.Info("password reset mail sent", slog.String("user_id", user.ID))
	return nil
}

// ResetPassword はトークンを検証して新しいパスワードを設定する。
// 成功するとトークンは使用済みとなり、既存のセッションは全て破棄される。
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	user, err := s.VerifyResetToken(ctx, token)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrInvalidResetToken
	}

	hash, err := HashPassword(newPassword, s.config.BcryptCost)
	if err != nil {
		return err
	}

	if err := s.userRepo.ResetPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	slog.Info("password reset completed", slog.String("user_id", user.ID))
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
