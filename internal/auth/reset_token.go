package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/blogman/internal/model"
)

// ErrInvalidResetToken はリセットトークンが不正・期限切れ・使用済みであることを表す。
var ErrInvalidResetToken = errors.New("invalid or expired reset token")

// resetClaims はパスワードリセットトークンのクレーム。
// Fingerprintは発行時点のパスワードハッシュから導出するため、
// パスワード変更後はトークンが一致しなくなる。
type resetClaims struct {
	jwt.RegisteredClaims
	Fingerprint string `json:"pwd"`
}

// ResetTokens はパスワードリセットトークンの発行と検証を行う。
type ResetTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewResetTokens はResetTokensを生成する。
func NewResetTokens(secret string, ttl time.Duration) *ResetTokens {
	return &ResetTokens{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue はユーザーのリセットトークンを発行する。
func (t *ResetTokens) Issue(user *model.User) (string, error) {
	now := t.now()
	claims := resetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Fingerprint: passwordFingerprint(user.PasswordHash),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign reset token: %w", err)
	}
	return token, nil
}

// parse はトークンの署名・アルゴリズム・有効期限を検証し、クレームを返す。
func (t *ResetTokens) parse(token string) (*resetClaims, error) {
	claims := &resetClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResetToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidResetToken
	}
	return claims, nil
}

// matches はクレームのフィンガープリントがユーザーの現在のパスワードと一致するかを返す。
func (c *resetClaims) matches(user *model.User) bool {
	return c.Fingerprint == passwordFingerprint(user.PasswordHash)
}

func passwordFingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}
