// Package token は署名付きベアラートークンの発行と検証を行う。
//
// トークンはHS256で署名したJWTで、識別子・ロール・発行日時・有効期限を持つ。
// サーバー側に状態を持たず、検証は署名と有効期限のみで完結する。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// issuer はトークンのiss クレームに設定する値。
const issuer = "docgate"

// ErrInvalidToken はトークンが無い・壊れている・署名不一致・期限切れのいずれかを表す。
// 原因を区別せず単一のエラーとして扱う。
var ErrInvalidToken = errors.New("トークンが無効です")

// Claims はトークンのクレーム（ペイロード）を表す。
type Claims struct {
	jwt.RegisteredClaims
	// Identity は認証済みユーザーの識別子。
	Identity string `json:"identity"`
	// Role は認証済みユーザーのロール。
	Role string `json:"role"`
}

// Service はトークンの発行と検証を行う。
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService はプロセス全体で共有する秘密鍵と有効期間からServiceを生成する。
func NewService(secret string, ttl time.Duration) *Service {
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue は識別子とロールを含むトークンを発行する。
func (s *Service) Issue(identity, role string) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
		Identity: identity,
		Role:     role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、クレームを返す。
// 失敗の理由にかかわらずErrInvalidTokenを返す。
func (s *Service) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(_ *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid || claims.Identity == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Identify はトークンを検証し、識別子とロールを返す。middleware.Verifierとして使う。
func (s *Service) Identify(tokenString string) (identity, role string, err error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return "", "", err
	}
	return claims.Identity, claims.Role, nil
}
