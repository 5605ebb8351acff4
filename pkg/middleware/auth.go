package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Verifier はトークンを検証し、呼び出し元の識別子とロールを返す。
// 検証に失敗した場合はerrを返す。
type Verifier interface {
	Identify(tokenString string) (identity, role string, err error)
}

// Principal は検証済みの呼び出し元を表す。
type Principal struct {
	// Identity はユーザーの識別子。
	Identity string
	// Role はユーザーのロール。
	Role string
}

const (
	// keyIdentity はGinコンテキストに識別子を格納するキー。
	keyIdentity = "identity"
	// keyRole はGinコンテキストにロールを格納するキー。
	keyRole = "role"
)

// principalKey はcontext.Contextに呼び出し元を格納するためのキー型。
type principalKey struct{}

// WithPrincipal はコンテキストに呼び出し元を設定する。
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext はコンテキストから呼び出し元を取り出す。
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Authenticate はベアラートークンを検証するGinミドルウェアを返す。
// トークンが無い、または検証に失敗した場合は401を返す。
// 成功した場合、Ginコンテキストとリクエストのcontext.Contextの両方に呼び出し元を設定する。
func Authenticate(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || tokenString == "" {
			abortText(c, http.StatusUnauthorized, "認証が必要です")
			return
		}

		identity, role, err := v.Identify(tokenString)
		if err != nil {
			abortText(c, http.StatusUnauthorized, "トークンが無効です")
			return
		}

		p := Principal{Identity: identity, Role: role}
		c.Set(keyIdentity, p.Identity)
		c.Set(keyRole, p.Role)
		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// RequireRole は呼び出し元のロールを検査するGinミドルウェアを返す。
// Authenticateの後に置く必要がある。
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetPrincipal(c).Role != role {
			abortText(c, http.StatusForbidden, "権限がありません")
			return
		}
		c.Next()
	}
}

// GetPrincipal はGinコンテキストから呼び出し元を取得する。
// Authenticateが適用されていない場合はゼロ値を返す。
func GetPrincipal(c *gin.Context) Principal {
	return Principal{
		Identity: c.GetString(keyIdentity),
		Role:     c.GetString(keyRole),
	}
}

// abortText はプレーンテキストの本文でリクエストを中断する。
func abortText(c *gin.Context, status int, msg string) {
	c.String(status, msg)
	c.Abort()
}
