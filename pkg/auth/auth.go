package auth

import (
	"context"
	"os"

	"github.com/golang-jwt/jwt/v4"
)

const (
	XUserNameHeader = "X-User-Name"
	XUserRoleHeader = "X-User-Role"
)

// JWTKey signs and verifies access tokens. Override via JWT_KEY.
var JWTKey = []byte("library-service-key")

func init() {
	if key := os.Getenv("JWT_KEY"); key != "" {
		JWTKey = []byte(key)
	}
}

type Claims struct {
	Profile struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	} `json:"profile"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type ctxKey int

const (
	userNameKey ctxKey = iota + 1
	userRoleKey
)

func SetAuthContext(ctx context.Context, username, role string) context.Context {
	ctx = context.WithValue(ctx, userNameKey, username)
	return context.WithValue(ctx, userRoleKey, role)
}

func UserName(ctx context.Context) string {
	name, _ := ctx.Value(userNameKey).(string)
	return name
}

func UserRole(ctx context.Context) string {
	role, _ := ctx.Value(userRoleKey).(string)
	return role
}
