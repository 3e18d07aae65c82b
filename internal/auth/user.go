package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

type userKeyType struct{}

var userKey userKeyType

// User is the authenticated caller. Username owns the review jobs it submits.
type User struct {
	Username     string
	Organization string
	Token        *jwt.Token
}

func UserFromContext(ctx context.Context) (User, bool) {
	val := ctx.Value(userKey)
	if val == nil {
		return User{}, false
	}
	return val.(User), true
}

func NewUserContext(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}
