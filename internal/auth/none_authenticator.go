package auth

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// NoneAuthenticator lets every request through as the local admin user.
type NoneAuthenticator struct{}

func NewNoneAuthenticator() (*NoneAuthenticator, error) {
	return &NoneAuthenticator{}, nil
}

func (n *NoneAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"org_id": "internal",
			"sub":    "admin",
		})
		token.Raw = "fake-raw-token"

		ctx := NewUserContext(r.Context(), User{
			Username:     "admin",
			Organization: "internal",
			Token:        token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
