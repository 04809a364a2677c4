package identity

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/mbeoliero/chatsync/pkg/errcode"
)

// Provider supplies the current authenticated user's identifier. The engine
// never authenticates; it only needs to know who "mine" is.
type Provider interface {
	CurrentUserId() string
}

// Static is a Provider with a fixed user id.
type Static struct {
	UserId string
}

// CurrentUserId returns the fixed user id
func (s Static) CurrentUserId() string {
	return s.UserId
}

// NewStatic creates a Static provider
func NewStatic(userId string) Static {
	return Static{UserId: userId}
}

// FromToken derives a Static provider from the subject claim of an access
// token. The token is parsed without signature verification: the client is
// reading its own credential, not authenticating anyone.
func FromToken(token string) (Static, error) {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return Static{}, errcode.ErrInvalidParam.Wrap(err)
	}
	if claims.Subject == "" {
		return Static{}, errcode.ErrInvalidParam.Wrap(jwt.ErrTokenRequiredClaimMissing)
	}
	return Static{UserId: claims.Subject}, nil
}
