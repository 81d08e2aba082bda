package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/opiskelu/palaute/core"
	"github.com/opiskelu/palaute/core/summary"
	"github.com/opiskelu/palaute/core/user"
)

const (
	jwtContextKey = "userToken"
)

// newJWTConfig is the JWT auth middleware config. Tokens are minted by the
// university login gateway; this API only verifies them.
func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    jwtContextKey,
		Claims:        new(Claims),
	}
}

// Claims represents the authorization claims transmitted via a JWT. The
// organisation access list is resolved by the IAM integration at login time
// and carried in the token.
type Claims struct {
	jwt.StandardClaims
	Username           string                        `json:"username,omitempty"`
	Email              string                        `json:"email,omitempty"`
	IsAdmin            bool                          `json:"is_admin,omitempty"`
	OrganisationAccess []summary.OrganisationAccess  `json:"org_access,omitempty"`
}

func GetUserClaims(conf *core.Config, usr user.User, isAdmin bool, orgAccess []summary.OrganisationAccess) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username:           usr.Username,
		Email:              usr.Email,
		IsAdmin:            isAdmin,
		OrganisationAccess: orgAccess,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(middleware.AlgorithmHS256)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(jwtContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}
