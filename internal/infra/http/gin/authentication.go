package ginserver

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/DanielNoblero/consultorios-app/internal/app/apperr"
)

const principalContextKey = "consultorios.principal"

var ErrTokenInvalid = errors.New("auth: invalid token")

// principal is the caller as asserted by the identity provider. Roles are
// not taken from the token: authorization reads the stored profile.
type principal struct {
	ID    string
	Email string
}

// Claims is the token body issued by the identity provider.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HMAC signed bearer tokens.
type TokenVerifier struct {
	Secret   []byte
	Issuer   string
	Leeway   time.Duration
	Audience string
}

func (v TokenVerifier) Verify(raw string) (principal, error) {
	if len(v.Secret) == 0 {
		return principal{}, fmt.Errorf("%w: verifier has no secret", ErrTokenInvalid)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.Leeway),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return v.Secret, nil }, opts...)
	if err != nil {
		return principal{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Subject == "" {
		return principal{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return principal{ID: claims.Subject, Email: claims.Email}, nil
}

// AuthMiddleware resolves the bearer token when one is sent. Requests
// without a valid token continue anonymously and are rejected by handlers
// that need a caller.
type AuthMiddleware struct {
	Verifier TokenVerifier
	Logger   *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.Next()
		return
	}
	p, err := m.Verifier.Verify(token)
	if err != nil {
		if m.Logger != nil {
			m.Logger.DebugContext(c.Request.Context(), "token validation failed", "error", err)
		}
		c.Next()
		return
	}
	c.Set(principalContextKey, p)
	c.Next()
}

func currentPrincipal(c *gin.Context) (principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok
}

// requireCaller writes 401 and reports false when the request is anonymous.
func requireCaller(c *gin.Context) (principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		writeError(c, apperr.ErrUnauthenticated)
		return principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
