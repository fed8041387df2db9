package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smquiz/quiz-backend/internal/response"
	"github.com/smquiz/quiz-backend/internal/service"
)

// ContextKeyClaims is the Gin context key for JWT claims.
const ContextKeyClaims = "claims"

var errNoToken = errors.New("no bearer token")

// tokenSource pulls a raw token out of a request, or returns "".
type tokenSource func(c *gin.Context) string

func fromHeader(c *gin.Context) string {
	scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// fromQuery serves clients that cannot set headers: EventSource and the
// browser WebSocket API.
func fromQuery(c *gin.Context) string {
	return c.Query("token")
}

// RequireStudentJWT admits student tokens only.
func RequireStudentJWT(authService *service.AuthService) gin.HandlerFunc {
	return authenticate(authService, service.TokenTypeStudent, fromHeader, fromQuery)
}

// RequireAdminJWT admits staff tokens only.
func RequireAdminJWT(authService *service.AuthService) gin.HandlerFunc {
	return authenticate(authService, service.TokenTypeAdmin, fromHeader, fromQuery)
}

// RequireAnyJWT admits any valid token.
func RequireAnyJWT(authService *service.AuthService) gin.HandlerFunc {
	return authenticate(authService, "", fromHeader, fromQuery)
}

// RequireStudentWSAuth admits student tokens passed as ?token= on the
// WebSocket upgrade request.
func RequireStudentWSAuth(authService *service.AuthService) gin.HandlerFunc {
	return authenticate(authService, service.TokenTypeStudent, fromQuery)
}

// authenticate validates the first token found in sources. An empty want
// accepts either token type.
func authenticate(authService *service.AuthService, want service.TokenType, sources ...tokenSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := validate(c, authService, sources)
		if err != nil {
			abortTokenError(c, err)
			return
		}

		if want != "" && claims.TokenType != want {
			code := response.ErrStudentAccessOnly
			if want == service.TokenTypeAdmin {
				code = response.ErrAdminAccessOnly
			}
			response.AbortFail(c, http.StatusForbidden, code)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

func validate(c *gin.Context, authService *service.AuthService, sources []tokenSource) (*service.Claims, error) {
	for _, source := range sources {
		if token := source(c); token != "" {
			return authService.ValidateToken(token)
		}
	}
	return nil, errNoToken
}

func abortTokenError(c *gin.Context, err error) {
	code := response.ErrTokenInvalid
	switch {
	case errors.Is(err, errNoToken):
		code = response.ErrTokenRequired
	case errors.Is(err, service.ErrTokenExpired):
		code = response.ErrTokenExpired
	}
	response.AbortFail(c, http.StatusUnauthorized, code)
}

// GetClaims returns the claims stored by the auth middlewares, or nil.
func GetClaims(c *gin.Context) *service.Claims {
	val, ok := c.Get(ContextKeyClaims)
	if !ok {
		return nil
	}
	claims, _ := val.(*service.Claims)
	return claims
}
