package middleware

import (
	"net/http"
	"strings"

	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Context keys set by RequireRole
const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
)

const accessTokenCookie = "access_token"

// Auth validates HS256 tokens issued by the login endpoint
type Auth struct {
	secret []byte
	secure bool // cookies carry Secure and SameSite=None
}

func NewAuth(secret []byte, secureCookies bool) *Auth {
	return &Auth{secret: secret, secure: secureCookies}
}

// Secret exposes the signing key for the websocket handshake
func (a *Auth) Secret() []byte {
	return a.secret
}

// SetTokenCookie stores the access token as an HttpOnly cookie
func (a *Auth) SetTokenCookie(c *gin.Context, accessToken string, maxAge int) {
	a.cookieMode(c)
	c.SetCookie(accessTokenCookie, accessToken, maxAge, "/", "", a.secure, true)
}

// ClearTokenCookie removes the access token cookie
func (a *Auth) ClearTokenCookie(c *gin.Context) {
	a.cookieMode(c)
	c.SetCookie(accessTokenCookie, "", -1, "/", "", a.secure, true)
}

func (a *Auth) cookieMode(c *gin.Context) {
	if a.secure {
		c.SetSameSite(http.SameSiteNoneMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}
}

// ParseToken validates tokenString and returns the subject and role claims
func (a *Auth) ParseToken(tokenString string) (uuid.UUID, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		return uuid.Nil, "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, "", jwt.ErrTokenInvalidClaims
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, "", err
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, "", jwt.ErrTokenInvalidSubject
	}
	role, _ := claims["role"].(string)
	return userID, role, nil
}

// RequireRole validates the JWT from the cookie or Authorization header and checks
// the role claim against allowedRoles. An empty list admits any authenticated user.
func (a *Auth) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, cookieErr := c.Cookie(accessTokenCookie)
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
				return
			}
			tokenString = parts[1]
		}

		userID, role, err := a.ParseToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token: "+err.Error()))
			return
		}

		if len(allowedRoles) > 0 && !contains(allowedRoles, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextUserRole, role)
		c.Next()
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// UserID returns the authenticated user set by RequireRole
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
