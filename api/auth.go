package api

import (
	"crypto"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"bidhall/models"
)

const (
	contextKeyClaims = "claims"
	accessTokenName  = "access_token"
)

// JWT 存取權杖的內容，Subject 為使用者 id
type JWT struct {
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

func ParseAndValidateJWT(tokenString string, secret crypto.Signer, opts ...jwt.ParserOption) (*JWT, error) {
	const op = "ParseJWT"
	opts = append([]jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()})}, opts...)
	token, err := jwt.ParseWithClaims(tokenString, &JWT{}, func(token *jwt.Token) (interface{}, error) {
		return secret.Public(), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%s: token is invalid", op)
	}
	claims, ok := token.Claims.(*JWT)
	if !ok {
		return nil, fmt.Errorf("%s: token claims are invalid", op)
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, fmt.Errorf("%s: invalid subject: %w", op, err)
	}
	return claims, nil
}

// SignJWT 簽發存取權杖，權杖的發行由外部的登入服務負責，這裡只用於維運工具與測試
func SignJWT(user *models.User, config AuthConfig, ttl time.Duration) (string, error) {
	const op = "SignJWT"
	now := time.Now()
	claims := JWT{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    config.Issuer,
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
		},
	}
	if config.Audience != "" {
		claims.Audience = []string{config.Audience}
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(config.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to sign JWT, err=%w", op, err)
	}
	return token, nil
}

// bearerToken 依序從 Authorization header、cookie、query 取得權杖
// EventSource 無法自訂 header，SSE 連線只能用後兩者
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token, err := c.Cookie(accessTokenName); err == nil && token != "" {
		return token
	}
	return c.Query(accessTokenName)
}

// AuthMiddleware 驗證存取權杖，通過後將 claims 放入 context
func (impl *ServerImpl) AuthMiddleware() gin.HandlerFunc {
	var opts []jwt.ParserOption
	if impl.config.Auth.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(impl.config.Auth.Issuer))
	}
	if impl.config.Auth.Audience != "" {
		opts = append(opts, jwt.WithAudience(impl.config.Auth.Audience))
	}
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authentication required"})
			return
		}
		claims, err := ParseAndValidateJWT(token, impl.config.Auth.PrivateKey, opts...)
		if err != nil {
			impl.logger.Debug("Fail to parse and validate JWT", slog.Any("error", err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
			return
		}
		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

// AdminMiddleware 只允許管理員通過，必須放在 AuthMiddleware 之後
func (impl *ServerImpl) AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claimsOf(c).Role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Admin access required"})
			return
		}
		c.Next()
	}
}

func claimsOf(c *gin.Context) *JWT {
	return c.MustGet(contextKeyClaims).(*JWT)
}

// currentUserID Subject 已在驗證時確認過格式
func currentUserID(c *gin.Context) uuid.UUID {
	return uuid.MustParse(claimsOf(c).Subject)
}
