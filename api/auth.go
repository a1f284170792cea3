package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

type tokenClaims struct {
	Subject   string
	ExpiresAt int64
}

func parseJwt(jwtStr string, decodeToken string) (*tokenClaims, error) {
	token, err := jwt.Parse(jwtStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(decodeToken), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("failed to parse claims")
	}
	// jwt.Parse already rejects expired tokens, but a token without exp is
	// accepted there
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, fmt.Errorf("token has no expiry")
	}
	sub, _ := claims["sub"].(string)

	return &tokenClaims{
		Subject:   sub,
		ExpiresAt: int64(exp),
	}, nil
}

// authMiddleware requires an HS256 bearer token when a decode token is
// configured. Without one the API is open.
func (m ApiHandler) authMiddleware(c *gin.Context) {
	if m.JwtDecodeToken == "" {
		c.Next()
		return
	}

	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		returnErrorJsonCode(fmt.Errorf("missing bearer token"), c, http.StatusUnauthorized)
		return
	}
	claims, err := parseJwt(strings.TrimPrefix(header, "Bearer "), m.JwtDecodeToken)
	if err != nil {
		returnErrorJsonCode(err, c, http.StatusUnauthorized)
		return
	}

	c.Set("userID", claims.Subject)
	c.Next()
}
