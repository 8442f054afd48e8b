package utils

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tnqbao/gau-ml-service/config"
)

const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
)

func ExtractToken(c *gin.Context) string {
	if token, err := c.Cookie("access_token"); err == nil && token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	parts := strings.Fields(authHeader)
	if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
		return parts[1]
	}
	return ""
}

func ParseToken(tokenString string, config *config.EnvConfig) (*jwt.Token, error) {
	secret := []byte(config.JWT.SecretKey)
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{config.JWT.Algorithm}))
}

// InjectClaimsToContext stores the numeric user id and the owner key (email,
// falling back to sub) for the handlers.
func InjectClaimsToContext(c *gin.Context, claims jwt.MapClaims) error {
	userID, err := parseUserID(claims["user_id"])
	if err != nil {
		return err
	}
	c.Set(ContextUserID, userID)

	email, _ := claims["email"].(string)
	if email == "" {
		email, _ = claims["sub"].(string)
	}
	if email == "" {
		email = strconv.FormatUint(uint64(userID), 10)
	}
	c.Set(ContextEmail, email)
	return nil
}

func parseUserID(v interface{}) (uint, error) {
	switch id := v.(type) {
	case float64:
		if id <= 0 || id != float64(uint(id)) {
			return 0, errors.New("invalid user_id value")
		}
		return uint(id), nil
	case string:
		parsed, err := strconv.ParseUint(id, 10, 64)
		if err != nil || parsed == 0 {
			return 0, errors.New("invalid user_id format")
		}
		return uint(parsed), nil
	}
	return 0, errors.New("user_id claim is missing")
}

func GetUserIDFromContext(c *gin.Context) (uint, error) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, errors.New("user_id is missing from context")
	}
	userID, ok := v.(uint)
	if !ok || userID == 0 {
		return 0, errors.New("invalid user_id type in context")
	}
	return userID, nil
}

func GetEmailFromContext(c *gin.Context) string {
	return c.GetString(ContextEmail)
}
