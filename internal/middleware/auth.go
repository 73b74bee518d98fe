package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"pam_service/internal/ledger"
)

const (
	ContextKeyUserID     = "auth_user_id"
	ContextKeyOperatorID = "auth_operator_id"
)

var ErrNoAuthContext = errors.New("no authenticated user in context")

// Auth validates the identity provider's bearer token and puts the user and
// operator ids on the gin context. The user and its balance row are created
// on first authentication.
func Auth(secret string, store ledger.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		userID, _ := claims["user_id"].(string)
		operatorID, _ := claims["operator_id"].(string)
		if userID == "" || operatorID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token missing identity claims"})
			return
		}

		if err := store.EnsureUser(c.Request.Context(), userID, operatorID); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to provision user"})
			return
		}

		c.Set(ContextKeyUserID, userID)
		c.Set(ContextKeyOperatorID, operatorID)
		c.Next()
	}
}

func Identity(c *gin.Context) (userID, operatorID string, err error) {
	uid, ok := c.Get(ContextKeyUserID)
	if !ok {
		return "", "", ErrNoAuthContext
	}
	oid, ok := c.Get(ContextKeyOperatorID)
	if !ok {
		return "", "", ErrNoAuthContext
	}
	return uid.(string), oid.(string), nil
}
