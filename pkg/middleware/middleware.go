package middleware

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"

	"github.com/wadispatch/pkg/constant"
	"github.com/wadispatch/pkg/state"
)

func ClaimIp() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(state.CurrentOwnerIP, c.ClientIP())
		c.Next()
	}
}

// Admin guards operator endpoints with the shared ADMIN_KEY header.
func Admin() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := os.Getenv("ADMIN_KEY")
		if key == "" || c.GetHeader("admin_key") != key {
			c.JSON(401, gin.H{"error": constant.UNAUTHORIZED_ACCESS})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CheckAuth resolves the owner account from a bearer token. Browsers cannot
// set headers on websocket upgrades, so the token may also come as ?token=.
func CheckAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if token := c.Query("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		if authHeader == "" {
			c.JSON(401, gin.H{"error": constant.TOKEN_REQUIRED})
			c.Abort()
			return
		}

		authToken := strings.Split(authHeader, " ")
		if len(authToken) != 2 || authToken[0] != "Bearer" {
			c.JSON(400, gin.H{"error": constant.INVALID_TOKEN})
			c.Abort()
			return
		}

		// An empty key would verify tokens signed with an empty key.
		secret := os.Getenv("SECRET")
		if secret == "" {
			c.JSON(401, gin.H{"error": constant.UNAUTHORIZED_ACCESS})
			c.Abort()
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(authToken[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.JSON(401, gin.H{"error": constant.INVALID_TOKEN})
			c.Abort()
			return
		}

		if exp, ok := claims["exp"].(float64); !ok || float64(time.Now().Unix()) > exp {
			c.JSON(401, gin.H{"error": constant.TOKEN_EXPIRED})
			c.Abort()
			return
		}

		ownerID, ok := claims["id"].(float64)
		if !ok || ownerID <= 0 {
			c.JSON(401, gin.H{"error": constant.INVALID_TOKEN})
			c.Abort()
			return
		}
		c.Set(state.CurrentOwnerID, uint(ownerID))

		c.Next()
	}
}
