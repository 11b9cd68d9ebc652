package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxTokenClaims = "powchain_token_claims"

// RequireToken returns a Gin middleware that enforces a valid Bearer token
// carrying scope.
//
// On success it injects the *WriteTokenClaims into the context under the
// "powchain_token_claims" key.
func RequireToken(tokens *TokenIssuer, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}
		if !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "token lacks scope " + scope,
			})
			return
		}

		c.Set(ctxTokenClaims, claims)
		c.Next()
	}
}

// ClaimsFromCtx retrieves the token claims injected by RequireToken.
func ClaimsFromCtx(c *gin.Context) *WriteTokenClaims {
	v, _ := c.Get(ctxTokenClaims)
	claims, _ := v.(*WriteTokenClaims)
	return claims
}
