package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxOperatorClaims = "operator_claims"

// OptionalOperator returns a Gin middleware that attaches operator claims when
// a Bearer token is present. Requests without a token pass through; a present
// but invalid token is rejected. No authorization policy is applied.
func OptionalOperator(tokens *OperatorTokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if tokens == nil || authHeader == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization must be a Bearer operator token",
			})
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid operator token: " + err.Error(),
			})
			return
		}

		c.Set(ctxOperatorClaims, claims)
		c.Next()
	}
}

// OperatorFromCtx returns the verified operator claims, or nil when the
// request carried no token.
func OperatorFromCtx(c *gin.Context) *OperatorClaims {
	v, ok := c.Get(ctxOperatorClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*OperatorClaims)
	return claims
}
