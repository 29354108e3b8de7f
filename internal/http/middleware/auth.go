package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-refund-backend/internal/auth"
)

const (
	// ctxKeyUserID holds the merchant id; the rate limiter and idempotency
	// validator key by it.
	ctxKeyUserID   = "userID"
	ctxKeyIdentity = "auth.identity"
)

// RequireMerchant authenticates the Authorization header with a and stores
// the identity in the context. Failures abort with 401.
func RequireMerchant(a auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := a.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			LoggerFrom(c).Debug().Err(err).Msg("authentication failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "unauthorized",
			})
			return
		}
		c.Set(ctxKeyIdentity, id)
		c.Set(ctxKeyUserID, id.MerchantID)
		withLogFields(c, "merchant_id", id.MerchantID)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by RequireMerchant.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}
