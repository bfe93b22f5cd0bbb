package middleware

import (
	"github.com/gin-gonic/gin"
)

// Gin returns a gin middleware that sheds requests while c is too busy. The
// rejection is written by the configured reject handler and the chain is
// aborted.
func Gin(c Checker, opts ...Option) gin.HandlerFunc {
	cfg := newConfig(opts)
	return func(ctx *gin.Context) {
		if !c.TooBusy() {
			ctx.Next()
			return
		}
		cfg.logShed(ctx.Request)
		cfg.reject.ServeHTTP(ctx.Writer, ctx.Request)
		ctx.Abort()
	}
}
