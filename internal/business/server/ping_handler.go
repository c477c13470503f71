package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	slogctx "github.com/veqryn/slog-context"
)

func pingHandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		slogctx.Debug(c.Request.Context(), "Answering ping")
		c.JSON(http.StatusOK, gin.H{"result": "ping"})
	}
}
