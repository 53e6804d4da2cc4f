package ports

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HTTPHandler interface {
	IngestMJPEG(c *gin.Context)
	GetFrame(c *gin.Context)
	StreamFrames(c *gin.Context)
	GetIngress(c *gin.Context)
}

type WebSocketHandler interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
}
