package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/edgegate/pkg/apiresponse"
)

// Fallback はどのルートにも一致しなかったリクエストに404を返すハンドラ。
func Fallback(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.reject(apiresponse.CodeNotFound)
		apiresponse.Abort(c, http.StatusNotFound, apiresponse.CodeNotFound, "Route not found")
	}
}
