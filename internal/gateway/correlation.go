package gateway

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/edgegate/pkg/middleware"
)

// Correlation はリクエストに相関IDを割り当てるミドルウェアを返す。
// X-Request-IDヘッダーが空白以外を含めばそのまま使い、無ければUUIDを生成する。
// 割り当てたIDはレスポンスヘッダーにも設定する。
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(middleware.HeaderRequestID)
		if strings.TrimSpace(id) == "" {
			id = uuid.NewString()
		}
		middleware.SetRequestID(c, id)
		c.Header(middleware.HeaderRequestID, id)
		c.Next()
	}
}

// CorrelationID はリクエストに割り当てられた相関IDを返す。
func CorrelationID(c *gin.Context) string {
	return middleware.GetRequestID(c)
}
