package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/edgegate/pkg/apiresponse"
)

// Recovery はパニックから回復し、INTERNALエラーのエンベロープで500を返すGinミドルウェアを返す。
// レスポンスヘッダーを送信済みの場合は、それ以上書き込まずにチェーンを中断する。
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			written := c.Writer.Written()
			logger.Error("パニックから回復しました",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", GetRequestID(c)),
				zap.Bool("response_written", written),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			if written {
				c.Abort()
				return
			}
			apiresponse.Abort(c, http.StatusInternalServerError, apiresponse.CodeInternal, "内部サーバーエラーが発生しました")
		}()
		c.Next()
	}
}
