package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// recoveredMessage はパニック発生時にクライアントへ返す本文。
const recoveredMessage = "内部サーバーエラーが発生しました"

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック発生時にログを出力し、500エラーをプレーンテキストで返す。
// 既にレスポンスの送信が始まっている場合は本文を追記せず中断だけ行う。
// ハンドラ内でdeferした後始末はパニック時にも実行されるため、ここでは扱わない。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[PANIC] %s %s: %v", c.Request.Method, c.Request.URL.Path, r)
				if c.Writer.Written() {
					c.Abort()
					return
				}
				c.String(http.StatusInternalServerError, recoveredMessage)
				c.Abort()
			}
		}()
		c.Next()
	}
}
