package gateway

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/docgate/internal/apperr"
	"github.com/nao1215/docgate/internal/eventstore"
	"github.com/nao1215/docgate/internal/operation"
	"github.com/nao1215/docgate/pkg/event"
	"github.com/nao1215/docgate/pkg/middleware"
)

// credentials は登録・ログインのリクエスト本文。
type credentials struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
}

// newUser は管理者によるユーザー追加のリクエスト本文。
type newUser struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
	Role     string `json:"role"`
}

// handleRegister は一般ユーザーを登録するハンドラを返す。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentials
		if err := c.ShouldBindJSON(&req); err != nil {
			c.String(http.StatusBadRequest, "リクエスト本文が不正です")
			return
		}
		if err := s.accounts.Register(c.Request.Context(), req.Identity, req.Secret); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"identity": req.Identity, "role": "user"})
	}
}

// handleLogin は資格情報を検証してトークンを返すハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentials
		if err := c.ShouldBindJSON(&req); err != nil {
			c.String(http.StatusBadRequest, "リクエスト本文が不正です")
			return
		}
		tok, err := s.accounts.Login(c.Request.Context(), req.Identity, req.Secret)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": tok})
	}
}

// handleAddUser は管理者がユーザーを追加するハンドラを返す。
func (s *Server) handleAddUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req newUser
		if err := c.ShouldBindJSON(&req); err != nil {
			c.String(http.StatusBadRequest, "リクエスト本文が不正です")
			return
		}
		if err := s.accounts.AddUser(c.Request.Context(), req.Identity, req.Secret, req.Role); err != nil {
			writeError(c, err)
			return
		}
		role := req.Role
		if role == "" {
			role = "user"
		}
		c.JSON(http.StatusCreated, gin.H{"identity": req.Identity, "role": role})
	}
}

// handleListUsers は全ユーザーの識別子とロールを返すハンドラを返す。
func (s *Server) handleListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := s.accounts.List(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

// handleAggregateEvents はリクエストIDまたはユーザー識別子に紐づくイベントを返すハンドラを返す。
func (s *Server) handleAggregateEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := s.events.ByAggregate(c.Request.Context(), c.Param("aggregate_id"))
		if err != nil {
			writeError(c, apperr.Wrap(apperr.KindInternal, err, "イベントの取得に失敗"))
			return
		}
		c.JSON(http.StatusOK, events)
	}
}

// handleFindEvents はイベントタイプと日時でイベントを検索するハンドラを返す。
// クエリパラメータ: type, since（RFC3339）, limit
func (s *Server) handleFindEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		q := eventstore.Query{Type: event.Type(c.Query("type"))}
		if v := c.Query("since"); v != "" {
			since, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.String(http.StatusBadRequest, "sinceはRFC3339形式で指定してください")
				return
			}
			q.Since = since
		}
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.String(http.StatusBadRequest, "limitは正の整数で指定してください")
				return
			}
			q.Limit = n
		}

		events, err := s.events.Find(c.Request.Context(), q)
		if err != nil {
			writeError(c, apperr.Wrap(apperr.KindInternal, err, "イベントの取得に失敗"))
			return
		}
		c.JSON(http.StatusOK, events)
	}
}

// limitBody はリクエスト本文の大きさを制限するミドルウェアを返す。
func (s *Server) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadSize)
		c.Next()
	}
}

// handleOperation はマルチパートで受け取ったファイルに文書操作を適用するハンドラを返す。
// 単一入力の種別はフィールド file、複数入力の種別は files からファイルを読む。
// それ以外のフォームフィールドはすべて操作パラメータとして渡す。
func (s *Server) handleOperation(kind operation.Kind) gin.HandlerFunc {
	field := "file"
	if kind.MultiInput() {
		field = "files"
	}

	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.String(http.StatusRequestEntityTooLarge, "ファイルが大きすぎます（上限 %d MB）", s.maxUploadSize>>20)
				return
			}
			c.String(http.StatusBadRequest, "multipart/form-dataで送信してください")
			return
		}
		// メモリに収まらなかったパートの一時ファイルを削除する。
		defer func() {
			if err := form.RemoveAll(); err != nil {
				log.Printf("[Gateway] マルチパートの一時ファイル削除に失敗: %v", err)
			}
		}()

		inputs, err := readInputs(form.File[field])
		if err != nil {
			writeError(c, err)
			return
		}
		params := make(map[string]string, len(form.Value))
		for k, v := range form.Value {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}

		req := &operation.Request{
			ID:     uuid.NewString(),
			Kind:   kind,
			Inputs: inputs,
			Params: params,
			Caller: middleware.GetPrincipal(c),
		}
		log.Printf("[Gateway] 受付: %s", req)
		c.Header("X-Request-ID", req.ID)

		res, err := s.dispatcher.Execute(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, res.Filename))
		c.Data(http.StatusOK, res.ContentType, res.Data)
	}
}

// readInputs はアップロードされたファイルを送信順に読み込む。
func readInputs(headers []*multipart.FileHeader) ([]operation.Input, error) {
	inputs := make([]operation.Input, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, err, "アップロードされたファイルを開けません")
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, err, "アップロードされたファイルを読み込めません")
		}
		inputs = append(inputs, operation.Input{Name: fh.Filename, Data: data})
	}
	return inputs, nil
}

// writeError はエラーを分類に応じたステータスコードとプレーンテキストで返す。
// 内部エラーの詳細はログにだけ出す。
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		log.Printf("[Gateway] 内部エラー: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.String(apperr.HTTPStatus(kind), "%s", apperr.MessageOf(err))
}
