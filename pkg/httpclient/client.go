package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/docgate/pkg/event"
)

// Client はdocgateゲートウェイのHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL はゲートウェイのベースURL。
	baseURL string
	// token はAuthorizationヘッダーに付けるトークン。空なら付けない。
	token string
}

// New は新しいクライアントを生成する。
// baseURLにはゲートウェイのベースURL（例: "http://localhost:8080"）を指定する。
// 外部ツールを使う操作は時間がかかるため、タイムアウトはサーバー側の上限より長くとる。
func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// WithToken はトークンを設定したクライアントの複製を返す。
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// StatusError はゲートウェイが2xx以外を返したことを表す。
type StatusError struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Message はレスポンス本文（プレーンテキストのエラーメッセージ）。
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTPエラー: status=%d, body=%s", e.StatusCode, e.Message)
}

// User はユーザー一覧の1件。
type User struct {
	Identity string `json:"identity" yaml:"identity"`
	Role     string `json:"role" yaml:"role"`
}

// File はアップロードするファイル。
type File struct {
	// Name は送信するファイル名。拡張子は変換の可否判定に使われる。
	Name string
	// Data はファイルの内容。
	Data []byte
}

// Result は文書操作の結果。
type Result struct {
	// Data は生成されたPDF。
	Data []byte
	// RequestID はゲートウェイが採番したリクエストID。イベントの参照に使う。
	RequestID string
}

// multiInputKinds は複数ファイルをfilesフィールドで受け付ける操作種別。
var multiInputKinds = map[string]bool{
	"merge":      true,
	"imageToDoc": true,
}

// Register は一般ユーザーとして登録する。
func (c *Client) Register(ctx context.Context, identity, secret string) error {
	body := map[string]string{"identity": identity, "secret": secret}
	return c.doJSON(ctx, http.MethodPost, "/operation/register", body, nil)
}

// Login はトークンを取得する。
func (c *Client) Login(ctx context.Context, identity, secret string) (string, error) {
	body := map[string]string{"identity": identity, "secret": secret}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/operation/login", body, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// AddUser は管理者としてユーザーを追加する。roleが空ならuserになる。
func (c *Client) AddUser(ctx context.Context, identity, secret, role string) error {
	body := map[string]string{"identity": identity, "secret": secret, "role": role}
	return c.doJSON(ctx, http.MethodPost, "/operation/admin/add-user", body, nil)
}

// ListUsers は管理者として全ユーザーを取得する。
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.doJSON(ctx, http.MethodGet, "/operation/admin/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Events はリクエストIDまたはユーザー識別子に紐づくイベントを取得する。
func (c *Client) Events(ctx context.Context, aggregateID string) ([]event.Event, error) {
	var events []event.Event
	path := "/operation/admin/events/" + url.PathEscape(aggregateID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// EventQuery はイベント検索の条件。ゼロ値の項目は送らない。
type EventQuery struct {
	Type  string
	Since time.Time
	Limit int
}

// FindEvents はイベントタイプと日時でイベントを検索する。
func (c *Client) FindEvents(ctx context.Context, q EventQuery) ([]event.Event, error) {
	v := url.Values{}
	if q.Type != "" {
		v.Set("type", q.Type)
	}
	if !q.Since.IsZero() {
		v.Set("since", q.Since.UTC().Format(time.RFC3339))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/operation/admin/events"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	var events []event.Event
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Operate はファイルをアップロードして文書操作を実行する。
func (c *Client) Operate(ctx context.Context, kind string, files []File, params map[string]string) (*Result, error) {
	field := "file"
	if multiInputKinds[kind] {
		field = "files"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		fw, err := mw.CreateFormFile(field, f.Name)
		if err != nil {
			return nil, fmt.Errorf("フォームの作成に失敗: %w", err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			return nil, fmt.Errorf("フォームの作成に失敗: %w", err)
		}
	}
	for k, v := range params {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("フォームの作成に失敗: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("フォームの作成に失敗: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/operation/"+url.PathEscape(kind), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}
	return &Result{Data: data, RequestID: resp.Header.Get("X-Request-ID")}, nil
}

// doJSON はJSON形式のHTTPリクエストを実行する共通処理。
func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := c.newRequest(ctx, method, path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// checkStatus は2xx以外のレスポンスをStatusErrorに変換する。
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
