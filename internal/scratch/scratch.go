// Package scratch はリクエスト単位の一時ファイル（アーティファクト）を管理する。
//
// 1つのリクエストが作るファイルはすべてScopeに登録され、
// ハンドラは NewScope の直後に defer scope.Release() を置く。
// 成功・エラー・パニックのどの経路でも、登録されたパスの削除はちょうど1回だけ試みられる。
//
//	scope := manager.NewScope(requestID)
//	defer scope.Release()
//	in, err := scope.Stage("input.pdf", data)
package scratch

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Artifact はスクラッチディレクトリ上の一時ファイルを表す。
type Artifact struct {
	// Path はファイルの絶対パス。
	Path string
	// RequestID は所有するリクエストのID。
	RequestID string
	// CreatedAt はパスを確保した日時。
	CreatedAt time.Time
}

// Manager はスクラッチディレクトリとScopeの生成を管理する。
// 複数のリクエストから並行に利用してよい。
type Manager struct {
	dir      string
	staged   atomic.Int64
	released atomic.Int64
	// remove はファイル削除関数。テストで差し替える。
	remove func(string) error
}

// NewManager はスクラッチディレクトリを作成してManagerを返す。
// dirは絶対パスに正規化する。外部ツールに渡すパスが "-" で始まらないことを保証するため。
func NewManager(dir string) (*Manager, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("スクラッチディレクトリの解決に失敗: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("スクラッチディレクトリの作成に失敗: %w", err)
	}
	return &Manager{dir: abs, remove: os.Remove}, nil
}

// Dir はスクラッチディレクトリのパスを返す。
func (m *Manager) Dir() string {
	return m.dir
}

// Staged はこれまでに確保したアーティファクトの累計数を返す。
func (m *Manager) Staged() int64 {
	return m.staged.Load()
}

// Released はこれまでに削除を試みたアーティファクトの累計数を返す。
func (m *Manager) Released() int64 {
	return m.released.Load()
}

// NewScope はリクエスト1件分のScopeを生成する。
func (m *Manager) NewScope(requestID string) *Scope {
	return &Scope{manager: m, requestID: requestID}
}

// Scope は1リクエストが所有するアーティファクトの集合。
// Releaseで登録済みのすべてのパスを削除する。
type Scope struct {
	manager   *Manager
	requestID string

	mu        sync.Mutex
	artifacts []*Artifact
	released  bool
}

// Stage はペイロードを新しいパスに書き込み、アーティファクトとして登録する。
// nameはファイル名の末尾に使われ、ディレクトリ成分は取り除かれる。
func (s *Scope) Stage(name string, data []byte) (*Artifact, error) {
	a, err := s.track(name)
	if err != nil {
		return nil, err
	}

	// O_EXCLにより、万一パスが衝突しても他リクエストのファイルを上書きしない。
	f, err := os.OpenFile(a.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, fmt.Errorf("一時ファイルへの書き込みに失敗: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("一時ファイルのクローズに失敗: %w", err)
	}
	return a, nil
}

// Allocate は書き込みを行わずに新しいパスを確保して登録する。
// 外部ツールの出力先に使う。
func (s *Scope) Allocate(name string) (*Artifact, error) {
	return s.track(name)
}

// Sibling は既存のアーティファクトと同じ幹で拡張子だけ異なるパスを登録する。
// 出力ファイル名を入力ファイル名から決める外部ツールのために使う。
func (s *Scope) Sibling(a *Artifact, ext string) (*Artifact, error) {
	p := strings.TrimSuffix(a.Path, filepath.Ext(a.Path)) + ext
	return s.register(p)
}

// Artifacts は登録済みのアーティファクトの複製を返す。
func (s *Scope) Artifacts() []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Artifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		out = append(out, *a)
	}
	return out
}

// Release は登録済みのすべてのアーティファクトを削除する。
// 既に存在しないファイルは成功として扱い、それ以外の削除失敗はログに出すだけで返さない。
// 2回目以降の呼び出しは何もしない。
func (s *Scope) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	artifacts := s.artifacts
	s.artifacts = nil
	s.mu.Unlock()

	for _, a := range artifacts {
		s.manager.released.Add(1)
		err := s.manager.remove(a.Path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[Scratch] 一時ファイルの削除に失敗: request=%s path=%s error=%v", s.requestID, a.Path, err)
		}
	}
}

// track は衝突しない新しいパスを生成して登録する。
func (s *Scope) track(name string) (*Artifact, error) {
	return s.register(filepath.Join(s.manager.dir, uniqueName(name)))
}

func (s *Scope) register(p string) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil, errors.New("解放済みのスコープにはファイルを登録できません")
	}
	a := &Artifact{Path: p, RequestID: s.requestID, CreatedAt: time.Now()}
	s.artifacts = append(s.artifacts, a)
	s.manager.staged.Add(1)
	return a, nil
}

// uniqueName はナノ秒のタイムスタンプとUUIDを接頭辞にしたファイル名を返す。
// タイムスタンプは並び順の手掛かり、UUIDは同一時刻の衝突回避に使う。
func uniqueName(name string) string {
	base := sanitize(name)
	return strconv.FormatInt(time.Now().UnixNano(), 10) + "_" + uuid.NewString() + "_" + base
}

// sanitize はファイル名からディレクトリ成分と制御文字を取り除く。
func sanitize(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '/' {
			return '_'
		}
		return r
	}, base)
	if base == "." || base == ".." || base == "" || base == "/" {
		return "payload"
	}
	return base
}
