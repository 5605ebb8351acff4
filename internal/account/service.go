// Package account は登録・ログイン・管理者によるユーザー追加を扱う。
package account

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/nao1215/docgate/internal/apperr"
	"github.com/nao1215/docgate/internal/credential"
	"github.com/nao1215/docgate/pkg/event"
	"github.com/nao1215/docgate/pkg/middleware"
	"golang.org/x/crypto/bcrypt"
)

// UserStore は資格情報ストアに求める操作。
type UserStore interface {
	Create(ctx context.Context, u credential.User) error
	Get(ctx context.Context, identity string) (credential.User, error)
	List(ctx context.Context) ([]credential.User, error)
}

// Issuer はトークン発行に求める操作。
type Issuer interface {
	Issue(identity, role string) (string, error)
}

// Summary はユーザー一覧で返す公開情報。パスワードハッシュは含まない。
type Summary struct {
	Identity string `json:"identity"`
	Role     string `json:"role"`
}

// maxSecretBytes はbcryptが扱えるパスワードの最大長（バイト）。
const maxSecretBytes = 72

// Service はアカウント操作のビジネスロジック。
type Service struct {
	store  UserStore
	issuer Issuer
	cost   int
	// dummyHash は存在しないユーザーのログイン時に比較に使うハッシュ。
	// 存在するユーザーと同じ計算量にして応答時間の差を小さくする。
	dummyHash []byte
	recorder  event.Recorder
}

// NewService は新しいアカウントサービスを生成する。
func NewService(store UserStore, issuer Issuer) (*Service, error) {
	return newServiceWithCost(store, issuer, bcrypt.DefaultCost)
}

func newServiceWithCost(store UserStore, issuer Issuer, cost int) (*Service, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("docgate-dummy-secret"), cost)
	if err != nil {
		return nil, fmt.Errorf("ダミーハッシュの生成に失敗: %w", err)
	}
	return &Service{store: store, issuer: issuer, cost: cost, dummyHash: dummy}, nil
}

// SetRecorder はユーザー作成イベントの記録先を設定する。
func (s *Service) SetRecorder(r event.Recorder) {
	s.recorder = r
}

// Register は一般ユーザーを登録する。
func (s *Service) Register(ctx context.Context, identity, secret string) error {
	return s.create(ctx, identity, secret, credential.RoleUser, event.TypeUserRegistered)
}

// AddUser は管理者がロールを指定してユーザーを追加する。
func (s *Service) AddUser(ctx context.Context, identity, secret, role string) error {
	r, err := credential.ParseRole(role)
	if err != nil {
		return apperr.Validation("ロールはadminまたはuserを指定してください")
	}
	return s.create(ctx, identity, secret, r, event.TypeUserProvisioned)
}

// Bootstrap は起動時に管理者を登録する。既に存在する場合は何もしない。
func (s *Service) Bootstrap(ctx context.Context, identity, secret string) error {
	err := s.create(ctx, identity, secret, credential.RoleAdmin, event.TypeUserProvisioned)
	if apperr.KindOf(err) == apperr.KindConflict {
		return nil
	}
	return err
}

func (s *Service) create(ctx context.Context, identity, secret string, role credential.Role, typ event.Type) error {
	if identity == "" || secret == "" {
		return apperr.Validation("identityとsecretは必須です")
	}
	if len(secret) > maxSecretBytes {
		return apperr.Validation("secretは%dバイト以内で指定してください", maxSecretBytes)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return apperr.Wrap(apperr.KindValidation, err, "secretは%dバイト以内で指定してください", maxSecretBytes)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "パスワードのハッシュ化に失敗")
	}

	err = s.store.Create(ctx, credential.User{Identity: identity, SecretHash: string(hash), Role: role})
	if errors.Is(err, credential.ErrExists) {
		return apperr.New(apperr.KindConflict, "ユーザーは既に存在します")
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "ユーザーの登録に失敗")
	}
	log.Printf("[Account] ユーザーを登録しました: role=%s", role)

	// 呼び出し元が認証済みなら操作者として残す。
	actor, _ := middleware.PrincipalFromContext(ctx)
	event.NewStream(s.recorder, identity, event.AggregateTypeUser).
		Emit(typ, event.UserData{Role: string(role), Actor: actor.Identity})
	return nil
}

// Login は資格情報を検証してトークンを発行する。
// 識別子が存在しない場合はKindValidation、パスワード不一致はKindUnauthenticatedを返す。
// どちらの場合もほかの識別子の存在を推測できる情報は返さない。
func (s *Service) Login(ctx context.Context, identity, secret string) (string, error) {
	if identity == "" || secret == "" {
		return "", apperr.Validation("identityとsecretは必須です")
	}

	u, err := s.store.Get(ctx, identity)
	if errors.Is(err, credential.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(secret))
		return "", apperr.Validation("ログインできません")
	}
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "ユーザーの取得に失敗")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.SecretHash), []byte(secret)); err != nil {
		return "", apperr.New(apperr.KindUnauthenticated, "資格情報が正しくありません")
	}

	tok, err := s.issuer.Issue(u.Identity, string(u.Role))
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "トークンの発行に失敗")
	}
	return tok, nil
}

// List は全ユーザーの公開情報を返す。
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "ユーザー一覧の取得に失敗")
	}
	out := make([]Summary, 0, len(users))
	for _, u := range users {
		out = append(out, Summary{Identity: u.Identity, Role: string(u.Role)})
	}
	return out, nil
}
