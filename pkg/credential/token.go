package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer はトークンのissクレームに設定する発行者名。
const DefaultIssuer = "edgegate-users"

// DefaultTTL はトークンの既定の有効期間。
const DefaultTTL = 24 * time.Hour

var (
	// ErrInvalid は署名不一致・形式不正・必須クレーム欠落など、期限切れ以外の検証失敗を表す。
	ErrInvalid = errors.New("トークンが無効です")
	// ErrExpired はトークンの有効期限が切れていることを表す。
	ErrExpired = errors.New("トークンの有効期限が切れています")
)

// Claims はトークンのクレーム（ペイロード）を表す。
// サブジェクトIDはsubクレームに格納する。
type Claims struct {
	jwt.RegisteredClaims
	// Roles はユーザーに付与されたロール。順序を保持する。
	Roles []string `json:"roles"`
}

// Identity は検証済みトークンから復元したID情報。
// 永続化されず、1リクエストの間だけ存在する。
type Identity struct {
	// SubjectID は認証済みユーザーの一意識別子。
	SubjectID string
	// Roles はユーザーのロール。
	Roles []string
	// IssuedAt はトークンの発行日時。
	IssuedAt time.Time
	// ExpiresAt はトークンの有効期限。
	ExpiresAt time.Time
}

// Signer はトークンを発行する。
type Signer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewSigner は新しいSignerを生成する。ttlが0以下の場合はDefaultTTLを使用する。
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("署名用の秘密鍵が空です")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: DefaultIssuer,
		now:    time.Now,
	}, nil
}

// Sign はサブジェクトIDとロールからトークンを生成する。
func (s *Signer) Sign(subjectID string, roles []string) (string, error) {
	if roles == nil {
		roles = []string{}
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Roles: roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verifier はトークンを検証する。
// 生成後は不変であり、複数のgoroutineから同時に使用できる。
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier は新しいVerifierを生成する。
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("検証用の秘密鍵が空です")
	}
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
	}, nil
}

// Verify はトークンの署名と有効期限を検証し、ID情報を返す。
// 失敗時のエラーはErrExpiredまたはErrInvalidをラップする。
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalid
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: subクレームがありません", ErrInvalid)
	}

	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}
	identity := Identity{
		SubjectID: claims.Subject,
		Roles:     roles,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	return identity, nil
}
