// Package auth issues and checks the bearer tokens used by the dashboard.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds, carried in the "typ" claim so a refresh token is never accepted as access.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var (
	// ErrInvalidToken covers malformed, expired and wrongly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWrongKind means a refresh token was presented as access or vice versa.
	ErrWrongKind = errors.New("wrong token kind")
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	AccessExp    time.Time `json:"expiresAt"`
	RefreshExp   time.Time `json:"refreshExpiresAt"`
	RefreshID    string    `json:"-"`
}

// Claims represents JWT payload.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	Kind  string `json:"typ"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	ID    string
	Role  string
	Email string
}

// Tokens signs and verifies HS256 tokens for one issuer.
type Tokens struct {
	Issuer     string
	Key        []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	now func() time.Time
}

// NewTokens creates a signer.
func NewTokens(issuer, key string, accessTTL, refreshTTL time.Duration) *Tokens {
	return &Tokens{
		Issuer:     issuer,
		Key:        []byte(key),
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (t *Tokens) sign(p Principal, kind, id string, exp time.Time) (string, error) {
	claims := Claims{
		Role:  p.Role,
		Email: p.Email,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    t.Issuer,
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(t.now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Key)
}

// Issue issues signed access and refresh tokens for p. The refresh token's id is
// returned in RefreshID so the caller can record the session.
func (t *Tokens) Issue(p Principal) (TokenPair, error) {
	now := t.now()
	accessExp := now.Add(t.AccessTTL)
	refreshExp := now.Add(t.RefreshTTL)
	refreshID := uuid.NewString()

	access, err := t.sign(p, KindAccess, uuid.NewString(), accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.sign(p, KindRefresh, refreshID, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
		RefreshID:    refreshID,
	}, nil
}

// Parse validates a token of the given kind and returns its claims.
func (t *Tokens) Parse(tokenStr, kind string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return t.Key, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	if t.Issuer != "" && claims.Issuer != t.Issuer {
		return Claims{}, errors.Join(ErrInvalidToken, errors.New("issuer mismatch"))
	}
	if claims.Kind != kind {
		return Claims{}, ErrWrongKind
	}
	return *claims, nil
}

// Principal returns the caller described by c.
func (c Claims) Principal() Principal {
	return Principal{ID: c.Subject, Role: c.Role, Email: c.Email}
}
