// Package auth issues and verifies bearer tokens and checks login
// credentials for the attempt service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"

	issuer = "exam-app"
)

var (
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type Claims struct {
	Sub  string `json:"sub"`
	Name string `json:"name,omitempty"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *TokenService) Issue(identity Identity) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := &Claims{
		Sub:  identity.ID,
		Name: identity.Name,
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func (s *TokenService) Parse(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || strings.TrimSpace(claims.Sub) == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{ID: claims.Sub, Name: claims.Name, Role: claims.Role}, nil
}

// Credentials checks logins. The admin account is verified against a
// bcrypt hash; with dev login enabled any other username without a
// password signs in as that student.
type Credentials struct {
	AdminUser     string
	AdminPassHash string
	AllowDevLogin bool
}

func (c Credentials) Authenticate(username, password, name string) (Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Identity{}, ErrInvalidCredentials
	}

	if c.AdminUser != "" && username == c.AdminUser {
		if c.AdminPassHash == "" {
			return Identity{}, ErrInvalidCredentials
		}
		if bcrypt.CompareHashAndPassword([]byte(c.AdminPassHash), []byte(password)) != nil {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{ID: username, Name: username, Role: RoleAdmin}, nil
	}

	if c.AllowDevLogin && password == "" {
		if strings.TrimSpace(name) == "" {
			name = username
		}
		return Identity{ID: username, Name: strings.TrimSpace(name), Role: RoleStudent}, nil
	}
	return Identity{}, ErrInvalidCredentials
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}
