package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wardenmcp/warden/internal/config"
	"github.com/wardenmcp/warden/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrKeyRevoked         = errors.New("api key revoked")
	ErrRoleInactive       = errors.New("role inactive")
)

// AuthService resolves inbound credentials to principals. API keys are
// validated against SHA-256 hashes in the config store; JWTs are verified
// against the configured HMAC secret.
type AuthService struct {
	store     *config.Store
	jwtSecret []byte
}

func NewAuthService(store *config.Store, jwtSecret string) *AuthService {
	return &AuthService{
		store:     store,
		jwtSecret: []byte(jwtSecret),
	}
}

// ValidateAPIKey checks the provided raw API key against stored key hashes
// and resolves the bound role into a Principal.
func (s *AuthService) ValidateAPIKey(ctx context.Context, rawKey string) (*model.Principal, error) {
	hash := config.HashAPIKey(rawKey)

	key, err := s.store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !key.IsActive {
		return nil, ErrKeyRevoked
	}

	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return nil, ErrTokenExpired
	}

	role, err := s.store.GetRole(ctx, key.RoleID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !role.IsActive {
		return nil, ErrRoleInactive
	}

	// Update last used timestamp (fire and forget)
	go s.store.UpdateAPIKeyLastUsed(context.Background(), key.ID)

	return &model.Principal{
		ID:   key.UserID,
		Role: role.Name,
		Team: key.Team,
	}, nil
}

// ValidateJWT verifies a JWT bearer token and returns the associated
// principal. Admin tokens carry is_admin and bypass RBAC on the system API.
func (s *AuthService) ValidateJWT(ctx context.Context, tokenStr string) (*model.Principal, error) {
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidCredentials
	}

	if !token.Valid {
		return nil, ErrInvalidCredentials
	}

	return &model.Principal{
		ID:      claims.Subject,
		Role:    claims.Role,
		Team:    claims.Team,
		IsAdmin: claims.IsAdmin,
	}, nil
}

// IssueJWT creates a new signed JWT token for the given principal.
func (s *AuthService) IssueJWT(ctx context.Context, p model.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		Role:    p.Role,
		Team:    p.Team,
		IsAdmin: p.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "warden",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// Login verifies an admin email/password pair and returns the admin record.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.Admin, error) {
	admin, err := s.store.GetAdminByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !admin.IsActive {
		return nil, ErrInvalidCredentials
	}
	if admin.PasswordHash != config.HashAPIKey(password) {
		return nil, ErrInvalidCredentials
	}

	go s.store.UpdateAdminLastLogin(context.Background(), admin.ID)
	return admin, nil
}

type jwtClaims struct {
	Role    string `json:"role,omitempty"`
	Team    string `json:"team,omitempty"`
	IsAdmin bool   `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}
