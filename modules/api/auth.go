package api

import (
	"errors"
	"strings"
	"time"

	"github.com/example/workspace-realtime/modules/registry"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when a request carries no token.
	ErrMissingToken = errors.New("token is required")
	// ErrInvalidToken is returned when the token is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrInsufficientScope is returned when a valid token lacks the service scope.
	ErrInsufficientScope = errors.New("token lacks service scope")
)

// ServiceScope marks tokens issued to collaborator services.
const ServiceScope = "collaborator"

// AuthConfig holds token verification settings.
type AuthConfig struct {
	SecretKey string
	Issuer    string
	// Insecure accepts identities from query parameters when no token is sent.
	Insecure bool
}

// Claims are the token claims issued by the session service.
type Claims struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Scope  string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies session tokens and resolves connection identities.
type Authenticator struct {
	config AuthConfig
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(config AuthConfig) *Authenticator {
	return &Authenticator{config: config}
}

// IssueToken signs a token for identity valid for ttl.
func (a *Authenticator) IssueToken(identity registry.Identity, ttl time.Duration) (string, error) {
	return a.sign(Claims{Name: identity.DisplayName, Avatar: identity.Avatar}, identity.UserID, ttl)
}

// IssueServiceToken signs a collaborator token for service valid for ttl.
func (a *Authenticator) IssueServiceToken(service string, ttl time.Duration) (string, error) {
	return a.sign(Claims{Name: service, Scope: ServiceScope}, service, ttl)
}

func (a *Authenticator) sign(claims Claims, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    a.config.Issuer,
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.config.SecretKey))
}

// Verify validates a user token and returns the identity it carries.
// Service tokens are rejected.
func (a *Authenticator) Verify(tokenString string) (registry.Identity, error) {
	claims, err := a.parse(tokenString)
	if err != nil {
		return registry.Identity{}, err
	}
	if claims.Scope == ServiceScope {
		return registry.Identity{}, ErrInvalidToken
	}
	return registry.Identity{
		UserID:      claims.Subject,
		DisplayName: claims.Name,
		Avatar:      claims.Avatar,
	}, nil
}

// VerifyService validates a collaborator token and returns its subject.
func (a *Authenticator) VerifyService(tokenString string) (string, error) {
	claims, err := a.parse(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Scope != ServiceScope {
		return "", ErrInsufficientScope
	}
	return claims.Subject, nil
}

func (a *Authenticator) parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	var opts []jwt.ParserOption
	if a.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(a.config.SecretKey), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate resolves the identity of an upgrade request. The token is
// read from the token query parameter or a Bearer Authorization header.
// Returned strings do not alias the request buffer.
func (a *Authenticator) Authenticate(c *fiber.Ctx) (registry.Identity, error) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
	}

	if token == "" && a.config.Insecure {
		identity := registry.Identity{
			UserID:      utils.CopyString(c.Query("userId")),
			DisplayName: utils.CopyString(c.Query("userName")),
			Avatar:      utils.CopyString(c.Query("userAvatar")),
		}
		if identity.UserID == "" {
			return registry.Identity{}, registry.ErrUnauthenticated
		}
		return identity, nil
	}

	return a.Verify(token)
}
