package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/frahmantamala/project-access/internal"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Lifetimes pairs the access and refresh token lifetimes of one login class.
type Lifetimes struct {
	Access  time.Duration
	Refresh time.Duration
}

var (
	DefaultLifetimes  = Lifetimes{Access: 30 * time.Minute, Refresh: 7 * 24 * time.Hour}
	RememberLifetimes = Lifetimes{Access: 24 * time.Hour, Refresh: 30 * 24 * time.Hour}
)

type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	Standard      Lifetimes
	Remember      Lifetimes
}

type TokenGenerator interface {
	GenerateAccessToken(claims Claims, remember bool) (string, *Claims, error)
	GenerateRefreshToken(userID int64, version int, remember bool) (string, *RefreshClaims, error)
	ParseAccessToken(tokenString string) (*Claims, error)
	ParseRefreshToken(tokenString string) (*RefreshClaims, error)
}

// JWTTokenGenerator signs HS256 tokens. Access and refresh tokens use separate
// secrets so one can never be replayed as the other.
type JWTTokenGenerator struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	standard      Lifetimes
	remember      Lifetimes
	now           func() time.Time
}

func NewJWTTokenGenerator(cfg TokenConfig) *JWTTokenGenerator {
	if cfg.Standard.Access <= 0 || cfg.Standard.Refresh <= 0 {
		cfg.Standard = DefaultLifetimes
	}
	if cfg.Remember.Access <= 0 || cfg.Remember.Refresh <= 0 {
		cfg.Remember = RememberLifetimes
	}
	return &JWTTokenGenerator{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		issuer:        cfg.Issuer,
		standard:      cfg.Standard,
		remember:      cfg.Remember,
		now:           time.Now,
	}
}

func (j *JWTTokenGenerator) WithClock(now func() time.Time) *JWTTokenGenerator {
	j.now = now
	return j
}

func (j *JWTTokenGenerator) lifetimes(remember bool) Lifetimes {
	if remember {
		return j.remember
	}
	return j.standard
}

func (j *JWTTokenGenerator) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := j.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    j.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// GenerateAccessToken stamps identity-independent fields (typ, jti, iat, exp, iss)
// onto claims and signs them. The returned claims are exactly what was signed.
func (j *JWTTokenGenerator) GenerateAccessToken(claims Claims, remember bool) (string, *Claims, error) {
	claims.Type = TokenTypeAccess
	claims.RegisteredClaims = j.registered(claims.Subject, j.lifetimes(remember).Access)
	if claims.Permissions == nil {
		claims.Permissions = []string{}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(j.accessSecret)
	if err != nil {
		return "", nil, err
	}
	return signed, &claims, nil
}

func (j *JWTTokenGenerator) GenerateRefreshToken(userID int64, version int, remember bool) (string, *RefreshClaims, error) {
	claims := &RefreshClaims{
		Type:             TokenTypeRefresh,
		Version:          version,
		Remember:         remember,
		RegisteredClaims: j.registered(strconv.FormatInt(userID, 10), j.lifetimes(remember).Refresh),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.refreshSecret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseAccessToken checks structure and signature, then expiry. Denylist
// lookup is left to the caller.
func (j *JWTTokenGenerator) ParseAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := parseSigned(tokenString, claims, j.accessSecret); err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeAccess {
		return nil, internal.ErrTokenMalformed
	}
	if err := j.checkRegistered(claims.RegisteredClaims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (j *JWTTokenGenerator) ParseRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := parseSigned(tokenString, claims, j.refreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeRefresh {
		return nil, internal.ErrTokenMalformed
	}
	if err := j.checkRegistered(claims.RegisteredClaims); err != nil {
		return nil, err
	}
	return claims, nil
}

// checkRegistered applies the expiry rule: a token whose exp equals now is expired.
func (j *JWTTokenGenerator) checkRegistered(rc jwt.RegisteredClaims) error {
	if rc.ID == "" || rc.ExpiresAt == nil {
		return internal.ErrTokenMalformed
	}
	if _, err := strconv.ParseInt(rc.Subject, 10, 64); err != nil {
		return internal.ErrTokenMalformed.WithCause(err)
	}
	if !rc.ExpiresAt.Time.After(j.now()) {
		return internal.ErrTokenExpired
	}
	return nil
}

// parseSigned verifies the HS256 signature only. Time-based claims are
// validated by checkRegistered against the generator's clock.
func parseSigned(tokenString string, claims jwt.Claims, secret []byte) error {
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return internal.ErrSignatureInvalid.WithCause(err)
	default:
		return internal.ErrTokenMalformed.WithCause(err)
	}
}
