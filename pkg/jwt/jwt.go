package jwt

import (
	"errors"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Config is the environment-driven token configuration.
type Config struct {
	SigningKey string        `env:"AUTH_JWT_SECRET,required"`
	Issuer     string        `env:"AUTH_JWT_ISSUER" envDefault:""`
	TTL        time.Duration `env:"AUTH_JWT_TTL" envDefault:"1h"`
}

// TenantClaims identifies the tenant acting on its billing. Subject holds the
// tenant id.
type TenantClaims struct {
	Email string `json:"email,omitempty"`
	gojwt.RegisteredClaims
}

// TenantID parses the subject as a tenant id.
func (c TenantClaims) TenantID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidClaims
	}
	return id, nil
}

// Service issues and validates HS256 tokens.
type Service struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

// New creates a token service. A zero ttl means one hour.
func New(key []byte, issuer string, ttl time.Duration) (*Service, error) {
	if len(key) == 0 {
		return nil, ErrMissingSigningKey
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{key: key, issuer: issuer, ttl: ttl}, nil
}

// NewFromConfig creates a token service from cfg.
func NewFromConfig(cfg Config) (*Service, error) {
	return New([]byte(cfg.SigningKey), cfg.Issuer, cfg.TTL)
}

// Issue signs a token for the tenant.
func (s *Service) Issue(tenantID uuid.UUID, email string) (string, error) {
	if tenantID == uuid.Nil {
		return "", ErrInvalidClaims
	}
	now := time.Now()
	claims := TenantClaims{
		Email: email,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   tenantID.String(),
			Issuer:    s.issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Parse validates the signature, algorithm, expiry and issuer of token.
func (s *Service) Parse(token string) (*TenantClaims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, gojwt.WithIssuer(s.issuer))
	}

	claims := &TenantClaims{}
	_, err := gojwt.ParseWithClaims(token, claims, func(*gojwt.Token) (any, error) {
		return s.key, nil
	}, opts...)
	switch {
	case err == nil:
	case errors.Is(err, gojwt.ErrTokenExpired):
		return nil, errors.Join(ErrExpiredToken, err)
	default:
		return nil, errors.Join(ErrInvalidToken, err)
	}

	if _, err := claims.TenantID(); err != nil {
		return nil, err
	}
	return claims, nil
}
