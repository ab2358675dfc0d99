// Package security holds the token codec and password hasher implementations.
package security

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sdcourse/auth-api/internal/core/domain"
)

const minHMACSecretLen = 32

// SigningKey pairs a JWT algorithm with the keys used to sign and verify.
type SigningKey struct {
	method jwt.SigningMethod
	sign   any
	verify any
}

// Alg returns the JWT algorithm name.
func (k SigningKey) Alg() string { return k.method.Alg() }

// HMACKey builds an HS256 key from a shared secret.
func HMACKey(secret []byte) (SigningKey, error) {
	if len(secret) < minHMACSecretLen {
		return SigningKey{}, fmt.Errorf("hmac secret must be at least %d bytes", minHMACSecretLen)
	}
	return SigningKey{method: jwt.SigningMethodHS256, sign: secret, verify: secret}, nil
}

// RSAKeyFromPEM builds an RS256 key from a PEM-encoded private key.
func RSAKeyFromPEM(pemBytes []byte) (SigningKey, error) {
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return SigningKey{}, fmt.Errorf("parse rsa private key: %w", err)
	}
	return SigningKey{method: jwt.SigningMethodRS256, sign: priv, verify: &priv.PublicKey}, nil
}

// Ed25519Key builds an EdDSA key.
func Ed25519Key(priv ed25519.PrivateKey) SigningKey {
	return SigningKey{method: jwt.SigningMethodEdDSA, sign: priv, verify: priv.Public()}
}

// Ed25519KeyFromPEM builds an EdDSA key from a PEM-encoded PKCS#8 private key.
func Ed25519KeyFromPEM(pemBytes []byte) (SigningKey, error) {
	key, err := jwt.ParseEdPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return SigningKey{}, fmt.Errorf("parse ed25519 private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return SigningKey{}, errors.New("parse ed25519 private key: unexpected key type")
	}
	return Ed25519Key(priv), nil
}

// LoadSigningKey resolves the configured algorithm. HS256 uses secret; RS256 and
// EdDSA read a PEM private key from keyFile.
func LoadSigningKey(method, secret, keyFile string) (SigningKey, error) {
	switch strings.ToUpper(method) {
	case "", "HS256":
		return HMACKey([]byte(secret))
	case "RS256":
		pemBytes, err := os.ReadFile(keyFile)
		if err != nil {
			return SigningKey{}, fmt.Errorf("read signing key: %w", err)
		}
		return RSAKeyFromPEM(pemBytes)
	case "EDDSA":
		pemBytes, err := os.ReadFile(keyFile)
		if err != nil {
			return SigningKey{}, fmt.Errorf("read signing key: %w", err)
		}
		return Ed25519KeyFromPEM(pemBytes)
	}
	return SigningKey{}, fmt.Errorf("unsupported signing method %q", method)
}

// tokenClaims is the wire form of domain.Claims.
type tokenClaims struct {
	Username    string   `json:"username,omitempty"`
	Authorities []string `json:"authorities,omitempty"`
	Type        string   `json:"type"`
	jwt.RegisteredClaims
}

// JWTCodec implements ports.TokenCodec with signed JWTs.
type JWTCodec struct {
	key    SigningKey
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// CodecOption configures a JWTCodec.
type CodecOption func(*JWTCodec)

// WithIssuer stamps and requires the iss claim.
func WithIssuer(issuer string) CodecOption {
	return func(c *JWTCodec) { c.issuer = issuer }
}

// WithLeeway tolerates clock skew between issuing and validating processes.
func WithLeeway(d time.Duration) CodecOption {
	return func(c *JWTCodec) { c.leeway = d }
}

// WithClock replaces the wall clock used for iat, exp and validation.
func WithClock(now func() time.Time) CodecOption {
	return func(c *JWTCodec) { c.now = now }
}

func NewJWTCodec(key SigningKey, opts ...CodecOption) *JWTCodec {
	c := &JWTCodec{key: key, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode signs claims as a token of type typ valid for ttl. Refresh tokens never
// carry authorities.
func (c *JWTCodec) Encode(claims domain.Claims, typ domain.TokenType, ttl time.Duration) (string, error) {
	if ttl < time.Second {
		return "", fmt.Errorf("encode token: ttl must be at least 1s, got %s", ttl)
	}
	if claims.Subject == "" {
		return "", errors.New("encode token: subject is required")
	}
	if typ != domain.TokenAccess && typ != domain.TokenRefresh {
		return "", fmt.Errorf("encode token: unknown type %q", typ)
	}

	now := c.now()
	tc := tokenClaims{
		Username: claims.Username,
		Type:     string(typ),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   claims.Subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if typ == domain.TokenAccess {
		tc.Authorities = claims.Authorities
	}

	signed, err := jwt.NewWithClaims(c.key.method, tc).SignedString(c.key.sign)
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and validity window of token.
func (c *JWTCodec) Decode(token string) (domain.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.key.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var tc tokenClaims
	if _, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return c.key.verify, nil
	}, opts...); err != nil {
		return domain.Claims{}, classify(err)
	}

	typ := domain.TokenType(tc.Type)
	if typ != domain.TokenAccess && typ != domain.TokenRefresh {
		return domain.Claims{}, fmt.Errorf("%w: unknown token type %q", domain.ErrTokenMalformed, tc.Type)
	}
	if tc.Subject == "" {
		return domain.Claims{}, fmt.Errorf("%w: missing subject", domain.ErrTokenMalformed)
	}

	out := domain.Claims{
		Subject:     tc.Subject,
		Username:    tc.Username,
		Authorities: tc.Authorities,
		Type:        typ,
		ID:          tc.ID,
		ExpiresAt:   tc.ExpiresAt.Time,
	}
	if tc.IssuedAt != nil {
		out.IssuedAt = tc.IssuedAt.Time
	}
	return out, nil
}

// classify maps jwt parser errors onto the three decode failure kinds. The
// signature is checked before claims, so a tampered expired token reports
// a bad signature.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", domain.ErrTokenBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", domain.ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrTokenMalformed, err)
	}
}
