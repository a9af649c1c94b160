package security

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
	"github.com/ManuelReschke/mediabridge/internal/pkg/config"
)

// Verifier checks bearer tokens and extracts the account id. RS256 is used when a
// public key is configured, HS256 with the shared secret otherwise.
type Verifier struct {
	pub    *rsa.PublicKey
	secret []byte
	issuer string
}

func NewVerifier(cfg config.JWTConf) (*Verifier, error) {
	v := &Verifier{secret: []byte(cfg.Secret), issuer: cfg.Issuer}
	if cfg.PublicKeyPath != "" {
		b, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
		if err != nil {
			return nil, err
		}
		v.pub = pub
	}
	if v.pub == nil && len(v.secret) == 0 {
		return nil, errors.New("jwt: secret or public key is required")
	}
	return v, nil
}

// VerifyToken returns the account id of a valid token
func (v *Verifier) VerifyToken(token string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.pub != nil {
		opts = append(opts, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}))
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	}

	t, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if v.pub != nil {
			return v.pub, nil
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperror.ErrUnauthorized, err)
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok || !t.Valid {
		return "", fmt.Errorf("%w: invalid claims", apperror.ErrUnauthorized)
	}
	// try common claim keys
	for _, key := range []string{"user_id", "account", "sub"} {
		if s, ok := claims[key].(string); ok && s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: account id not found in token", apperror.ErrUnauthorized)
}

// GenerateToken signs an HS256 token for account. Used by the CLI and tests.
func GenerateToken(secret, issuer, account string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required for token generation")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": account,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
