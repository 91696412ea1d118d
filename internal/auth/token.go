// Package auth implements the relay's token service: opaque bearer
// tokens bound to an account id (§4.2).
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/consortium/relay/internal/cache"
	"github.com/consortium/relay/internal/logger"
)

// Claims carries the identity bound to a token: the account id plus an
// opaque extras map the caller supplied at issuance (§4.2: "returns the
// bound identity"). The relay never inspects extras' contents.
type Claims struct {
	AccountID string                 `json:"accountId"`
	Extras    map[string]interface{} `json:"extras,omitempty"`
	jwt.RegisteredClaims
}

// TokenConfig configures the Token service.
type TokenConfig struct {
	// MasterSecret derives the HMAC signing key. The same secret across
	// restarts must accept previously issued tokens (§4.2, §6).
	MasterSecret string
	// Issuer is the "iss" claim, purely descriptive.
	Issuer string
}

// TokenService issues and verifies opaque bearer tokens. Construction
// never requires a database lookup: validity is entirely determined by
// the HMAC signature (§4.2). Positive verifications may be cached in
// cache.Cache, keyed by the raw token string.
type TokenService struct {
	config TokenConfig
	cache  *cache.Cache
}

// NewTokenService constructs a TokenService. cache may be a disabled
// *cache.Cache (IsEnabled() == false); verification then always falls
// through to signature validation.
func NewTokenService(config TokenConfig, c *cache.Cache) *TokenService {
	if config.Issuer == "" {
		config.Issuer = "consortium-relay"
	}
	return &TokenService{config: config, cache: c}
}

// verificationCacheTTL bounds how long a verified token is trusted from
// cache before re-validating the signature. The core protocol treats
// tokens as non-expiring (§4.2); this TTL only controls cache staleness,
// not token validity.
const verificationCacheTTL = 5 * time.Minute

// Create produces an opaque token bound to accountID, carrying extras
// verbatim. Tokens carry no expiry (§4.2: "long-lived, no explicit
// expiry in the core").
func (s *TokenService) Create(accountID string, extras map[string]interface{}) (string, error) {
	claims := &Claims{
		AccountID: accountID,
		Extras:    extras,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.config.Issuer,
			Subject:  accountID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.MasterSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token's authenticity and returns the identity it's
// bound to, or an error if the token is malformed, expired, or fails
// signature verification.
func (s *TokenService) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	if s.cache != nil && s.cache.IsEnabled() {
		var cached Claims
		if err := s.cache.Get(ctx, cache.TokenKey(tokenString), &cached); err == nil {
			return &cached, nil
		}
	}

	claims, err := s.parseAndValidate(tokenString)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.cache.IsEnabled() {
		if err := s.cache.Set(ctx, cache.TokenKey(tokenString), claims, verificationCacheTTL); err != nil {
			logger.Auth().Debug().Err(err).Msg("failed to cache token verification")
		}
	}

	return claims, nil
}

func (s *TokenService) parseAndValidate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Reject any signing method other than the HMAC family used at
		// issuance — prevents the classic "alg confusion" forgery where
		// an attacker supplies an RS256 token verified with the public
		// key treated as an HMAC secret.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.MasterSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.AccountID == "" {
		return nil, fmt.Errorf("token missing accountId claim")
	}
	return claims, nil
}
