// Package services provides external service integrations and technical concerns like notifications and tokens
package services

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kisaan-market/kisaan/models"
	"github.com/kisaan-market/kisaan/utils"
)

// Token service error constants
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token has been revoked")
)

const (
	TokenTypeAccess        = "access"
	TokenTypeRefresh       = "refresh"
	TokenTypePasswordReset = "password_reset"
)

// TokenService handles JWT token generation and validation
type TokenService interface {
	GenerateTokens(accountID uint, role models.Role) (accessToken, refreshToken string, err error)
	ValidateToken(token string) (*TokenClaims, error)
	RefreshToken(refreshToken string) (newAccessToken, newRefreshToken string, err error)
	RevokeToken(token string) error
	IsTokenRevoked(tokenID string) bool
	// IssuePasswordResetToken signs a reset token bound to stamp, a digest of
	// the password it may replace.
	IssuePasswordResetToken(accountID uint, stamp string, ttl time.Duration) (string, error)
	ValidatePasswordResetToken(token string) (accountID uint, stamp string, err error)
}

// TokenClaims represents the claims in a JWT token
type TokenClaims struct {
	AccountID uint        `json:"account_id"`
	Role      models.Role `json:"role"`
	IssuedAt  time.Time   `json:"issued_at"`
	ExpiresAt time.Time   `json:"expires_at"`
	TokenType string      `json:"token_type"` // "access" or "refresh"
	TokenID   string      `json:"jti"`        // JWT ID for token revocation
}

// TokenServiceImpl implements TokenService
type TokenServiceImpl struct {
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	signingMethod   jwt.SigningMethod
	privateKey      *rsa.PrivateKey
	publicKey       *rsa.PublicKey
	secretKey       []byte
	useRSAKeys      bool
	issuer          string
	audience        string

	mu      sync.RWMutex
	revoked map[string]time.Time // jti -> expiry
}

// NewTokenService creates a new token service
func NewTokenService(accessTokenTTL, refreshTokenTTL time.Duration, issuer, audience string, useRSAKeys bool, privateKeyPEM, publicKeyPEM, secretKey string) (TokenService, error) {
	var privateKey *rsa.PrivateKey
	var publicKey *rsa.PublicKey
	var secretKeyBytes []byte
	var signingMethod jwt.SigningMethod

	if useRSAKeys {
		var err error
		privateKey, publicKey, err = parseRSAKeys(privateKeyPEM, publicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA keys: %w", err)
		}
		signingMethod = jwt.SigningMethodRS256
	} else {
		if secretKey == "" {
			return nil, fmt.Errorf("secret key is required when not using RSA keys")
		}
		secretKeyBytes = []byte(secretKey)
		signingMethod = jwt.SigningMethodHS256
	}

	return &TokenServiceImpl{
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		signingMethod:   signingMethod,
		privateKey:      privateKey,
		publicKey:       publicKey,
		secretKey:       secretKeyBytes,
		useRSAKeys:      useRSAKeys,
		issuer:          issuer,
		audience:        audience,
		revoked:         make(map[string]time.Time),
	}, nil
}

// parseRSAKeys parses RSA private and public keys from PEM format
func parseRSAKeys(privateKeyPEM, publicKeyPEM string) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if privateKeyPEM == "" || publicKeyPEM == "" {
		return nil, nil, fmt.Errorf("both private and public keys are required")
	}

	privateKeyBlock, _ := pem.Decode([]byte(privateKeyPEM))
	if privateKeyBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode private key")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(privateKeyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	publicKeyBlock, _ := pem.Decode([]byte(publicKeyPEM))
	if publicKeyBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode public key")
	}

	publicKey, err := x509.ParsePKIXPublicKey(publicKeyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPublicKey, ok := publicKey.(*rsa.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("public key is not RSA")
	}

	return privateKey, rsaPublicKey, nil
}

// GenerateTokens issues an access/refresh pair carrying the account and its role
func (s *TokenServiceImpl) GenerateTokens(accountID uint, role models.Role) (accessToken, refreshToken string, err error) {
	now := utils.UTCNow()

	accessToken, err = s.issue(accountID, role, TokenTypeAccess, now, s.accessTokenTTL)
	if err != nil {
		return "", "", err
	}

	refreshToken, err = s.issue(accountID, role, TokenTypeRefresh, now, s.refreshTokenTTL)
	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

func (s *TokenServiceImpl) issue(accountID uint, role models.Role, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	tokenID, err := generateTokenID()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"account_id": accountID,
		"role":       string(role),
		"token_type": tokenType,
		"jti":        tokenID,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
		"iss":        s.issuer,
		"aud":        s.audience,
	}
	return s.generateToken(claims)
}

func (s *TokenServiceImpl) keyFunc(token *jwt.Token) (any, error) {
	if s.useRSAKeys {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.publicKey, nil
	}
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secretKey, nil
}

// parse verifies the signature and expiry and extracts claims without the revocation check.
func (s *TokenServiceImpl) parse(token string) (*TokenClaims, error) {
	parsedToken, err := jwt.Parse(token, s.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if !parsedToken.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}

	accountID, ok := claims["account_id"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}

	roleName, ok := claims["role"].(string)
	if !ok {
		return nil, ErrTokenInvalid
	}
	role, err := models.ParseRole(roleName)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	tokenType, ok := claims["token_type"].(string)
	if !ok {
		return nil, ErrTokenInvalid
	}

	tokenID, ok := claims["jti"].(string)
	if !ok {
		return nil, ErrTokenInvalid
	}

	issuedAt, ok := claims["iat"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}

	expiresAt, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrTokenInvalid
	}

	if utils.UTCNow().After(time.Unix(int64(expiresAt), 0)) {
		return nil, ErrTokenExpired
	}

	return &TokenClaims{
		AccountID: uint(accountID),
		Role:      role,
		TokenType: tokenType,
		TokenID:   tokenID,
		IssuedAt:  time.Unix(int64(issuedAt), 0),
		ExpiresAt: time.Unix(int64(expiresAt), 0),
	}, nil
}

func (s *TokenServiceImpl) IssuePasswordResetToken(accountID uint, stamp string, ttl time.Duration) (string, error) {
	tokenID, err := generateTokenID()
	if err != nil {
		return "", err
	}
	now := utils.UTCNow()
	return s.generateToken(jwt.MapClaims{
		"account_id": accountID,
		"stamp":      stamp,
		"token_type": TokenTypePasswordReset,
		"jti":        tokenID,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
		"iss":        s.issuer,
		"aud":        s.audience,
	})
}

// ValidatePasswordResetToken checks signature, expiry and type. Whether the
// stamp still matches is up to the caller.
func (s *TokenServiceImpl) ValidatePasswordResetToken(token string) (uint, string, error) {
	parsed, err := jwt.Parse(token, s.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, "", ErrTokenExpired
		}
		return 0, "", ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return 0, "", ErrTokenInvalid
	}
	if tokenType, _ := claims["token_type"].(string); tokenType != TokenTypePasswordReset {
		return 0, "", ErrTokenInvalid
	}
	accountID, ok := claims["account_id"].(float64)
	if !ok {
		return 0, "", ErrTokenInvalid
	}
	stamp, ok := claims["stamp"].(string)
	if !ok || stamp == "" {
		return 0, "", ErrTokenInvalid
	}
	if exp, ok := claims["exp"].(float64); !ok || utils.UTCNow().After(time.Unix(int64(exp), 0)) {
		return 0, "", ErrTokenExpired
	}
	return uint(accountID), stamp, nil
}

// ValidateToken validates a JWT token and returns claims
func (s *TokenServiceImpl) ValidateToken(token string) (*TokenClaims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	if s.IsTokenRevoked(claims.TokenID) {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// RefreshToken rotates a refresh token: the old one is revoked and a new pair issued.
func (s *TokenServiceImpl) RefreshToken(refreshToken string) (newAccessToken, newRefreshToken string, err error) {
	claims, err := s.ValidateToken(refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("invalid refresh token: %w", err)
	}

	if claims.TokenType != TokenTypeRefresh {
		return "", "", fmt.Errorf("token is not a refresh token: %w", ErrTokenInvalid)
	}

	s.revoke(claims.TokenID, claims.ExpiresAt)

	return s.GenerateTokens(claims.AccountID, claims.Role)
}

// RevokeToken adds the token's jti to the revocation list until it would have expired anyway.
func (s *TokenServiceImpl) RevokeToken(token string) error {
	claims, err := s.parse(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil
		}
		return fmt.Errorf("invalid token: %w", err)
	}

	s.revoke(claims.TokenID, claims.ExpiresAt)
	return nil
}

func (s *TokenServiceImpl) revoke(tokenID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := utils.UTCNow()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	s.revoked[tokenID] = expiresAt
}

// IsTokenRevoked checks the in-process revocation list by jti
func (s *TokenServiceImpl) IsTokenRevoked(tokenID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.revoked[tokenID]
	return ok
}

// generateToken creates a signed JWT token
func (s *TokenServiceImpl) generateToken(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(s.signingMethod, claims)

	var signedString string
	var err error

	if s.useRSAKeys {
		signedString, err = token.SignedString(s.privateKey)
	} else {
		signedString, err = token.SignedString(s.secretKey)
	}

	if err != nil {
		return "", err
	}

	return signedString, nil
}

// generateTokenID generates a unique token ID
func generateTokenID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", bytes), nil
}
