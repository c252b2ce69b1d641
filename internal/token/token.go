package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Token classes. A master token unlocks the playlist; a segment token
// unlocks exactly one segment file.
const (
	ClassMaster  = "master"
	ClassSegment = "segment"
)

const revocationKeyPrefix = "token:revoked:"

// ErrTokenInvalid covers every token failure (revoked, bad signature,
// expired, malformed, wrong shape). Callers must not expose which check
// failed.
var ErrTokenInvalid = errors.New("invalid token")

// Claims are the signed streaming token claims. Segment is empty for
// master tokens.
type Claims struct {
	AssetID string `json:"asset_id"`
	Segment string `json:"segment,omitempty"`
	Class   string `json:"class"`
	jwt.RegisteredClaims
}

// Service issues and verifies streaming tokens. Tokens are stateless and
// self-describing; the Redis revocation list is the only stateful override
// and is consulted before any claim is trusted.
type Service struct {
	secret     []byte
	masterTTL  time.Duration
	segmentTTL time.Duration
	redis      *redis.Client
}

// NewService creates a token service
func NewService(secret string, masterTTL, segmentTTL time.Duration, rdb *redis.Client) *Service {
	return &Service{
		secret:     []byte(secret),
		masterTTL:  masterTTL,
		segmentTTL: segmentTTL,
		redis:      rdb,
	}
}

// MasterTTL returns the master token lifetime
func (s *Service) MasterTTL() time.Duration {
	return s.masterTTL
}

// IssueMasterToken issues a playlist token for a user and asset
func (s *Service) IssueMasterToken(userID, assetID string) (string, error) {
	return s.sign(userID, assetID, "", ClassMaster, s.masterTTL)
}

// IssueSegmentToken issues a token bound to a single segment file
func (s *Service) IssueSegmentToken(userID, assetID, segmentFile string) (string, error) {
	return s.sign(userID, assetID, segmentFile, ClassSegment, s.segmentTTL)
}

func (s *Service) sign(userID, assetID, segmentFile, class string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		AssetID: assetID,
		Segment: segmentFile,
		Class:   class,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
			// jti makes two tokens for identical inputs distinct even
			// when issued within the same second
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify checks the revocation list, the signature, and the expiry, in
// that order. Token failures collapse to ErrTokenInvalid; a revocation
// store outage surfaces as a distinct error so callers can answer 5xx
// instead of silently trusting a possibly revoked token.
func (s *Service) Verify(ctx context.Context, raw string) (*Claims, error) {
	revoked, err := s.redis.Exists(ctx, revocationKeyPrefix+raw).Result()
	if err != nil {
		return nil, fmt.Errorf("revocation check failed: %w", err)
	}
	if revoked > 0 {
		return nil, ErrTokenInvalid
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		// Expired, tampered, malformed: all the same to the caller
		return nil, ErrTokenInvalid
	}

	if claims.Class != ClassMaster && claims.Class != ClassSegment {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// Revoke denylists a raw token for the remainder of its natural lifetime.
// The entry expires with the token, so the revocation list stays bounded
// without a sweep job.
func (s *Service) Revoke(ctx context.Context, raw string, remaining time.Duration) error {
	if remaining <= 0 {
		return nil // already expired, nothing to deny
	}

	err := s.redis.Set(ctx, revocationKeyPrefix+raw, "revoked", remaining).Err()
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	return nil
}
