// Package otp stores phone verification codes in Redis. Codes are bcrypt
// hashed at rest, single use, and expire after a fixed TTL. Records are kept
// slightly past expiry so an expired code can be reported as expired rather
// than unknown.
package otp

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrCodeNotFound = errors.New("no verification code requested")
	ErrCodeExpired  = errors.New("verification code expired")
	ErrCodeMismatch = errors.New("incorrect verification code")
	ErrCodeRequired = errors.New("verification code is required")
	ErrPhoneInvalid = errors.New("phone number format is invalid")
)

const codeLength = 6

// Store manages one active verification code per phone number. Issuing a new
// code overwrites the previous one, so only the latest code verifies.
type Store struct {
	client       *redis.Client
	keyPrefix    string
	codeTTL      time.Duration
	persistGrace time.Duration
	maxAttempts  int
}

type codeRecord struct {
	Phone     string    `json:"phone"`
	CodeHash  string    `json:"codeHash"`
	ExpiresAt time.Time `json:"expiresAt"`
	Attempts  int       `json:"attempts"`
}

type Config struct {
	Client      *redis.Client
	KeyPrefix   string
	CodeTTL     time.Duration
	MaxAttempts int
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, errors.New("otp store requires a redis client")
	}
	keyPrefix := strings.TrimSpace(cfg.KeyPrefix)
	if keyPrefix == "" {
		keyPrefix = "lexdocs:otp"
	}
	codeTTL := cfg.CodeTTL
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Store{
		client:       cfg.Client,
		keyPrefix:    keyPrefix,
		codeTTL:      codeTTL,
		persistGrace: time.Minute,
		maxAttempts:  maxAttempts,
	}, nil
}

// Issue generates a fresh code for the phone, replacing any outstanding one.
// It returns the plaintext code for delivery and the code's validity window.
func (s *Store) Issue(ctx context.Context, phone string) (string, time.Duration, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return "", 0, err
	}
	code, err := generateNumericCode(codeLength)
	if err != nil {
		return "", 0, fmt.Errorf("generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", 0, fmt.Errorf("hash code: %w", err)
	}
	record := codeRecord{
		Phone:     phone,
		CodeHash:  string(hash),
		ExpiresAt: time.Now().UTC().Add(s.codeTTL),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return "", 0, fmt.Errorf("marshal code record: %w", err)
	}
	if err := s.client.Set(ctx, s.codeKey(phone), raw, s.codeTTL+s.persistGrace).Err(); err != nil {
		return "", 0, err
	}
	return code, s.codeTTL, nil
}

// Verify checks the code for the phone and consumes it on success. Mismatch,
// expiry, and absence are reported as distinct errors so callers can answer
// precisely.
func (s *Store) Verify(ctx context.Context, phone, code string) error {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrCodeRequired
	}
	key := s.codeKey(phone)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCodeNotFound
	}
	if err != nil {
		return err
	}
	var record codeRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return fmt.Errorf("unmarshal code record: %w", err)
	}
	if time.Now().UTC().After(record.ExpiresAt) {
		_ = s.client.Del(ctx, key).Err()
		return ErrCodeExpired
	}
	if record.Attempts >= s.maxAttempts {
		_ = s.client.Del(ctx, key).Err()
		return ErrCodeNotFound
	}
	if bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(code)) != nil {
		record.Attempts++
		if record.Attempts >= s.maxAttempts {
			_ = s.client.Del(ctx, key).Err()
		} else if updated, marshalErr := json.Marshal(record); marshalErr == nil {
			if ttl, ttlErr := s.client.TTL(ctx, key).Result(); ttlErr == nil && ttl > 0 {
				_ = s.client.Set(ctx, key, updated, ttl).Err()
			}
		}
		return ErrCodeMismatch
	}
	return s.client.Del(ctx, key).Err()
}

func (s *Store) codeKey(phone string) string {
	return fmt.Sprintf("%s:code:%s", s.keyPrefix, phone)
}

// NormalizePhone trims the number and checks it is a plausible E.164-style
// phone: optional leading +, 8 to 15 digits.
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	digits := phone
	if strings.HasPrefix(digits, "+") {
		digits = digits[1:]
	}
	if len(digits) < 8 || len(digits) > 15 {
		return "", ErrPhoneInvalid
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", ErrPhoneInvalid
		}
	}
	return phone, nil
}

func generateNumericCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
