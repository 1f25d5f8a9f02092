package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	redisSrv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisSrv.Addr()})
	store, err := NewStore(Config{Client: client, CodeTTL: 10 * time.Minute})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, redisSrv
}

func TestIssueAndVerify(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	code, ttl, err := store.Issue(ctx, "+12025550123")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(code) != 6 {
		t.Errorf("code length = %d, want 6", len(code))
	}
	if ttl != 10*time.Minute {
		t.Errorf("ttl = %v", ttl)
	}
	if err := store.Verify(ctx, "+12025550123", code); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyIsSingleUse(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	code, _, err := store.Issue(ctx, "+12025550123")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := store.Verify(ctx, "+12025550123", code); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if err := store.Verify(ctx, "+12025550123", code); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("second Verify = %v, want ErrCodeNotFound", err)
	}
}

func TestVerifyWrongCode(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	code, _, err := store.Issue(ctx, "+12025550123")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}
	if err := store.Verify(ctx, "+12025550123", wrong); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("Verify = %v, want ErrCodeMismatch", err)
	}
	// The right code still works after a failed attempt.
	if err := store.Verify(ctx, "+12025550123", code); err != nil {
		t.Fatalf("Verify after mismatch: %v", err)
	}
}

func TestVerifyAttemptBudget(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisSrv.Addr()})
	store, err := NewStore(Config{Client: client, MaxAttempts: 2})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	code, _, err := store.Issue(ctx, "+12025550123")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}
	for i := 0; i < 2; i++ {
		if err := store.Verify(ctx, "+12025550123", wrong); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	// Budget exhausted: even the right code is gone.
	if err := store.Verify(ctx, "+12025550123", code); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("Verify after exhaustion = %v, want ErrCodeNotFound", err)
	}
}

func TestReissueReplacesCode(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, _, err := store.Issue(ctx, "+12025550123")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, _, err := store.Issue(ctx, "+12025550123")
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if first != second {
		if err := store.Verify(ctx, "+12025550123", first); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("old code Verify = %v, want ErrCodeMismatch", err)
		}
	}
	if err := store.Verify(ctx, "+12025550123", second); err != nil {
		t.Fatalf("new code Verify: %v", err)
	}
}

func TestVerifyExpiredCode(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisSrv.Addr()})
	store, err := NewStore(Config{Client: client, CodeTTL: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	code, _, err := store.Issue(ctx, "+12025550123")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// Past the code TTL but inside the persist grace, so the record is still
	// present and reports expiry instead of absence.
	time.Sleep(30 * time.Millisecond)
	if err := store.Verify(ctx, "+12025550123", code); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("Verify = %v, want ErrCodeExpired", err)
	}
}

func TestVerifyUnknownPhone(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Verify(context.Background(), "+12025550123", "123456"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("Verify = %v, want ErrCodeNotFound", err)
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in  string
		ok  bool
		out string
	}{
		{"+12025550123", true, "+12025550123"},
		{"  8613800138000 ", true, "8613800138000"},
		{"12ab34", false, ""},
		{"+123", false, ""},
		{"", false, ""},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in)
		if tc.ok && (err != nil || got != tc.out) {
			t.Errorf("NormalizePhone(%q) = %q, %v", tc.in, got, err)
		}
		if !tc.ok && !errors.Is(err, ErrPhoneInvalid) {
			t.Errorf("NormalizePhone(%q) err = %v, want ErrPhoneInvalid", tc.in, err)
		}
	}
}
