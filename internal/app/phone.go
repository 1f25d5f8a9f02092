package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lexdocs/internal/otp"
	"lexdocs/internal/util"
	"lexdocs/pkg/domain"
)

// OTPResult reports a sent verification code. DevCode carries the plaintext
// code outside production so clients can be tested without an SMS gateway.
type OTPResult struct {
	Phone     string `json:"phone"`
	ExpiresIn int    `json:"expiresIn"`
	DevCode   string `json:"devCode,omitempty"`
}

var otpPurposes = map[string]struct{}{
	"login":        {},
	"registration": {},
	"verification": {},
}

// SendOTP issues a verification code for the phone and delivers it over SMS,
// or echoes it back in development. Sends are rate limited per phone.
func (a *App) SendOTP(ctx context.Context, phone, purpose string) (OTPResult, error) {
	if a.otp == nil {
		return OTPResult{}, errors.New("phone verification is not configured")
	}
	phone, err := otp.NormalizePhone(phone)
	if err != nil {
		return OTPResult{}, err
	}
	purpose = strings.ToLower(strings.TrimSpace(purpose))
	if _, ok := otpPurposes[purpose]; !ok {
		return OTPResult{}, ErrPurposeInvalid
	}
	if a.sendLimiter != nil && !a.sendLimiter.Allow(phone) {
		a.logger.Info("otp.send limited", "phone", phone)
		return OTPResult{}, ErrOTPRateLimited
	}
	code, ttl, err := a.otp.Issue(ctx, phone)
	if err != nil {
		return OTPResult{}, fmt.Errorf("issue code: %w", err)
	}
	result := OTPResult{Phone: phone, ExpiresIn: int(ttl.Seconds())}
	if a.sms == nil || !a.production() {
		a.logger.Info("otp.send dev", "phone", phone, "purpose", purpose)
		result.DevCode = code
		return result, nil
	}
	if err := a.sms.SendCode(ctx, phone, code); err != nil {
		return OTPResult{}, fmt.Errorf("deliver code: %w", err)
	}
	a.logger.Info("otp.send ok", "phone", phone, "purpose", purpose)
	return result, nil
}

// VerifyOTP checks a code without consuming any identity side effects.
func (a *App) VerifyOTP(ctx context.Context, phone, code string) error {
	if a.otp == nil {
		return errors.New("phone verification is not configured")
	}
	return a.otp.Verify(ctx, phone, code)
}

// PhoneRegister creates a phone-verified account after OTP verification. The
// optional email defaults to a synthetic address derived from the phone.
func (a *App) PhoneRegister(ctx context.Context, phone, name, code, email string) (domain.User, string, error) {
	if a.otp == nil {
		return domain.User{}, "", errors.New("phone verification is not configured")
	}
	phone, err := otp.NormalizePhone(phone)
	if err != nil {
		return domain.User{}, "", err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.User{}, "", ErrNameRequired
	}
	if err := a.otp.Verify(ctx, phone, code); err != nil {
		return domain.User{}, "", err
	}
	taken, err := a.store.HasUserPhone(phone)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check phone: %w", err)
	}
	if taken {
		return domain.User{}, "", ErrPhoneTaken
	}
	if email = strings.TrimSpace(email); email == "" {
		email = syntheticEmail(phone)
	} else {
		if email, err = normalizeEmail(email); err != nil {
			return domain.User{}, "", err
		}
	}
	if taken, err := a.store.HasUserEmail(email); err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	} else if taken {
		return domain.User{}, "", ErrEmailTaken
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:            util.NewID(),
		Email:         email,
		Name:          name,
		Phone:         phone,
		PhoneVerified: true,
		PasswordHash:  domain.ExternalPasswordSentinel,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	return a.issueToken(user)
}

// PhoneLogin authenticates an existing account by phone + OTP.
func (a *App) PhoneLogin(ctx context.Context, phone, code string) (domain.User, string, error) {
	if a.otp == nil {
		return domain.User{}, "", errors.New("phone verification is not configured")
	}
	phone, err := otp.NormalizePhone(phone)
	if err != nil {
		return domain.User{}, "", err
	}
	if err := a.otp.Verify(ctx, phone, code); err != nil {
		return domain.User{}, "", err
	}
	user, found, err := a.store.GetUserByPhone(phone)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("lookup user: %w", err)
	}
	if !found {
		return domain.User{}, "", ErrUserNotFound
	}
	if !user.PhoneVerified {
		user.PhoneVerified = true
		user.UpdatedAt = time.Now().UTC()
		if err := a.store.SaveUser(user); err != nil {
			return domain.User{}, "", fmt.Errorf("save user: %w", err)
		}
	}
	return a.issueToken(user)
}

// syntheticEmail derives a placeholder unique email for phone-only accounts.
func syntheticEmail(phone string) string {
	return strings.TrimPrefix(phone, "+") + "@phone.lexdocs.local"
}
