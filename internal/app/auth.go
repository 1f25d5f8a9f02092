package app

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"lexdocs/internal/otp"
	"lexdocs/internal/util"
	"lexdocs/pkg/auth"
	"lexdocs/pkg/domain"
)

// RegisterUser creates a local email+password account and issues a session
// token.
func (a *App) RegisterUser(email, name, password string) (domain.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.User{}, "", err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.User{}, "", ErrNameRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	taken, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if taken {
		return domain.User{}, "", ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	return a.issueToken(user)
}

// Login authenticates a local account. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.User{}, "", ErrInvalidCredentials
	}
	user, found, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("lookup user: %w", err)
	}
	if !found || !auth.CheckPassword(password, user.PasswordHash) {
		a.logger.Info("auth.login fail", "email", email)
		return domain.User{}, "", ErrInvalidCredentials
	}
	return a.issueToken(user)
}

// ClerkExchange trades an external-identity header triple for a local session
// token, provisioning the user on first sight. An existing local account with
// the same email is linked rather than duplicated.
func (a *App) ClerkExchange(clerkID, email, name string) (domain.User, string, error) {
	clerkID = strings.TrimSpace(clerkID)
	if clerkID == "" {
		return domain.User{}, "", errors.New("external user id is required")
	}
	if user, found, err := a.store.GetUserByClerkID(clerkID); err != nil {
		return domain.User{}, "", fmt.Errorf("lookup user: %w", err)
	} else if found {
		return a.issueToken(user)
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.User{}, "", err
	}
	if user, found, err := a.store.GetUserByEmail(email); err != nil {
		return domain.User{}, "", fmt.Errorf("lookup user: %w", err)
	} else if found {
		user.ClerkID = clerkID
		user.UpdatedAt = time.Now().UTC()
		if err := a.store.SaveUser(user); err != nil {
			return domain.User{}, "", fmt.Errorf("link user: %w", err)
		}
		return a.issueToken(user)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = email
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		Name:         name,
		ClerkID:      clerkID,
		PasswordHash: domain.ExternalPasswordSentinel,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	a.logger.Info("auth.clerk provisioned", "userId", user.ID)
	return a.issueToken(user)
}

// UserFromToken resolves a bearer token to its user. A valid token whose user
// row is gone counts as unauthenticated.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(claims.Subject)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// UpdateProfile changes the user's name and/or phone. A changed phone loses
// its verified status until re-verified over OTP.
func (a *App) UpdateProfile(user domain.User, name, phone string) (domain.User, error) {
	if name = strings.TrimSpace(name); name != "" {
		user.Name = name
	}
	if phone = strings.TrimSpace(phone); phone != "" && phone != user.Phone {
		normalized, err := otp.NormalizePhone(phone)
		if err != nil {
			return domain.User{}, err
		}
		taken, err := a.store.HasUserPhone(normalized)
		if err != nil {
			return domain.User{}, fmt.Errorf("check phone: %w", err)
		}
		if taken {
			return domain.User{}, ErrPhoneTaken
		}
		user.Phone = normalized
		user.PhoneVerified = false
	}
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

func (a *App) issueToken(user domain.User) (domain.User, string, error) {
	token, err := a.tokens.Issue(user)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", ErrEmailRequired
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrEmailInvalid
	}
	return email, nil
}
