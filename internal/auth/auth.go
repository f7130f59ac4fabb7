// Package auth implements credential checks and opaque token sessions.
package auth

import (
	"errors"
	"fmt"

	"github.com/scanmark/scanmark/internal/models"
	"github.com/scanmark/scanmark/internal/proto"
	"gorm.io/gorm"
)

// CreateUser registers a new account.
func CreateUser(db *gorm.DB, username, password, role string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("auth: username is required")
	}
	if password == "" {
		return nil, fmt.Errorf("auth: password is required")
	}
	if role == "" {
		role = models.RoleMarker
	}
	if role != models.RoleMarker && role != models.RoleScanner && role != models.RoleManager {
		return nil, fmt.Errorf("auth: unknown role %q", role)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("auth: create user %s: %w", username, err)
	}
	return &user, nil
}

// Login verifies credentials and mints a session token. In exclusive
// mode a user with any outstanding token is refused with
// ExistingSession; otherwise concurrent logins each get their own token.
func Login(db *gorm.DB, username, password string, exclusive bool) (string, error) {
	user, err := verifyCredentials(db, username, password)
	if err != nil {
		return "", err
	}

	if exclusive {
		var count int64
		if err := db.Model(&models.AuthToken{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return "", fmt.Errorf("auth: count tokens for %s: %w", username, err)
		}
		if count > 0 {
			return "", proto.Errf(proto.ExistingSession, "user %s already has an active session", username)
		}
	}

	token, err := GenerateToken()
	if err != nil {
		return "", err
	}
	record := models.AuthToken{Token: token, Username: user.Username}
	if err := db.Create(&record).Error; err != nil {
		return "", fmt.Errorf("auth: store token for %s: %w", username, err)
	}
	return token, nil
}

// CheckClientVersion rejects client builds whose supported API window
// does not include this server's version.
func CheckClientVersion(minAPI, maxAPI int) error {
	if minAPI == 0 && maxAPI == 0 {
		// Client predates window reporting; accept and let per-call
		// shapes sort it out.
		return nil
	}
	if proto.APIVersion < minAPI || proto.APIVersion > maxAPI {
		return proto.Errf(proto.VersionRejected,
			"server speaks API %d, client supports %d-%d", proto.APIVersion, minAPI, maxAPI)
	}
	return nil
}

// UserForToken resolves a presented token to its active user.
func UserForToken(db *gorm.DB, token string) (*models.User, error) {
	if token == "" {
		return nil, proto.Errf(proto.AuthenticationFailed, "no token presented")
	}
	var record models.AuthToken
	if err := db.Where("token = ?", token).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, proto.Errf(proto.AuthenticationFailed, "unknown token")
		}
		return nil, fmt.Errorf("auth: look up token: %w", err)
	}
	var user models.User
	if err := db.Where("username = ?", record.Username).First(&user).Error; err != nil {
		return nil, fmt.Errorf("auth: look up user %s: %w", record.Username, err)
	}
	if !user.Active {
		return nil, proto.Errf(proto.AuthenticationFailed, "user %s is disabled", user.Username)
	}
	return &user, nil
}

// Logout ends the session for the presented token. The token row is
// removed, so a second logout with the same token fails with
// AuthenticationFailed. With revokeAll, every outstanding token for the
// user is removed, killing clone sessions too.
func Logout(db *gorm.DB, token string, revokeAll bool) error {
	var record models.AuthToken
	if err := db.Where("token = ?", token).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return proto.Errf(proto.AuthenticationFailed, "unknown token")
		}
		return fmt.Errorf("auth: look up token: %w", err)
	}

	q := db.Where("token = ?", token)
	if revokeAll {
		q = db.Where("username = ?", record.Username)
	}
	if err := q.Delete(&models.AuthToken{}).Error; err != nil {
		return fmt.Errorf("auth: delete token: %w", err)
	}
	return nil
}

// ForceClear removes every outstanding token for a user using
// credentials instead of a token, for crash recovery.
func ForceClear(db *gorm.DB, username, password string) error {
	if _, err := verifyCredentials(db, username, password); err != nil {
		return err
	}
	if err := db.Where("username = ?", username).Delete(&models.AuthToken{}).Error; err != nil {
		return fmt.Errorf("auth: clear tokens for %s: %w", username, err)
	}
	return nil
}

func verifyCredentials(db *gorm.DB, username, password string) (*models.User, error) {
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, proto.Errf(proto.AuthenticationFailed, "bad username or password")
		}
		return nil, fmt.Errorf("auth: look up user %s: %w", username, err)
	}
	if !user.Active {
		return nil, proto.Errf(proto.AuthenticationFailed, "user %s is disabled", username)
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return nil, proto.Errf(proto.AuthenticationFailed, "bad username or password")
	}
	return &user, nil
}
