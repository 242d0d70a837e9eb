package world

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Validation constants
const (
	MaxUsernameLength = 50
	MaxMessageLength  = 5000
	MaxModuleIDLength = 128
)

// Storage errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Validation errors
var (
	ErrUsernameEmpty   = errors.New("username cannot be empty")
	ErrUsernameTooLong = errors.New("username exceeds maximum length")
	ErrUsernameInvalid = errors.New("username contains invalid characters")
	ErrMessageEmpty    = errors.New("message content cannot be empty")
	ErrMessageTooLong  = errors.New("message exceeds maximum length")
	ErrMessageInvalid  = errors.New("message contains invalid characters")
	ErrInvalidModule   = errors.New("invalid module")
	ErrUserIDEmpty     = errors.New("user id cannot be empty")
)

// ValidateUsername validates a username.
func ValidateUsername(username string) error {
	if username == "" {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	if !utf8.ValidString(username) {
		return ErrUsernameInvalid
	}
	return nil
}

// ValidateMessage validates chat message content.
func ValidateMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrMessageEmpty
	}
	if len(content) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if !utf8.ValidString(content) {
		return ErrMessageInvalid
	}
	return nil
}

// ValidateUser checks a profile before it is upserted.
func ValidateUser(u User) error {
	if u.ID == "" {
		return ErrUserIDEmpty
	}
	return ValidateUsername(u.Username)
}
