package common

import (
	"errors"
	"regexp"
	"strings"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 50 {
		return errors.New("username must be between 3 and 50 characters")
	}

	if !usernameRegex.MatchString(username) {
		return errors.New("username can only contain letters, numbers, and underscores")
	}

	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 6 {
		return errors.New("password must be at least 6 characters long")
	}

	if len(password) > 100 {
		return errors.New("password is too long")
	}

	return nil
}

func ValidateMessageText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("message cannot be empty")
	}
	if len(text) > 4000 {
		return errors.New("message is too long")
	}
	return nil
}
