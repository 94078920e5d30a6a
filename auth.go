package main

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"platelog/pkg/config"
)

const tokenTTL = 24 * time.Hour

var errInvalidCredentials = errors.New("invalid credentials")

// Authenticate checks the single configured admin account.
func Authenticate(auth config.Auth, username, password string) error {
	username = strings.TrimSpace(username)
	if auth.AdminPasswordHash == "" {
		return errInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(auth.AdminUser)) != 1 {
		return errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(auth.AdminPasswordHash), []byte(password)); err != nil {
		return errInvalidCredentials
	}
	return nil
}

func issueToken(secret []byte, username string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": username,
		"role":     "administrator",
		"iat":      now.Unix(),
		"exp":      now.Add(tokenTTL).Unix(),
	})
	return token.SignedString(secret)
}
