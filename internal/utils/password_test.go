package utils

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		expected error
	}{
		{"empty", "", ErrPasswordTooShort},
		{"one short", strings.Repeat("a", MinPasswordLength-1), ErrPasswordTooShort},
		{"exactly minimum", strings.Repeat("a", MinPasswordLength), nil},
		{"multibyte counts runes", "pässwörd", nil},
		{"multibyte too short", "äöüäöüä", ErrPasswordTooShort},
		{"at bcrypt limit", strings.Repeat("a", MaxPasswordBytes), nil},
		{"past bcrypt limit", strings.Repeat("a", MaxPasswordBytes+1), ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidatePassword(tt.password); !errors.Is(err, tt.expected) {
				t.Errorf("ValidatePassword(%q) = %v, expected %v", tt.password, err, tt.expected)
			}
		})
	}
}

func TestHashPassword_UsesDefaultCost(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("hash is not a bcrypt hash: %v", err)
	}
	if cost != bcrypt.DefaultCost {
		t.Errorf("cost = %d, expected %d", cost, bcrypt.DefaultCost)
	}

	other, _ := HashPassword("correct-horse-battery")
	if hash == other {
		t.Error("hashes of one password should differ by salt")
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	tests := []struct {
		name     string
		password string
		hash     string
		expected bool
	}{
		{"matching", "correct-horse-battery", hash, true},
		{"different case", "Correct-Horse-Battery", hash, false},
		{"trailing space", "correct-horse-battery ", hash, false},
		{"empty password", "", hash, false},
		{"not a bcrypt hash", "correct-horse-battery", "correct-horse-battery", false},
		{"empty hash", "correct-horse-battery", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckPassword(tt.password, tt.hash); got != tt.expected {
				t.Errorf("CheckPassword(%q) = %v, expected %v", tt.password, got, tt.expected)
			}
		})
	}
}
