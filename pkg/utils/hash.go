package utils

import (
	"golang.org/x/crypto/bcrypt"
)

// generatedPasswordLength matches the length used for admin-created accounts.
const generatedPasswordLength = 20

// HashPassword hashes a plain password using bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares plain password with hashed password.
func CheckPassword(plain, hashed string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	return err == nil
}

// HashRandomPassword hashes a freshly generated password that is never returned.
// Accounts created this way must reset their password before logging in.
func HashRandomPassword() (string, error) {
	plain, err := RandomString(generatedPasswordLength)
	if err != nil {
		return "", err
	}
	return HashPassword(plain)
}
