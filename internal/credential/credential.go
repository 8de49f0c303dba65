package credential

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordBytes of entropy, rendered as twice as many hex characters.
const PasswordBytes = 8

// Credential is the plaintext login of an account created in one request.
// It is only ever shown once.
type Credential struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"`
}

// Login is the identifier the account signs in with.
func (c Credential) Login() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Phone
}

// Generate returns a random 16 character hex password.
func Generate() (string, error) {
	buf := make([]byte, PasswordBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func Verify(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// New generates a password and its hash in one step.
func New() (plaintext, hash string, err error) {
	plaintext, err = Generate()
	if err != nil {
		return "", "", err
	}
	hash, err = Hash(plaintext)
	if err != nil {
		return "", "", err
	}
	return plaintext, hash, nil
}
