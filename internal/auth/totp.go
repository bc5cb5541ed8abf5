package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP generates and validates RFC 6238 codes for operator 2FA.
type TOTP struct {
	issuer string
	now    func() time.Time
}

// NewTOTP builds a TOTP helper for the given issuer name.
func NewTOTP(issuer string) *TOTP {
	if strings.TrimSpace(issuer) == "" {
		issuer = "Custody Service"
	}
	return &TOTP{issuer: issuer, now: time.Now}
}

// GenerateSecret creates a new base32 secret and its provisioning URL.
func (t *TOTP) GenerateSecret(accountName string) (secret, url string, err error) {
	if strings.TrimSpace(accountName) == "" || strings.Contains(accountName, ":") {
		return "", "", fmt.Errorf("invalid TOTP account name %q", accountName)
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.issuer,
		AccountName: accountName,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  20,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate TOTP key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// Validate reports whether code matches secret, allowing one period of drift.
func (t *TOTP) Validate(secret, code string) bool {
	if secret == "" || code == "" {
		return false
	}
	valid, err := totp.ValidateCustom(code, secret, t.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}
