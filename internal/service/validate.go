package service

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/idna"
)

const maxStorageKeyBytes = 1024

var validate = validator.New()

func normalizeStorageKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: storage key is empty", ErrInvalidInput)
	}
	if len(key) > maxStorageKeyBytes {
		return "", fmt.Errorf("%w: storage key exceeds %d bytes", ErrInvalidInput, maxStorageKeyBytes)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: storage key contains control characters", ErrInvalidInput)
		}
	}
	return key, nil
}

// normalizeEmail accepts a bare address and returns it lower-cased with an
// ASCII (punycode) domain.
func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if err := validate.Var(raw, "required,email"); err != nil {
		return "", fmt.Errorf("%w: invalid email %q", ErrInvalidInput, raw)
	}
	at := strings.LastIndex(raw, "@")
	if at <= 0 || at == len(raw)-1 {
		return "", fmt.Errorf("%w: invalid email %q", ErrInvalidInput, raw)
	}
	local := raw[:at]
	domain, err := idna.Lookup.ToASCII(raw[at+1:])
	if err != nil || !strings.Contains(domain, ".") {
		return "", fmt.Errorf("%w: invalid email domain %q", ErrInvalidInput, raw)
	}
	return strings.ToLower(local + "@" + domain), nil
}

func normalizeRecipients(raw []string, max int) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", ErrInvalidInput)
	}
	if max > 0 && len(raw) > max {
		return nil, fmt.Errorf("%w: at most %d recipients allowed", ErrInvalidInput, max)
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		email, err := normalizeEmail(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[email]; dup {
			return nil, fmt.Errorf("%w: duplicate recipient %q", ErrInvalidInput, email)
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	return out, nil
}
