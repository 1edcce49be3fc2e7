package service

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Alice@Example.com", "alice@example.com", true},
		{"  bob@example.org ", "bob@example.org", true},
		{"carol@bücher.de", "carol@xn--bcher-kva.de", true},
		{"Dave <dave@example.com>", "", false},
		{"no-at-sign", "", false},
		{"eve@localhost", "", false},
		{"", "", false},
		{"@example.com", "", false},
		{"a b@example.com", "", false},
		{"a@example.com, b@example.com", "", false},
	}
	for _, tc := range cases {
		got, err := normalizeEmail(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("normalizeEmail(%q): unexpected error %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("normalizeEmail(%q) = %q, want %q", tc.in, got, tc.want)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("normalizeEmail(%q): expected ErrInvalidInput, got %v", tc.in, err)
		}
	}
}

func TestNormalizeRecipients(t *testing.T) {
	if _, err := normalizeRecipients(nil, 5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty list: expected ErrInvalidInput, got %v", err)
	}
	if _, err := normalizeRecipients([]string{"a@example.com", "A@EXAMPLE.com"}, 5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("duplicates after normalisation: expected ErrInvalidInput, got %v", err)
	}
	if _, err := normalizeRecipients([]string{"a@example.com", "b@example.com"}, 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("too many recipients: expected ErrInvalidInput, got %v", err)
	}
	got, err := normalizeRecipients([]string{"B@example.com", "a@example.com"}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "b@example.com" || got[1] != "a@example.com" {
		t.Fatalf("unexpected recipients: %v", got)
	}
}

func TestNormalizeStorageKey(t *testing.T) {
	if _, err := normalizeStorageKey("   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank key: expected ErrInvalidInput, got %v", err)
	}
	if _, err := normalizeStorageKey("bad\nkey"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("control chars: expected ErrInvalidInput, got %v", err)
	}
	if _, err := normalizeStorageKey(strings.Repeat("k", maxStorageKeyBytes+1)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("long key: expected ErrInvalidInput, got %v", err)
	}
	got, err := normalizeStorageKey(" uploads/a.txt ")
	if err != nil || got != "uploads/a.txt" {
		t.Fatalf("expected trimmed key, got %q err=%v", got, err)
	}
}
