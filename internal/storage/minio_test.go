package storage

import (
	"context"
	"testing"
)

func TestEscapeKey(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"uploads/7/report.pdf", "uploads/7/report.pdf"},
		{"/leading/slash.txt", "leading/slash.txt"},
		{"with space/and#hash?.txt", "with%20space/and%23hash%3F.txt"},
	}
	for _, tc := range cases {
		if got := escapeKey(tc.key); got != tc.want {
			t.Fatalf("escapeKey(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
}

func TestPublicURLUsesBase(t *testing.T) {
	s := NewMinioStore(nil, "drops", "https://cdn.example.com/drops/", 0)
	got, err := s.PublicURL(context.Background(), "a b/c.txt")
	if err != nil {
		t.Fatalf("public url: %v", err)
	}
	if got != "https://cdn.example.com/drops/a%20b/c.txt" {
		t.Fatalf("unexpected url: %s", got)
	}
}
