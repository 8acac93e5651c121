package utils_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/binhbb2204/mangashelf/pkg/utils"
)

func TestGenerateID_Format(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := utils.GenerateID()
		if !utils.IsValidID(id) {
			t.Fatalf("generated id %q is not valid", id)
		}
		if id != strings.ToLower(id) {
			t.Fatalf("expected lowercase id, got %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestIsValidID(t *testing.T) {
	cases := map[string]bool{
		"5f1d7f3e9b1e8a3c4d5e6f70": true,
		"5F1D7F3E9B1E8A3C4D5E6F70": true,
		"5f1d7f3e9b1e8a3c4d5e6f7":  false,
		"5f1d7f3e9b1e8a3c4d5e6f7z": false,
		"":                         false,
		"../../etc/passwd00000000": false,
	}
	for in, want := range cases {
		if got := utils.IsValidID(in); got != want {
			t.Fatalf("IsValidID(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRandomToken(t *testing.T) {
	re := regexp.MustCompile(`^[0-9a-f]{32}$`)
	a, b := utils.RandomToken(), utils.RandomToken()
	if !re.MatchString(a) || !re.MatchString(b) {
		t.Fatalf("unexpected token format: %q %q", a, b)
	}
	if a == b {
		t.Fatalf("tokens should differ")
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := utils.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret" {
		t.Fatalf("hash must not equal plaintext")
	}
	if err := utils.CheckPassword(hash, "s3cret"); err != nil {
		t.Fatalf("expected match: %v", err)
	}
	if err := utils.CheckPassword(hash, "wrong"); err == nil {
		t.Fatalf("expected mismatch")
	}
}
