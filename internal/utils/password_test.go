package utils

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name    string
		plain   string
		cost    int
		wantErr error
	}{
		{"Given a normal password and low cost", "correct horse", 4, nil},
		{"Given a zero cost", "correct horse", 0, nil},
		{"Given a password longer than bcrypt accepts", strings.Repeat("a", 73), 4, ErrPasswordLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.plain, tt.cost)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if !VerifyPassword(hash, tt.plain) {
				t.Fatal("hash does not verify its own password")
			}
			if VerifyPassword(hash, tt.plain+"x") {
				t.Fatal("hash verifies a different password")
			}
		})
	}
}

func TestValidPassword(t *testing.T) {
	tests := []struct {
		plain string
		want  bool
	}{
		{"short", false},
		{"12345678", true},
		{strings.Repeat("b", 72), true},
		{strings.Repeat("b", 73), false},
	}
	for _, tt := range tests {
		if got := ValidPassword(tt.plain); got != tt.want {
			t.Errorf("ValidPassword(len %d) = %v, want %v", len(tt.plain), got, tt.want)
		}
	}
}
