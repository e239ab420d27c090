package cashcode

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		code, err := GenerateCode(defaultCodeLength)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != defaultCodeLength {
			t.Fatalf("expected length %d, got %q", defaultCodeLength, code)
		}
		for _, c := range code {
			if !strings.ContainsRune(codeAlphabet, c) {
				t.Fatalf("unexpected character %q in %q", c, code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 999 {
		t.Errorf("expected distinct codes, got %d unique of 1000", len(seen))
	}

	if _, err := GenerateCode(minCodeLength - 1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for short code, got %v", err)
	}
}

func TestCodesMatch(t *testing.T) {
	tests := []struct {
		name      string
		stored    string
		submitted string
		want      bool
	}{
		{"exact", "ABCD2345", "ABCD2345", true},
		{"lowercase", "ABCD2345", "abcd2345", true},
		{"whitespace", "ABCD2345", "  ABCD2345\n", true},
		{"different", "ABCD2345", "ABCD2346", false},
		{"prefix", "ABCD2345", "ABCD234", false},
		{"empty submitted", "ABCD2345", "", false},
		{"empty stored", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodesMatch(tt.stored, tt.submitted); got != tt.want {
				t.Errorf("CodesMatch(%q, %q) = %v, want %v", tt.stored, tt.submitted, got, tt.want)
			}
		})
	}
}

func TestStorageErr(t *testing.T) {
	fault := errors.New("connection refused")
	err := storageErr("get draw", fault)
	if !errors.Is(err, ErrStorageUnavailable) || !errors.Is(err, fault) {
		t.Errorf("expected wrapped storage fault, got %v", err)
	}

	err = storageErr("get draw", ErrDrawNotFound)
	if errors.Is(err, ErrStorageUnavailable) {
		t.Error("domain outcome must not be reported as a storage fault")
	}
	if !errors.Is(err, ErrDrawNotFound) {
		t.Errorf("expected ErrDrawNotFound, got %v", err)
	}

	if storageErr("noop", nil) != nil {
		t.Error("nil stays nil")
	}
}
