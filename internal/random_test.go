package internal

import (
	"strings"
	"testing"
)

func TestRefreshTokenRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret: %v", err)
	}

	token, err := EncodeRefreshToken(sid.String(), secret)
	if err != nil {
		t.Fatalf("EncodeRefreshToken: %v", err)
	}

	gotSID, gotSecret, err := DecodeRefreshToken(token)
	if err != nil {
		t.Fatalf("DecodeRefreshToken: %v", err)
	}
	if gotSID != sid.String() {
		t.Fatalf("session id mismatch: got %q want %q", gotSID, sid.String())
	}
	if gotSecret != secret {
		t.Fatal("secret mismatch after round trip")
	}
}

func TestDecodeRefreshTokenRejectsBadInput(t *testing.T) {
	cases := []string{
		"",
		"not-base64!!!",
		"c2hvcnQ",
	}
	for _, tc := range cases {
		if _, _, err := DecodeRefreshToken(tc); err == nil {
			t.Fatalf("expected error for %q", tc)
		}
	}
}

func TestParseSessionIDSize(t *testing.T) {
	if _, err := ParseSessionID("AAAA"); err == nil {
		t.Fatal("expected size error")
	}
}

func TestNewBackupCodeFormat(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		code, err := NewBackupCode()
		if err != nil {
			t.Fatalf("NewBackupCode: %v", err)
		}
		if len(code) != 11 || code[5] != '-' {
			t.Fatalf("unexpected code shape: %q", code)
		}
		for _, part := range strings.Split(code, "-") {
			for _, r := range part {
				if !strings.ContainsRune(backupCodeAlphabet, r) {
					t.Fatalf("character %q outside alphabet in %q", r, code)
				}
			}
		}
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate code generated: %q", code)
		}
		seen[code] = struct{}{}
	}
}

func TestNewSalt(t *testing.T) {
	if _, err := NewSalt(0); err == nil {
		t.Fatal("expected error for zero size")
	}
	salt, err := NewSalt(16)
	if err != nil {
		t.Fatalf("NewSalt: %v", err)
	}
	if len(salt) != 16 {
		t.Fatalf("unexpected salt length %d", len(salt))
	}
}
