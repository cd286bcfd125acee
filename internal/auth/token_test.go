package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 15)

	issued, err := tm.GenerateToken("user-1", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if issued.ID == "" || issued.Token == "" {
		t.Fatalf("expected token and id, got %+v", issued)
	}
	if d := time.Until(issued.ExpiresAt); d <= 14*time.Minute || d > 15*time.Minute {
		t.Fatalf("unexpected expiry %v", issued.ExpiresAt)
	}

	claims, err := tm.ParseToken(issued.Token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.SubjectID() != "user-1" || claims.Role != domain.RoleAdmin || claims.ID != issued.ID {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestTokenIDsAreUnique(t *testing.T) {
	tm := NewTokenManager("secret", 15)
	a, _ := tm.GenerateToken("user-1", domain.RoleUser)
	b, _ := tm.GenerateToken("user-1", domain.RoleUser)
	if a.ID == b.ID {
		t.Fatalf("expected distinct token ids")
	}
}

func TestParseTokenRejects(t *testing.T) {
	tm := NewTokenManager("secret", 15)
	issued, _ := tm.GenerateToken("user-1", domain.RoleUser)

	other := NewTokenManager("other-secret", 15)
	if _, err := other.ParseToken(issued.Token); err == nil {
		t.Fatalf("expected signature mismatch to fail")
	}

	expired := &TokenManager{secret: []byte("secret"), ttl: -time.Minute}
	stale, err := expired.GenerateToken("user-1", domain.RoleUser)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := tm.ParseToken(stale.Token); err == nil {
		t.Fatalf("expected expired token to fail")
	}

	tampered := issued.Token[:strings.LastIndex(issued.Token, ".")+1] + "AAAA"
	if _, err := tm.ParseToken(tampered); err == nil {
		t.Fatalf("expected tampered token to fail")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "hunter22" {
		t.Fatalf("hash must not equal plaintext")
	}
	if err := ComparePassword(hash, "hunter22"); err != nil {
		t.Fatalf("expected match: %v", err)
	}
	if err := ComparePassword(hash, "wrong"); err == nil {
		t.Fatalf("expected mismatch")
	}
}
