package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// TestMain lowers the password hash cost for the whole package
func TestMain(m *testing.M) {
	bcryptCost = bcrypt.MinCost
	os.Exit(m.Run())
}

func TestAuthPasswordHashCost(t *testing.T) {
	a, err := NewAuth(nil, "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	cost, err := bcrypt.Cost(a.passHash)
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if cost != bcryptCost {
		t.Errorf("hash cost %d, want %d", cost, bcryptCost)
	}
}

func TestAuthOpenServer(t *testing.T) {
	a, err := NewAuth(nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if a.RequiresPassword() {
		t.Error("empty password should leave the server open")
	}

	name, token, err := a.Authenticate(&HelloRequest{}, "1.1.1.1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !strings.HasPrefix(name, "Guest_") {
		t.Errorf("empty username should become a guest name, got %q", name)
	}
	got, err := a.ValidateToken(token)
	if err != nil || got != name {
		t.Errorf("token should carry %q, got %q (%v)", name, got, err)
	}

	if _, _, err := a.Authenticate(&HelloRequest{Username: "x"}, "1.1.1.1"); err == nil {
		t.Error("one-letter username should be rejected")
	}
}

func TestAuthPassword(t *testing.T) {
	a, err := NewAuth(nil, "s3cret")
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := a.Authenticate(&HelloRequest{Username: "lydia", Password: "nope"}, "2.2.2.2"); err != errBadPassword {
		t.Errorf("expected bad password, got %v", err)
	}
	_, token, err := a.Authenticate(&HelloRequest{Username: "lydia", Password: "s3cret"}, "2.2.2.2")
	if err != nil {
		t.Fatalf("correct password: %v", err)
	}

	name, _, err := a.Authenticate(&HelloRequest{Username: "ignored", Token: token}, "2.2.2.2")
	if err != nil || name != "lydia" {
		t.Errorf("token should stand in for the password, got %q (%v)", name, err)
	}
	if _, _, err := a.Authenticate(&HelloRequest{Token: "garbage"}, "2.2.2.2"); err != errBadToken {
		t.Errorf("expected bad token, got %v", err)
	}
}

func TestAuthRateLimit(t *testing.T) {
	a, _ := NewAuth(nil, "")
	for i := 0; i < maxHelloAttempts; i++ {
		if _, _, err := a.Authenticate(&HelloRequest{Username: fmt.Sprintf("u%d", i)}, "3.3.3.3"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if _, _, err := a.Authenticate(&HelloRequest{Username: "late"}, "3.3.3.3"); err != errRateLimited {
		t.Errorf("expected rate limit, got %v", err)
	}
	if _, _, err := a.Authenticate(&HelloRequest{Username: "other"}, "4.4.4.4"); err != nil {
		t.Errorf("other IPs are unaffected, got %v", err)
	}
}

func TestAuthSecretPersisted(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer db.Close()

	a1, _ := NewAuth(db, "")
	_, token, err := a1.Authenticate(&HelloRequest{Username: "serana"}, "5.5.5.5")
	if err != nil {
		t.Fatal(err)
	}
	a2, _ := NewAuth(db, "")
	if name, err := a2.ValidateToken(token); err != nil || name != "serana" {
		t.Errorf("token should survive a restart, got %q (%v)", name, err)
	}
}
