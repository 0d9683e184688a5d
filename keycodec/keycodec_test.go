package keycodec

import (
	"strings"
	"testing"
)

func TestDeriveEmailDeterministic(t *testing.T) {
	c := New([]byte("pepper"))

	a := c.DeriveEmail("user@example.com")
	b := c.DeriveEmail("user@example.com")
	if a != b {
		t.Fatalf("same input produced different keys: %q vs %q", a, b)
	}
}

func TestDeriveEmailNormalizes(t *testing.T) {
	c := New(nil)

	if c.DeriveEmail("User@Example.COM") != c.DeriveEmail("  user@example.com ") {
		t.Fatal("case and whitespace variants must derive the same key")
	}
}

func TestDeriveEmailHidesRawValue(t *testing.T) {
	c := New(nil)

	key := c.DeriveEmail("user@example.com")
	if strings.Contains(key, "user") || strings.Contains(key, "@") {
		t.Fatalf("derived key leaks raw identifier: %q", key)
	}
}

func TestDeriveEmailPepperSeparatesKeySpaces(t *testing.T) {
	a := New([]byte("deploy-a")).DeriveEmail("user@example.com")
	b := New([]byte("deploy-b")).DeriveEmail("user@example.com")
	if a == b {
		t.Fatal("different peppers must produce different keys")
	}
}

func TestDeriveIPPassthrough(t *testing.T) {
	c := New(nil)

	if got := c.DeriveIP(" 203.0.113.7 "); got != "203.0.113.7" {
		t.Fatalf("unexpected IP key %q", got)
	}
}
