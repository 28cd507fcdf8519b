package cipher

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	key := make([]byte, 32)
	iv := make([]byte, 16)
	for i := range key {
		key[i] = byte(i + 1)
	}
	for i := range iv {
		iv[i] = byte(100 + i)
	}
	c, err := New(base64.StdEncoding.EncodeToString(key), base64.StdEncoding.EncodeToString(iv))
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	return c
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()
	c := testCipher(t)

	msg := "hola mundo ✓ — secreto"
	ct, err := c.Encrypt(msg)
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	if !strings.HasPrefix(ct, FormatPrefix) {
		t.Fatalf("missing format prefix: %q", ct)
	}
	pt, err := c.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt err: %v", err)
	}
	if pt != msg {
		t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
	}
}

func TestEncrypt_Deterministic(t *testing.T) {
	t.Parallel()
	c := testCipher(t)

	// IV fijo => mismo plaintext produce el mismo ciphertext
	a, err := c.Encrypt("abc123")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encrypt("abc123")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("expected deterministic output: %q != %q", a, b)
	}
}

func TestEncryptDecrypt_EmptyPassthrough(t *testing.T) {
	t.Parallel()
	c := testCipher(t)

	ct, err := c.Encrypt("")
	if err != nil || ct != "" {
		t.Fatalf("Encrypt empty: got (%q, %v)", ct, err)
	}
	pt, err := c.Decrypt("")
	if err != nil || pt != "" {
		t.Fatalf("Decrypt empty: got (%q, %v)", pt, err)
	}
}

func TestDecrypt_RejectsUnprefixed(t *testing.T) {
	t.Parallel()
	c := testCipher(t)

	if _, err := c.Decrypt("plain-legacy-secret"); !errors.Is(err, ErrNotEncrypted) {
		t.Fatalf("expected ErrNotEncrypted, got %v", err)
	}
}

func TestDecrypt_Garbage(t *testing.T) {
	t.Parallel()
	c := testCipher(t)

	cases := []string{
		FormatPrefix + "!!!not-base64!!!",
		FormatPrefix + base64.StdEncoding.EncodeToString([]byte("short")), // no múltiplo de bloque
		FormatPrefix + base64.StdEncoding.EncodeToString(make([]byte, 32)), // padding inválido
	}
	for _, in := range cases {
		if _, err := c.Decrypt(in); err == nil {
			t.Errorf("Decrypt(%q): expected error, got nil", in)
		}
	}
}

func TestNew_BadMaterial(t *testing.T) {
	t.Parallel()

	okKey := base64.StdEncoding.EncodeToString(make([]byte, 32))
	okIV := base64.StdEncoding.EncodeToString(make([]byte, 16))

	if _, err := New("nope%", okIV); err == nil {
		t.Error("expected error for non-base64 key")
	}
	if _, err := New(base64.StdEncoding.EncodeToString(make([]byte, 16)), okIV); err == nil {
		t.Error("expected error for short key")
	}
	if _, err := New(okKey, base64.StdEncoding.EncodeToString(make([]byte, 8))); err == nil {
		t.Error("expected error for short iv")
	}
}

func TestIsEncrypted(t *testing.T) {
	t.Parallel()
	if IsEncrypted("legacy") {
		t.Error("legacy value reported as encrypted")
	}
	if !IsEncrypted(FormatPrefix + "abc") {
		t.Error("prefixed value not reported as encrypted")
	}
}
