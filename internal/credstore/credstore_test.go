package credstore

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealOpenRoundTrip(t *testing.T) {
	k, err := New(testKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	secret := []byte(`{"api_token":"tok-123"}`)
	ref, err := k.Seal(secret)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if strings.Contains(ref, "tok-123") {
		t.Fatal("sealed reference leaks the plaintext")
	}

	got, err := k.Open(ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Fatalf("Open = %q, want %q", got, secret)
	}
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	k1, _ := New(testKey)
	k2, _ := New("ff0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1eff")

	ref, err := k1.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := k2.Open(ref); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("Open with wrong key = %v, want ErrCorrupted", err)
	}
}

func TestOpenDetectsTampering(t *testing.T) {
	k, _ := New(testKey)
	ref, err := k.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(ref)
	raw[len(raw)-1] ^= 0x01
	if _, err := k.Open(base64.StdEncoding.EncodeToString(raw)); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("Open of tampered blob = %v, want ErrCorrupted", err)
	}
}

func TestNewRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "abcd", "zz", strings.Repeat("00", 16)} {
		if _, err := New(key); !errors.Is(err, ErrBadKey) {
			t.Fatalf("New(%q) = %v, want ErrBadKey", key, err)
		}
	}
}
