package auth

import (
	"testing"
	"time"
)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	deviceID := "device-123"

	tok, err := GenerateToken(deviceID, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	gotDeviceID, err := GetDeviceIDFromToken(tok, secret)
	if err != nil {
		t.Fatalf("GetDeviceIDFromToken error: %v", err)
	}
	if gotDeviceID != deviceID {
		t.Fatalf("deviceID mismatch: got %q want %q", gotDeviceID, deviceID)
	}
}

func TestGetDeviceIDFromToken_Expired(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")

	tok, err := GenerateToken("d1", secret, -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = GetDeviceIDFromToken(tok, secret)
	if err == nil {
		t.Fatalf("expected error for expired token, got nil")
	}
}

func TestGetDeviceIDFromToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("d2", []byte("right-secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = GetDeviceIDFromToken(tok, []byte("wrong-secret"))
	if err == nil {
		t.Fatalf("expected error for invalid signature, got nil")
	}
}

func TestGetDeviceIDFromToken_MalformedString(t *testing.T) {
	t.Parallel()

	_, err := GetDeviceIDFromToken("not.a.jwt", []byte("k"))
	if err == nil {
		t.Fatalf("expected error for malformed token, got nil")
	}
}
