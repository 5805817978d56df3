// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	a := NewJWTAuth("test-secret")

	token, err := a.GenerateToken("user-123", "device-456", time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Error("Generated token should not be empty")
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate generated token: %v", err)
	}
	if claims.DeviceID != "device-456" {
		t.Errorf("Expected device id device-456, got %s", claims.DeviceID)
	}
	if claims.Subject != "user-123" {
		t.Errorf("Expected subject user-123, got %s", claims.Subject)
	}
	if claims.ExpiresAt == nil {
		t.Fatal("Token should have expiration time")
	}
	diff := claims.ExpiresAt.Time.Sub(time.Now().Add(time.Hour)).Abs()
	if diff > time.Second {
		t.Errorf("Token expiry differs by more than 1 second: %v", diff)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	a1 := NewJWTAuth("secret-1")
	a2 := NewJWTAuth("secret-2")

	token, err := a1.GenerateToken("user", "device", time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if _, err := a2.ValidateToken(token); err == nil {
		t.Error("Token signed with a different secret should not validate")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	a := NewJWTAuth("test-secret")

	token, err := a.GenerateToken("user", "device", -time.Minute)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if _, err := a.ValidateToken(token); err == nil {
		t.Error("Expired token should not validate")
	}
}

func TestValidateTokenMissingDeviceID(t *testing.T) {
	a := NewJWTAuth("test-secret")

	token, err := a.GenerateToken("user", "", time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if _, err := a.ValidateToken(token); err == nil {
		t.Error("Token without device id should not validate")
	}
}

func TestTokenSourceMintsValidTokens(t *testing.T) {
	a := NewJWTAuth("test-secret")
	src := a.TokenSource("user-9", "device-9", time.Minute)

	token, err := src(context.Background())
	if err != nil {
		t.Fatalf("Token source failed: %v", err)
	}
	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("Minted token should validate: %v", err)
	}
	if claims.DeviceID != "device-9" {
		t.Errorf("Expected device-9, got %s", claims.DeviceID)
	}
}
