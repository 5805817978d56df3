// Copyright 2026 SIGERD Mobile contributors
// SPDX-License-Identifier: Apache-2.0

// Package auth issues and validates the bearer tokens used by the sync
// transport. One account can sync from several field devices, so the device
// id travels in the token alongside the user subject.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuth signs and verifies HMAC-SHA256 tokens.
type JWTAuth struct {
	secret []byte
}

// NewJWTAuth creates an authenticator over a shared secret.
func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret)}
}

// Claims carried in a sync token. The device id rides in "did" so the
// server can tell which device produced a change.
type Claims struct {
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

// GenerateToken issues a token for userID on deviceID, valid for expiration.
func (j *JWTAuth) GenerateToken(userID, deviceID string, expiration time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "sigerd-mobile",
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken parses and verifies a token, returning its claims. Tokens
// without a device id or subject are rejected even when the signature is
// good: the sync protocol cannot attribute changes without both.
func (j *JWTAuth) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("token signed with %v, want HMAC", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("token failed validation")
	}
	if claims.DeviceID == "" {
		return nil, fmt.Errorf("token carries no device id")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token carries no user subject")
	}
	return claims, nil
}

// TokenSource returns a per-request token supplier for the HTTP transport.
// A fresh short-lived token is minted on every call.
func (j *JWTAuth) TokenSource(userID, deviceID string, expiration time.Duration) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return j.GenerateToken(userID, deviceID, expiration)
	}
}
