package jwt

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name       string
		clientID   string
		expiration time.Duration
		secret     string
	}{
		{name: "kiosk token", clientID: "kiosk", expiration: 12 * time.Hour, secret: "test-secret-key-32-characters!"},
		{name: "short expiration", clientID: "api", expiration: time.Second, secret: "test-secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.clientID, tt.expiration, tt.secret)
			if err != nil {
				t.Fatalf("GenerateToken() error = %v", err)
			}
			if token == "" {
				t.Fatal("GenerateToken() returned empty token")
			}

			claims, err := ValidateToken(token, tt.secret)
			if err != nil {
				t.Fatalf("ValidateToken() error = %v", err)
			}
			if claims.ClientID != tt.clientID || claims.Subject != tt.clientID {
				t.Errorf("claims = %+v, want client %s", claims, tt.clientID)
			}
		})
	}
}

func TestValidateToken(t *testing.T) {
	secret := "validation-secret-key-32-chars"

	validToken, _ := GenerateToken("kiosk", time.Hour, secret)
	expiredToken, _ := GenerateToken("kiosk", -time.Hour, secret)
	anonymousToken, _ := GenerateToken("", time.Hour, secret)

	tests := []struct {
		name    string
		token   string
		secret  string
		wantErr bool
	}{
		{name: "valid token", token: validToken, secret: secret},
		{name: "expired token", token: expiredToken, secret: secret, wantErr: true},
		{name: "wrong secret", token: validToken, secret: "wrong-secret", wantErr: true},
		{name: "invalid format", token: "invalid.token.format", secret: secret, wantErr: true},
		{name: "empty token", token: "", secret: secret, wantErr: true},
		{name: "no client", token: anonymousToken, secret: secret, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.token, tt.secret)

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidToken) {
					t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateToken() error = %v", err)
			}
			if claims.ClientID != "kiosk" {
				t.Errorf("ValidateToken() client = %v", claims.ClientID)
			}
		})
	}
}

func TestClaimsTimestamps(t *testing.T) {
	expiration := time.Hour

	before := time.Now().Add(-time.Second)
	token, err := GenerateToken("kiosk", expiration, "timestamp-secret")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	after := time.Now().Add(time.Second)

	claims, err := ValidateToken(token, "timestamp-secret")
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}

	if iat := claims.IssuedAt.Time; iat.Before(before) || iat.After(after) {
		t.Errorf("IssuedAt out of range: %v", iat)
	}
	if exp := claims.ExpiresAt.Time; exp.Before(before.Add(expiration)) || exp.After(after.Add(expiration)) {
		t.Errorf("ExpiresAt out of range: %v", exp)
	}
	if claims.Issuer != issuer {
		t.Errorf("Issuer = %q", claims.Issuer)
	}
}

func BenchmarkValidateToken(b *testing.B) {
	token, _ := GenerateToken("benchmark", 15*time.Minute, "benchmark-secret-key")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ValidateToken(token, "benchmark-secret-key"); err != nil {
			b.Fatalf("ValidateToken() error = %v", err)
		}
	}
}
