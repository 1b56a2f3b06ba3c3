package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing-0123"

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("ops-console", AllScopes, testSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "ops-console" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "ops-console")
	}
	if claims.Issuer != Issuer {
		t.Errorf("Issuer = %q, want %q", claims.Issuer, Issuer)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
	if !claims.HasScope(ScopeCommand) || !claims.HasScope(ScopeRead) {
		t.Errorf("Scopes = %v, want both scopes", claims.Scopes)
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != 15*time.Minute {
		t.Errorf("ttl = %v, want 15m", ttl)
	}
}

func TestGenerateToken_Errors(t *testing.T) {
	if _, err := GenerateToken("ops", AllScopes, "", time.Minute); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("empty secret: %v", err)
	}
	if _, err := GenerateToken("", AllScopes, testSecret, time.Minute); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("empty subject: %v", err)
	}
}

func TestGenerateToken_DefaultTTL(t *testing.T) {
	token, err := GenerateToken("ops", nil, testSecret, 0)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}
	if claims.HasScope(ScopeCommand) {
		t.Error("token without scopes must not grant robots:command")
	}
}

func signRaw(t *testing.T, method jwt.SigningMethod, claims jwt.Claims, key any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func TestParseToken_Rejects(t *testing.T) {
	now := time.Now()
	valid := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))

	wrongIssuer := valid
	wrongIssuer.Issuer = "someone-else"

	noExpiry := valid
	noExpiry.ExpiresAt = nil

	noSubject := valid
	noSubject.Subject = ""

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-valid-jwt", ErrTokenInvalid},
		{"wrong secret", signRaw(t, jwt.SigningMethodHS256, valid, []byte("another-secret")), ErrTokenInvalid},
		{"expired", signRaw(t, jwt.SigningMethodHS256, expired, []byte(testSecret)), ErrTokenExpired},
		{"wrong issuer", signRaw(t, jwt.SigningMethodHS256, wrongIssuer, []byte(testSecret)), ErrTokenInvalid},
		{"no expiry", signRaw(t, jwt.SigningMethodHS256, noExpiry, []byte(testSecret)), ErrTokenInvalid},
		{"no subject", signRaw(t, jwt.SigningMethodHS256, noSubject, []byte(testSecret)), ErrTokenInvalid},
		{"wrong algorithm", signRaw(t, jwt.SigningMethodHS512, valid, []byte(testSecret)), ErrTokenInvalid},
		{"none algorithm", signRaw(t, jwt.SigningMethodNone, valid, jwt.UnsafeAllowNoneSignatureType), ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, testSecret); !errors.Is(err, tt.want) {
				t.Errorf("ParseToken() error = %v, want %v", err, tt.want)
			}
		})
	}
}
