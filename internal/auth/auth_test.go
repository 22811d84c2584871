package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func withSecret(t *testing.T, secret string) {
	t.Helper()
	ResetSecretForTests()
	t.Setenv(secretEnvVariable, secret)
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidateToken(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken("user-42", "Buyer", 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("subject = %s", claims.Subject)
	}
	if claims.Role != "buyer" {
		t.Fatalf("role should be normalized to lower case, got %s", claims.Role)
	}
	if claims.Issuer != issuer {
		t.Fatalf("issuer = %s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("token id missing")
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	withSecret(t, "test-secret")

	if _, err := GenerateToken("", "buyer", time.Minute); err == nil {
		t.Fatal("empty user must fail")
	}
	if _, err := GenerateToken("u1", " ", time.Minute); err == nil {
		t.Fatal("empty role must fail")
	}
	if _, err := GenerateToken("u1", "buyer", 0); err == nil {
		t.Fatal("zero ttl must fail")
	}
}

func TestGenerateTokenMissingSecret(t *testing.T) {
	withSecret(t, "")
	if _, err := GenerateToken("u1", "buyer", time.Minute); err == nil {
		t.Fatal("missing secret must fail")
	}
}

func TestParseRejectsBadTokens(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken("user-1", "buyer", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"tampered", token[:len(token)-2] + "xx"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseAndValidate(tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	withSecret(t, "test-secret")

	now := time.Now().UTC()
	claims := Claims{
		Role: "buyer",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
			ID:        "jti-1",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAndValidate(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestParseRejectsForeignIssuer(t *testing.T) {
	withSecret(t, "test-secret")

	now := time.Now().UTC()
	claims := Claims{
		Role: "buyer",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAndValidate(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign issuer, got %v", err)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-phrase")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("unexpected hash format: %s", hash)
	}

	ok, err := VerifyPassword("s3cret-phrase", hash)
	if err != nil || !ok {
		t.Fatalf("correct password rejected: ok=%v err=%v", ok, err)
	}
	ok, err = VerifyPassword("wrong", hash)
	if err != nil || ok {
		t.Fatalf("wrong password accepted: ok=%v err=%v", ok, err)
	}
	if _, err := VerifyPassword("x", "$plain$nope"); err == nil {
		t.Fatal("malformed hash must fail")
	}

	// Same password, fresh salt, different encoding.
	again, err := HashPassword("s3cret-phrase")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if again == hash {
		t.Fatal("hashes must be salted")
	}
}

func TestActorContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := ActorFromContext(ctx); ok {
		t.Fatal("empty context must not carry an actor")
	}
	actor := Actor{ID: "u1", Role: "buyer"}
	ctx = ContextWithActor(ctx, actor)
	got, ok := ActorFromContext(ctx)
	if !ok || got.ID != "u1" || got.Role != "buyer" {
		t.Fatalf("actor round trip failed: %+v ok=%v", got, ok)
	}
}
