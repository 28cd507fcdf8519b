package jwt

import (
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

func testIssuer() *Issuer {
	return NewIssuer("authcore-test", "authcore-test", []byte("0123456789abcdef0123456789abcdef"))
}

func TestIssueAndParse(t *testing.T) {
	t.Parallel()
	iss := testIssuer()

	id := Identity{
		PrincipalID: "p-123",
		Email:       "ana@example.com",
		Name:        "Ana",
		Roles:       []string{"user", "admin"},
	}
	signed, exp, err := iss.IssueAccess(id, time.Now())
	if err != nil {
		t.Fatalf("IssueAccess err: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatal("expiry not in the future")
	}

	claims, err := iss.Parse(signed)
	if err != nil {
		t.Fatalf("Parse err: %v", err)
	}
	if Subject(claims) != "p-123" {
		t.Errorf("nameid: got %q", Subject(claims))
	}
	if claims["email"] != "ana@example.com" {
		t.Errorf("email claim: got %v", claims["email"])
	}
	roles, ok := claims["role"].([]any)
	if !ok || len(roles) != 2 {
		t.Errorf("role claim: got %v", claims["role"])
	}
	if jti, _ := claims["jti"].(string); jti == "" {
		t.Error("missing jti")
	}
}

func TestParse_RejectsExpired(t *testing.T) {
	t.Parallel()
	iss := testIssuer()
	iss.AccessTTL = -time.Minute

	signed, _, err := iss.IssueAccess(Identity{PrincipalID: "p-1"}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := iss.Parse(signed); err == nil {
		t.Fatal("expired token accepted by Parse")
	}
	// el parse del flujo refresh lo acepta
	claims, err := iss.ParseIgnoringExpiry(signed)
	if err != nil {
		t.Fatalf("ParseIgnoringExpiry err: %v", err)
	}
	if Subject(claims) != "p-1" {
		t.Errorf("nameid: got %q", Subject(claims))
	}
}

func TestParse_RejectsWrongKey(t *testing.T) {
	t.Parallel()
	iss := testIssuer()
	signed, _, err := iss.IssueAccess(Identity{PrincipalID: "p-1"}, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	other := NewIssuer(iss.Iss, iss.Aud, []byte("another-key-another-key-another!"))
	if _, err := other.Parse(signed); err == nil {
		t.Fatal("token signed with different key accepted")
	}
	if _, err := other.ParseIgnoringExpiry(signed); err == nil {
		t.Fatal("ParseIgnoringExpiry accepted bad signature")
	}
}

func TestParse_RejectsAlgNone(t *testing.T) {
	t.Parallel()
	iss := testIssuer()

	unsigned := jwtv5.NewWithClaims(jwtv5.SigningMethodNone, jwtv5.MapClaims{
		"iss":    iss.Iss,
		"aud":    iss.Aud,
		"nameid": "p-1",
	})
	signed, err := unsigned.SignedString(jwtv5.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := iss.Parse(signed); err == nil {
		t.Fatal("alg=none accepted by Parse")
	}
	if _, err := iss.ParseIgnoringExpiry(signed); err == nil {
		t.Fatal("alg=none accepted by ParseIgnoringExpiry")
	}
}

func TestParse_RejectsWrongIssuerOrAudience(t *testing.T) {
	t.Parallel()
	iss := testIssuer()
	signed, _, err := iss.IssueAccess(Identity{PrincipalID: "p-1"}, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	wrongIss := NewIssuer("someone-else", iss.Aud, iss.Key)
	if _, err := wrongIss.Parse(signed); err == nil {
		t.Fatal("wrong issuer accepted")
	}
	wrongAud := NewIssuer(iss.Iss, "other-aud", iss.Key)
	if _, err := wrongAud.Parse(signed); err == nil {
		t.Fatal("wrong audience accepted")
	}
}
