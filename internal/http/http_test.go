package http

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/dropDatabas3/authcore/internal/auth"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/healthz", "/healthz"},
		{"/api/auth/login", "/api/auth/login"},
		{"/api/auth/login?next=/home", "/api/auth/login"},
		{"/principals/0b38d7a0-1111-2222-3333-444455556666", "/principals/:param"},
		{"/sessions/42", "/sessions/:param"},
		{"/t/deadbeefdeadbeefdead", "/t/:param"},
	}
	for _, c := range cases {
		if got := normalizePath(c.in); got != c.want {
			t.Errorf("normalizePath(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestWriteAuthError_StatusMapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{auth.ErrInvalidCredentials, 401, "invalid_credentials"},
		{auth.ErrInvalidRefreshToken, 401, "invalid_refresh_token"},
		{auth.ErrInvalidTotpCode, 401, "invalid_totp_code"},
		{auth.ErrDuplicateEmail, 409, "duplicate_email"},
		{auth.ErrTotpAlreadyEnabled, 409, "totp_already_enabled"},
		{auth.ErrStoreUnavailable, 503, "store_unavailable"},
		{auth.ErrCrypto, 500, "internal_error"},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		WriteAuthError(rec, c.err)
		if rec.Code != c.status {
			t.Errorf("%v: status = %d, want %d", c.err, rec.Code, c.status)
		}
		var body apiError
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%v: invalid body: %v", c.err, err)
		}
		if body.Error != c.code {
			t.Errorf("%v: code = %q, want %q", c.err, body.Error, c.code)
		}
	}
}

func TestWriteAuthError_WeakPasswordReasons(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	WriteAuthError(rec, &auth.WeakPasswordError{Reasons: []string{"too_short", "missing_digit"}})
	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body apiError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Reasons) != 2 {
		t.Errorf("reasons = %v, want 2 entries", body.Reasons)
	}
}
